package rules

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, c.Minutes())
	assert.Equal(t, "09:30", c.String())

	end, err := ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(MinutesPerDay), end)
	assert.False(t, end.IsStartOfSlot())

	for _, bad := range []string{"", "9", "25:00", "12:61", "noon"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := MustDate("2024-02-28")
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))

	var parsed Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-06-01"`), &parsed))
	assert.Equal(t, time.Saturday, parsed.Weekday())
	assert.Error(t, json.Unmarshal([]byte(`"06/01/2024"`), &parsed))
}

func TestParseWeekday(t *testing.T) {
	wd, ok := ParseWeekday("Monday")
	require.True(t, ok)
	assert.Equal(t, time.Monday, wd)

	wd, ok = ParseWeekday("sat")
	require.True(t, ok)
	assert.Equal(t, time.Saturday, wd)

	_, ok = ParseWeekday("someday")
	assert.False(t, ok)
}

func TestConditionMatches(t *testing.T) {
	ctx := PricingContext{
		TimeOfDay:    MustClock("18:30"),
		DayOfWeek:    "Saturday",
		IsEmergency:  true,
		CustomerType: CustomerCommercial,
		Location:     Location{ZipCode: "94107", Distance: 12.5},
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"emergency eq true", Condition{Field: FieldIsEmergency, Operator: OpEq, Value: "true"}, true},
		{"emergency neq true", Condition{Field: FieldIsEmergency, Operator: OpNeq, Value: "true"}, false},
		{"holiday eq false", Condition{Field: FieldIsHoliday, Operator: OpEq, Value: "false"}, true},
		{"customer type", Condition{Field: FieldCustomerType, Operator: OpEq, Value: "Commercial"}, true},
		{"customer type neq", Condition{Field: FieldCustomerType, Operator: OpNeq, Value: "residential"}, true},
		{"weekend in", Condition{Field: FieldDayOfWeek, Operator: OpIn, Values: []Literal{"sat", "sun"}}, true},
		{"weekday eq", Condition{Field: FieldDayOfWeek, Operator: OpEq, Value: "monday"}, false},
		{"distance gt", Condition{Field: FieldDistance, Operator: OpGt, Value: "10"}, true},
		{"distance lte", Condition{Field: FieldDistance, Operator: OpLte, Value: "12.5"}, true},
		{"after hours", Condition{Field: FieldTimeOfDay, Operator: OpGte, Value: "18:00"}, true},
		{"before hours", Condition{Field: FieldTimeOfDay, Operator: OpLt, Value: "08:00"}, false},

		// malformed conditions never match
		{"unknown field", Condition{Field: "weather", Operator: OpEq, Value: "rain"}, false},
		{"bad bool literal", Condition{Field: FieldIsEmergency, Operator: OpEq, Value: "yes please"}, false},
		{"ordering on bool", Condition{Field: FieldIsEmergency, Operator: OpGt, Value: "true"}, false},
		{"bad number", Condition{Field: FieldDistance, Operator: OpGt, Value: "far"}, false},
		{"bad clock", Condition{Field: FieldTimeOfDay, Operator: OpGt, Value: "6pm"}, false},
		{"empty in", Condition{Field: FieldCustomerType, Operator: OpIn}, false},
		{"unknown weekday", Condition{Field: FieldDayOfWeek, Operator: OpNeq, Value: "funday"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Matches(ctx))
		})
	}
}

func TestConditionLiteralFromJSONScalars(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"field":"isEmergency","operator":"eq","value":true}`), &c))
	assert.True(t, c.Matches(PricingContext{IsEmergency: true}))

	require.NoError(t, json.Unmarshal([]byte(`{"field":"distance","operator":"gt","value":25}`), &c))
	assert.True(t, c.Matches(PricingContext{Location: Location{Distance: 30}}))
	assert.False(t, c.Matches(PricingContext{Location: Location{Distance: 20}}))

	assert.Error(t, json.Unmarshal([]byte(`{"field":"distance","operator":"gt","value":{"x":1}}`), &c))
}

func TestPricingRuleApply(t *testing.T) {
	hundred := decimal.NewFromInt(100)

	flat := PricingRule{ID: "a", Modifier: decimal.NewFromInt(-15)}
	assert.Equal(t, ModifierFlat, flat.Kind())
	assert.True(t, flat.Apply(hundred).Equal(decimal.NewFromInt(85)))

	pct := PricingRule{ID: "b", Modifier: decimal.NewFromFloat(12.5), ModifierKind: ModifierPercent}
	assert.True(t, pct.Apply(hundred).Equal(decimal.NewFromFloat(112.5)))
}

func TestPricingRuleValidate(t *testing.T) {
	ok := PricingRule{
		ID:        "emergency",
		Condition: Condition{Field: FieldIsEmergency, Operator: OpEq, Value: "true"},
		Modifier:  decimal.NewFromInt(50),
	}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.ModifierKind = "multiply"
	bad.Condition.Field = "mood"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown modifier kind")
	assert.Contains(t, err.Error(), "unsupported condition field")
}

func clockPtr(s string) *Clock {
	c := MustClock(s)
	return &c
}

func datePtr(s string) *Date {
	d := MustDate(s)
	return &d
}

func hoursPtr(h float64) *float64 { return &h }

func TestSchedulingRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    SchedulingRule
		wantErr string
	}{
		{"valid time range", SchedulingRule{ID: "r", Type: RuleTimeOfDay, Action: ActionBlock, Value: RuleValue{Start: clockPtr("12:00"), End: clockPtr("13:00")}}, ""},
		{"inverted range", SchedulingRule{ID: "r", Type: RuleTimeOfDay, Action: ActionBlock, Value: RuleValue{Start: clockPtr("13:00"), End: clockPtr("12:00")}}, "start < end"},
		{"missing days", SchedulingRule{ID: "r", Type: RuleDayOfWeek, Action: ActionBlock}, "at least one day"},
		{"bad day", SchedulingRule{ID: "r", Type: RuleDayOfWeek, Action: ActionBlock, Value: RuleValue{Days: []string{"blursday"}}}, "unknown weekday"},
		{"negative lead", SchedulingRule{ID: "r", Type: RuleLeadTime, Action: ActionBlock, Value: RuleValue{Hours: hoursPtr(-1)}}, "must not be negative"},
		{"reversed blackout", SchedulingRule{ID: "r", Type: RuleBlackout, Action: ActionBlock, Value: RuleValue{From: datePtr("2024-12-31"), To: datePtr("2024-12-24")}}, "from <= to"},
		{"empty blackout", SchedulingRule{ID: "r", Type: RuleBlackout, Action: ActionBlock}, "date range or holidays"},
		{"holiday blackout", SchedulingRule{ID: "r", Type: RuleBlackout, Action: ActionBlock, Value: RuleValue{Holidays: true}}, ""},
		{"unknown action", SchedulingRule{ID: "r", Type: RuleLeadTime, Action: "maybe", Value: RuleValue{Hours: hoursPtr(1)}}, "unknown action"},
		{"unknown type", SchedulingRule{ID: "r", Type: "moonPhase", Action: ActionBlock}, "unknown rule type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSchedulingRuleMatches(t *testing.T) {
	monday := MustDate("2024-06-03")
	slot := Slot{Date: monday, Start: MustClock("12:30"), End: MustClock("13:30"), LeadTimeHours: 5}

	lunch := SchedulingRule{ID: "lunch", Type: RuleTimeOfDay, Value: RuleValue{Start: clockPtr("12:00"), End: clockPtr("13:00")}}
	assert.True(t, lunch.Matches(slot), "overlapping slot")
	assert.False(t, lunch.Matches(Slot{Date: monday, Start: MustClock("13:00"), End: MustClock("14:00")}), "touching slot")

	mornings := SchedulingRule{ID: "mornings", Type: RuleTimeOfDay, Value: RuleValue{Start: clockPtr("08:00"), End: clockPtr("12:00"), Invert: true}}
	assert.True(t, mornings.Matches(slot), "slot outside the allowed range")
	assert.False(t, mornings.Matches(Slot{Date: monday, Start: MustClock("10:00"), End: MustClock("11:00")}))

	weekdays := SchedulingRule{ID: "weekend", Type: RuleDayOfWeek, Value: RuleValue{Days: []string{"saturday", "sunday"}}}
	assert.False(t, weekdays.Matches(slot))
	weekdays.Value.Invert = true
	assert.True(t, weekdays.Matches(slot))

	// an inverted rule with no usable days would otherwise block every day
	for _, days := range [][]string{nil, {"mondy"}, {"saturday", "funday"}} {
		broken := SchedulingRule{ID: "broken", Type: RuleDayOfWeek, Value: RuleValue{Days: days, Invert: true}}
		assert.False(t, broken.Matches(slot), "days %v", days)
		broken.Value.Invert = false
		assert.False(t, broken.Matches(slot), "days %v", days)
	}

	notice := SchedulingRule{ID: "notice", Type: RuleLeadTime, Value: RuleValue{Hours: hoursPtr(24)}}
	assert.True(t, notice.Matches(slot))
	assert.False(t, notice.Matches(Slot{Date: monday, LeadTimeHours: 24}))

	blackout := SchedulingRule{ID: "holidays", Type: RuleBlackout, Value: RuleValue{From: datePtr("2024-06-01"), To: datePtr("2024-06-03")}}
	assert.True(t, blackout.Matches(slot), "inclusive end")
	assert.False(t, blackout.Matches(Slot{Date: monday.AddDays(1)}))

	holidayOnly := SchedulingRule{ID: "h", Type: RuleBlackout, Value: RuleValue{Holidays: true}}
	assert.True(t, holidayOnly.Matches(Slot{Date: monday, IsHoliday: true}))
	assert.False(t, holidayOnly.Matches(slot))
}

func TestSchedulingRuleDefaultReason(t *testing.T) {
	r := SchedulingRule{ID: "x", Type: RuleBlackout, Value: RuleValue{From: datePtr("2024-12-24"), To: datePtr("2024-12-26")}}
	assert.Equal(t, "blackout from 2024-12-24 to 2024-12-26", r.DefaultReason())

	r.Description = "Closed for the holidays"
	assert.Equal(t, "Closed for the holidays", r.DefaultReason())
}
