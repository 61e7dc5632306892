// Package rules provides the value objects a service template is built
// from: pricing rules, scheduling rules and the conditions they test.
package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ModifierKind selects how a pricing rule's modifier changes the running total.
type ModifierKind string

const (
	// ModifierFlat adds the modifier to the running total. It is the default.
	ModifierFlat ModifierKind = "flat"
	// ModifierPercent scales the running total by (1 + modifier/100).
	ModifierPercent ModifierKind = "percent"
)

// PricingRule is a conditional adjustment applied to the running price.
type PricingRule struct {
	ID           string          `json:"id"`
	Condition    Condition       `json:"condition"`
	Modifier     decimal.Decimal `json:"modifier"`
	ModifierKind ModifierKind    `json:"modifier_kind,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// Kind returns the effective modifier kind.
func (r PricingRule) Kind() ModifierKind {
	if r.ModifierKind == "" {
		return ModifierFlat
	}
	return r.ModifierKind
}

// Apply returns the running total after this rule's modifier.
func (r PricingRule) Apply(total decimal.Decimal) decimal.Decimal {
	switch r.Kind() {
	case ModifierPercent:
		return total.Mul(decimal.NewFromInt(1).Add(r.Modifier.Shift(-2)))
	default:
		return total.Add(r.Modifier)
	}
}

// Validate checks the rule's modifier kind and condition.
func (r PricingRule) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("pricing rule id is required"))
	}
	switch r.Kind() {
	case ModifierFlat, ModifierPercent:
	default:
		errs = append(errs, fmt.Errorf("pricing rule %s: unknown modifier kind %q", r.ID, r.ModifierKind))
	}
	if err := r.Condition.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pricing rule %s: %w", r.ID, err))
	}
	return errors.Join(errs...)
}

// RuleType names the constraint a scheduling rule tests.
type RuleType string

const (
	RuleTimeOfDay RuleType = "timeOfDay"
	RuleDayOfWeek RuleType = "dayOfWeek"
	RuleLeadTime  RuleType = "leadTime"
	RuleBlackout  RuleType = "blackout"
)

// Action is what a matching scheduling rule does to the verdict.
type Action string

const (
	ActionAllow           Action = "allow"
	ActionBlock           Action = "block"
	ActionRequireApproval Action = "requireApproval"
)

// RuleValue is the type-specific constraint of a scheduling rule. Only the
// fields relevant to the rule's type are read.
type RuleValue struct {
	// timeOfDay
	Start *Clock `json:"start,omitempty"`
	End   *Clock `json:"end,omitempty"`

	// dayOfWeek
	Days []string `json:"days,omitempty"`

	// Invert makes timeOfDay and dayOfWeek match slots outside the range,
	// constraining bookings to it.
	Invert bool `json:"invert,omitempty"`

	// leadTime
	Hours *float64 `json:"hours,omitempty"`

	// blackout, inclusive on both ends
	From     *Date `json:"from,omitempty"`
	To       *Date `json:"to,omitempty"`
	Holidays bool  `json:"holidays,omitempty"`
}

// SchedulingRule is an ordered constraint on a requested slot.
type SchedulingRule struct {
	ID          string    `json:"id"`
	Type        RuleType  `json:"type"`
	Value       RuleValue `json:"value"`
	Action      Action    `json:"action"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the rule's type, action and value shape.
func (r SchedulingRule) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("scheduling rule %s: "+format, append([]interface{}{r.ID}, args...)...))
	}

	if r.ID == "" {
		errs = append(errs, errors.New("scheduling rule id is required"))
	}
	switch r.Action {
	case ActionAllow, ActionBlock, ActionRequireApproval:
	default:
		fail("unknown action %q", r.Action)
	}

	v := r.Value
	switch r.Type {
	case RuleTimeOfDay:
		if v.Start == nil || v.End == nil {
			fail("timeOfDay requires start and end")
		} else if *v.Start < 0 || *v.End > MinutesPerDay || *v.Start >= *v.End {
			fail("timeOfDay range %s-%s must satisfy start < end", v.Start, v.End)
		}
	case RuleDayOfWeek:
		if len(v.Days) == 0 {
			fail("dayOfWeek requires at least one day")
		}
		for _, d := range v.Days {
			if _, ok := ParseWeekday(d); !ok {
				fail("unknown weekday %q", d)
			}
		}
	case RuleLeadTime:
		if v.Hours == nil {
			fail("leadTime requires hours")
		} else if *v.Hours < 0 {
			fail("leadTime hours must not be negative")
		}
	case RuleBlackout:
		if (v.From == nil) != (v.To == nil) {
			fail("blackout requires both from and to")
		}
		if v.From == nil && !v.Holidays {
			fail("blackout requires a date range or holidays")
		}
		if v.From != nil && v.To != nil && v.From.After(*v.To) {
			fail("blackout range %s..%s must satisfy from <= to", v.From, v.To)
		}
	default:
		fail("unknown rule type %q", r.Type)
	}
	return errors.Join(errs...)
}

// Slot is the requested booking interval on one day, with the facts the
// scheduling rules test.
type Slot struct {
	Date          Date
	Start         Clock
	End           Clock
	LeadTimeHours float64
	IsHoliday     bool
}

// Matches reports whether the rule's constraint applies to the slot.
// Malformed values never match.
func (r SchedulingRule) Matches(s Slot) bool {
	v := r.Value
	switch r.Type {
	case RuleTimeOfDay:
		if v.Start == nil || v.End == nil || *v.Start >= *v.End {
			return false
		}
		if v.Invert {
			return s.Start < *v.Start || s.End > *v.End
		}
		return s.Start < *v.End && s.End > *v.Start
	case RuleDayOfWeek:
		if !validWeekdays(v.Days) {
			return false
		}
		in := containsWeekday(v.Days, s.Date.Weekday())
		if v.Invert {
			return !in
		}
		return in
	case RuleLeadTime:
		if v.Hours == nil {
			return false
		}
		return s.LeadTimeHours < *v.Hours
	case RuleBlackout:
		if v.Holidays && s.IsHoliday {
			return true
		}
		if v.From == nil || v.To == nil {
			return false
		}
		return !s.Date.Before(*v.From) && !s.Date.After(*v.To)
	default:
		return false
	}
}

// DefaultReason is the verdict reason used when a rule has no description.
func (r SchedulingRule) DefaultReason() string {
	if r.Description != "" {
		return r.Description
	}
	v := r.Value
	switch r.Type {
	case RuleTimeOfDay:
		if v.Start != nil && v.End != nil {
			if v.Invert {
				return fmt.Sprintf("bookings only between %s and %s", v.Start, v.End)
			}
			return fmt.Sprintf("no bookings between %s and %s", v.Start, v.End)
		}
	case RuleDayOfWeek:
		return "not bookable on this day of the week"
	case RuleLeadTime:
		if v.Hours != nil {
			return fmt.Sprintf("requires at least %g hours notice", *v.Hours)
		}
	case RuleBlackout:
		if v.From != nil && v.To != nil {
			return fmt.Sprintf("blackout from %s to %s", v.From, v.To)
		}
		return "blackout on holidays"
	}
	return fmt.Sprintf("blocked by rule %s", r.ID)
}

func validWeekdays(days []string) bool {
	if len(days) == 0 {
		return false
	}
	for _, d := range days {
		if _, ok := ParseWeekday(d); !ok {
			return false
		}
	}
	return true
}

func containsWeekday(days []string, wd time.Weekday) bool {
	for _, d := range days {
		if parsed, ok := ParseWeekday(d); ok && parsed == wd {
			return true
		}
	}
	return false
}
