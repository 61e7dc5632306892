package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ConditionField names a PricingContext attribute a condition can test.
type ConditionField string

const (
	FieldIsEmergency  ConditionField = "isEmergency"
	FieldIsHoliday    ConditionField = "isHoliday"
	FieldCustomerType ConditionField = "customerType"
	FieldDayOfWeek    ConditionField = "dayOfWeek"
	FieldDistance     ConditionField = "distance"
	FieldTimeOfDay    ConditionField = "timeOfDay"
)

// Operator is a comparison between a context field and a literal.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpIn  Operator = "in"
)

// CustomerType classifies the customer being quoted.
type CustomerType string

const (
	CustomerResidential CustomerType = "residential"
	CustomerCommercial  CustomerType = "commercial"
)

// Location is where the service is performed.
type Location struct {
	ZipCode  string  `json:"zip_code"`
	Distance float64 `json:"distance"`
}

// PricingContext describes the booking being priced.
type PricingContext struct {
	TimeOfDay    Clock        `json:"time_of_day"`
	DayOfWeek    string       `json:"day_of_week"`
	IsEmergency  bool         `json:"is_emergency"`
	IsHoliday    bool         `json:"is_holiday"`
	CustomerType CustomerType `json:"customer_type"`
	Location     Location     `json:"location"`
}

// Literal is a condition operand. Any JSON scalar is accepted and kept in
// its textual form; each field parses it on use.
type Literal string

func (l *Literal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Literal(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("condition literal must be a scalar, got %s", data)
	}
	*l = Literal(data)
	return nil
}

// Condition is a closed predicate: field, operator, literal. Values holds
// the candidate set for the in operator.
type Condition struct {
	Field    ConditionField `json:"field"`
	Operator Operator       `json:"operator"`
	Value    Literal        `json:"value,omitempty"`
	Values   []Literal      `json:"values,omitempty"`
}

// Matches evaluates the condition. Unknown fields, unsupported operators
// and malformed literals never match.
func (c Condition) Matches(ctx PricingContext) bool {
	ok, err := c.evaluate(ctx)
	return err == nil && ok
}

// Validate reports why a condition could never match as authored.
func (c Condition) Validate() error {
	_, err := c.evaluate(PricingContext{})
	return err
}

func (c Condition) evaluate(ctx PricingContext) (bool, error) {
	switch c.Field {
	case FieldIsEmergency:
		return compareBool(ctx.IsEmergency, c)
	case FieldIsHoliday:
		return compareBool(ctx.IsHoliday, c)
	case FieldCustomerType:
		return compareName(string(ctx.CustomerType), c, nil)
	case FieldDayOfWeek:
		return compareName(ctx.DayOfWeek, c, normalizeWeekday)
	case FieldDistance:
		want, err := strconv.ParseFloat(strings.TrimSpace(string(c.Value)), 64)
		if err != nil {
			return false, fmt.Errorf("distance literal %q is not a number", c.Value)
		}
		return compareNumber(ctx.Location.Distance, want, c.Operator)
	case FieldTimeOfDay:
		want, err := ParseClock(string(c.Value))
		if err != nil {
			return false, fmt.Errorf("timeOfDay literal %q is not HH:MM", c.Value)
		}
		return compareNumber(float64(ctx.TimeOfDay), float64(want), c.Operator)
	default:
		return false, fmt.Errorf("unsupported condition field %q", c.Field)
	}
}

func compareBool(got bool, c Condition) (bool, error) {
	want, err := strconv.ParseBool(strings.TrimSpace(string(c.Value)))
	if err != nil {
		return false, fmt.Errorf("%s literal %q is not a boolean", c.Field, c.Value)
	}
	switch c.Operator {
	case OpEq:
		return got == want, nil
	case OpNeq:
		return got != want, nil
	default:
		return false, fmt.Errorf("operator %q not supported for %s", c.Operator, c.Field)
	}
}

func compareName(got string, c Condition, normalize func(string) (string, bool)) (bool, error) {
	if normalize == nil {
		normalize = func(s string) (string, bool) {
			s = strings.ToLower(strings.TrimSpace(s))
			return s, s != ""
		}
	}
	norm := func(l Literal) (string, error) {
		s, ok := normalize(string(l))
		if !ok {
			return "", fmt.Errorf("%s literal %q is not recognised", c.Field, l)
		}
		return s, nil
	}
	// An unrecognised context value simply fails equality.
	have, _ := normalize(got)

	switch c.Operator {
	case OpEq, OpNeq:
		want, err := norm(c.Value)
		if err != nil {
			return false, err
		}
		return (have == want) == (c.Operator == OpEq), nil
	case OpIn:
		if len(c.Values) == 0 {
			return false, fmt.Errorf("%s in requires a non-empty values list", c.Field)
		}
		found := false
		for _, v := range c.Values {
			want, err := norm(v)
			if err != nil {
				return false, err
			}
			if have == want {
				found = true
			}
		}
		return found, nil
	default:
		return false, fmt.Errorf("operator %q not supported for %s", c.Operator, c.Field)
	}
}

func normalizeWeekday(s string) (string, bool) {
	wd, ok := ParseWeekday(s)
	if !ok {
		return "", false
	}
	return WeekdayName(wd), true
}

func compareNumber(got, want float64, op Operator) (bool, error) {
	switch op {
	case OpEq:
		return got == want, nil
	case OpNeq:
		return got != want, nil
	case OpLt:
		return got < want, nil
	case OpLte:
		return got <= want, nil
	case OpGt:
		return got > want, nil
	case OpGte:
		return got >= want, nil
	default:
		return false, fmt.Errorf("operator %q not supported for numeric fields", op)
	}
}
