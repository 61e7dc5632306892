// Package template provides the ServiceTemplate aggregate: the priced,
// scheduled definition of a service a business offers.
package template

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"template-rules/decision/rules"
	apperrors "template-rules/pkg/errors"
)

// PricingModel selects how the base price becomes a running total.
type PricingModel string

const (
	PricingFixed  PricingModel = "fixed"
	PricingHourly PricingModel = "hourly"
	PricingCustom PricingModel = "custom"
)

// ServiceTemplate is a business's reusable service definition. Evaluators
// treat it as an immutable snapshot.
type ServiceTemplate struct {
	// Identity
	ID          string `json:"id"`
	BusinessID  string `json:"business_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Pricing
	BasePrice    decimal.Decimal     `json:"base_price"`
	PricingModel PricingModel        `json:"pricing_model"`
	PricingRules []rules.PricingRule `json:"pricing_rules"`

	// Scheduling
	Duration           int                    `json:"duration"`
	DailySchedules     WeeklySchedule         `json:"daily_schedules"`
	SchedulingRules    []rules.SchedulingRule `json:"scheduling_rules"`
	BufferTime         int                    `json:"buffer_time"`
	MaxBookingsPerSlot int                    `json:"max_bookings_per_slot"`

	// Descriptive only
	RequiredMaterials []string `json:"required_materials,omitempty"`
	Checklist         []string `json:"checklist,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DaySchedule is one weekday's working window.
type DaySchedule struct {
	Open   rules.Clock `json:"open"`
	Close  rules.Clock `json:"close"`
	Closed bool        `json:"closed,omitempty"`
}

// WeeklySchedule maps weekdays to working windows. A missing day is closed.
type WeeklySchedule map[time.Weekday]DaySchedule

// For returns the window for wd and whether the business is open that day.
func (w WeeklySchedule) For(wd time.Weekday) (DaySchedule, bool) {
	day, ok := w[wd]
	if !ok || day.Closed {
		return DaySchedule{}, false
	}
	return day, true
}

// Contains reports whether [start, end] lies inside the open window.
func (d DaySchedule) Contains(start, end rules.Clock) bool {
	return start >= d.Open && end <= d.Close && start < end
}

func (w WeeklySchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string]DaySchedule, len(w))
	for wd, day := range w {
		out[rules.WeekdayName(wd)] = day
	}
	return json.Marshal(out)
}

func (w *WeeklySchedule) UnmarshalJSON(data []byte) error {
	var raw map[string]DaySchedule
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(WeeklySchedule, len(raw))
	for name, day := range raw {
		wd, ok := rules.ParseWeekday(name)
		if !ok {
			return fmt.Errorf("unknown weekday %q in daily schedules", name)
		}
		out[wd] = day
	}
	*w = out
	return nil
}

// Weekdays builds a schedule with the same window on every listed day.
func Weekdays(open, closeAt rules.Clock, days ...time.Weekday) WeeklySchedule {
	w := make(WeeklySchedule, len(days))
	for _, d := range days {
		w[d] = DaySchedule{Open: open, Close: closeAt}
	}
	return w
}

// Validate checks the configuration invariants a template must satisfy
// before it is saved. All problems are reported together.
func (t *ServiceTemplate) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if t.BusinessID == "" {
		add("business_id is required")
	}
	if t.BasePrice.IsNegative() {
		add("base_price must be >= 0, got %s", t.BasePrice)
	}
	switch t.PricingModel {
	case PricingFixed, PricingHourly, PricingCustom:
	default:
		add("unknown pricing_model %q", t.PricingModel)
	}
	if t.Duration <= 0 {
		add("duration must be > 0, got %d", t.Duration)
	}
	if t.BufferTime < 0 {
		add("buffer_time must be >= 0, got %d", t.BufferTime)
	}
	if t.MaxBookingsPerSlot < 1 {
		add("max_bookings_per_slot must be >= 1, got %d", t.MaxBookingsPerSlot)
	}

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		day, ok := t.DailySchedules[wd]
		if !ok || day.Closed {
			continue
		}
		if day.Open < 0 || day.Close > rules.MinutesPerDay || day.Open >= day.Close {
			add("%s schedule %s-%s must satisfy open < close", rules.WeekdayName(wd), day.Open, day.Close)
		}
	}

	seen := make(map[string]bool)
	for _, r := range t.PricingRules {
		problems = append(problems, flatten(r.Validate())...)
		if r.ID != "" && seen["p:"+r.ID] {
			add("duplicate pricing rule id %s", r.ID)
		}
		seen["p:"+r.ID] = true
	}
	for _, r := range t.SchedulingRules {
		problems = append(problems, flatten(r.Validate())...)
		if r.ID != "" && seen["s:"+r.ID] {
			add("duplicate scheduling rule id %s", r.ID)
		}
		seen["s:"+r.ID] = true
	}

	if len(problems) > 0 {
		return apperrors.NewInvalidTemplateError(t.ID, problems)
	}
	return nil
}

func flatten(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
