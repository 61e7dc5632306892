// Package availability provides the Availability Evaluator
// Decides whether a template can be booked at a requested date and time
package availability

import (
	"fmt"
	"math"
	"time"

	"template-rules/decision/rules"
	"template-rules/decision/template"
	apperrors "template-rules/pkg/errors"
)

// DefaultSearchHorizonDays bounds the next-available-slot scan.
const DefaultSearchHorizonDays = 90

// Verdict reasons that are not drawn from a rule.
const (
	ReasonInactive     = "service inactive"
	ReasonOutsideHours = "outside business hours"
	ReasonFullyBooked  = "fully booked"
)

// Request is one availability question.
type Request struct {
	Date            rules.Date  `json:"date"`
	Time            rules.Clock `json:"time"`
	DurationMinutes int         `json:"duration_minutes,omitempty"` // 0 uses the template duration
	LeadTimeHours   float64     `json:"lead_time_hours"`
	IsHoliday       bool        `json:"is_holiday,omitempty"`

	// Concurrent bookings in the buffered window, when the caller knows it
	CurrentBookings *int `json:"current_bookings,omitempty"`
}

// Window is the buffered interval a booking occupies.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Slot is a bookable start on a given day.
type Slot struct {
	Date rules.Date  `json:"date"`
	Time rules.Clock `json:"time"`
}

// In returns the slot as an instant in loc.
func (s Slot) In(loc *time.Location) time.Time {
	return s.Date.At(s.Time, loc)
}

// RuleMatch records a scheduling rule whose constraint matched the slot.
type RuleMatch struct {
	RuleID string         `json:"rule_id"`
	Type   rules.RuleType `json:"type"`
	Action rules.Action   `json:"action"`
	Reason string         `json:"reason"`
}

// Verdict is the availability outcome. Negative outcomes are verdicts,
// not errors.
type Verdict struct {
	IsAvailable       bool        `json:"is_available"`
	RequiresApproval  bool        `json:"requires_approval"`
	Reason            string      `json:"reason,omitempty"`
	NextAvailableSlot *Slot       `json:"next_available_slot,omitempty"`
	DurationMinutes   int         `json:"duration_minutes"`
	Window            Window      `json:"window"`
	MatchedRules      []RuleMatch `json:"matched_rules"`
}

// Engine is the Availability Evaluator. It holds only configuration.
type Engine struct {
	horizonDays int
	location    *time.Location
}

// NewEngine creates a new availability engine
func NewEngine() *Engine {
	return &Engine{
		horizonDays: DefaultSearchHorizonDays,
		location:    time.UTC,
	}
}

// WithSearchHorizon bounds the next-slot scan to the given number of days
func (e *Engine) WithSearchHorizon(days int) *Engine {
	if days >= 0 {
		e.horizonDays = days
	}
	return e
}

// WithLocation sets the zone civil dates and times are interpreted in
func (e *Engine) WithLocation(loc *time.Location) *Engine {
	if loc != nil {
		e.location = loc
	}
	return e
}

// Check evaluates the request against the template. It is pure: identical
// inputs give identical verdicts.
func (e *Engine) Check(tmpl *template.ServiceTemplate, req Request) (*Verdict, error) {
	duration, err := e.resolve(tmpl, req)
	if err != nil {
		return nil, err
	}

	verdict := e.evaluate(tmpl, req, duration, true)
	if !verdict.IsAvailable && tmpl.IsActive {
		verdict.NextAvailableSlot = e.nextSlot(tmpl, req, duration)
	}
	return verdict, nil
}

// WindowFor returns the buffered window for a request, so a capacity
// collaborator can count overlapping bookings before calling Check.
func (e *Engine) WindowFor(tmpl *template.ServiceTemplate, req Request) (Window, error) {
	duration, err := e.resolve(tmpl, req)
	if err != nil {
		return Window{}, err
	}
	return e.window(tmpl, req, duration), nil
}

func (e *Engine) resolve(tmpl *template.ServiceTemplate, req Request) (int, error) {
	if req.Date.IsZero() {
		return 0, apperrors.NewInvalidDateError("")
	}
	if !req.Time.IsStartOfSlot() {
		return 0, apperrors.NewInvalidTimeError(req.Time.String())
	}
	if req.DurationMinutes < 0 {
		return 0, apperrors.NewInvalidDurationError(req.DurationMinutes)
	}
	if req.LeadTimeHours < 0 || math.IsNaN(req.LeadTimeHours) {
		return 0, apperrors.NewInvalidLeadTimeError(req.LeadTimeHours)
	}
	if req.DurationMinutes == 0 {
		return tmpl.Duration, nil
	}
	return req.DurationMinutes, nil
}

func (e *Engine) window(tmpl *template.ServiceTemplate, req Request, duration int) Window {
	buffer := tmpl.BufferTime
	if buffer < 0 {
		buffer = 0
	}
	return Window{
		Start: req.Date.At(req.Time.Add(-buffer), e.location),
		End:   req.Date.At(req.Time.Add(duration+buffer), e.location),
	}
}

// evaluate runs the ordered checks, stopping at the first block.
func (e *Engine) evaluate(tmpl *template.ServiceTemplate, req Request, duration int, withCapacity bool) *Verdict {
	v := &Verdict{
		DurationMinutes: duration,
		Window:          e.window(tmpl, req, duration),
		MatchedRules:    make([]RuleMatch, 0),
	}

	// 1. Active
	if !tmpl.IsActive {
		v.Reason = ReasonInactive
		return v
	}

	// 2. Working hours
	weekday := req.Date.Weekday()
	day, open := tmpl.DailySchedules.For(weekday)
	if !open {
		v.Reason = fmt.Sprintf("%s: closed on %s", ReasonOutsideHours, rules.WeekdayName(weekday))
		return v
	}
	end := req.Time.Add(duration)
	if duration <= 0 || !day.Contains(req.Time, end) {
		v.Reason = fmt.Sprintf("%s: open %s-%s on %s", ReasonOutsideHours, day.Open, day.Close, rules.WeekdayName(weekday))
		return v
	}

	// 3. Scheduling rules in authored order; first matching block wins
	slot := rules.Slot{
		Date:          req.Date,
		Start:         req.Time,
		End:           end,
		LeadTimeHours: req.LeadTimeHours,
		IsHoliday:     req.IsHoliday,
	}
	for _, rule := range tmpl.SchedulingRules {
		if !rule.Matches(slot) {
			continue
		}
		match := RuleMatch{
			RuleID: rule.ID,
			Type:   rule.Type,
			Action: rule.Action,
			Reason: rule.DefaultReason(),
		}
		v.MatchedRules = append(v.MatchedRules, match)

		switch rule.Action {
		case rules.ActionBlock:
			// approval is moot once the slot is unavailable
			v.RequiresApproval = false
			v.Reason = match.Reason
			return v
		case rules.ActionRequireApproval:
			v.RequiresApproval = true
		}
	}

	// 4. Capacity, only when the caller supplied a count
	if withCapacity && req.CurrentBookings != nil {
		limit := tmpl.MaxBookingsPerSlot
		if limit < 1 {
			limit = 1
		}
		if *req.CurrentBookings >= limit {
			v.RequiresApproval = false
			v.Reason = ReasonFullyBooked
			return v
		}
	}

	v.IsAvailable = true
	return v
}

// nextSlot scans forward day by day for the first canonical start that
// passes every check except capacity, which is unknown for candidates.
func (e *Engine) nextSlot(tmpl *template.ServiceTemplate, req Request, duration int) *Slot {
	requested := req.Date.At(req.Time, e.location)

	for offset := 0; offset <= e.horizonDays; offset++ {
		date := req.Date.AddDays(offset)
		day, open := tmpl.DailySchedules.For(date.Weekday())
		if !open {
			continue
		}

		earliest := day.Open
		if offset == 0 && req.Time > earliest {
			earliest = req.Time
		}
		start, ok := e.canonicalStart(tmpl, date, day, earliest, duration, req.LeadTimeHours, requested)
		if !ok || (offset == 0 && start <= req.Time) {
			continue
		}

		candidate := Request{
			Date:            date,
			Time:            start,
			DurationMinutes: duration,
			LeadTimeHours:   leadAt(req.LeadTimeHours, requested, date.At(start, e.location)),
			IsHoliday:       req.IsHoliday && offset == 0,
		}
		if e.evaluate(tmpl, candidate, duration, false).IsAvailable {
			return &Slot{Date: date, Time: start}
		}
	}
	return nil
}

// canonicalStart pushes a day's earliest start past the offsets that block
// rules make unavoidable: blocked time ranges, constrain-to ranges and a
// lead-time deficit.
func (e *Engine) canonicalStart(tmpl *template.ServiceTemplate, date rules.Date, day template.DaySchedule, start rules.Clock, duration int, baseLead float64, requested time.Time) (rules.Clock, bool) {
	for guard := 0; guard < rules.MinutesPerDay; guard++ {
		if start.Add(duration) > day.Close {
			return start, false
		}
		moved := false
		for _, rule := range tmpl.SchedulingRules {
			if rule.Action != rules.ActionBlock {
				continue
			}
			v := rule.Value
			switch rule.Type {
			case rules.RuleTimeOfDay:
				slot := rules.Slot{Date: date, Start: start, End: start.Add(duration)}
				if !rule.Matches(slot) {
					continue
				}
				if v.Invert {
					if start < *v.Start {
						start, moved = *v.Start, true
					}
				} else {
					start, moved = *v.End, true
				}
			case rules.RuleLeadTime:
				if v.Hours == nil {
					continue
				}
				lead := leadAt(baseLead, requested, date.At(start, e.location))
				if lead < *v.Hours {
					deficit := int(math.Ceil((*v.Hours - lead) * 60))
					if deficit < 1 {
						deficit = 1
					}
					start, moved = start.Add(deficit), true
				}
			}
			if moved {
				break
			}
		}
		if !moved {
			return start, true
		}
	}
	return start, false
}

func leadAt(base float64, requested, candidate time.Time) float64 {
	return base + candidate.Sub(requested).Hours()
}

// LeadTimeHours is the notice between now and a slot, never negative.
func LeadTimeHours(now time.Time, date rules.Date, at rules.Clock, loc *time.Location) float64 {
	hours := date.At(at, loc).Sub(now).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}
