// Package pricing provides the Pricing Evaluator
// Turns a service template and a booking context into a final price with an explanation
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"template-rules/decision/rules"
	"template-rules/decision/template"
	apperrors "template-rules/pkg/errors"
)

// DefaultMinorUnits is the number of decimal places money is rounded to.
const DefaultMinorUnits int32 = 2

// Engine is the Pricing Evaluator. It holds no mutable state.
type Engine struct {
	minorUnits int32
}

// NewEngine creates a new pricing engine
func NewEngine() *Engine {
	return &Engine{minorUnits: DefaultMinorUnits}
}

// WithMinorUnits sets the currency's minor unit precision
func (e *Engine) WithMinorUnits(places int32) *Engine {
	if places >= 0 {
		e.minorUnits = places
	}
	return e
}

// Adjustment records one pricing rule that matched and changed the total
type Adjustment struct {
	RuleID       string             `json:"rule_id"`
	Description  string             `json:"description,omitempty"`
	ModifierKind rules.ModifierKind `json:"modifier_kind"`
	Modifier     decimal.Decimal    `json:"modifier"`
	Before       decimal.Decimal    `json:"before"`
	After        decimal.Decimal    `json:"after"`
}

// Quote is the evaluated price and how it was reached
type Quote struct {
	TemplateID   string                `json:"template_id"`
	PricingModel template.PricingModel `json:"pricing_model"`
	BasePrice    decimal.Decimal       `json:"base_price"`
	Hours        decimal.Decimal       `json:"hours"`

	// Running total before rules, and the rules that changed it
	Subtotal    decimal.Decimal `json:"subtotal"`
	Adjustments []Adjustment    `json:"adjustments"`

	// Well-formed rules whose condition did not hold, and rules that can
	// never apply as authored
	NotApplicable  []string `json:"not_applicable"`
	MalformedRules []string `json:"malformed_rules"`

	// Unrounded result of all rules, and whether it was clamped to zero
	Unrounded decimal.Decimal `json:"unrounded"`
	Clamped   bool            `json:"clamped"`

	Total   decimal.Decimal `json:"total"`
	Formula string          `json:"formula"`
}

// Evaluate prices the template for the given context.
// hours must be > 0 for hourly templates and is ignored otherwise.
func (e *Engine) Evaluate(tmpl *template.ServiceTemplate, ctx rules.PricingContext, hours decimal.Decimal) (*Quote, error) {
	quote := &Quote{
		TemplateID:     tmpl.ID,
		PricingModel:   tmpl.PricingModel,
		BasePrice:      tmpl.BasePrice,
		Adjustments:    make([]Adjustment, 0),
		NotApplicable:  make([]string, 0),
		MalformedRules: make([]string, 0),
	}

	running, err := e.subtotal(tmpl, hours)
	if err != nil {
		return nil, err
	}
	if tmpl.PricingModel == template.PricingHourly {
		quote.Hours = hours
	}
	quote.Subtotal = running

	// Rules apply in authored order; each sees the previous total
	for _, rule := range tmpl.PricingRules {
		if !wellFormed(rule) {
			quote.MalformedRules = append(quote.MalformedRules, rule.ID)
			continue
		}
		if !rule.Condition.Matches(ctx) {
			quote.NotApplicable = append(quote.NotApplicable, rule.ID)
			continue
		}
		next := rule.Apply(running)
		quote.Adjustments = append(quote.Adjustments, Adjustment{
			RuleID:       rule.ID,
			Description:  rule.Description,
			ModifierKind: rule.Kind(),
			Modifier:     rule.Modifier,
			Before:       running,
			After:        next,
		})
		running = next
	}

	quote.Unrounded = running
	if running.IsNegative() {
		running = decimal.Zero
		quote.Clamped = true
	}
	quote.Total = running.Round(e.minorUnits)
	quote.Formula = e.formula(quote)

	return quote, nil
}

// EvaluatePrice returns only the final amount.
func (e *Engine) EvaluatePrice(tmpl *template.ServiceTemplate, ctx rules.PricingContext, hours decimal.Decimal) (decimal.Decimal, error) {
	quote, err := e.Evaluate(tmpl, ctx, hours)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Total, nil
}

// wellFormed reports whether a rule could ever apply. Malformed rules are
// skipped rather than failing the quote.
func wellFormed(rule rules.PricingRule) bool {
	switch rule.Kind() {
	case rules.ModifierFlat, rules.ModifierPercent:
	default:
		return false
	}
	return rule.Condition.Validate() == nil
}

func (e *Engine) subtotal(tmpl *template.ServiceTemplate, hours decimal.Decimal) (decimal.Decimal, error) {
	switch tmpl.PricingModel {
	case template.PricingHourly:
		if !hours.IsPositive() {
			return decimal.Zero, apperrors.NewInvalidHoursError(hours.String())
		}
		return tmpl.BasePrice.Mul(hours), nil
	default:
		// fixed and custom both start from the base price
		return tmpl.BasePrice, nil
	}
}

func (e *Engine) formula(q *Quote) string {
	f := q.Subtotal.String()
	if q.PricingModel == template.PricingHourly {
		f = fmt.Sprintf("%s/h × %sh", q.BasePrice.String(), q.Hours.String())
	}
	for _, adj := range q.Adjustments {
		switch adj.ModifierKind {
		case rules.ModifierPercent:
			f = fmt.Sprintf("(%s) × (1 %s%%)", f, signed(adj.Modifier))
		default:
			f = fmt.Sprintf("%s %s", f, signed(adj.Modifier))
		}
	}
	if q.Clamped {
		f = fmt.Sprintf("max(0, %s)", f)
	}
	return fmt.Sprintf("%s = %s", f, q.Total.StringFixed(e.minorUnits))
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return "- " + d.Neg().String()
	}
	return "+ " + d.String()
}

// HoursForDuration converts a booking duration to billed hours.
func HoursForDuration(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60))
}
