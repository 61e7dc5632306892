package main

import (
	"encoding/json"
	"fmt"
	"io"

	"template-rules/decision/availability"
	"template-rules/decision/pricing"
	"template-rules/decision/rules"
	"template-rules/decision/template"
)

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printQuote(w io.Writer, tmpl *template.ServiceTemplate, q *pricing.Quote) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  QUOTE  %-52s ║\n", truncate(displayName(tmpl), 52))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Pricing model:         %-36s ║\n", q.PricingModel)
	fmt.Fprintf(w, "║  Subtotal:              %-36s ║\n", q.Subtotal.String())

	if len(q.Adjustments) > 0 {
		fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
		for _, adj := range q.Adjustments {
			label := adj.RuleID
			if adj.Description != "" {
				label = adj.Description
			}
			change := adj.Modifier.String()
			if adj.ModifierKind == rules.ModifierPercent {
				change += "%"
			}
			if !adj.Modifier.IsNegative() {
				change = "+" + change
			}
			fmt.Fprintf(w, "║  %-34s %10s → %-10s ║\n", truncate(label, 34), change, adj.After.String())
		}
	}
	for _, id := range q.NotApplicable {
		fmt.Fprintf(w, "║  not applicable: %-43s ║\n", truncate(id, 43))
	}
	for _, id := range q.MalformedRules {
		fmt.Fprintf(w, "║  ⚠️  skipped malformed rule %-33s ║\n", truncate(id, 33))
	}

	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	total := q.Total.StringFixed(decimalPlaces(q))
	if q.Clamped {
		total += " (floored at zero)"
	}
	fmt.Fprintf(w, "║  Total:                 %-36s ║\n", total)
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w, q.Formula)
}

func decimalPlaces(q *pricing.Quote) int32 {
	if exp := q.Total.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

func printVerdict(w io.Writer, tmpl *template.ServiceTemplate, req availability.Request, v *availability.Verdict) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  AVAILABILITY  %-45s ║\n", truncate(displayName(tmpl), 45))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Requested:             %-36s ║\n", fmt.Sprintf("%s %s (%d min)", req.Date, req.Time, v.DurationMinutes))

	status := "✅ AVAILABLE"
	switch {
	case !v.IsAvailable:
		status = "❌ UNAVAILABLE"
	case v.RequiresApproval:
		status = "⚠️  NEEDS APPROVAL"
	}
	fmt.Fprintf(w, "║  Status:                %-36s ║\n", status)

	if v.Reason != "" {
		fmt.Fprintf(w, "║  Reason:                %-36s ║\n", truncate(v.Reason, 36))
	}
	if v.NextAvailableSlot != nil {
		next := fmt.Sprintf("%s %s", v.NextAvailableSlot.Date, v.NextAvailableSlot.Time)
		fmt.Fprintf(w, "║  Next available:        %-36s ║\n", next)
	}
	for _, m := range v.MatchedRules {
		fmt.Fprintf(w, "║  • %-8s %-48s ║\n", m.Action, truncate(m.Reason, 48))
	}
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
}

func printProblems(w io.Writer, tmpl *template.ServiceTemplate, problems []string) {
	fmt.Fprintf(w, "❌ %s has %d problem(s):\n", displayName(tmpl), len(problems))
	for _, p := range problems {
		fmt.Fprintf(w, "   - %s\n", p)
	}
}

// truncate shortens s to maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
