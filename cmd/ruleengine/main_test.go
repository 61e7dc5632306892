package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"template-rules/decision/availability"
	"template-rules/decision/pricing"
)

const plumbingJSON = `{
	"id": "plumbing",
	"business_id": "acme",
	"name": "Emergency plumbing",
	"base_price": "100",
	"pricing_model": "fixed",
	"pricing_rules": [
		{"id": "emergency", "condition": {"field": "isEmergency", "operator": "eq", "value": true}, "modifier": 50, "description": "Emergency call-out"},
		{"id": "weekend", "condition": {"field": "dayOfWeek", "operator": "in", "values": ["saturday", "sunday"]}, "modifier": 10, "modifier_kind": "percent"}
	],
	"duration": 60,
	"daily_schedules": {
		"monday": {"open": "09:00", "close": "17:00"},
		"tuesday": {"open": "09:00", "close": "17:00"}
	},
	"scheduling_rules": [
		{"id": "lunch", "type": "timeOfDay", "value": {"start": "12:00", "end": "13:00"}, "action": "block", "description": "Lunch break"}
	],
	"buffer_time": 0,
	"max_bookings_per_slot": 1,
	"is_active": true
}`

func writeTemplate(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"ruleengine"}, args...))
	return out.String(), err
}

func TestPriceJSON(t *testing.T) {
	path := writeTemplate(t, plumbingJSON)
	out, err := run(t, "price", "--template", path, "--emergency", "--day", "sunday", "--format", "json")
	require.NoError(t, err)

	var quote pricing.Quote
	require.NoError(t, json.Unmarshal([]byte(out), &quote))
	assert.Equal(t, "165.00", quote.Total.StringFixed(2))
	assert.Len(t, quote.Adjustments, 2)
}

func TestPriceTable(t *testing.T) {
	path := writeTemplate(t, plumbingJSON)
	out, err := run(t, "price", "--template", path, "--day", "monday", "--time", "10:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Emergency plumbing")
	assert.Contains(t, out, "100.00")
	assert.Contains(t, out, "not applicable: emergency")
	assert.NotContains(t, out, "malformed")
}

func TestPriceTableFlagsMalformedRules(t *testing.T) {
	doc := strings.Replace(plumbingJSON, `"field": "isEmergency"`, `"field": "isEmergncy"`, 1)
	out, err := run(t, "price", "--template", writeTemplate(t, doc), "--emergency", "--day", "monday")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped malformed rule emergency")
	assert.Contains(t, out, "100.00")
}

func TestPriceRejectsBadHours(t *testing.T) {
	path := writeTemplate(t, plumbingJSON)
	_, err := run(t, "price", "--template", path, "--hours", "two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_HOURS")
}

func TestAvailabilityJSON(t *testing.T) {
	path := writeTemplate(t, plumbingJSON)
	out, err := run(t, "availability", "--template", path,
		"--date", "2024-06-03", "--time", "12:30", "--lead-time", "48", "--format", "json")
	require.NoError(t, err)

	var verdict availability.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdict))
	assert.False(t, verdict.IsAvailable)
	assert.Equal(t, "Lunch break", verdict.Reason)
	require.NotNil(t, verdict.NextAvailableSlot)
	assert.Equal(t, "13:00", verdict.NextAvailableSlot.Time.String())
}

func TestAvailabilityTable(t *testing.T) {
	path := writeTemplate(t, plumbingJSON)
	out, err := run(t, "availability", "--template", path,
		"--date", "2024-06-03", "--time", "10:00", "--lead-time", "48", "--bookings", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "AVAILABLE")
	assert.NotContains(t, out, "UNAVAILABLE")
}

func TestAvailabilityRejectsBadDate(t *testing.T) {
	path := writeTemplate(t, plumbingJSON)
	_, err := run(t, "availability", "--template", path, "--date", "03/06/2024", "--time", "10:00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_DATE")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "--template", writeTemplate(t, plumbingJSON))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	broken := `{"id": "x", "business_id": "acme", "base_price": "-1", "pricing_model": "fixed", "duration": 0, "max_bookings_per_slot": 1}`
	out, err = run(t, "validate", "--template", writeTemplate(t, broken))
	require.Error(t, err)
	assert.Contains(t, out, "problem(s)")
}

func TestMissingTemplateFile(t *testing.T) {
	_, err := run(t, "validate", "--template", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read template")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	cut := truncate("Ménage à domicile complet", 10)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, "Ménage ...", cut)
}
