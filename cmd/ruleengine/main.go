// Rule engine CLI - quote and booking checks for service templates
//
// Usage:
//   ruleengine price --template plumbing.json --emergency --hours 2
//   ruleengine availability --template plumbing.json --date 2024-06-03 --time 10:00
//   ruleengine validate --template plumbing.json
//   ruleengine serve
//   ruleengine audit prune
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"template-rules/decision/availability"
	"template-rules/decision/pricing"
	"template-rules/decision/rules"
	"template-rules/decision/template"
	apperrors "template-rules/pkg/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ruleengine",
		Usage:   "Price and schedule bookings from service templates",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},

		Commands: []*cli.Command{
			priceCommand(),
			availabilityCommand(),
			validateCommand(),
			templateCommand(),
			serveCommand(),
			migrateCommand(),
			auditCommand(),
		},
	}
}

var (
	templateFlag = &cli.StringFlag{
		Name:     "template",
		Aliases:  []string{"t"},
		Usage:    "Path to a service template JSON file",
		Required: true,
	}
	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format (table, json)",
	}
)

func loadTemplate(path string) (*template.ServiceTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	var tmpl template.ServiceTemplate
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	return &tmpl, nil
}

// =============================================================================
// PRICE COMMAND
// =============================================================================

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Quote a price for a template",
		Flags: []cli.Flag{
			templateFlag,
			formatFlag,
			&cli.StringFlag{Name: "hours", Value: "0", Usage: "Billed hours (hourly templates)"},
			&cli.BoolFlag{Name: "emergency", Usage: "Emergency call-out"},
			&cli.BoolFlag{Name: "holiday", Usage: "Service falls on a holiday"},
			&cli.StringFlag{Name: "customer-type", Value: string(rules.CustomerResidential), Usage: "residential or commercial"},
			&cli.StringFlag{Name: "day", Usage: "Day of week (defaults to today)"},
			&cli.StringFlag{Name: "time", Usage: "Time of day HH:MM (defaults to now)"},
			&cli.Float64Flag{Name: "distance", Usage: "Travel distance"},
			&cli.StringFlag{Name: "zip", Usage: "Service zip code"},
			&cli.IntFlag{Name: "minor-units", Value: int(pricing.DefaultMinorUnits), Usage: "Currency decimal places"},
		},
		Action: runPrice,
	}
}

func runPrice(c *cli.Context) error {
	tmpl, err := loadTemplate(c.String("template"))
	if err != nil {
		return err
	}

	hours, err := decimal.NewFromString(c.String("hours"))
	if err != nil {
		return apperrors.NewInvalidHoursError(c.String("hours"))
	}

	now := time.Now()
	pctx := rules.PricingContext{
		DayOfWeek:    rules.WeekdayName(now.Weekday()),
		TimeOfDay:    rules.Clock(now.Hour()*60 + now.Minute()),
		IsEmergency:  c.Bool("emergency"),
		IsHoliday:    c.Bool("holiday"),
		CustomerType: rules.CustomerType(c.String("customer-type")),
		Location:     rules.Location{ZipCode: c.String("zip"), Distance: c.Float64("distance")},
	}
	if day := c.String("day"); day != "" {
		pctx.DayOfWeek = day
	}
	if at := c.String("time"); at != "" {
		if pctx.TimeOfDay, err = rules.ParseClock(at); err != nil {
			return apperrors.NewInvalidTimeError(at)
		}
	}

	engine := pricing.NewEngine().WithMinorUnits(int32(c.Int("minor-units")))
	quote, err := engine.Evaluate(tmpl, pctx, hours)
	if err != nil {
		return err
	}

	if c.String("format") == "json" {
		return writeJSON(c.App.Writer, quote)
	}
	printQuote(c.App.Writer, tmpl, quote)
	return nil
}

// =============================================================================
// AVAILABILITY COMMAND
// =============================================================================

func availabilityCommand() *cli.Command {
	return &cli.Command{
		Name:  "availability",
		Usage: "Check whether a slot can be booked",
		Flags: []cli.Flag{
			templateFlag,
			formatFlag,
			&cli.StringFlag{Name: "date", Usage: "Requested date YYYY-MM-DD", Required: true},
			&cli.StringFlag{Name: "time", Usage: "Requested start HH:MM", Required: true},
			&cli.IntFlag{Name: "duration", Usage: "Duration in minutes (defaults to the template)"},
			&cli.Float64Flag{Name: "lead-time", Value: -1, Usage: "Hours of notice (defaults to time until the slot)"},
			&cli.BoolFlag{Name: "holiday", Usage: "Requested date is a holiday"},
			&cli.IntFlag{Name: "bookings", Value: -1, Usage: "Bookings already in the slot"},
			&cli.IntFlag{Name: "horizon", Value: availability.DefaultSearchHorizonDays, Usage: "Days to search for the next free slot"},
			&cli.StringFlag{Name: "timezone", Value: "UTC", Usage: "Zone the date and time are in", EnvVars: []string{"TIMEZONE"}},
		},
		Action: runAvailability,
	}
}

func runAvailability(c *cli.Context) error {
	tmpl, err := loadTemplate(c.String("template"))
	if err != nil {
		return err
	}

	day, err := rules.ParseDate(c.String("date"))
	if err != nil {
		return apperrors.NewInvalidDateError(c.String("date"))
	}
	at, err := rules.ParseClock(c.String("time"))
	if err != nil {
		return apperrors.NewInvalidTimeError(c.String("time"))
	}
	loc, err := time.LoadLocation(c.String("timezone"))
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.String("timezone"), err)
	}

	req := availability.Request{
		Date:            day,
		Time:            at,
		DurationMinutes: c.Int("duration"),
		LeadTimeHours:   c.Float64("lead-time"),
		IsHoliday:       c.Bool("holiday"),
	}
	if !c.IsSet("lead-time") {
		req.LeadTimeHours = availability.LeadTimeHours(time.Now(), day, at, loc)
	}
	if n := c.Int("bookings"); n >= 0 {
		req.CurrentBookings = &n
	}

	engine := availability.NewEngine().WithSearchHorizon(c.Int("horizon")).WithLocation(loc)
	verdict, err := engine.Check(tmpl, req)
	if err != nil {
		return err
	}

	if c.String("format") == "json" {
		return writeJSON(c.App.Writer, verdict)
	}
	printVerdict(c.App.Writer, tmpl, req, verdict)
	return nil
}

// =============================================================================
// VALIDATE COMMAND
// =============================================================================

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Check a template for configuration problems",
		Flags:  []cli.Flag{templateFlag},
		Action: runValidate,
	}
}

func runValidate(c *cli.Context) error {
	tmpl, err := loadTemplate(c.String("template"))
	if err != nil {
		return err
	}

	if err := tmpl.Validate(); err != nil {
		ee, ok := apperrors.As(err)
		if !ok {
			return err
		}
		printProblems(c.App.Writer, tmpl, ee.Details)
		return cli.Exit("", 1)
	}
	fmt.Fprintf(c.App.Writer, "✅ %s is valid\n", displayName(tmpl))
	return nil
}

func displayName(tmpl *template.ServiceTemplate) string {
	if tmpl.Name != "" {
		return tmpl.Name
	}
	if tmpl.ID != "" {
		return tmpl.ID
	}
	return "template"
}
