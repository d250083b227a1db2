package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/auth"
	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/config"
)

// controller is the part of conga.DeviceFacade the CLI drives.
type controller interface {
	ListDevices(ctx context.Context) ([]conga.Device, error)
	GetStatus(ctx context.Context, serial string) (conga.Status, error)
	Shadow(ctx context.Context, serial string) (*conga.ShadowDocument, error)
	Issue(ctx context.Context, serial string, cmd conga.Command) error
	RefreshPlans(ctx context.Context, serial string) []conga.Plan
}

// command is one subcommand. nargs counts positional arguments after the
// command name. Commands with local set only need the configuration and
// never open the cloud account.
type command struct {
	name    string
	usage   string
	summary string
	nargs   int
	run     func(ctx context.Context, c controller, opts options, out io.Writer) error
	local   func(cfg *config.Config, opts options, out io.Writer) error
}

var commands = []command{
	{name: "devices", usage: "devices", summary: "list vacuums on the account", run: runDevices},
	{name: "status", usage: "status SERIAL", summary: "show the reported status", nargs: 1, run: runStatus},
	{name: "shadow", usage: "shadow SERIAL", summary: "dump the raw shadow document as JSON", nargs: 1, run: runShadow},
	{name: "start", usage: "start SERIAL [--fan LEVEL]", summary: "start an automatic clean", nargs: 1, run: runStart},
	{name: "home", usage: "home SERIAL", summary: "return to the dock", nargs: 1, run: runHome},
	{name: "fan", usage: "fan SERIAL LEVEL", summary: "set the fan level (0-3)", nargs: 2, run: runFan},
	{name: "water", usage: "water SERIAL LEVEL", summary: "set the water level (0-3)", nargs: 2, run: runWater},
	{name: "plans", usage: "plans SERIAL", summary: "list stored cleaning plans", nargs: 1, run: runPlans},
	{name: "run-plan", usage: "run-plan SERIAL NAME", summary: "start a stored cleaning plan", nargs: 2, run: runPlan},
	{name: "token", usage: "token [--subject S] [--role R]", summary: "mint a bearer token for the HTTP API", local: runToken},
}

// lookupCommand finds the subcommand named by args[0] and checks its
// argument count.
func lookupCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, fmt.Errorf("%w: missing command", errUsage)
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if got := len(args) - 1; got != c.nargs {
			return command{}, fmt.Errorf("%w: %s expects %d argument(s), got %d (%s)", errUsage, c.name, c.nargs, got, c.usage)
		}
		return c, nil
	}
	return command{}, fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func runDevices(ctx context.Context, c controller, opts options, out io.Writer) error {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	if opts.jsonOutput {
		return writeJSON(out, devices)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tNAME")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\n", d.SerialNumber, d.Name())
	}
	return tw.Flush()
}

func runStatus(ctx context.Context, c controller, opts options, out io.Writer) error {
	serial := opts.args[1]
	status, err := c.GetStatus(ctx, serial)
	if err != nil {
		return fmt.Errorf("reading status of %s: %w", serial, err)
	}
	if opts.jsonOutput {
		return writeJSON(out, status)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "serial:\t%s\n", serial)
	fmt.Fprintf(tw, "state:\t%s\n", status.State)
	fmt.Fprintf(tw, "mode:\t%s\n", status.Mode)
	fmt.Fprintf(tw, "connected:\t%t\n", status.Connected)
	fmt.Fprintf(tw, "battery:\t%s\n", intField(status.Battery, "%"))
	fmt.Fprintf(tw, "fan level:\t%s\n", intField(status.FanLevel, ""))
	fmt.Fprintf(tw, "water level:\t%s\n", intField(status.WaterLevel, ""))
	fmt.Fprintf(tw, "clean area:\t%s\n", floatField(status.CleanArea, " m²"))
	fmt.Fprintf(tw, "clean time:\t%s\n", intField(status.CleanMinutes, " min"))
	fmt.Fprintf(tw, "total area:\t%s\n", floatField(status.AllArea, " m²"))
	fmt.Fprintf(tw, "total time:\t%s\n", intField(status.AllMinutes, " min"))
	return tw.Flush()
}

// runShadow always prints JSON; the document has no fixed shape.
func runShadow(ctx context.Context, c controller, opts options, out io.Writer) error {
	serial := opts.args[1]
	doc, err := c.Shadow(ctx, serial)
	if err != nil {
		return fmt.Errorf("reading shadow of %s: %w", serial, err)
	}
	return writeJSON(out, map[string]any{
		"reported":  doc.Reported,
		"desired":   doc.Desired,
		"version":   doc.Version,
		"timestamp": doc.Timestamp,
	})
}

func runStart(ctx context.Context, c controller, opts options, out io.Writer) error {
	return issue(ctx, c, opts.args[1], conga.StartClean{FanLevel: opts.fanLevel}, out)
}

func runHome(ctx context.Context, c controller, opts options, out io.Writer) error {
	return issue(ctx, c, opts.args[1], conga.ReturnHome{}, out)
}

func runFan(ctx context.Context, c controller, opts options, out io.Writer) error {
	level, err := parseLevel(opts.args[2])
	if err != nil {
		return err
	}
	return issue(ctx, c, opts.args[1], conga.SetFanSpeed{Level: level}, out)
}

func runWater(ctx context.Context, c controller, opts options, out io.Writer) error {
	level, err := parseLevel(opts.args[2])
	if err != nil {
		return err
	}
	return issue(ctx, c, opts.args[1], conga.SetWaterLevel{Level: level}, out)
}

func runPlans(ctx context.Context, c controller, opts options, out io.Writer) error {
	plans := c.RefreshPlans(ctx, opts.args[1])
	if opts.jsonOutput {
		return writeJSON(out, plans)
	}
	if len(plans) == 0 {
		fmt.Fprintln(out, "no plans")
		return nil
	}
	for _, p := range plans {
		fmt.Fprintln(out, p.Name)
	}
	return nil
}

// runPlan loads the plan listing before issuing, since each invocation
// starts with an empty plan cache.
func runPlan(ctx context.Context, c controller, opts options, out io.Writer) error {
	serial := opts.args[1]
	c.RefreshPlans(ctx, serial)
	return issue(ctx, c, serial, conga.RunPlan{PlanName: opts.args[2]}, out)
}

func issue(ctx context.Context, c controller, serial string, cmd conga.Command, out io.Writer) error {
	if err := c.Issue(ctx, serial, cmd); err != nil {
		return fmt.Errorf("%s on %s: %w", cmd.Name(), serial, err)
	}
	fmt.Fprintf(out, "%s sent to %s\n", cmd.Name(), serial)
	return nil
}

// parseLevel parses a level argument. Range checks are left to the
// dispatcher.
func parseLevel(s string) (int, error) {
	level, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: level %q is not a number", errUsage, s)
	}
	return level, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intField(v *int, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v) + unit
}

func floatField(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + unit
}

// runToken signs an API token with the configured secret.
func runToken(cfg *config.Config, opts options, out io.Writer) error {
	role := auth.Role(opts.role)
	if !auth.IsValidRole(role) {
		return fmt.Errorf("%w: unknown role %q", errUsage, opts.role)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return fmt.Errorf("api.auth.jwt_secret is not set")
	}

	ttl := time.Duration(cfg.API.Auth.TokenTTL) * time.Minute
	token, err := auth.GenerateAccessToken(opts.subject, role, cfg.API.Auth.JWTSecret, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	if opts.jsonOutput {
		return writeJSON(out, map[string]any{
			"token":      token,
			"subject":    opts.subject,
			"role":       role,
			"expires_in": int(ttl.Seconds()),
		})
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
