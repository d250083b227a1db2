package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/auth"
	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/config"
)

// fakeController records issued commands and returns canned data.
type fakeController struct {
	devices   []conga.Device
	status    conga.Status
	shadow    *conga.ShadowDocument
	plans     []conga.Plan
	err       error
	issued    []conga.Command
	refreshed []string
}

func (f *fakeController) ListDevices(context.Context) ([]conga.Device, error) {
	return f.devices, f.err
}

func (f *fakeController) GetStatus(context.Context, string) (conga.Status, error) {
	return f.status, f.err
}

func (f *fakeController) Shadow(context.Context, string) (*conga.ShadowDocument, error) {
	return f.shadow, f.err
}

func (f *fakeController) Issue(_ context.Context, _ string, cmd conga.Command) error {
	f.issued = append(f.issued, cmd)
	return f.err
}

func (f *fakeController) RefreshPlans(_ context.Context, serial string) []conga.Plan {
	f.refreshed = append(f.refreshed, serial)
	return f.plans
}

func intPtr(v int) *int { return &v }

func parse(t *testing.T, args ...string) options {
	t.Helper()
	opts, help, err := parseArgs(args, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs(%v) error = %v", args, err)
	}
	if help {
		t.Fatalf("parseArgs(%v) reported help", args)
	}
	return opts
}

func execute(t *testing.T, c controller, args ...string) (string, error) {
	t.Helper()
	opts := parse(t, args...)
	cmd, err := lookupCommand(opts.args)
	if err != nil {
		t.Fatalf("lookupCommand(%v) error = %v", opts.args, err)
	}
	var out bytes.Buffer
	err = cmd.run(context.Background(), c, opts, &out)
	return out.String(), err
}

func TestParseArgs(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	opts := parse(t, "start", "SN001", "--fan", "3", "-a", "home")
	if opts.fanLevel != 3 {
		t.Errorf("fanLevel = %d, want 3", opts.fanLevel)
	}
	if opts.accountID != "home" {
		t.Errorf("accountID = %q, want home", opts.accountID)
	}
	if opts.configPath != defaultConfigPath {
		t.Errorf("configPath = %q, want %q", opts.configPath, defaultConfigPath)
	}
	if opts.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", opts.timeout, defaultTimeout)
	}
	if len(opts.args) != 2 || opts.args[0] != "start" || opts.args[1] != "SN001" {
		t.Errorf("args = %v", opts.args)
	}
}

func TestParseArgs_ConfigFromEnv(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/etc/graylogic/conga.yaml")

	opts := parse(t, "devices")
	if opts.configPath != "/etc/graylogic/conga.yaml" {
		t.Errorf("configPath = %q, want env path", opts.configPath)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown flag", args: []string{"--bogus", "devices"}},
		{name: "zero timeout", args: []string{"--timeout", "0s", "devices"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseArgs(tt.args, io.Discard)
			if !errors.Is(err, errUsage) {
				t.Errorf("parseArgs() error = %v, want errUsage", err)
			}
		})
	}
}

func TestParseArgs_Help(t *testing.T) {
	var stderr bytes.Buffer
	_, help, err := parseArgs([]string{"--help"}, &stderr)
	if err != nil || !help {
		t.Fatalf("parseArgs(--help) = help %v, err %v", help, err)
	}
	if !strings.Contains(stderr.String(), "run-plan SERIAL NAME") {
		t.Errorf("usage output missing command list:\n%s", stderr.String())
	}
}

func TestLookupCommand(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{args: []string{"devices"}},
		{args: []string{"status", "SN001"}},
		{args: []string{"run-plan", "SN001", "Kitchen"}},
		{args: []string{"token"}},
		{args: []string{"status"}, wantErr: true},
		{args: []string{"fan", "SN001"}, wantErr: true},
		{args: []string{"devices", "extra"}, wantErr: true},
		{args: []string{"dance", "SN001"}, wantErr: true},
	}
	for _, tt := range tests {
		_, err := lookupCommand(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("lookupCommand(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, errUsage) {
			t.Errorf("lookupCommand(%v) error = %v, want errUsage", tt.args, err)
		}
	}
}

func TestDevices(t *testing.T) {
	c := &fakeController{devices: []conga.Device{
		{SerialNumber: "SN001", DisplayName: "Downstairs"},
		{SerialNumber: "SN002"},
	}}

	out, err := execute(t, c, "devices")
	if err != nil {
		t.Fatalf("devices error = %v", err)
	}
	if !strings.Contains(out, "SN001") || !strings.Contains(out, "Downstairs") {
		t.Errorf("output missing first device:\n%s", out)
	}
	// A device without a display name shows its serial as the name.
	if strings.Count(out, "SN002") != 2 {
		t.Errorf("output should show SN002 twice:\n%s", out)
	}
}

func TestDevices_JSON(t *testing.T) {
	c := &fakeController{devices: []conga.Device{{SerialNumber: "SN001", DisplayName: "Downstairs"}}}

	out, err := execute(t, c, "devices", "--json")
	if err != nil {
		t.Fatalf("devices error = %v", err)
	}
	var got []conga.Device
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].SerialNumber != "SN001" {
		t.Errorf("devices = %+v", got)
	}
}

func TestStatus(t *testing.T) {
	c := &fakeController{status: conga.Status{
		Mode:      "sweep",
		State:     conga.StateCleaning,
		Battery:   intPtr(80),
		Connected: true,
	}}

	out, err := execute(t, c, "status", "SN001")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"cleaning", "80%", "connected:", "true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "clean area:") || !strings.Contains(out, "-") {
		t.Errorf("unreported fields should print '-':\n%s", out)
	}
}

func TestIssueCommands(t *testing.T) {
	tests := []struct {
		args []string
		want conga.Command
	}{
		{args: []string{"start", "SN001"}, want: conga.StartClean{FanLevel: 1}},
		{args: []string{"start", "SN001", "--fan", "2"}, want: conga.StartClean{FanLevel: 2}},
		{args: []string{"home", "SN001"}, want: conga.ReturnHome{}},
		{args: []string{"fan", "SN001", "3"}, want: conga.SetFanSpeed{Level: 3}},
		{args: []string{"water", "SN001", "0"}, want: conga.SetWaterLevel{Level: 0}},
		{args: []string{"run-plan", "SN001", "Kitchen"}, want: conga.RunPlan{PlanName: "Kitchen"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			c := &fakeController{}
			out, err := execute(t, c, tt.args...)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(c.issued) != 1 || c.issued[0] != tt.want {
				t.Errorf("issued = %+v, want %+v", c.issued, tt.want)
			}
			if !strings.Contains(out, tt.want.Name()) {
				t.Errorf("output = %q, want command name", out)
			}
		})
	}
}

func TestRunPlan_RefreshesFirst(t *testing.T) {
	c := &fakeController{}
	if _, err := execute(t, c, "run-plan", "SN001", "Kitchen"); err != nil {
		t.Fatalf("run-plan error = %v", err)
	}
	if len(c.refreshed) != 1 || c.refreshed[0] != "SN001" {
		t.Errorf("refreshed = %v, want [SN001]", c.refreshed)
	}
}

func TestIssue_Error(t *testing.T) {
	c := &fakeController{err: conga.ErrPlanNotFound}
	_, err := execute(t, c, "run-plan", "SN001", "Garage")
	if !errors.Is(err, conga.ErrPlanNotFound) {
		t.Errorf("error = %v, want ErrPlanNotFound", err)
	}
}

func TestFan_NotANumber(t *testing.T) {
	c := &fakeController{}
	_, err := execute(t, c, "fan", "SN001", "high")
	if !errors.Is(err, errUsage) {
		t.Errorf("error = %v, want errUsage", err)
	}
	if len(c.issued) != 0 {
		t.Errorf("issued = %v, want none", c.issued)
	}
}

func TestPlans(t *testing.T) {
	c := &fakeController{plans: []conga.Plan{{Name: "Kitchen"}, {Name: "Bedroom"}}}
	out, err := execute(t, c, "plans", "SN001")
	if err != nil {
		t.Fatalf("plans error = %v", err)
	}
	if out != "Kitchen\nBedroom\n" {
		t.Errorf("output = %q", out)
	}

	empty := &fakeController{}
	out, _ = execute(t, empty, "plans", "SN001")
	if out != "no plans\n" {
		t.Errorf("empty output = %q", out)
	}
}

func TestSelectAccount(t *testing.T) {
	accounts := []config.AccountConfig{
		{ID: "home", Username: "a@example.com"},
		{ID: "office", Username: "b@example.com"},
	}

	got, err := selectAccount(accounts, "")
	if err != nil || got.ID != "home" {
		t.Errorf("selectAccount(\"\") = %+v, %v; want home", got, err)
	}
	got, err = selectAccount(accounts, "office")
	if err != nil || got.ID != "office" {
		t.Errorf("selectAccount(office) = %+v, %v", got, err)
	}
	if _, err := selectAccount(accounts, "cabin"); err == nil {
		t.Error("selectAccount(cabin) should fail")
	}
	if _, err := selectAccount(nil, ""); err == nil {
		t.Error("selectAccount with no accounts should fail")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", "/nonexistent/config.yaml", "devices"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

func TestToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.API.Auth.JWTSecret = "congactl-test-secret-0123456789abcdef"
	cfg.API.Auth.TokenTTL = 5

	opts := parse(t, "--subject", "installer", "--role", "admin", "token")
	cmd, err := lookupCommand(opts.args)
	if err != nil {
		t.Fatalf("lookupCommand() error = %v", err)
	}
	if cmd.local == nil {
		t.Fatal("token should not need a cloud account")
	}

	var out bytes.Buffer
	if err := cmd.local(cfg, opts, &out); err != nil {
		t.Fatalf("token error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), cfg.API.Auth.JWTSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "installer" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %s/%s, want installer/admin", claims.Subject, claims.Role)
	}
	if left := time.Until(claims.ExpiresAt.Time); left > 5*time.Minute || left < 4*time.Minute {
		t.Errorf("token expires in %v, want ~5m", left)
	}
}

func TestToken_JSON(t *testing.T) {
	cfg := &config.Config{}
	cfg.API.Auth.JWTSecret = "congactl-test-secret-0123456789abcdef"

	opts := parse(t, "--json", "--role", "viewer", "token")
	var out bytes.Buffer
	if err := runToken(cfg, opts, &out); err != nil {
		t.Fatalf("token error = %v", err)
	}

	var got struct {
		Token   string `json:"token"`
		Subject string `json:"subject"`
		Role    string `json:"role"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Token == "" || got.Subject != "congactl" || got.Role != "viewer" {
		t.Errorf("output = %+v", got)
	}
}

func TestToken_Errors(t *testing.T) {
	cfg := &config.Config{}
	cfg.API.Auth.JWTSecret = "congactl-test-secret-0123456789abcdef"

	err := runToken(cfg, parse(t, "--role", "owner", "token"), io.Discard)
	if !errors.Is(err, errUsage) {
		t.Errorf("unknown role error = %v, want errUsage", err)
	}

	if err := runToken(&config.Config{}, parse(t, "token"), io.Discard); err == nil {
		t.Error("missing secret should fail")
	}
}

func TestShadow(t *testing.T) {
	c := &fakeController{shadow: &conga.ShadowDocument{
		Reported: map[string]any{"mode": "sweep", "elec": 80.0},
		Desired:  map[string]any{"workNoisy": 2.0},
		Version:  7,
	}}
	out, err := execute(t, c, "shadow", "SN001")
	if err != nil {
		t.Fatalf("shadow error = %v", err)
	}

	var got struct {
		Reported map[string]any `json:"reported"`
		Desired  map[string]any `json:"desired"`
		Version  int64          `json:"version"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("unmarshal: %v (output %q)", err, out)
	}
	if got.Reported["mode"] != "sweep" || got.Desired["workNoisy"] != 2.0 || got.Version != 7 {
		t.Errorf("shadow output = %+v", got)
	}

	failing := &fakeController{err: conga.ErrNotFound}
	if _, err := execute(t, failing, "shadow", "SN404"); !errors.Is(err, conga.ErrNotFound) {
		t.Errorf("shadow error = %v, want ErrNotFound", err)
	}
}
