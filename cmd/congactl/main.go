// congactl is an operator CLI for a Conga cloud account. It uses the same
// configuration file as the bridge and talks to the cloud directly, which
// makes it useful for checking credentials and exercising a vacuum
// without Gray Logic Core.
//
// Usage:
//
//	congactl [flags] devices
//	congactl [flags] status SERIAL
//	congactl [flags] shadow SERIAL
//	congactl [flags] start SERIAL [--fan LEVEL]
//	congactl [flags] home SERIAL
//	congactl [flags] fan SERIAL LEVEL
//	congactl [flags] water SERIAL LEVEL
//	congactl [flags] plans SERIAL
//	congactl [flags] run-plan SERIAL NAME
//	congactl [flags] token [--subject NAME] [--role ROLE]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-conga/internal/account"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultTimeout    = 30 * time.Second
)

// errUsage marks an invocation error; main prints usage for it.
var errUsage = errors.New("usage")

// options are the parsed command line.
type options struct {
	configPath string
	accountID  string
	timeout    time.Duration
	jsonOutput bool
	verbose    bool
	fanLevel   int
	subject    string
	role       string
	args       []string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run parses args, opens the selected account and executes one
// subcommand, writing results to stdout and logs to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, help, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if help {
		return nil
	}

	cmd, err := lookupCommand(opts.args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.local != nil {
		return cmd.local(cfg, opts, stdout)
	}

	acct, err := selectAccount(cfg.Accounts, opts.accountID)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	logCfg.Level = "warn"
	if opts.verbose {
		logCfg.Level = "debug"
	}
	log := logging.NewWithWriter(logCfg, version, stderr).
		Component("congactl").
		With("account", acct.ID, "invocation", uuid.NewString())
	log.Debug("running command", "command", opts.args[0], "commit", commit)

	facade, err := account.Open(cfg.Cloud, acct, log)
	if err != nil {
		return fmt.Errorf("account %s: %w", acct.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	return cmd.run(ctx, facade, opts, stdout)
}

// parseArgs parses flags. help is true when usage was requested and
// already printed.
func parseArgs(args []string, stderr io.Writer) (opts options, help bool, err error) {
	flags := pflag.NewFlagSet("congactl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&opts.configPath, "config", "c", configPathFromEnv(), "path to the YAML configuration file")
	flags.StringVarP(&opts.accountID, "account", "a", "", "account id from the configuration (default: first account)")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall deadline for the command")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	flags.IntVar(&opts.fanLevel, "fan", 1, "fan level for start (0-3)")
	flags.StringVar(&opts.subject, "subject", "congactl", "token subject, recorded as the command source")
	flags.StringVar(&opts.role, "role", "operator", "token role (viewer, operator, admin)")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, true, nil
		}
		return opts, false, fmt.Errorf("%w: %v", errUsage, err)
	}
	opts.args = flags.Args()
	if len(opts.args) == 0 {
		printUsage(stderr, flags)
		return opts, false, fmt.Errorf("%w: missing command", errUsage)
	}
	if opts.timeout <= 0 {
		return opts, false, fmt.Errorf("%w: --timeout must be positive", errUsage)
	}
	return opts, false, nil
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: congactl [flags] COMMAND [ARGS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-28s %s\n", c.usage, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flags.FlagUsages())
}

// configPathFromEnv returns GRAYLOGIC_CONFIG or the default path.
func configPathFromEnv() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// selectAccount returns the account with id, or the first account when
// id is empty.
func selectAccount(accounts []config.AccountConfig, id string) (config.AccountConfig, error) {
	if len(accounts) == 0 {
		return config.AccountConfig{}, errors.New("no accounts configured")
	}
	if id == "" {
		return accounts[0], nil
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return config.AccountConfig{}, fmt.Errorf("account %q not found in configuration", id)
}
