package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"pollguard/internal/adapter/clock"
	"pollguard/internal/adapter/logger"
	"pollguard/internal/adapter/platform"
	"pollguard/internal/adapter/procscan"
	"pollguard/internal/adapter/report"
	"pollguard/internal/adapter/runid"
	procsignal "pollguard/internal/adapter/signal"
	"pollguard/internal/adapter/sink"
	"pollguard/internal/adapter/systemd"
	"pollguard/internal/adapter/telegram"
	"pollguard/internal/app"
	"pollguard/internal/config"
	"pollguard/internal/domain"
)

const usage = `pollguard — keep exactly one Telegram long-poller alive

Usage:
  pollguard recover [flags]     Stop, clean up, cool down, restart and verify
  pollguard diagnose [flags]    Inspect processes, webhook and session read-only
  pollguard status [flags]      Show the supervisor state of the unit
  pollguard scan [flags]        List local processes matching the bot

Configuration is read from --config > POLLGUARD_CONFIG >
~/.config/pollguard/config.yaml. The bot token is read from the environment
variable named by telegram.token_env (default BOT_TOKEN).

Exit status:
  0  resolved
  1  usage or configuration error
  2  still conflicting or inconclusive
  3  aborted, operator action required

Examples:
  # Recover after "409 Conflict: terminated by other getUpdates request"
  pollguard recover

  # Retry twice more if the conflict persists, waiting 1m then 2m
  pollguard recover --attempts 3 --backoff 1m

  # Check without touching anything
  pollguard diagnose

Run "pollguard COMMAND --help" for command-specific flags.
`

const (
	exitResolved   = 0
	exitUsage      = 1
	exitUnresolved = 2
	exitAborted    = 3
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(0)
	}

	switch arg := os.Args[1]; arg {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		os.Exit(0)
	case "recover":
		recoverCmd(os.Args[2:])
	case "diagnose":
		diagnoseCmd(os.Args[2:])
	case "status":
		statusCmd(os.Args[2:])
	case "scan":
		scanCmd(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "pollguard: unknown command %q\n\n", arg)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitUsage)
	}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	config    string
	verbose   bool
	logFormat string
}

func newFlagSet(name, help string) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet("pollguard "+name, pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\nUsage:\n  pollguard %s [flags]\n\nFlags:\n", help, name)
		fs.PrintDefaults()
	}
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", "", "config file (default: ~/.config/pollguard/config.yaml)")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log debug detail")
	fs.StringVar(&c.logFormat, "log-format", "auto", "log format: auto, text or json")
	return fs, c
}

// env is everything a subcommand needs after flags are parsed.
type env struct {
	plat *platform.Platform
	cfg  *config.Config
	log  *logger.Slog
}

func setup(c *commonFlags) env {
	format, err := logger.ParseFormat(c.logFormat)
	if err != nil {
		fatal(err)
	}

	plat, err := platform.New()
	if err != nil {
		fatal(err)
	}

	cfg, err := config.LoadFile(plat.ResolveConfigPath(c.config))
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("invalid config:\n%w", err))
	}

	log := logger.NewStderr(format, c.verbose).With("unit", cfg.Service.Unit)
	return env{plat: plat, cfg: cfg, log: log}
}

func (e env) controller() *systemd.Controller {
	return systemd.NewController(systemd.Options{
		Unit:          e.cfg.Service.Unit,
		User:          e.cfg.Policy.UserUnits,
		ActionTimeout: e.cfg.Policy.ActionTimeout.Std(),
		Logger:        e.log,
	})
}

func (e env) scanner() *procscan.Scanner {
	sc, err := procscan.New(e.cfg.Service)
	if err != nil {
		fatal(err)
	}
	return sc
}

// localPorts wires the adapters that need no bot token.
func (e env) localPorts() app.Ports {
	return app.Ports{
		Scanner:    e.scanner(),
		Signaler:   procsignal.NewSender(),
		Controller: e.controller(),
		Clock:      clock.New(),
		RunIDs:     runid.NewRandomGenerator(),
		Logger:     e.log,
	}
}

// localService serves the read-only subcommands that never reach the Bot API.
func (e env) localService() *app.Service {
	return app.NewService(e.appConfig(), e.localPorts())
}

// service wires the full recovery stack. evidencePath may be empty.
func (e env) service(ac app.Config, evidencePath string) *app.Service {
	token, err := e.plat.ResolveToken(e.cfg.Telegram.TokenEnv)
	if err != nil {
		fatal(err)
	}
	tg := telegram.NewClient(e.cfg.Telegram.APIURL, token, e.log)

	ports := e.localPorts()
	ports.Probe = tg
	ports.Resetter = tg
	ports.Webhook = tg
	if evidencePath != "" {
		fileSink := sink.NewFileSink(evidencePath)
		if err := fileSink.EnsureDir(); err != nil {
			e.log.Warn("evidence log disabled", "path", evidencePath, "err", err)
		} else {
			ports.Sink = fileSink
		}
	}
	return app.NewService(ac, ports)
}

func (e env) appConfig() app.Config {
	ac, err := e.cfg.AppConfig()
	if err != nil {
		fatal(err)
	}
	return ac
}

func recoverCmd(args []string) {
	fs, common := newFlagSet("recover", `Recover from a polling session conflict.

Stops the unit, terminates every matching process, clears the webhook and
pending updates, waits out the cooldown, starts the unit and verifies that
exactly one poller holds the session. Safe to re-run after an interruption.`)

	attempts := fs.Int("attempts", 0, "run up to N times while the conflict persists (default: policy.attempts)")
	backoff := fs.Duration("backoff", 0, "wait backoff*N before attempt N+1 (default: policy.backoff)")
	cooldown := fs.Duration("cooldown", 0, "override policy.cooldown")
	evidenceLog := fs.String("evidence-log", "", `append verdicts to this file, "none" to disable`)
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e := setup(common)
	ac := e.appConfig()
	if fs.Changed("cooldown") {
		if *cooldown < 0 {
			fatal(errors.New("--cooldown must not be negative"))
		}
		ac.Cooldown = *cooldown
	}
	n := e.cfg.Policy.Attempts
	if fs.Changed("attempts") {
		n = *attempts
	}
	wait := e.cfg.Policy.Backoff.Std()
	if fs.Changed("backoff") {
		wait = *backoff
	}

	svc := e.service(ac, e.plat.ResolveEvidenceLog(*evidenceLog, e.cfg.EvidenceLog))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verdicts := svc.RecoverWithRetry(ctx, n, wait)
	report.New(os.Stdout).Verdicts(verdicts)

	exit(exitCode(verdicts[len(verdicts)-1].Outcome))
}

func diagnoseCmd(args []string) {
	fs, common := newFlagSet("diagnose", `Inspect the unit, matching processes, webhook registration and polling
session without changing anything.

The probe competes with a running poller for the session, so a running bot
may briefly log a conflict while diagnose runs.`)
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e := setup(common)
	svc := e.service(e.appConfig(), "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := svc.Diagnose(ctx)
	report.New(os.Stdout).Diagnosis(e.cfg.Service.Unit, d)

	exit(exitCode(d.Outcome))
}

func statusCmd(args []string) {
	fs, common := newFlagSet("status", "Show the supervisor state of the managed unit.")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e := setup(common)
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Policy.ActionTimeout.Std()+time.Second)
	defer cancel()

	st := e.localService().Status(ctx)
	report.New(os.Stdout).Status(e.cfg.Service.Unit, st)
}

func scanCmd(args []string) {
	fs, common := newFlagSet("scan", "List local processes classified as the bot's poller.")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	e := setup(common)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procs, err := e.localService().Scan(ctx)
	if err != nil {
		fatal(err)
	}
	report.New(os.Stdout).Processes(procs)
	if len(procs) > 1 {
		exit(exitUnresolved)
	}
}

func exitCode(o domain.Outcome) int {
	switch o {
	case domain.OutcomeResolved:
		return exitResolved
	case domain.OutcomeAborted:
		return exitAborted
	default:
		return exitUnresolved
	}
}

func exit(code int) {
	if code != exitResolved {
		os.Exit(code)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "pollguard: %v\n", err)
	os.Exit(exitUsage)
}
