// Command paydays computes bill schedules and priorities from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paydays/internal/amqp"
	"paydays/internal/backend"
	"paydays/internal/calendar"
	"paydays/internal/cli"
	"paydays/internal/config"
	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/report"
	"paydays/internal/scheduler"
	"paydays/internal/services"
	"paydays/internal/sources"
	"paydays/internal/sources/memory"
	"paydays/internal/storage"
)

const usage = `Usage: paydays <command> [flags]

Commands:
  plan     assign pending bills to paydays
  rank     list pending bills most urgent first
  import   copy the CSV seed files in DATA_DIR into the SQL backend
  last     show the latest stored run
  watch    print schedule events as they are published

Run 'paydays <command> -h' for the flags of a command.
`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage error")

func main() {
	cli.LoadEnvFile()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, time.Now())
	stop()
	os.Exit(code)
}

// env carries what every command needs. now is read once by main.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	stdout io.Writer
	stderr io.Writer
	now    time.Time
}

type options struct {
	strategy string
	date     string
	format   string
	write    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, now time.Time) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	cfg := config.Load()
	lcfg := log.DefaultConfig()
	lcfg.Output = stderr
	lcfg.Component = log.ComponentCLI
	level, levelErr := log.ParseLevel(cfg.LogLevel)
	lcfg.Level = level
	logger := log.New(lcfg)
	log.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("Unknown log level, using info", log.FieldError, levelErr)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	e := &env{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr, now: now}
	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "plan":
		err = e.plan(ctx, rest)
	case "rank":
		err = e.rank(ctx, rest)
	case "import":
		err = e.importSeeds(ctx, rest)
	case "last":
		err = e.last(ctx, rest)
	case "watch":
		err = e.watch(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		fmt.Fprintf(stderr, "paydays %s: %v\n", args[0], err)
		return exitError
	}
}

// flags parses the command line of one command. Only the flags named in
// accept are registered.
func (e *env) flags(name string, args []string, accept ...string) (options, error) {
	var opts options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	for _, f := range accept {
		switch f {
		case "strategy":
			fs.StringVar(&opts.strategy, "strategy", "", "scheduling strategy (period, balanced); defaults to SCHEDULE_STRATEGY")
		case "date":
			fs.StringVar(&opts.date, "date", "", "evaluate as of this day (YYYY-MM-DD); defaults to today")
		case "format":
			fs.StringVar(&opts.format, "format", "text", "output format: text, json or ics")
		case "write":
			fs.BoolVar(&opts.write, "write", false, "write computed priorities back to the backend")
		}
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(e.stderr, "%s: unexpected arguments %v\n", name, fs.Args())
		return opts, errUsage
	}
	return opts, nil
}

func (e *env) resolve(opts options) (scheduler.StrategyName, time.Time, error) {
	name := e.cfg.StrategyName()
	if opts.strategy != "" {
		parsed, err := scheduler.ParseStrategyName(opts.strategy)
		if err != nil {
			return "", time.Time{}, err
		}
		name = parsed
	}
	now, err := cli.ResolveNow(opts.date, func() time.Time { return e.now }, e.cfg.Location())
	if err != nil {
		return "", time.Time{}, err
	}
	return name, now, nil
}

func (e *env) open(ctx context.Context) (*services.Planner, func(), error) {
	planner, res, err := cli.NewPlanner(ctx, e.logger, e.cfg)
	if err != nil {
		return nil, nil, err
	}
	return planner, func() {
		if err := res.Close(); err != nil {
			e.logger.Warn("Backend close error", log.FieldError, err)
		}
	}, nil
}

func (e *env) plan(ctx context.Context, args []string) error {
	opts, err := e.flags("plan", args, "strategy", "date", "format", "write")
	if err != nil {
		return err
	}
	if err := checkFormat(opts.format, "text", "json", "ics"); err != nil {
		return err
	}
	name, now, err := e.resolve(opts)
	if err != nil {
		return err
	}
	planner, closeBackend, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	plan, err := planner.Plan(ctx, name, now)
	if err != nil {
		return err
	}
	if opts.write {
		updates, err := planner.RefreshPriorities(ctx, name, now)
		if err != nil {
			return err
		}
		e.logger.Info("Priorities written", log.FieldOperation, log.OpRefresh, "count", len(updates))
	}

	switch opts.format {
	case "json":
		return writeJSON(e.stdout, plan)
	case "ics":
		e.logger.Debug("Exporting calendar", log.FieldOperation, log.OpExport, "events", len(plan.Assignments))
		return calendar.Encode(e.stdout, plan, now)
	default:
		return report.New(e.stdout).Plan(plan)
	}
}

func (e *env) rank(ctx context.Context, args []string) error {
	opts, err := e.flags("rank", args, "strategy", "date", "format", "write")
	if err != nil {
		return err
	}
	if err := checkFormat(opts.format, "text", "json"); err != nil {
		return err
	}
	name, now, err := e.resolve(opts)
	if err != nil {
		return err
	}
	planner, closeBackend, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	ranked, rejected, err := planner.Rank(ctx, name, now)
	if err != nil {
		return err
	}
	e.logger.Debug("Bills ranked", log.FieldOperation, log.OpRank, log.FieldStrategy, name, "count", len(ranked))
	if opts.write {
		if _, err := planner.RefreshPriorities(ctx, name, now); err != nil {
			return err
		}
	}

	if opts.format == "json" {
		if ranked == nil {
			ranked = []scheduler.PrioritizedBill{}
		}
		return writeJSON(e.stdout, struct {
			Strategy scheduler.StrategyName      `json:"strategy"`
			Today    string                      `json:"today"`
			Bills    []scheduler.PrioritizedBill `json:"bills"`
			Rejected []scheduler.RejectedBill    `json:"rejected,omitempty"`
		}{name, now.Format(time.DateOnly), ranked, rejected})
	}
	return report.New(e.stdout).Ranking(ranked, rejected)
}

// importSeeds loads DATA_DIR the way the memory backend does and stores the
// result in the configured SQL database.
func (e *env) importSeeds(ctx context.Context, args []string) error {
	if _, err := e.flags("import", args); err != nil {
		return err
	}
	seeds, err := memory.NewFromFiles(e.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load seeds: %w", err)
	}

	bcfg, err := backend.FromAppConfig(e.cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(e.logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() { _ = res.Close() }()
	if res.Repository == nil {
		return fmt.Errorf("import needs a sqlite or postgres backend, DATA_BACKEND is %s", e.cfg.DataBackend)
	}
	repo := res.Repository

	n, err := copySeeds(ctx, seeds, repo)
	if err != nil {
		return err
	}
	e.logger.Info("Seed data imported", log.FieldOperation, log.OpImport, log.FieldBackend, e.cfg.DataBackend)
	fmt.Fprintf(e.stdout, "imported %d bills, %d paydays, %d month risks into %s\n",
		n.bills, n.paydays, n.risks, repo.Dialect())
	return nil
}

// seedStore is the write side of an import. *storage.Repository implements it.
type seedStore interface {
	UpsertBills(ctx context.Context, bills []core.Bill) error
	ReplacePaydays(ctx context.Context, paydays []core.Payday) error
	UpsertMonthRisks(ctx context.Context, risks []core.MonthRisk) error
}

type seedCounts struct {
	bills, paydays, risks int
}

// copySeeds reads every collection from src before writing any of them to dst.
func copySeeds(ctx context.Context, src sources.Source, dst seedStore) (seedCounts, error) {
	bills, err := src.ListBills(ctx)
	if err != nil {
		return seedCounts{}, fmt.Errorf("read bills: %w", err)
	}
	paydays, err := src.ListPaydays(ctx)
	if err != nil {
		return seedCounts{}, fmt.Errorf("read paydays: %w", err)
	}
	risks, err := src.ListMonthRisks(ctx)
	if err != nil {
		return seedCounts{}, fmt.Errorf("read month risks: %w", err)
	}

	if err := dst.UpsertBills(ctx, bills); err != nil {
		return seedCounts{}, fmt.Errorf("import bills: %w", err)
	}
	if err := dst.ReplacePaydays(ctx, paydays); err != nil {
		return seedCounts{}, fmt.Errorf("import paydays: %w", err)
	}
	if err := dst.UpsertMonthRisks(ctx, risks); err != nil {
		return seedCounts{}, fmt.Errorf("import month risks: %w", err)
	}
	return seedCounts{bills: len(bills), paydays: len(paydays), risks: len(risks)}, nil
}

func (e *env) last(ctx context.Context, args []string) error {
	opts, err := e.flags("last", args, "format")
	if err != nil {
		return err
	}
	if err := checkFormat(opts.format, "text", "json"); err != nil {
		return err
	}
	planner, closeBackend, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	run, err := planner.LatestRun(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintln(e.stdout, "no runs stored yet")
		return nil
	case errors.Is(err, services.ErrNoRunStore):
		return fmt.Errorf("runs are only stored by the sqlite and postgres backends: %w", err)
	case err != nil:
		return err
	}
	if opts.format == "json" {
		return writeJSON(e.stdout, run)
	}
	return report.New(e.stdout).Run(run)
}

func (e *env) watch(ctx context.Context, args []string) error {
	opts, err := e.flags("watch", args, "format")
	if err != nil {
		return err
	}
	if err := checkFormat(opts.format, "text", "json"); err != nil {
		return err
	}
	if e.cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is not set")
	}
	client, err := amqp.NewClient(e.cfg.AMQPURL, e.cfg.AMQPExchange, e.cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	out := report.New(e.stdout)
	enc := json.NewEncoder(e.stdout)
	err = client.Consume(ctx, func(ev *amqp.Event) error {
		if opts.format == "json" {
			return enc.Encode(ev)
		}
		return out.Event(ev)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q, want one of %v", format, allowed)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
