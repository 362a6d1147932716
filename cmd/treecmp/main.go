// Command treecmp compares directory trees and verifies trees against
// captured baselines.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Treecmp/internal/config"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/progress"
	"github.com/Ning0612/Treecmp/internal/service"
	"github.com/Ning0612/Treecmp/internal/state"
)

// Exit codes
const (
	exitEqual     = 0
	exitDifferent = 1
	exitError     = 2
)

// exitCodeError carries a non-zero exit status out of a command without
// printing an error message
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{in: stdin, out: stdout, errOut: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitEqual
	}

	var exit *exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(stderr, "error:", err)
	return exitError
}

// app holds the state shared by all commands of one invocation
type app struct {
	in          io.Reader
	out, errOut io.Writer

	cfgPath  string
	logLevel string
	jsonOut  bool

	flags compareFlags
}

// compareFlags override the compare section of the configuration
type compareFlags struct {
	algorithms      []string
	ignore          []string
	mode            string
	tolerance       time.Duration
	workers         int
	caseInsensitive bool
	noVerify        bool
	timeout         time.Duration
	format          string
	onlyDifferences bool
	stats           bool
	progress        bool
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "treecmp",
		Short:         "Compare directory trees and verify them against baselines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to config file (default: search standard locations)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print machine readable JSON")

	root.AddCommand(a.compareCmd())
	root.AddCommand(a.snapshotCmd())
	root.AddCommand(a.verifyCmd())
	root.AddCommand(a.watchCmd())
	root.AddCommand(a.historyCmd())
	root.AddCommand(a.initCmd())
	root.AddCommand(a.authCmd())
	return root
}

// addCompareFlags registers the flags shared by compare, snapshot, verify and watch
func (a *app) addCompareFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&a.flags.algorithms, "algorithms", nil, "hash algorithms (crc32, md5, sha256, xxhash64)")
	f.StringArrayVar(&a.flags.ignore, "ignore", nil, "ignore pattern, repeatable (doublestar glob)")
	f.StringVar(&a.flags.mode, "mode", "", "comparison mode when no algorithms are given (quick or hash)")
	f.DurationVar(&a.flags.tolerance, "tolerance", 0, "modified time tolerance")
	f.IntVar(&a.flags.workers, "workers", 0, "maximum parallel workers (0 = one per CPU)")
	f.BoolVar(&a.flags.caseInsensitive, "case-insensitive", false, "match names ignoring case")
	f.BoolVar(&a.flags.noVerify, "no-verify", false, "trust matching size and mtime without reading contents")
	f.DurationVar(&a.flags.timeout, "timeout", 0, "abort the run after this long")
}

// applyFlags copies explicitly set flags over the loaded configuration
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	c := &cfg.Compare
	if f.Changed("algorithms") {
		c.Algorithms = a.flags.algorithms
	}
	if f.Changed("ignore") {
		c.Ignore = append(c.Ignore, a.flags.ignore...)
	}
	if f.Changed("mode") {
		c.Mode = config.Mode(a.flags.mode)
	}
	if f.Changed("tolerance") {
		c.MtimeTolerance = a.flags.tolerance
	}
	if f.Changed("workers") {
		c.MaxParallelism = a.flags.workers
	}
	if f.Changed("case-insensitive") {
		c.CaseSensitive = !a.flags.caseInsensitive
	}
	if f.Changed("no-verify") {
		c.VerifyContent = !a.flags.noVerify
	}
	if f.Changed("timeout") {
		c.Timeout = a.flags.timeout
	}
	if f.Changed("format") {
		cfg.Baseline.Format = a.flags.format
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
}

// env is an initialized runtime: configuration, logger, history and service
type env struct {
	cfg      *config.Config
	history  *state.Manager
	svc      *service.CompareService
	reporter *progress.CallbackReporter
}

// setup loads configuration, applies flags and opens logging and history.
// The returned cleanup must always be called.
func (a *app) setup(cmd *cobra.Command) (*env, func(), error) {
	cfg, err := config.LoadOrDefault(a.cfgPath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to load config: %w", err)
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, func() {}, err
	}

	if err := logger.Init(cfg.Log.LoggerConfig()); err != nil {
		return nil, func() {}, err
	}

	e := &env{cfg: cfg, reporter: progress.NewCallbackReporter(nil)}
	cleanup := func() {
		if e.history != nil {
			if err := e.history.Close(); err != nil {
				logger.Get().Warn("failed to close history", "error", err)
			}
		}
		logger.Shutdown()
	}

	if cfg.State.Enabled {
		history, err := state.NewManager(cfg.State.Dir)
		if err != nil {
			// History is best effort; comparisons still run without it
			logger.Get().Warn("run history unavailable", "dir", cfg.State.Dir, "error", err)
		} else {
			e.history = history
		}
	}

	svc, err := service.NewCompareService(cfg, e.history)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	svc.SetProgressReporter(e.reporter)
	e.svc = svc

	return e, cleanup, nil
}
