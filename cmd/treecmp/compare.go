package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Treecmp/internal/core/stream"
	"github.com/Ning0612/Treecmp/internal/domain"
)

func (a *app) compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <left> <right>",
		Short: "Compare two directory trees",
		Long: `Compare two directory trees and print every entry that differs.

Either side may name a Google Drive folder as gdrive:/path.
Exits 0 when the trees are equal, 1 when they differ and 2 on errors.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := a.setup(cmd)
			defer cleanup()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stop := a.startProgress(e)
			result, err := e.svc.CompareDirectories(ctx, args[0], args[1])
			stop()
			if err != nil {
				return err
			}
			return a.report(e, result)
		},
	}
	a.addCompareFlags(cmd)
	a.addOutputFlags(cmd)
	return cmd
}

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <root> <manifest>",
		Short: "Capture a tree into a baseline manifest",
		Long: `Capture the state of a tree into a baseline manifest.

The manifest format follows the file extension (.json, .msgpack, .mpk)
and falls back to baseline.format from the configuration.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := a.setup(cmd)
			defer cleanup()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			m, err := e.svc.CreateBaseline(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, snapshotReport{
					Manifest:   args[1],
					SourcePath: m.SourcePath,
					CreatedAt:  m.CreatedAt,
					Files:      m.Root.CountFiles(),
					Algorithms: m.Algorithms,
				})
			}
			fmt.Fprintf(a.out, "captured %s files from %s into %s (%s)\n",
				formatCount(m.Root.CountFiles()), m.SourcePath, args[1], algorithmList(m.Algorithms))
			a.printStats(e)
			return nil
		},
	}
	a.addCompareFlags(cmd)
	cmd.Flags().StringVar(&a.flags.format, "format", "", "manifest format when the extension is not recognised (json or msgpack)")
	cmd.Flags().BoolVar(&a.flags.stats, "stats", false, "print bytes read and throughput")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <manifest> <root>",
		Short: "Compare a live tree against a baseline manifest",
		Long: `Compare a live tree against a previously captured baseline.

The live tree is the left side: entries only in the live tree are
reported as left only, entries only in the baseline as right only. Exits 0 when the tree matches, 1 when it
drifted and 2 on errors.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := a.setup(cmd)
			defer cleanup()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stop := a.startProgress(e)
			result, err := e.svc.CompareBaseline(ctx, args[0], args[1])
			stop()
			if err != nil {
				return err
			}
			return a.report(e, result)
		},
	}
	a.addCompareFlags(cmd)
	a.addOutputFlags(cmd)
	return cmd
}

func (a *app) addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&a.flags.onlyDifferences, "only-differences", false, "omit equal entries from the listing")
	cmd.Flags().BoolVar(&a.flags.stats, "stats", false, "print bytes read and throughput")
	cmd.Flags().BoolVar(&a.flags.progress, "progress", false, "print running counts to stderr while comparing")
}

// startProgress subscribes a progress printer when --progress is set
func (a *app) startProgress(e *env) (stop func()) {
	if !a.flags.progress {
		return func() {}
	}
	tree := stream.New(e.cfg.Compare.CaseSensitive)
	e.svc.SetPublisher(tree)
	return showProgress(tree, a.errOut)
}

// report prints a comparison result and converts its verdict to an exit code
func (a *app) report(e *env, result *domain.ComparisonResult) error {
	if a.jsonOut {
		if err := writeJSON(a.out, newResultReport(result, a.flags.onlyDifferences)); err != nil {
			return err
		}
	} else {
		printResult(a.out, result, a.flags.onlyDifferences)
		a.printStats(e)
	}

	if code := exitCode(result); code != exitEqual {
		return &exitCodeError{code: code}
	}
	return nil
}

func (a *app) printStats(e *env) {
	if a.flags.stats {
		printTotals(a.out, e.reporter.Totals())
	}
}

// exitCode maps a result to 0 (equal), 1 (differences) or 2 (errors)
func exitCode(result *domain.ComparisonResult) int {
	switch {
	case result.Summary.Errors > 0 || result.Root.Status == domain.StatusError:
		return exitError
	case result.Root.Status != domain.StatusEqual || result.Summary.HasDifferences():
		return exitDifferent
	default:
		return exitEqual
	}
}
