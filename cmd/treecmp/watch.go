package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/service"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		interval        time.Duration
		onlyDifferences bool
	)

	cmd := &cobra.Command{
		Use:   "watch <manifest> <root>",
		Short: "Re-verify a tree against its baseline on an interval",
		Long: `Verify a tree against a baseline immediately and then on every interval
until interrupted. The manifest is locked while watching, so snapshot
refuses to overwrite it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := a.setup(cmd)
			defer cleanup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = e.cfg.Watch.Interval
			}

			w, err := service.NewWatchService(e.svc, args[0], args[1])
			if err != nil {
				return err
			}
			defer w.Close()

			var mu sync.Mutex
			w.SetResultHandler(func(result *domain.ComparisonResult, err error) {
				mu.Lock()
				defer mu.Unlock()
				if err := a.printWatchRun(result, err, onlyDifferences); err != nil {
					logger.Get().Warn("failed to write watch report", "error", err)
				}
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := w.Start(ctx, interval); err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "watching %s against %s every %s, press Ctrl+C to stop\n", args[1], args[0], interval)

			select {
			case <-ctx.Done():
			case <-w.Done():
			}

			if stats := w.Status().SchedulerStats; stats != nil {
				logger.Get().Info("watch stopped", "runs", stats.TotalRuns, "failed", stats.FailedRuns)
			}
			return nil
		},
	}
	a.addCompareFlags(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between verifications (default watch.interval)")
	cmd.Flags().BoolVar(&onlyDifferences, "only-differences", true, "list only drifted entries")
	return cmd
}

// printWatchRun reports one verification. The returned error is a write
// failure, never the verification outcome.
func (a *app) printWatchRun(result *domain.ComparisonResult, err error, onlyDifferences bool) error {
	stamp := time.Now().Format(time.RFC3339)
	switch {
	case err == nil:
		_, werr := fmt.Fprintf(a.out, "%s ok: %s files match\n", stamp, formatCount(result.Summary.Total))
		return werr
	case errors.Is(err, service.ErrDrift) && result != nil:
		if _, werr := fmt.Fprintf(a.out, "%s drift detected\n", stamp); werr != nil {
			return werr
		}
		if a.jsonOut {
			return writeJSON(a.out, newResultReport(result, onlyDifferences))
		}
		printResult(a.out, result, onlyDifferences)
		return nil
	default:
		_, werr := fmt.Fprintf(a.out, "%s verification failed: %v\n", stamp, err)
		return werr
	}
}
