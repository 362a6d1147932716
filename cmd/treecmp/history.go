package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ning0612/Treecmp/internal/state"
)

// historyRun is the --json rendering of one recorded run
type historyRun struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Left      string    `json:"left"`
	Right     string    `json:"right"`
	StartTime time.Time `json:"start_time"`
	Duration  string    `json:"duration"`
	Outcome   string    `json:"outcome"`
	Files     int       `json:"files"`
	Different int       `json:"different"`
	LeftOnly  int       `json:"left_only"`
	RightOnly int       `json:"right_only"`
	Errors    int       `json:"errors"`
	Error     string    `json:"error,omitempty"`
}

func (a *app) historyCmd() *cobra.Command {
	var (
		kind  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runKind := state.RunKind(kind)
			if kind != "" && !runKind.IsValid() {
				return fmt.Errorf("unknown run kind %q (want compare, snapshot or verify)", kind)
			}

			e, cleanup, err := a.setup(cmd)
			defer cleanup()
			if err != nil {
				return err
			}

			runs, err := e.svc.History(runKind, limit)
			if err != nil {
				return err
			}

			if a.jsonOut {
				out := make([]historyRun, 0, len(runs))
				for _, r := range runs {
					out = append(out, historyRun{
						ID:        r.ID,
						Kind:      string(r.Kind),
						Left:      r.LeftPath,
						Right:     r.RightPath,
						StartTime: r.StartTime,
						Duration:  r.Duration().String(),
						Outcome:   r.Outcome,
						Files:     r.Summary.Total,
						Different: r.Summary.Different,
						LeftOnly:  r.Summary.LeftOnly,
						RightOnly: r.Summary.RightOnly,
						Errors:    r.Summary.Errors,
						Error:     r.Error,
					})
				}
				return writeJSON(a.out, out)
			}

			if len(runs) == 0 {
				fmt.Fprintln(a.out, "no runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tOUTCOME\tSTARTED\tDURATION\tFILES\tLEFT\tRIGHT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(r.ID), r.Kind, r.Outcome,
					humanize.Time(r.StartTime),
					r.Duration().Round(time.Millisecond),
					formatCount(r.Summary.Total),
					r.LeftPath, r.RightPath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only show runs of this kind (compare, snapshot, verify)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
