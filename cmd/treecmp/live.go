package main

import (
	"fmt"
	"io"
	"time"

	"github.com/Ning0612/Treecmp/internal/core/stream"
	"github.com/Ning0612/Treecmp/internal/core/summary"
)

// liveInterval is the minimum time between two progress lines
const liveInterval = 200 * time.Millisecond

// showProgress prints running counts to w while nodes arrive in tree.
// stop ends the printer and returns once it has exited.
func showProgress(tree *stream.Tree, w io.Writer) (stop func()) {
	updates, cancel := tree.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)

		var (
			seen    uint64
			printed time.Time
		)
		for range updates {
			v := tree.Version()
			if v == seen || time.Since(printed) < liveInterval {
				continue
			}
			seen, printed = v, time.Now()

			s := summary.Calculate(tree.Snapshot())
			fmt.Fprintf(w, "compared %s files, %s different, %s left only, %s right only, %s errors\n",
				formatCount(s.Total), formatCount(s.Different),
				formatCount(s.LeftOnly), formatCount(s.RightOnly), formatCount(s.Errors))

			if _, final, _ := tree.Get(""); final {
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
