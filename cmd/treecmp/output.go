package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/Treecmp/internal/core/summary"
	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/progress"
)

// resultReport is the --json rendering of a comparison
type resultReport struct {
	Left     string                   `json:"left"`
	Right    string                   `json:"right"`
	Status   domain.Status            `json:"status"`
	Summary  domain.ComparisonSummary `json:"summary"`
	Baseline *domain.BaselineMetadata `json:"baseline,omitempty"`
	Entries  []summary.Entry          `json:"entries"`
}

func newResultReport(result *domain.ComparisonResult, onlyDifferences bool) resultReport {
	entries := summary.Flatten(result.Root, summary.FlattenOptions{OnlyDifferences: onlyDifferences})
	if entries == nil {
		entries = []summary.Entry{}
	}
	return resultReport{
		Left:     result.LeftPath,
		Right:    result.RightPath,
		Status:   result.Root.Status,
		Summary:  result.Summary,
		Baseline: result.Baseline,
		Entries:  entries,
	}
}

// snapshotReport is the --json rendering of a captured baseline
type snapshotReport struct {
	Manifest   string                 `json:"manifest"`
	SourcePath string                 `json:"source_path"`
	CreatedAt  time.Time              `json:"created_at"`
	Files      int                    `json:"files"`
	Algorithms []domain.HashAlgorithm `json:"algorithms"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var statusMarks = map[domain.Status]string{
	domain.StatusEqual:     "=",
	domain.StatusDifferent: "~",
	domain.StatusLeftOnly:  "<",
	domain.StatusRightOnly: ">",
	domain.StatusError:     "!",
}

// printResult renders the flattened tree followed by a summary line
func printResult(w io.Writer, result *domain.ComparisonResult, onlyDifferences bool) {
	if b := result.Baseline; b != nil {
		fmt.Fprintf(w, "baseline %s captured %s from %s\n",
			b.ManifestPath, humanize.Time(b.CreatedAt), b.SourcePath)
	}

	for _, e := range summary.Flatten(result.Root, summary.FlattenOptions{OnlyDifferences: onlyDifferences}) {
		name := e.Path
		if e.Type == domain.NodeTypeDirectory {
			name += "/"
		}
		line := fmt.Sprintf("%s %s%s", statusMarks[e.Status], strings.Repeat("  ", e.Depth-1), name)
		if d := describeDetail(e); d != "" {
			line += "  " + d
		}
		fmt.Fprintln(w, line)
	}

	s := result.Summary
	fmt.Fprintf(w, "%s: %s files, %s equal, %s different, %s left only, %s right only, %s errors\n",
		result.Root.Status,
		formatCount(s.Total), formatCount(s.Equal), formatCount(s.Different),
		formatCount(s.LeftOnly), formatCount(s.RightOnly), formatCount(s.Errors))
}

// describeDetail summarises why a file entry is not equal
func describeDetail(e summary.Entry) string {
	d := e.Detail
	if d == nil {
		return ""
	}
	if d.ErrorMessage != "" {
		return d.ErrorMessage
	}
	if e.Status != domain.StatusDifferent || e.Type != domain.NodeTypeFile {
		return ""
	}

	var parts []string
	if d.LeftSize != nil && d.RightSize != nil && *d.LeftSize != *d.RightSize {
		parts = append(parts, fmt.Sprintf("size %s vs %s",
			progress.FormatBytes(*d.LeftSize), progress.FormatBytes(*d.RightSize)))
	}
	for _, algo := range domain.SortedAlgorithms(d.LeftHashes) {
		if right, ok := d.RightHashes[algo]; ok && right != d.LeftHashes[algo] {
			parts = append(parts, fmt.Sprintf("%s %s vs %s", algo, shortDigest(d.LeftHashes[algo]), shortDigest(right)))
		}
	}
	if len(parts) == 0 && d.LeftModTime != nil && d.RightModTime != nil && !d.LeftModTime.Equal(*d.RightModTime) {
		parts = append(parts, fmt.Sprintf("modified %s vs %s",
			d.LeftModTime.Format(time.RFC3339), d.RightModTime.Format(time.RFC3339)))
	}
	return strings.Join(parts, ", ")
}

func shortDigest(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func printTotals(w io.Writer, t progress.Update) {
	fmt.Fprintf(w, "read %s in %s (%s), %s directories\n",
		progress.FormatBytes(t.BytesRead),
		t.Elapsed.Round(time.Millisecond),
		progress.FormatSpeed(t.BytesPerSecond),
		formatCount(t.DirectoriesScanned))
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func algorithmList(algos []domain.HashAlgorithm) string {
	if len(algos) == 0 {
		return "metadata only"
	}
	names := make([]string, len(algos))
	for i, a := range algos {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}
