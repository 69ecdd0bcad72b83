// Package review renders the difference between a staged document and the
// live one it would replace.
package review

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"
)

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Stats counts changed lines. Modified is the overlap of additions and
// removals, an approximation of lines rewritten in place.
type Stats struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// Diff is a unified diff from the live document to the staged one.
type Diff struct {
	Lines []string
	Stats Stats
}

// Compare diffs the files at livePath and stagingPath. A missing file is
// treated as empty.
func Compare(stagingPath, livePath string) (*Diff, error) {
	staged, err := readOptional(stagingPath)
	if err != nil {
		return nil, err
	}
	live, err := readOptional(livePath)
	if err != nil {
		return nil, err
	}
	return CompareText(live, staged, livePath, stagingPath)
}

// CompareText diffs two in-memory documents.
func CompareText(from, to, fromName, toName string) (*Diff, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(from),
		B:        splitLines(to),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	d := &Diff{}
	if text != "" {
		d.Lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	}
	for _, line := range d.Lines {
		switch {
		case isAdded(line):
			d.Stats.Added++
		case isRemoved(line):
			d.Stats.Removed++
		}
	}
	d.Stats.Modified = min(d.Stats.Added, d.Stats.Removed)
	return d, nil
}

// Empty reports whether the documents are identical.
func (d *Diff) Empty() bool { return len(d.Lines) == 0 }

// Render joins the diff lines, coloring additions, removals and hunk headers
// when colorize is set.
func (d *Diff) Render(colorize bool) string {
	if !colorize {
		return strings.Join(d.Lines, "\n")
	}
	out := make([]string, len(d.Lines))
	for i, line := range d.Lines {
		switch {
		case isAdded(line):
			out[i] = addStyle.Render(line)
		case isRemoved(line):
			out[i] = removeStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			out[i] = hunkStyle.Render(line)
		default:
			out[i] = line
		}
	}
	return strings.Join(out, "\n")
}

func isAdded(line string) bool {
	return strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++")
}

func isRemoved(line string) bool {
	return strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---")
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// splitLines keeps line terminators and guarantees the last line has one, so
// a missing final newline does not show up as a change.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
