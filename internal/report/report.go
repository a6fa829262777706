// Package report renders run summaries and keeps the log of files that
// could not be read.
package report

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"trackrename/internal/changes"
	"trackrename/internal/library"
)

// newTable starts a rounded table. Headers keep the case they are given.
func newTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	tw.AppendHeader(row)
	return tw
}

// countTable renders a name/count table, most common first.
func countTable(header string, counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	tw := newTable(header, "Files")
	for _, name := range names {
		tw.AppendRow(table.Row{name, counts[name]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft}})
	return tw.Render() + "\n"
}

// Summary renders the non-zero counters of r.
func Summary(r *changes.ApplyReport) string {
	counters := []struct {
		name  string
		value int
	}{
		{"Applied", r.Applied},
		{"Previewed", r.Previewed},
		{"Skipped", r.Skipped},
		{"Failed", r.Failed},
		{"Tags fixed", r.TagsFixed},
		{"Renamed", r.Renamed},
		{"Duplicates", r.Duplicates},
		{"Trashed", r.Trashed},
		{"Rename conflicts", r.Conflicts},
		{"Unreadable", r.Unreadable},
		{"Converted", r.Converted},
	}

	tw := newTable("Result", "Files")
	for _, c := range counters {
		if c.value > 0 {
			tw.AppendRow(table.Row{c.name, c.value})
		}
	}
	if tw.Length() == 0 {
		return "Nothing to do\n"
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft}})
	return tw.Render() + "\n"
}

// Failures renders one row per failed file.
func Failures(failures []changes.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	tw := newTable("File", "Reason")
	for _, f := range failures {
		tw.AppendRow(table.Row{f.Path, oneLine(f.Reason)})
	}
	return tw.Render() + "\n"
}

// TagVersions renders how many files use each tag format, most common first.
func TagVersions(entries []*library.FileEntry) string {
	counts := make(map[string]int)
	for _, e := range entries {
		if e.TagVersion != "" {
			counts[e.TagVersion]++
		}
	}
	return countTable("Tag version", counts)
}

// Extensions renders how many files have each extension.
func Extensions(entries []*library.FileEntry) string {
	counts := make(map[string]int)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Path))
		if ext == "" {
			ext = "(none)"
		}
		counts[ext]++
	}
	return countTable("Extension", counts)
}

// Tracks lists entries with their current tags and resolved names.
func Tracks(entries []*library.FileEntry, root string) string {
	if len(entries) == 0 {
		return ""
	}
	width := len(strconv.Itoa(len(entries)))
	tw := newTable("#", "Artist", "Title", "File", "Status")
	for i, e := range entries {
		artist, title := "", ""
		if e.Tag != nil {
			artist, title = e.Tag.Artist, e.Tag.Title
		}
		name := e.Path
		if rel, err := filepath.Rel(root, e.Path); err == nil {
			name = rel
		}
		tw.AppendRow(table.Row{fmt.Sprintf("%*d", width, i+1), artist, title, name, e.State.String()})
	}
	return tw.Render() + "\n"
}

// AppendFailureLog appends one "path<TAB>reason" line per failure to the
// log at path, creating it when needed.
func AppendFailureLog(path string, failures []changes.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, failure := range failures {
		b.WriteString(oneLine(failure.Path))
		b.WriteByte('\t')
		b.WriteString(oneLine(failure.Reason))
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	return f.Close()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
