package changes

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hbollon/go-edlib"

	"trackrename/internal/metadata"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Differ renders changes as text. Output depends only on the change, so
// rendering the same list twice gives identical bytes.
type Differ struct {
	Color bool
}

// Render writes the diff for change number index of total.
func (d Differ) Render(w io.Writer, c *ProposedChange, index, total int) {
	width := len(fmt.Sprint(total))
	header := fmt.Sprintf("%*d/%d: %s", width, index, total, c.Path())
	fmt.Fprintln(w, d.style(headerStyle, header))
	fmt.Fprintln(w, "  "+d.style(kindStyle, c.Kind.String()+":"))

	switch c.Kind {
	case KindTrash:
		fmt.Fprintf(w, "    duplicate of: %s\n", c.KeptPath)
	case KindConvert:
		o, n := d.highlight(c.OldName, c.NewName)
		fmt.Fprintf(w, "    %s\n    %s\n", o, n)
		if c.Entry.Err != nil {
			fmt.Fprintln(w, "    "+d.style(noteStyle, "unreadable: "+c.Entry.Err.Error()))
		}
		fmt.Fprintln(w, "    "+d.style(noteStyle, "the original goes to the trash"))
	default:
		if c.Kind.WritesTags() {
			old := c.OldTags
			if old == nil {
				old = &metadata.TagFields{}
			}
			d.field(w, "artist", old.Artist, c.NewTags.Artist)
			d.field(w, "title", old.Title, c.NewTags.Title)
		}
		if c.Kind.Renames() {
			o, n := d.highlight(c.OldName, c.NewName)
			fmt.Fprintf(w, "    %s\n    %s\n", o, n)
		}
	}

	if disc := c.Entry.Resolved.Discrepancy; disc != nil && c.Kind != KindTrash && c.Kind != KindConvert {
		fmt.Fprintln(w, "    "+d.style(noteStyle, "filename says: "+disc.Artist+" - "+disc.Title))
	}
	if c.Conflict != "" {
		fmt.Fprintln(w, "    "+d.style(noteStyle, "rename skipped: "+c.Conflict))
	}
}

func (d Differ) field(w io.Writer, name, old, new string) {
	if old == new {
		fmt.Fprintf(w, "    %-7s %s\n", name+":", old)
		return
	}
	o, n := d.highlight(old, new)
	fmt.Fprintf(w, "    %-7s %s\n    %-7s %s\n", name+":", o, "", n)
}

// highlight marks the runes of old and new that are not part of their
// longest common subsequence. Without color the plain strings are returned
// with "-"/"+" markers.
func (d Differ) highlight(old, new string) (string, string) {
	if !d.Color {
		return "- " + old, "+ " + new
	}
	lcs, err := edlib.LCSBacktrack(old, new)
	if err != nil {
		lcs = ""
	}
	return "- " + mark(old, lcs, removedStyle), "+ " + mark(new, lcs, addedStyle)
}

func mark(s, lcs string, style lipgloss.Style) string {
	common := []rune(lcs)
	var b, run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			b.WriteString(style.Render(run.String()))
			run.Reset()
		}
	}
	i := 0
	for _, r := range s {
		if i < len(common) && common[i] == r {
			flush()
			b.WriteRune(r)
			i++
			continue
		}
		run.WriteRune(r)
	}
	flush()
	return b.String()
}

func (d Differ) style(s lipgloss.Style, text string) string {
	if !d.Color {
		return text
	}
	return s.Render(text)
}
