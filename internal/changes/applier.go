package changes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"trackrename/internal/library"
	"trackrename/internal/logger"
	"trackrename/internal/metadata"
	"trackrename/internal/prompt"
	"trackrename/pkg/utils"
)

// Mode selects how Apply treats the change list.
type Mode int

const (
	// Preview prints every diff and changes nothing.
	Preview Mode = iota
	// Force applies every change without asking.
	Force
	// Interactive asks before each change.
	Interactive
)

func (m Mode) String() string {
	switch m {
	case Preview:
		return "preview"
	case Force:
		return "force"
	case Interactive:
		return "interactive"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// TrashFunc moves a file somewhere recoverable and returns its new path.
type TrashFunc func(path string) (string, error)

// ConvertFunc writes a re-encoded copy of path and returns the copy's path.
type ConvertFunc func(ctx context.Context, path string) (string, error)

// Applier executes planned changes one at a time.
type Applier struct {
	Store    metadata.TagStore
	Trash    TrashFunc
	Convert  ConvertFunc
	Prompter prompt.Prompter
	Out      io.Writer
	Differ   Differ
	Logger   *logger.Logger
}

// Apply runs changes in order. Each change is all-or-nothing: tags are
// written first, then the file is renamed, and a failed rename restores
// the previous tags. Cancellation takes effect between changes; the
// remaining changes are counted as Skipped.
func (a *Applier) Apply(ctx context.Context, changes []*ProposedChange, mode Mode) *ApplyReport {
	report := &ApplyReport{}
	acceptAll := mode == Force
	stopped := false

	for i, c := range changes {
		if !stopped && ctx.Err() != nil {
			a.Logger.Warn("Interrupted, skipping %d remaining changes", len(changes)-i)
			stopped = true
			report.Stopped = true
		}
		if stopped {
			a.skip(report, c)
			continue
		}

		a.Differ.Render(a.Out, c, i+1, len(changes))

		if mode == Preview {
			report.Previewed++
			continue
		}

		if !acceptAll {
			d, err := a.Prompter.Prompt(ctx, prompt.Request{
				Index: i + 1,
				Total: len(changes),
				Path:  c.Path(),
				Kind:  c.Kind.String(),
			})
			if ctx.Err() != nil {
				// interrupted while waiting for an answer
				d = prompt.Quit
			} else if err != nil {
				a.Logger.Warn("Prompt failed: %v", err)
				d = prompt.Quit
			}
			switch d {
			case prompt.Reject:
				a.skip(report, c)
				continue
			case prompt.Quit:
				stopped = true
				report.Stopped = true
				a.skip(report, c)
				continue
			case prompt.AcceptAll:
				acceptAll = true
			}
		}

		if err := a.applyOne(ctx, c); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{Path: c.Path(), Reason: err.Error()})
			a.transition(c.Entry, library.Failed)
			a.Logger.Error("%s: %v", c.Path(), err)
			continue
		}

		report.Applied++
		a.transition(c.Entry, library.Applied)
		switch c.Kind {
		case KindTrash:
			report.Trashed++
		case KindConvert:
			report.Converted++
		default:
			if c.Kind.WritesTags() {
				report.TagsFixed++
			}
			if c.Kind.Renames() {
				report.Renamed++
			}
		}
	}
	return report
}

func (a *Applier) skip(report *ApplyReport, c *ProposedChange) {
	report.Skipped++
	a.transition(c.Entry, library.Skipped)
}

func (a *Applier) transition(e *library.FileEntry, next library.State) {
	if err := e.Transition(next); err != nil {
		a.Logger.Debug("%v", err)
	}
}

func (a *Applier) applyOne(ctx context.Context, c *ProposedChange) error {
	e := c.Entry

	if c.Kind == KindConvert {
		return a.convert(ctx, c)
	}

	if c.Kind == KindTrash {
		dst, err := a.Trash(e.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
		a.Logger.Debug("Trashed %s -> %s", e.Path, dst)
		return nil
	}

	wroteTags := false
	if c.Kind.WritesTags() {
		if err := a.Store.WriteTags(e.Path, *c.NewTags); err != nil {
			return err
		}
		wroteTags = true
	}

	if c.Kind.Renames() {
		newPath := c.NewPath()
		if err := rename(e.Path, newPath); err != nil {
			err = fmt.Errorf("%w: %w", ErrFilesystem, err)
			if wroteTags {
				if rerr := a.restoreTags(c); rerr != nil {
					return errors.Join(err, fmt.Errorf("restoring tags: %w", rerr))
				}
			}
			return err
		}
		e.Rename(newPath)
	}

	if wroteTags {
		e.Tag = c.NewTags
	}
	return nil
}

// convert writes the re-encoded copy, then trashes the original. A failed
// trash removes the copy again so the file is left as it was.
func (a *Applier) convert(ctx context.Context, c *ProposedChange) error {
	if a.Convert == nil {
		return errors.New("no converter configured")
	}
	dst, err := a.Convert(ctx, c.Path())
	if err != nil {
		return err
	}
	if _, err := a.Trash(c.Path()); err != nil {
		err = fmt.Errorf("%w: %w", ErrFilesystem, err)
		if rerr := os.Remove(dst); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	c.Converted = dst
	a.Logger.Debug("Converted %s -> %s", c.Path(), dst)
	return nil
}

func (a *Applier) restoreTags(c *ProposedChange) error {
	old := metadata.TagFields{}
	if c.OldTags != nil {
		old = *c.OldTags
	}
	return a.Store.WriteTags(c.Entry.Path, old)
}

// rename moves src to dst without ever replacing an existing file. A
// change of letter case only goes through a temporary name so it also
// works on case-insensitive filesystems.
func rename(src, dst string) error {
	if src == dst {
		return nil
	}
	if !strings.EqualFold(src, dst) {
		return utils.MoveFile(src, dst)
	}

	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".tmp")
	if err := os.Rename(src, tmp); err != nil {
		return fmt.Errorf("failed to move %s aside: %w", src, err)
	}
	if err := utils.MoveFile(tmp, dst); err != nil {
		if rerr := os.Rename(tmp, src); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}
