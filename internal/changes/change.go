// Package changes plans, previews and applies tag and filename changes.
package changes

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"trackrename/internal/dupindex"
	"trackrename/internal/library"
	"trackrename/internal/metadata"
)

// ErrFilesystem marks a rename, write or trash failure.
var ErrFilesystem = errors.New("filesystem error")

// Kind is what a ProposedChange does to its file.
type Kind int

const (
	KindNone Kind = iota
	KindRenameOnly
	KindTagOnly
	KindBoth
	KindTrash
	KindConvert
)

func (k Kind) String() string {
	switch k {
	case KindRenameOnly:
		return "rename"
	case KindTagOnly:
		return "tag fix"
	case KindBoth:
		return "tag fix + rename"
	case KindTrash:
		return "move to trash"
	case KindConvert:
		return "convert to AIFF"
	}
	return "none"
}

// WritesTags reports whether the change writes tags.
func (k Kind) WritesTags() bool {
	return k == KindTagOnly || k == KindBoth
}

// Renames reports whether the change renames the file.
func (k Kind) Renames() bool {
	return k == KindRenameOnly || k == KindBoth
}

// ProposedChange is one pending mutation of one file.
type ProposedChange struct {
	Entry   *library.FileEntry
	OldName string
	NewName string
	OldTags *metadata.TagFields
	NewTags *metadata.TagFields
	Kind    Kind

	// Conflict explains why a planned rename was dropped.
	Conflict string
	// KeptPath is the surviving copy for a KindTrash change.
	KeptPath string
	// Converted is the new file written by an applied KindConvert change.
	Converted string
}

// Path returns the current location of the file.
func (c *ProposedChange) Path() string {
	return c.Entry.Path
}

// NewPath returns the location after a rename.
func (c *ProposedChange) NewPath() string {
	return filepath.Join(c.Entry.Dir(), c.NewName)
}

// Plan turns classified entries and confirmed duplicate groups into a
// change list in the order of entries. Entries that need nothing are left
// out. Every returned change's entry is moved to Pending.
//
// A rename whose target already exists on disk, or is claimed by an
// earlier change in the list, is dropped and recorded in Conflict. The tag
// part of such a change is kept. Changes left with nothing to do are
// returned separately in conflicts and their entries stay as they are.
func Plan(entries []*library.FileEntry, groups []*dupindex.Group) (out, conflicts []*ProposedChange) {
	discard := make(map[*library.FileEntry]string)
	for _, g := range groups {
		keep, others := dupindex.Resolve(g)
		for _, e := range others {
			discard[e] = keep.Path
		}
	}

	claimed := make(map[string]string)
	for _, e := range entries {
		if kept, ok := discard[e]; ok {
			if e.Transition(library.Pending) == nil {
				out = append(out, &ProposedChange{
					Entry:    e,
					OldName:  e.Name(),
					NewName:  e.Name(),
					OldTags:  e.Tag,
					NewTags:  e.Tag,
					Kind:     KindTrash,
					KeptPath: kept,
				})
			}
			continue
		}

		c := proposeFor(e)
		if c == nil {
			continue
		}
		if c.Kind.Renames() {
			target := c.NewPath()
			key := strings.ToLower(target)
			switch {
			case claimed[key] != "":
				c.Conflict = "target claimed by " + filepath.Base(claimed[key])
			case targetTaken(e.Path, target):
				c.Conflict = "target already exists"
			default:
				claimed[key] = e.Path
			}
			if c.Conflict != "" {
				c.NewName = c.OldName
				if c.Kind == KindBoth {
					c.Kind = KindTagOnly
				} else {
					c.Kind = KindNone
				}
			}
		}
		if c.Kind == KindNone {
			conflicts = append(conflicts, c)
			continue
		}
		if err := e.Transition(library.Pending); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, conflicts
}

// PlanConversions proposes an AIFF copy for every unreadable MP3 whose tags
// could not be parsed. Entries already claimed by another change are
// skipped. The new name is only a display hint; the converter picks the
// real target.
func PlanConversions(entries []*library.FileEntry, target func(string) string) []*ProposedChange {
	var out []*ProposedChange
	for _, e := range entries {
		if e.State != library.Unreadable || e.Ext != ".mp3" || !errors.Is(e.Err, metadata.ErrTagRead) {
			continue
		}
		if e.Transition(library.Pending) != nil {
			continue
		}
		out = append(out, &ProposedChange{
			Entry:   e,
			OldName: e.Name(),
			NewName: filepath.Base(target(e.Path)),
			Kind:    KindConvert,
		})
	}
	return out
}

func proposeFor(e *library.FileEntry) *ProposedChange {
	var kind Kind
	switch e.State {
	case library.NeedsRename:
		kind = KindRenameOnly
	case library.NeedsTagFix:
		kind = KindTagOnly
	case library.NeedsBoth:
		kind = KindBoth
	default:
		return nil
	}

	fields := e.Resolved.Fields()
	c := &ProposedChange{
		Entry:   e,
		OldName: e.Name(),
		NewName: e.Name(),
		OldTags: e.Tag,
		NewTags: e.Tag,
		Kind:    kind,
	}
	if kind.Renames() {
		c.NewName = e.TargetName()
	}
	if kind.WritesTags() {
		c.NewTags = &fields
	}
	return c
}

// targetTaken reports whether target exists and is a different file from
// src. A case-only rename on a case-insensitive filesystem sees src itself.
func targetTaken(src, target string) bool {
	ti, err := os.Stat(target)
	if err != nil {
		return false
	}
	si, err := os.Stat(src)
	if err != nil {
		return true
	}
	return !os.SameFile(si, ti)
}
