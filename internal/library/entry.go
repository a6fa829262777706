package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"trackrename/internal/metadata"
)

// FileEntry is one discovered audio file and everything learned about it
// during a run. Entries are shared by pointer and must not be copied.
type FileEntry struct {
	Path       string
	Ext        string
	Size       int64
	Tag        *metadata.TagFields
	FromName   *metadata.TagFields
	Resolved   metadata.TrackMetadata
	State      State
	Err        error
	TagVersion string

	fpOnce      sync.Once
	fingerprint string
	fpErr       error
}

// NewEntry creates a Discovered entry for path.
func NewEntry(path string) *FileEntry {
	return &FileEntry{
		Path:  path,
		Ext:   strings.ToLower(filepath.Ext(path)),
		State: Discovered,
	}
}

// Name returns the current base filename.
func (e *FileEntry) Name() string {
	return filepath.Base(e.Path)
}

// Dir returns the directory holding the file.
func (e *FileEntry) Dir() string {
	return filepath.Dir(e.Path)
}

// TargetName returns the canonical filename for the resolved metadata.
func (e *FileEntry) TargetName() string {
	return metadata.Filename(e.Resolved, e.Ext)
}

// Transition moves the entry to next, rejecting moves the state machine
// does not allow.
func (e *FileEntry) Transition(next State) error {
	if !e.State.CanTransition(next) {
		return fmt.Errorf("invalid transition %s -> %s for %s", e.State, next, e.Path)
	}
	e.State = next
	return nil
}

// Rename records a committed rename.
func (e *FileEntry) Rename(newPath string) {
	e.Path = newPath
}

// Fingerprint returns the SHA-256 of the full file content. It is computed
// at most once per entry and is safe to call from several goroutines.
func (e *FileEntry) Fingerprint() (string, error) {
	e.fpOnce.Do(func() {
		e.fingerprint, e.fpErr = HashFile(e.Path)
	})
	return e.fingerprint, e.fpErr
}

// HashFile streams path through SHA-256.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Classify decides which changes an entry with resolved metadata needs.
func Classify(e *FileEntry, tagsOnly, renameOnly bool) State {
	fields := e.Resolved.Fields()
	tagFix := !renameOnly && !e.Tag.Equal(&fields)
	rename := !tagsOnly && e.Name() != e.TargetName()

	switch {
	case tagFix && rename:
		return NeedsBoth
	case tagFix:
		return NeedsTagFix
	case rename:
		return NeedsRename
	}
	return NeedsNothing
}

// SortEntries orders entries by full path, or by filename then path when
// byName is set.
func SortEntries(entries []*FileEntry, byName bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if byName {
			a, b := strings.ToLower(entries[i].Name()), strings.ToLower(entries[j].Name())
			if a != b {
				return a < b
			}
		}
		return entries[i].Path < entries[j].Path
	})
}
