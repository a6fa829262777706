package library

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"trackrename/internal/config"
	"trackrename/internal/logger"
	"trackrename/internal/metadata"
	"trackrename/pkg/utils"
)

// Scanner walks a library root and classifies every audio file it finds.
type Scanner struct {
	Config     config.Config
	Store      metadata.TagStore
	Normalizer *metadata.Normalizer
	Logger     *logger.Logger

	// OnEntry runs on the worker goroutine once an entry is classified.
	OnEntry func(*FileEntry)
	// OnProgress runs after each file, classified or not.
	OnProgress func()
}

// New creates a Scanner for cfg.
func New(cfg config.Config, store metadata.TagStore, log *logger.Logger) *Scanner {
	return &Scanner{
		Config:     cfg,
		Store:      store,
		Normalizer: metadata.NewNormalizer(cfg.AcronymMaxLength),
		Logger:     log,
	}
}

// Walk lazily yields the audio files under root in lexical order. Hidden
// directories below root and excluded names are skipped. A name is
// excluded when the filename or its stem is in exclude.
func Walk(root string, exclude map[string]bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(path, err) {
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			name := d.Name()
			if d.IsDir() {
				if path != root && strings.HasPrefix(name, ".") {
					return fs.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() || !utils.IsAudioFile(name) {
				return nil
			}
			if exclude[name] || exclude[strings.TrimSuffix(name, filepath.Ext(name))] {
				return nil
			}

			abs, absErr := filepath.Abs(path)
			if absErr != nil {
				abs = path
			}
			if !yield(abs, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(root, err)
		}
	}
}

// CountFiles returns how many files Walk would yield.
func CountFiles(root string, exclude map[string]bool) int {
	n := 0
	for _, err := range Walk(root, exclude) {
		if err == nil {
			n++
		}
	}
	return n
}

// Entries re-walks the tree on every call and yields classified entries in
// completion order. Tag reads run on a pool of Config.Jobs workers.
func (s *Scanner) Entries(ctx context.Context) iter.Seq[*FileEntry] {
	return func(yield func(*FileEntry) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make(chan *FileEntry)
		go func() {
			defer close(results)

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(s.Config.Jobs, 1))

			for path, err := range Walk(s.Config.Root, s.Config.Excluded()) {
				if gctx.Err() != nil {
					break
				}
				if err != nil {
					s.Logger.Warn("Cannot read %s: %v", path, err)
					continue
				}
				g.Go(func() error {
					e := s.Process(path)
					select {
					case results <- e:
					case <-gctx.Done():
					}
					return nil
				})
			}
			g.Wait()
		}()

		for e := range results {
			if !yield(e) {
				cancel()
				for range results {
				}
				return
			}
		}
	}
}

// Scan collects all entries under the root and sorts them deterministically.
// A cancelled context aborts the scan; nothing on disk is touched either way.
func (s *Scanner) Scan(ctx context.Context) ([]*FileEntry, error) {
	info, err := os.Stat(s.Config.Root)
	if err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", s.Config.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot scan %s: not a directory", s.Config.Root)
	}

	var entries []*FileEntry
	for e := range s.Entries(ctx) {
		entries = append(entries, e)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	SortEntries(entries, s.Config.Sort)
	return entries, nil
}

// Process reads, reconciles and classifies a single file. Unreadable
// entries are handed to OnEntry too, since their content can still be a
// duplicate.
func (s *Scanner) Process(path string) *FileEntry {
	e := NewEntry(path)
	defer func() {
		if s.OnEntry != nil {
			s.OnEntry(e)
		}
		if s.OnProgress != nil {
			s.OnProgress()
		}
	}()

	if info, err := os.Stat(path); err == nil {
		e.Size = info.Size()
	}

	tag, err := s.Store.ReadTags(path)
	if err != nil {
		s.transition(e, TagUnreadable)
		s.transition(e, Unreadable)
		e.Err = err
		s.Logger.Debug("Unreadable %s: %v", path, err)
		return e
	}
	s.transition(e, TagOk)
	e.Tag = tag
	e.FromName = s.Normalizer.ParseFilename(e.Name())

	resolved, err := s.Normalizer.Reconcile(tag, e.Name())
	if err != nil {
		s.transition(e, Unreadable)
		e.Err = err
		s.Logger.Debug("Unresolved %s: %v", path, err)
		return e
	}
	e.Resolved = resolved
	s.transition(e, Classify(e, s.Config.TagsOnly, s.Config.RenameOnly))

	if s.Config.Verbose {
		if vr, ok := s.Store.(metadata.VersionReader); ok {
			e.TagVersion = vr.TagVersion(path)
		}
	}
	return e
}

func (s *Scanner) transition(e *FileEntry, next State) {
	if err := e.Transition(next); err != nil {
		s.Logger.Debug("%v", err)
	}
}
