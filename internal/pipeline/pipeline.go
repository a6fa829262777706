package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"trackrename/internal/changes"
	"trackrename/internal/config"
	"trackrename/internal/convert"
	"trackrename/internal/dupindex"
	"trackrename/internal/library"
	"trackrename/internal/logger"
	"trackrename/internal/metadata"
	"trackrename/internal/prompt"
	"trackrename/internal/report"
	"trackrename/internal/runlock"
	"trackrename/pkg/utils"
)

// Hooks report run progress. OnProgress and OnWarning are called from the
// scanner's worker goroutines and must be safe for concurrent use.
type Hooks struct {
	OnScanStart func(total int)
	OnScanDone  func()
	OnProgress  func()
	OnWarning   func(msg string)
}

// Deps are the collaborators a run talks to.
type Deps struct {
	Store     metadata.TagStore
	Prompter  prompt.Prompter
	Trash     changes.TrashFunc
	Converter *convert.Converter
	Out       io.Writer
	Color     bool
}

// Result is everything a run produced.
type Result struct {
	Report      *changes.ApplyReport
	Entries     []*library.FileEntry
	Groups      []*dupindex.Group
	Suggestions []dupindex.Suggestion
}

// Mode picks the apply mode for cfg.
func Mode(cfg config.Config) changes.Mode {
	switch {
	case cfg.PrintOnly:
		return changes.Preview
	case cfg.Force:
		return changes.Force
	}
	return changes.Interactive
}

// Run executes one pass over the library: scan → index duplicates → plan →
// apply. Every mutation, conversions included, goes through the applier.
// Per-file problems end up in the report; only setup failures and
// cancellation during the scan are returned as errors.
func Run(ctx context.Context, cfg config.Config, log *logger.Logger, deps Deps, hooks Hooks) (*Result, error) {
	mode := Mode(cfg)

	if mode != changes.Preview {
		lock, err := runlock.Acquire(cfg.Root)
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	convertFailed := cfg.ConvertFailed && deps.Converter != nil
	if convertFailed && mode != changes.Preview {
		if err := deps.Converter.Available(); err != nil {
			return nil, fmt.Errorf("convert failed requested but %w", err)
		}
	}

	idx := dupindex.New()
	idx.OnError = func(e *library.FileEntry, err error) {
		warn(log, hooks, fmt.Sprintf("Cannot fingerprint %s: %v", e.Path, err))
	}

	scanner := library.New(cfg, deps.Store, log)
	scanner.OnProgress = hooks.OnProgress
	if cfg.FindDuplicates {
		scanner.OnEntry = func(e *library.FileEntry) {
			if g, dup := idx.Insert(e); dup {
				log.Debug("Duplicate content: %s (%d copies)", e.Path, len(g.Members))
			}
		}
	}

	total := library.CountFiles(cfg.Root, cfg.Excluded())
	if hooks.OnScanStart != nil {
		hooks.OnScanStart(total)
	}
	log.Debug("Scanning %s (%d audio files, %d workers)", cfg.Root, total, cfg.Jobs)

	entries, err := scanner.Scan(ctx)
	if hooks.OnScanDone != nil {
		hooks.OnScanDone()
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Entries: entries}
	if len(entries) == 0 {
		log.Info("No audio files found in %s (looked for %s)", cfg.Root, strings.Join(utils.AudioExtensions(), " "))
		result.Report = &changes.ApplyReport{}
		return result, nil
	}

	if cfg.FindDuplicates {
		result.Groups = idx.Groups()
		for _, g := range result.Groups {
			paths := make([]string, len(g.Members))
			for i, m := range g.Members {
				paths[i] = m.Path
			}
			log.Info("Duplicate files: %s", strings.Join(paths, ", "))
		}
	}
	result.Suggestions = dupindex.Similar(entries, result.Groups, cfg.SimilarityThreshold)
	for _, s := range result.Suggestions {
		log.Info("Possible duplicate (%.2f): %s <> %s", s.Score, s.A.Path, s.B.Path)
	}

	planned, conflicts := changes.Plan(entries, result.Groups)
	if convertFailed {
		planned = append(planned, changes.PlanConversions(entries, convert.Target)...)
	}
	conflictCount := countConflicts(log, hooks, planned, conflicts)

	applier := &changes.Applier{
		Store:    deps.Store,
		Trash:    deps.Trash,
		Prompter: deps.Prompter,
		Out:      deps.Out,
		Differ:   changes.Differ{Color: deps.Color},
		Logger:   log,
	}
	if convertFailed {
		applier.Convert = deps.Converter.Convert
	}
	if len(planned) > 0 {
		log.Info("%d changes (%s)", len(planned), mode)
	}
	rep := applier.Apply(ctx, planned, mode)

	// converted copies are read and classified like any other file
	if copies := convertedPaths(planned); len(copies) > 0 && !rep.Stopped && ctx.Err() == nil {
		scanner.OnEntry = nil
		scanner.OnProgress = nil
		fresh := make([]*library.FileEntry, 0, len(copies))
		for _, path := range copies {
			fresh = append(fresh, scanner.Process(path))
		}
		result.Entries = append(result.Entries, fresh...)

		followUp, more := changes.Plan(fresh, nil)
		conflictCount += countConflicts(log, hooks, followUp, more)
		if len(followUp) > 0 {
			log.Info("%d changes for converted files (%s)", len(followUp), mode)
		}
		rep.Add(applier.Apply(ctx, followUp, mode))
	}

	var unresolved []changes.Failure
	for _, e := range result.Entries {
		if e.Err == nil || e.State == library.Applied {
			continue
		}
		unresolved = append(unresolved, changes.Failure{Path: e.Path, Reason: e.Err.Error()})
		log.Warn("Unreadable: %s: %v", e.Path, e.Err)
	}

	rep.Unreadable = len(unresolved)
	rep.Unresolved = unresolved
	rep.Conflicts = conflictCount
	for _, g := range result.Groups {
		rep.Duplicates += len(g.Members) - 1
	}
	result.Report = rep

	if cfg.LogFailures && len(unresolved) > 0 && mode != changes.Preview {
		path := cfg.FailureLog()
		if err := report.AppendFailureLog(path, unresolved); err != nil {
			warn(log, hooks, fmt.Sprintf("Failed to write failure log: %v", err))
		} else {
			log.Info("Logged %d unreadable files to %s", len(unresolved), path)
		}
	}

	return result, nil
}

// countConflicts logs dropped renames and returns how many there were.
func countConflicts(log *logger.Logger, hooks Hooks, planned, dropped []*changes.ProposedChange) int {
	n := len(dropped)
	for _, c := range dropped {
		warn(log, hooks, fmt.Sprintf("Cannot rename %s to %s: %s", c.OldName, c.NewName, c.Conflict))
	}
	for _, c := range planned {
		if c.Conflict != "" {
			n++
		}
	}
	return n
}

func convertedPaths(planned []*changes.ProposedChange) []string {
	var paths []string
	for _, c := range planned {
		if c.Kind == changes.KindConvert && c.Converted != "" {
			paths = append(paths, c.Converted)
		}
	}
	return paths
}

// List scans the library without planning anything.
func List(ctx context.Context, cfg config.Config, log *logger.Logger, store metadata.TagStore) ([]*library.FileEntry, error) {
	return library.New(cfg, store, log).Scan(ctx)
}

func warn(log *logger.Logger, hooks Hooks, msg string) {
	log.Warn("%s", msg)
	if hooks.OnWarning != nil {
		hooks.OnWarning(msg)
	}
}
