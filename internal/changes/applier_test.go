package changes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"trackrename/internal/config"
	"trackrename/internal/dupindex"
	"trackrename/internal/library"
	"trackrename/internal/logger"
	"trackrename/internal/metadata"
	"trackrename/internal/prompt"
)

// memStore keeps tags in memory keyed by path.
type memStore struct {
	mu        sync.Mutex
	tags      map[string]metadata.TagFields
	failWrite map[string]bool
	writes    int
}

func newMemStore() *memStore {
	return &memStore{tags: map[string]metadata.TagFields{}, failWrite: map[string]bool{}}
}

func (m *memStore) ReadTags(path string) (*metadata.TagFields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[path]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memStore) WriteTags(path string, fields metadata.TagFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[filepath.Base(path)] {
		return fmt.Errorf("%w: %s: disk full", metadata.ErrTagWrite, path)
	}
	m.writes++
	m.tags[path] = fields
	return nil
}

type fixture struct {
	dir   string
	store *memStore
	log   *logger.Logger
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		dir:   t.TempDir(),
		store: newMemStore(),
		log:   logger.NewWithWriter(false, io.Discard, io.Discard),
	}
}

// add creates a file with tags and returns its classified entry.
func (f *fixture) add(t *testing.T, name, artist, title string) *library.FileEntry {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("audio:"+name), 0644); err != nil {
		t.Fatal(err)
	}
	if artist != "" || title != "" {
		f.store.tags[path] = metadata.TagFields{Artist: artist, Title: title}
	}
	return f.classify(t, path)
}

func (f *fixture) classify(t *testing.T, path string) *library.FileEntry {
	t.Helper()
	e := library.NewEntry(path)
	tag, _ := f.store.ReadTags(path)
	e.Transition(library.TagOk)
	e.Tag = tag
	resolved, err := metadata.Reconcile(tag, e.Name())
	if err != nil {
		t.Fatalf("reconcile %s: %v", path, err)
	}
	e.Resolved = resolved
	if err := e.Transition(library.Classify(e, false, false)); err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) applier(p prompt.Prompter, out io.Writer) *Applier {
	return &Applier{
		Store:    f.store,
		Prompter: p,
		Out:      out,
		Logger:   f.log,
		Trash: func(path string) (string, error) {
			return "", errors.New("no trash in this test")
		},
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	ok := f.add(t, "Artist - Title.mp3", "Artist", "Title")
	rename := f.add(t, "b.mp3", "Artist", "Second")
	tags := f.add(t, "Artist - Third.mp3", "artist", "third")
	both := f.add(t, "a.mp3", "other", "song")

	changes, conflicts := Plan([]*library.FileEntry{ok, rename, tags, both}, nil)
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts %v", conflicts)
	}
	if len(changes) != 3 {
		t.Fatalf("Plan() = %d changes, want 3", len(changes))
	}

	want := []struct {
		name string
		kind Kind
		new  string
	}{
		{"b.mp3", KindRenameOnly, "Artist - Second.mp3"},
		{"Artist - Third.mp3", KindTagOnly, "Artist - Third.mp3"},
		{"a.mp3", KindBoth, "Other - Song.mp3"},
	}
	for i, w := range want {
		c := changes[i]
		if c.OldName != w.name || c.Kind != w.kind || c.NewName != w.new {
			t.Errorf("change %d = %s %s -> %s, want %s %s -> %s", i, c.Kind, c.OldName, c.NewName, w.kind, w.name, w.new)
		}
		if c.Entry.State != library.Pending {
			t.Errorf("change %d entry state = %s, want pending", i, c.Entry.State)
		}
	}
	if ok.State != library.NeedsNothing {
		t.Errorf("unchanged entry moved to %s", ok.State)
	}
}

func TestPlanKeepsEntryOrder(t *testing.T) {
	f := newFixture(t)
	z := f.add(t, "z.mp3", "Z", "Last")
	a := f.add(t, "a.mp3", "A", "First")

	for _, order := range [][]*library.FileEntry{{z, a}, {a, z}} {
		for _, e := range order {
			e.State = library.NeedsRename
		}
		changes, _ := Plan(order, nil)
		if len(changes) != 2 || changes[0].Entry != order[0] || changes[1].Entry != order[1] {
			t.Errorf("Plan(%s, %s) reordered the changes", order[0].Name(), order[1].Name())
		}
	}
}

func TestPlanConflicts(t *testing.T) {
	f := newFixture(t)
	existing := filepath.Join(f.dir, "Taken - Name.mp3")
	os.WriteFile(existing, []byte("other"), 0644)

	onDisk := f.add(t, "1.mp3", "taken", "name")
	first := f.add(t, "2.mp3", "Same", "Target")
	second := f.add(t, "3.mp3", "Same", "Target")

	changes, conflicts := Plan([]*library.FileEntry{onDisk, first, second}, nil)

	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].Kind != KindTagOnly || changes[0].Conflict != "target already exists" {
		t.Errorf("on-disk conflict = %s %q", changes[0].Kind, changes[0].Conflict)
	}
	if changes[1].Entry != first || changes[1].Kind != KindRenameOnly {
		t.Errorf("first claimant should keep its rename")
	}
	if len(conflicts) != 1 || conflicts[0].Entry != second {
		t.Fatalf("conflicts = %v", conflicts)
	}
	if !strings.Contains(conflicts[0].Conflict, "2.mp3") {
		t.Errorf("conflict reason %q should name the claimant", conflicts[0].Conflict)
	}
	if second.State == library.Pending {
		t.Error("conflicting entry should not be pending")
	}
}

func TestPlanTrashesDuplicates(t *testing.T) {
	f := newFixture(t)
	keep := f.add(t, "Artist - Title.mp3", "Artist", "Title")
	dup := f.add(t, "copy.mp3", "Artist", "Title")

	g := &dupindex.Group{Fingerprint: "x", Members: []*library.FileEntry{keep, dup}}
	changes, _ := Plan([]*library.FileEntry{keep, dup}, []*dupindex.Group{g})

	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(changes))
	}
	if changes[0].Kind != KindTrash || changes[0].Entry != dup || changes[0].KeptPath != keep.Path {
		t.Errorf("trash change = %+v", changes[0])
	}
}

func TestApplyForce(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "a.mp3", "other", "song")
	changes, _ := Plan([]*library.FileEntry{e}, nil)
	oldPath := e.Path

	report := f.applier(nil, io.Discard).Apply(context.Background(), changes, Force)

	if report.Applied != 1 || report.TagsFixed != 1 || report.Renamed != 1 || report.ExitCode() != 0 {
		t.Errorf("report = %+v", report)
	}
	newPath := filepath.Join(f.dir, "Other - Song.mp3")
	if !exists(newPath) || exists(oldPath) {
		t.Error("file was not renamed")
	}
	if e.Path != newPath || e.State != library.Applied {
		t.Errorf("entry = %s %s", e.Path, e.State)
	}
	if got := f.store.tags[oldPath]; got.Artist != "Other" || got.Title != "Song" {
		t.Errorf("tags written = %+v", got)
	}
}

func TestApplyBothTagWriteFailureLeavesFileUntouched(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "a.mp3", "other", "song")
	f.store.failWrite["a.mp3"] = true
	before := f.store.tags[e.Path]

	changes, _ := Plan([]*library.FileEntry{e}, nil)
	report := f.applier(nil, io.Discard).Apply(context.Background(), changes, Force)

	if report.Failed != 1 || report.ExitCode() != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Failures[0].Reason, metadata.ErrTagWrite.Error()) {
		t.Errorf("failure reason = %q", report.Failures[0].Reason)
	}
	if !exists(filepath.Join(f.dir, "a.mp3")) || exists(filepath.Join(f.dir, "Other - Song.mp3")) {
		t.Error("file was renamed despite the failed tag write")
	}
	if f.store.tags[e.Path] != before {
		t.Error("tags changed despite the failed tag write")
	}
	if e.State != library.Failed {
		t.Errorf("state = %s, want failed", e.State)
	}

	// a fresh scan proposes the same change again
	cfg := config.DefaultConfig()
	cfg.Root = f.dir
	entries, err := library.New(cfg, f.store, f.log).Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	again, _ := Plan(entries, nil)
	if len(again) != 1 || again[0].Kind != KindBoth || again[0].NewName != changes[0].NewName {
		t.Errorf("re-scan plan = %+v", again)
	}
	if again[0].Entry.State != library.Pending {
		t.Errorf("re-scan state = %s", again[0].Entry.State)
	}
}

func TestApplyRenameFailureRestoresTags(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "a.mp3", "other", "song")
	changes, _ := Plan([]*library.FileEntry{e}, nil)

	// target appears after planning
	os.WriteFile(filepath.Join(f.dir, "Other - Song.mp3"), []byte("late"), 0644)

	report := f.applier(nil, io.Discard).Apply(context.Background(), changes, Force)
	if report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Failures[0].Reason, ErrFilesystem.Error()) {
		t.Errorf("reason = %q", report.Failures[0].Reason)
	}
	if got := f.store.tags[e.Path]; got.Artist != "other" || got.Title != "song" {
		t.Errorf("tags not restored: %+v", got)
	}
	if data, _ := os.ReadFile(filepath.Join(f.dir, "Other - Song.mp3")); string(data) != "late" {
		t.Error("existing file was overwritten")
	}
}

func TestApplyCaseOnlyRename(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "artist - title.mp3", "Artist", "Title")
	changes, _ := Plan([]*library.FileEntry{e}, nil)
	if len(changes) != 1 || changes[0].Kind != KindRenameOnly {
		t.Fatalf("changes = %+v", changes)
	}

	report := f.applier(nil, io.Discard).Apply(context.Background(), changes, Force)
	if report.Applied != 1 {
		t.Fatalf("report = %+v", report)
	}
	names, _ := os.ReadDir(f.dir)
	if len(names) != 1 || names[0].Name() != "Artist - Title.mp3" {
		t.Errorf("directory = %v", names)
	}
}

func TestPreviewTwiceIsIdenticalAndMutatesNothing(t *testing.T) {
	f := newFixture(t)
	entries := []*library.FileEntry{
		f.add(t, "a.mp3", "other", "song"),
		f.add(t, "b.mp3", "Artist", "Title"),
		f.add(t, "Artist - Third.mp3", "artist", "third"),
	}
	changes, _ := Plan(entries, nil)

	run := func() string {
		var buf bytes.Buffer
		report := f.applier(nil, &buf).Apply(context.Background(), changes, Preview)
		if report.Previewed != 3 || report.Applied != 0 {
			t.Errorf("report = %+v", report)
		}
		return buf.String()
	}
	first, second := run(), run()

	if first != second {
		t.Errorf("preview output differs:\n%s\n---\n%s", first, second)
	}
	if !strings.Contains(first, "+ Other - Song.mp3") {
		t.Errorf("preview missing rename diff:\n%s", first)
	}
	if f.store.writes != 0 {
		t.Errorf("preview wrote tags %d times", f.store.writes)
	}
	for _, name := range []string{"a.mp3", "b.mp3", "Artist - Third.mp3"} {
		if !exists(filepath.Join(f.dir, name)) {
			t.Errorf("%s was moved", name)
		}
	}
}

func TestInteractiveRejectIsolated(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.mp3", "A", "One")
	b := f.add(t, "b.mp3", "B", "Two")
	c := f.add(t, "c.mp3", "C", "Three")
	changes, _ := Plan([]*library.FileEntry{a, b, c}, nil)

	p := prompt.NewScripted(prompt.Accept, prompt.Reject, prompt.Accept)
	report := f.applier(p, io.Discard).Apply(context.Background(), changes, Interactive)

	if report.Applied != 2 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !exists(filepath.Join(f.dir, "b.mp3")) || exists(filepath.Join(f.dir, "B - Two.mp3")) {
		t.Error("rejected change touched b.mp3")
	}
	if !exists(filepath.Join(f.dir, "A - One.mp3")) || !exists(filepath.Join(f.dir, "C - Three.mp3")) {
		t.Error("accepted changes were not applied")
	}
	if b.State != library.Skipped {
		t.Errorf("b state = %s", b.State)
	}
}

func TestInteractiveAcceptAllAndQuit(t *testing.T) {
	f := newFixture(t)
	var entries []*library.FileEntry
	for _, n := range []string{"a", "b", "c"} {
		entries = append(entries, f.add(t, n+".mp3", "X", strings.ToUpper(n)))
	}
	changes, _ := Plan(entries, nil)
	p := prompt.NewScripted(prompt.AcceptAll)
	report := f.applier(p, io.Discard).Apply(context.Background(), changes, Interactive)
	if report.Applied != 3 || len(p.Asked()) != 1 {
		t.Errorf("accept all: report = %+v, asked = %d", report, len(p.Asked()))
	}

	f = newFixture(t)
	entries = nil
	for _, n := range []string{"a", "b", "c"} {
		entries = append(entries, f.add(t, n+".mp3", "X", strings.ToUpper(n)))
	}
	changes, _ = Plan(entries, nil)
	p = prompt.NewScripted(prompt.Accept, prompt.Quit)
	report = f.applier(p, io.Discard).Apply(context.Background(), changes, Interactive)
	if report.Applied != 1 || report.Skipped != 2 || len(p.Asked()) != 2 {
		t.Errorf("quit: report = %+v, asked = %d", report, len(p.Asked()))
	}
}

func TestApplyTrash(t *testing.T) {
	f := newFixture(t)
	keep := f.add(t, "Artist - Title.mp3", "Artist", "Title")
	dup := f.add(t, "zz.mp3", "Artist", "Title")
	g := &dupindex.Group{Members: []*library.FileEntry{keep, dup}}
	changes, _ := Plan([]*library.FileEntry{keep, dup}, []*dupindex.Group{g})

	var trashed []string
	a := f.applier(nil, io.Discard)
	a.Trash = func(path string) (string, error) {
		trashed = append(trashed, path)
		return "/trash/" + filepath.Base(path), nil
	}
	report := a.Apply(context.Background(), changes, Force)

	if report.Trashed != 1 || len(trashed) != 1 || trashed[0] != dup.Path {
		t.Errorf("report = %+v, trashed = %v", report, trashed)
	}
}

func TestApplyTrashFailure(t *testing.T) {
	f := newFixture(t)
	keep := f.add(t, "Artist - Title.mp3", "Artist", "Title")
	dup := f.add(t, "zz.mp3", "Artist", "Title")
	g := &dupindex.Group{Members: []*library.FileEntry{keep, dup}}
	changes, _ := Plan([]*library.FileEntry{keep, dup}, []*dupindex.Group{g})

	report := f.applier(nil, io.Discard).Apply(context.Background(), changes, Force)
	if report.Failed != 1 || !exists(dup.Path) {
		t.Errorf("report = %+v", report)
	}
}

func TestApplyCancelledSkipsEverything(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "a.mp3", "other", "song")
	changes, _ := Plan([]*library.FileEntry{e}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := f.applier(nil, io.Discard).Apply(ctx, changes, Force)
	if report.Skipped != 1 || f.store.writes != 0 {
		t.Errorf("report = %+v, writes = %d", report, f.store.writes)
	}
}

func TestInteractiveInterruptedDuringPrompt(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.mp3", "other", "song")
	b := f.add(t, "b.mp3", "another", "one")
	changes, _ := Plan([]*library.FileEntry{a, b}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := prompt.Func(func(context.Context, prompt.Request) (prompt.Decision, error) {
		cancel()
		return prompt.Accept, nil
	})
	report := f.applier(p, io.Discard).Apply(ctx, changes, Interactive)

	if report.Applied != 0 || report.Skipped != 2 || !report.Stopped {
		t.Errorf("report = %+v", report)
	}
	if f.store.writes != 0 || !exists(a.Path) {
		t.Error("interrupted prompt still applied the change")
	}
}

func TestInvalidTransitionIsLogged(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.log = logger.NewWithWriter(true, &logs, &logs)
	e := f.add(t, "a.mp3", "other", "song")
	// not planned, so the entry is still NeedsBoth
	c := &ProposedChange{Entry: e, OldName: e.Name(), NewName: "Other - Song.mp3", Kind: KindBoth}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.applier(nil, io.Discard).Apply(ctx, []*ProposedChange{c}, Force)

	if e.State != library.NeedsBoth {
		t.Errorf("state = %s", e.State)
	}
	if !strings.Contains(logs.String(), "invalid transition") {
		t.Errorf("transition error not logged:\n%s", logs.String())
	}
}

// unreadable returns an entry whose tags could not be read.
func (f *fixture) unreadable(t *testing.T, name string) *library.FileEntry {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	e := library.NewEntry(path)
	e.Transition(library.TagUnreadable)
	e.Transition(library.Unreadable)
	e.Err = fmt.Errorf("%w: %s: no frames", metadata.ErrTagRead, path)
	return e
}

func aiffTarget(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".aif"
}

func fakeConvert(_ context.Context, path string) (string, error) {
	dst := aiffTarget(path)
	return dst, os.WriteFile(dst, []byte("aiff"), 0644)
}

func TestPlanConversions(t *testing.T) {
	f := newFixture(t)
	broken := f.unreadable(t, "broken.mp3")
	flac := f.unreadable(t, "broken.flac")
	ok := f.add(t, "Artist - Title.mp3", "Artist", "Title")

	changes := PlanConversions([]*library.FileEntry{broken, flac, ok}, aiffTarget)
	if len(changes) != 1 || changes[0].Entry != broken || changes[0].NewName != "broken.aif" {
		t.Fatalf("PlanConversions = %v", changes)
	}
	if broken.State != library.Pending || flac.State != library.Unreadable {
		t.Errorf("states = %s, %s", broken.State, flac.State)
	}
}

func TestApplyConvertPreviewWritesNothing(t *testing.T) {
	f := newFixture(t)
	broken := f.unreadable(t, "broken.mp3")
	changes := PlanConversions([]*library.FileEntry{broken}, aiffTarget)

	var out bytes.Buffer
	a := f.applier(nil, &out)
	a.Convert = fakeConvert
	report := a.Apply(context.Background(), changes, Preview)

	if report.Previewed != 1 || report.Converted != 0 {
		t.Errorf("report = %+v", report)
	}
	if exists(aiffTarget(broken.Path)) {
		t.Error("preview converted the file")
	}
	if !strings.Contains(out.String(), "+ broken.aif") {
		t.Errorf("diff:\n%s", out.String())
	}
}

func TestApplyConvert(t *testing.T) {
	f := newFixture(t)
	broken := f.unreadable(t, "broken.mp3")
	changes := PlanConversions([]*library.FileEntry{broken}, aiffTarget)

	var trashed []string
	a := f.applier(nil, io.Discard)
	a.Convert = fakeConvert
	a.Trash = func(path string) (string, error) {
		trashed = append(trashed, path)
		return "/trash/" + filepath.Base(path), os.Remove(path)
	}
	report := a.Apply(context.Background(), changes, Force)

	if report.Converted != 1 || report.Applied != 1 || broken.State != library.Applied {
		t.Errorf("report = %+v, state = %s", report, broken.State)
	}
	if len(trashed) != 1 || changes[0].Converted != aiffTarget(broken.Path) || !exists(changes[0].Converted) {
		t.Errorf("trashed = %v, converted = %q", trashed, changes[0].Converted)
	}
}

func TestApplyConvertTrashFailureRemovesCopy(t *testing.T) {
	f := newFixture(t)
	broken := f.unreadable(t, "broken.mp3")
	changes := PlanConversions([]*library.FileEntry{broken}, aiffTarget)

	a := f.applier(nil, io.Discard)
	a.Convert = fakeConvert
	report := a.Apply(context.Background(), changes, Force)

	if report.Failed != 1 || report.Converted != 0 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Failures[0].Reason, "filesystem error") {
		t.Errorf("reason = %q", report.Failures[0].Reason)
	}
	if exists(aiffTarget(broken.Path)) {
		t.Error("copy left behind after the trash failed")
	}
	if !exists(broken.Path) {
		t.Error("original lost")
	}
}

func TestApplyConvertWithoutConverter(t *testing.T) {
	f := newFixture(t)
	broken := f.unreadable(t, "broken.mp3")
	changes := PlanConversions([]*library.FileEntry{broken}, aiffTarget)

	report := f.applier(nil, io.Discard).Apply(context.Background(), changes, Force)
	if report.Failed != 1 || !exists(broken.Path) {
		t.Errorf("report = %+v", report)
	}
}

func TestDifferColorHighlights(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "a.mp3", "other", "song")
	changes, _ := Plan([]*library.FileEntry{e}, nil)

	var plain, colored bytes.Buffer
	Differ{}.Render(&plain, changes[0], 1, 1)
	Differ{Color: true}.Render(&colored, changes[0], 1, 1)

	for _, want := range []string{"tag fix + rename:", "- other", "+ Other", "- a.mp3", "+ Other - Song.mp3"} {
		if !strings.Contains(plain.String(), want) {
			t.Errorf("plain diff missing %q:\n%s", want, plain.String())
		}
	}
	if !strings.Contains(colored.String(), "Song") {
		t.Errorf("colored diff lost text:\n%s", colored.String())
	}
}
