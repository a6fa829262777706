package trash

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestTrash(t *testing.T) *Trash {
	tr := New(filepath.Join(t.TempDir(), "Trash"))
	tr.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }
	return tr
}

func TestMoveToTrash(t *testing.T) {
	tr := newTestTrash(t)
	src := filepath.Join(t.TempDir(), "Artist - Title.mp3")
	os.WriteFile(src, []byte("audio"), 0644)

	dst, err := tr.MoveToTrash(src)
	if err != nil {
		t.Fatalf("MoveToTrash failed: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists")
	}
	if data, _ := os.ReadFile(dst); string(data) != "audio" {
		t.Errorf("trashed content = %q", data)
	}

	info, err := os.ReadFile(filepath.Join(tr.Dir, "info", "Artist - Title.mp3.trashinfo"))
	if err != nil {
		t.Fatalf("trashinfo missing: %v", err)
	}
	text := string(info)
	if !strings.HasPrefix(text, "[Trash Info]\n") {
		t.Errorf("trashinfo header: %q", text)
	}
	if !strings.Contains(text, "Artist%20-%20Title.mp3") {
		t.Errorf("path not escaped: %q", text)
	}
	if !strings.Contains(text, "DeletionDate=2024-03-01T12:30:00") {
		t.Errorf("deletion date missing: %q", text)
	}
}

func TestMoveToTrashSameNameTwice(t *testing.T) {
	tr := newTestTrash(t)
	dir := t.TempDir()
	var dsts []string
	for _, sub := range []string{"a", "b"} {
		src := filepath.Join(dir, sub, "song.mp3")
		os.MkdirAll(filepath.Dir(src), 0755)
		os.WriteFile(src, []byte(sub), 0644)
		dst, err := tr.MoveToTrash(src)
		if err != nil {
			t.Fatalf("MoveToTrash(%s) failed: %v", src, err)
		}
		dsts = append(dsts, dst)
	}

	if dsts[0] == dsts[1] {
		t.Fatal("second file overwrote the first")
	}
	if !strings.HasSuffix(dsts[1], ".mp3") || !strings.HasPrefix(filepath.Base(dsts[1]), "song.") {
		t.Errorf("unexpected unique name %s", dsts[1])
	}
	infos, _ := os.ReadDir(filepath.Join(tr.Dir, "info"))
	if len(infos) != 2 {
		t.Errorf("info entries = %d, want 2", len(infos))
	}
}

func TestMoveToTrashMissing(t *testing.T) {
	tr := newTestTrash(t)
	_, err := tr.MoveToTrash(filepath.Join(t.TempDir(), "nope.mp3"))
	if !errors.Is(err, ErrTrash) {
		t.Fatalf("err = %v, want ErrTrash", err)
	}
	infos, _ := os.ReadDir(filepath.Join(tr.Dir, "info"))
	if len(infos) != 0 {
		t.Error("failed move left a trashinfo behind")
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg")
	if got := DefaultDir(); got != "/xdg/Trash" {
		t.Errorf("DefaultDir() = %q", got)
	}
}
