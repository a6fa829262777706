// Package trash moves files into a freedesktop.org style trash directory
// so discarded duplicates can be restored by the user.
package trash

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackrename/pkg/utils"
)

// ErrTrash wraps every failure to move a file into the trash.
var ErrTrash = errors.New("move to trash failed")

// Trash is a trash directory holding files/ and info/.
type Trash struct {
	Dir string
	now func() time.Time
}

// New returns the trash at dir, or the user's home trash when dir is empty.
func New(dir string) *Trash {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Trash{Dir: dir, now: time.Now}
}

// DefaultDir returns $XDG_DATA_HOME/Trash, falling back to
// ~/.local/share/Trash.
func DefaultDir() string {
	if data := os.Getenv("XDG_DATA_HOME"); data != "" {
		return filepath.Join(data, "Trash")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".local", "share", "Trash")
}

// MoveToTrash moves path into the trash and records where it came from.
// It returns the new location of the file.
func (t *Trash) MoveToTrash(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTrash, path, err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTrash, path, err)
	}

	filesDir := filepath.Join(t.Dir, "files")
	infoDir := filepath.Join(t.Dir, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("%w: %w", ErrTrash, err)
		}
	}

	name, info, err := t.reserve(infoDir, filepath.Base(abs))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTrash, path, err)
	}
	if _, err := fmt.Fprintf(info, "[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		escapePath(abs), t.now().Format("2006-01-02T15:04:05")); err != nil {
		info.Close()
		os.Remove(info.Name())
		return "", fmt.Errorf("%w: %s: %w", ErrTrash, path, err)
	}
	info.Close()

	dst := filepath.Join(filesDir, name)
	if err := utils.MoveFile(abs, dst); err != nil {
		os.Remove(info.Name())
		return "", fmt.Errorf("%w: %s: %w", ErrTrash, path, err)
	}
	return dst, nil
}

// reserve claims a unique name by creating its .trashinfo file exclusively.
func (t *Trash) reserve(infoDir, base string) (string, *os.File, error) {
	name := base
	for range 8 {
		f, err := os.OpenFile(filepath.Join(infoDir, name+".trashinfo"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			if _, statErr := os.Lstat(filepath.Join(t.Dir, "files", name)); statErr == nil {
				// stale payload without info; pick another name
				f.Close()
				os.Remove(f.Name())
			} else {
				return name, f, nil
			}
		} else if !os.IsExist(err) {
			return "", nil, err
		}
		ext := filepath.Ext(base)
		name = strings.TrimSuffix(base, ext) + "." + uuid.NewString()[:8] + ext
	}
	return "", nil, fmt.Errorf("no free trash name for %s", base)
}

func escapePath(path string) string {
	u := url.URL{Path: path}
	return u.EscapedPath()
}
