package metadata

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.senan.xyz/taglib"
)

// TagStore reads and writes the artist and title of an audio container.
// ReadTags returns nil fields when the container carries no tags.
type TagStore interface {
	ReadTags(path string) (*TagFields, error)
	WriteTags(path string, fields TagFields) error
}

// VersionReader is implemented by stores that can name the tag format of a file.
type VersionReader interface {
	TagVersion(path string) string
}

// Backend names accepted by NewTagStore.
const (
	BackendAuto   = "auto"
	BackendTaglib = "taglib"
)

// NewTagStore returns the store for a backend name. "auto" picks a
// codec-specific strategy by extension and falls back to taglib.
func NewTagStore(backend string) TagStore {
	if backend == BackendTaglib {
		return TaglibStore{}
	}
	return &StrategyStore{
		Default: TaglibStore{},
		ByExt: map[string]TagStore{
			".mp3":  ID3Store{},
			".flac": VorbisStore{},
		},
	}
}

// StrategyStore dispatches to a TagStore chosen by lower-cased file extension.
type StrategyStore struct {
	Default TagStore
	ByExt   map[string]TagStore
}

// For returns the store used for path.
func (s *StrategyStore) For(path string) TagStore {
	if store, ok := s.ByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return store
	}
	return s.Default
}

func (s *StrategyStore) ReadTags(path string) (*TagFields, error) {
	return s.For(path).ReadTags(path)
}

func (s *StrategyStore) WriteTags(path string, fields TagFields) error {
	return s.For(path).WriteTags(path, fields)
}

func (s *StrategyStore) TagVersion(path string) string {
	if vr, ok := s.For(path).(VersionReader); ok {
		return vr.TagVersion(path)
	}
	return ""
}

// TaglibStore uses taglib and handles every supported container.
type TaglibStore struct{}

func (TaglibStore) ReadTags(path string) (*TagFields, error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTagRead, path, err)
	}

	fields := &TagFields{
		Artist: firstTag(tags, taglib.Artist),
		Title:  firstTag(tags, taglib.Title),
	}
	if fields.Empty() {
		return nil, nil
	}
	return fields, nil
}

// WriteTags replaces the artist and title, leaving other tags untouched.
// An empty field removes the tag.
func (TaglibStore) WriteTags(path string, fields TagFields) error {
	tags := map[string][]string{
		taglib.Artist: tagValues(fields.Artist),
		taglib.Title:  tagValues(fields.Title),
	}
	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTagWrite, path, err)
	}
	return nil
}

func firstTag(tags map[string][]string, key string) string {
	if vals, ok := tags[key]; ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func tagValues(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}
