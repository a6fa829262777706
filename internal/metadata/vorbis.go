package metadata

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"trackrename/pkg/utils"
)

// VorbisStore reads and writes the VORBIS_COMMENT block of FLAC files.
type VorbisStore struct{}

func (VorbisStore) ReadTags(path string) (*TagFields, error) {
	f, err := parseMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTagRead, path, err)
	}

	cmt, _, err := vorbisComment(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTagRead, path, err)
	}
	if cmt == nil {
		return nil, nil
	}

	fields := &TagFields{
		Artist: firstComment(cmt, flacvorbis.FIELD_ARTIST),
		Title:  firstComment(cmt, flacvorbis.FIELD_TITLE),
	}
	if fields.Empty() {
		return nil, nil
	}
	return fields, nil
}

// WriteTags rewrites ARTIST and TITLE and keeps every other comment.
func (VorbisStore) WriteTags(path string, fields TagFields) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTagWrite, path, err)
	}

	cmt, idx, err := vorbisComment(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTagWrite, path, err)
	}
	if cmt == nil {
		cmt = flacvorbis.New()
	}

	cmt.Comments = setComment(cmt.Comments, flacvorbis.FIELD_ARTIST, fields.Artist)
	cmt.Comments = setComment(cmt.Comments, flacvorbis.FIELD_TITLE, fields.Title)

	block := cmt.Marshal()
	if idx < 0 {
		f.Meta = append(f.Meta, &block)
	} else {
		f.Meta[idx] = &block
	}

	if err := utils.ReplaceFile(path, f.Marshal()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTagWrite, path, err)
	}
	return nil
}

// parseMetadata reads the metadata blocks and stops before the audio frames.
func parseMetadata(path string) (*flac.File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return flac.ParseMetadata(r)
}

// TagVersion returns "Vorbis" when the file has a comment block.
func (VorbisStore) TagVersion(path string) string {
	f, err := parseMetadata(path)
	if err != nil {
		return ""
	}
	if cmt, _, err := vorbisComment(f); err != nil || cmt == nil {
		return ""
	}
	return "Vorbis"
}

func vorbisComment(f *flac.File) (*flacvorbis.MetaDataBlockVorbisComment, int, error) {
	for i, meta := range f.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		if err != nil {
			return nil, -1, err
		}
		return cmt, i, nil
	}
	return nil, -1, nil
}

func firstComment(cmt *flacvorbis.MetaDataBlockVorbisComment, field string) string {
	vals, err := cmt.Get(field)
	if err != nil || len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// setComment drops every "FIELD=" entry (case-insensitive) and appends the
// new value unless it is empty.
func setComment(comments []string, field, value string) []string {
	prefix := strings.ToUpper(field) + "="
	out := make([]string, 0, len(comments)+1)
	for _, c := range comments {
		if len(c) >= len(prefix) && strings.ToUpper(c[:len(prefix)]) == prefix {
			continue
		}
		out = append(out, c)
	}
	if value != "" {
		out = append(out, field+"="+value)
	}
	return out
}
