package metadata

import (
	"fmt"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// ID3Store reads and writes ID3v2 frames of MP3 files.
type ID3Store struct{}

func (ID3Store) ReadTags(path string) (*TagFields, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Artist", "Title"}})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTagRead, path, err)
	}
	defer tag.Close()

	fields := &TagFields{
		Artist: strings.TrimSpace(tag.Artist()),
		Title:  strings.TrimSpace(tag.Title()),
	}
	if fields.Empty() {
		return nil, nil
	}
	return fields, nil
}

func (ID3Store) WriteTags(path string, fields TagFields) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTagWrite, path, err)
	}
	defer tag.Close()

	// ID3v2.3 has no UTF-8 text encoding.
	if tag.Version() == 4 {
		tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	} else {
		tag.SetDefaultEncoding(id3v2.EncodingUTF16)
	}

	if fields.Artist == "" {
		tag.DeleteFrames(tag.CommonID("Artist"))
	} else {
		tag.SetArtist(fields.Artist)
	}
	if fields.Title == "" {
		tag.DeleteFrames(tag.CommonID("Title"))
	} else {
		tag.SetTitle(fields.Title)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTagWrite, path, err)
	}
	return nil
}

// TagVersion returns e.g. "ID3v2.4", or "" when the file has no ID3v2 tag.
func (ID3Store) TagVersion(path string) string {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return ""
	}
	defer tag.Close()

	if tag.Size() == 0 {
		return ""
	}
	return fmt.Sprintf("ID3v2.%d", tag.Version())
}
