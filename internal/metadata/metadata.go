package metadata

import "errors"

var (
	// ErrTagRead is returned when a container is corrupt or unsupported.
	ErrTagRead = errors.New("tag read failed")
	// ErrTagWrite is returned when tags could not be written back.
	ErrTagWrite = errors.New("tag write failed")
	// ErrReconcileAmbiguous is returned when neither the tag nor the filename
	// yields both an artist and a title.
	ErrReconcileAmbiguous = errors.New("cannot determine artist and title")
)

// Source records where resolved metadata came from.
type Source int

const (
	FromTag Source = iota
	FromFilename
	Merged
)

func (s Source) String() string {
	switch s {
	case FromTag:
		return "tag"
	case FromFilename:
		return "filename"
	case Merged:
		return "merged"
	}
	return "unknown"
}

// TagFields holds the artist and title read from or written to a container.
type TagFields struct {
	Artist string
	Title  string
}

// Complete reports whether both fields are set.
func (t *TagFields) Complete() bool {
	return t != nil && t.Artist != "" && t.Title != ""
}

// Empty reports whether neither field is set.
func (t *TagFields) Empty() bool {
	return t == nil || (t.Artist == "" && t.Title == "")
}

// Equal compares two optional tag sets.
func (t *TagFields) Equal(o *TagFields) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Artist == o.Artist && t.Title == o.Title
}

// TrackMetadata is the canonical artist and title of one file.
type TrackMetadata struct {
	Artist string
	Title  string
	Source Source

	// Discrepancy holds the filename-derived pair when it disagrees with
	// the tag. Only used for display.
	Discrepancy *TagFields
}

// Fields returns the canonical pair as tag fields.
func (m TrackMetadata) Fields() TagFields {
	return TagFields{Artist: m.Artist, Title: m.Title}
}

// Key returns the case-folded "artist - title" key used to pre-group
// candidate duplicates.
func (m TrackMetadata) Key() string {
	if m.Artist == "" && m.Title == "" {
		return ""
	}
	return foldKey(m.Artist + " - " + m.Title)
}

// Complete reports whether both fields are resolved.
func (m TrackMetadata) Complete() bool {
	return m.Artist != "" && m.Title != ""
}

// String renders "Artist - Title".
func (m TrackMetadata) String() string {
	return m.Artist + " - " + m.Title
}
