package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var variousArtistsPrefix = regexp.MustCompile(`(?i)^various artists\s*-\s*`)

// Filename layouts tried in order; the first yielding two non-empty
// normalized segments wins.
var filenamePatterns = []struct {
	re          *regexp.Regexp
	underscores bool
}{
	{regexp.MustCompile(`^(?:\d{1,3}\s+-\s+|\d{1,3}[.)]\s*|0\d{1,2}\s+)(.+?)\s+-\s+(.+)$`), false},
	{regexp.MustCompile(`^(?:\d{1,3}\s*-|\d{1,3}[.)]|0\d{1,2})[\s_]*(.+?)_-_(.+)$`), true},
	{regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`), false},
	{regexp.MustCompile(`^(.+?)_-_(.+)$`), true},
}

var filenameReplacer = strings.NewReplacer(
	`"`, "''",
	"/", "-",
	`\`, "-",
	":", "-",
	"*", "-",
	"?", "-",
	"<", "-",
	">", "-",
	"|", "-",
)

// Reconcile resolves canonical metadata with default settings.
func Reconcile(tag *TagFields, filename string) (TrackMetadata, error) {
	return defaultNormalizer.Reconcile(tag, filename)
}

// ParseFilename extracts artist and title from a filename with default settings.
func ParseFilename(filename string) *TagFields {
	return defaultNormalizer.ParseFilename(filename)
}

// Reconcile combines tag metadata and the filename into one TrackMetadata.
// A complete tag always wins; the filename-derived pair is kept in
// Discrepancy when it disagrees.
func (n *Normalizer) Reconcile(tag *TagFields, filename string) (TrackMetadata, error) {
	parsed := n.ParseFilename(filename)

	if tag.Complete() {
		artist, title := n.FormatPair(tag.Artist, tag.Title)
		if artist != "" && title != "" {
			meta := TrackMetadata{Artist: artist, Title: title, Source: FromTag}
			if parsed != nil && (parsed.Artist != artist || parsed.Title != title) {
				meta.Discrepancy = parsed
			}
			return meta, nil
		}
	}

	if parsed == nil {
		return TrackMetadata{}, fmt.Errorf("%w: %s", ErrReconcileAmbiguous, filename)
	}

	if !tag.Empty() {
		artist, title := n.FormatPair(orElse(tag.Artist, parsed.Artist), orElse(tag.Title, parsed.Title))
		if artist != "" && title != "" {
			return TrackMetadata{Artist: artist, Title: title, Source: Merged}, nil
		}
	}

	return TrackMetadata{Artist: parsed.Artist, Title: parsed.Title, Source: FromFilename}, nil
}

// ParseFilename matches the filename stem against the known layouts and
// returns the formatted pair, or nil when no layout yields both fields.
func (n *Normalizer) ParseFilename(filename string) *TagFields {
	base := filepath.Base(filename)
	stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	stem = variousArtistsPrefix.ReplaceAllString(stem, "")

	for _, p := range filenamePatterns {
		m := p.re.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		artist, title := m[1], m[2]
		if p.underscores {
			artist = strings.ReplaceAll(artist, "_", " ")
			title = strings.ReplaceAll(title, "_", " ")
		}
		artist, title = n.FormatPair(artist, title)
		if artist != "" && title != "" {
			return &TagFields{Artist: artist, Title: title}
		}
	}
	return nil
}

// Filename returns the target "Artist - Title.ext" name for meta.
// Characters that are illegal in filenames are replaced, never dropped.
func Filename(meta TrackMetadata, ext string) string {
	return SanitizeFilename(meta.Artist) + " - " + SanitizeFilename(meta.Title) + strings.ToLower(ext)
}

// SanitizeFilename replaces filesystem-illegal characters with fixed substitutes.
func SanitizeFilename(s string) string {
	s = filenameReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '-'
		}
		return r
	}, s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func orElse(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
