package metadata

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultAcronymMaxLength is the longest all-caps word kept as written.
const DefaultAcronymMaxLength = 4

// maxPasses bounds the fixpoint loop in Normalize.
const maxPasses = 8

var (
	openBracketPattern  = regexp.MustCompile(`[\[{]+`)
	closeBracketPattern = regexp.MustCompile(`[\]}]+`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	parenOpenSpace      = regexp.MustCompile(`\(\s+`)
	parenCloseSpace     = regexp.MustCompile(`\s+\)`)
	parenGlued          = regexp.MustCompile(`([\p{L}\p{N}])\(`)
	parenTrailing       = regexp.MustCompile(`\)([\p{L}\p{N}])`)
	emptyParens         = regexp.MustCompile(`\(\s*\)`)

	// Dash variants only count as a separator when spaced on at least one side,
	// so names like "A-Ha" are left alone.
	separatorPattern = regexp.MustCompile(`\s+(?:[‒–—―]|-{2,})\s*|\s*(?:[‒–—―]|-{2,})\s+|\s+-\s+`)

	featPattern    = regexp.MustCompile(`(?i)(^|[\s(])(?:featuring|feat|ft)\b\.?\s*`)
	withPattern    = regexp.MustCompile(`(?i)(^|\s)w/\s*`)
	versusPattern  = regexp.MustCompile(`(?i)(^|[\s(])(?:versus|vs)\b\.?`)
	parenGroup     = regexp.MustCompile(`\(([^()]*)\)`)
	titleFeatGroup = regexp.MustCompile(`\s*\(feat\. ([^()]+)\)`)
	titleFeatTail  = regexp.MustCompile(`\s+feat\. ([^()]+?)(\s+\(.*)?$`)
)

// Connector words stay lower-case unless they open or close a field.
var connectors = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "but": true,
	"by": true, "feat.": true, "for": true, "from": true, "in": true,
	"into": true, "nor": true, "of": true, "on": true, "or": true,
	"the": true, "to": true, "vs.": true, "with": true,
}

// Normalizer turns raw artist and title strings into canonical form.
// The zero value uses DefaultAcronymMaxLength. It is safe for concurrent use.
type Normalizer struct {
	AcronymMaxLength int
}

// NewNormalizer returns a Normalizer preserving all-caps words up to acronymMax letters.
func NewNormalizer(acronymMax int) *Normalizer {
	return &Normalizer{AcronymMaxLength: acronymMax}
}

var defaultNormalizer = &Normalizer{}

// Normalize applies the formatting rules with default settings.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// FormatPair formats an artist and title with default settings.
func FormatPair(artist, title string) (string, string) {
	return defaultNormalizer.FormatPair(artist, title)
}

// Normalize returns the canonical form of one artist or title field.
// Rules are applied until the text stops changing.
func (n *Normalizer) Normalize(raw string) string {
	current := raw
	for i := 0; i < maxPasses; i++ {
		next := n.normalizeOnce(current)
		if next == current {
			break
		}
		current = next
	}
	return current
}

func (n *Normalizer) normalizeOnce(s string) string {
	s = norm.NFC.String(s)

	s = openBracketPattern.ReplaceAllString(s, "(")
	s = closeBracketPattern.ReplaceAllString(s, ")")
	s = tidySpacing(s)

	s = separatorPattern.ReplaceAllString(s, " - ")

	s = featPattern.ReplaceAllString(s, "${1}feat. ")
	s = withPattern.ReplaceAllString(s, "${1}feat. ")
	s = versusPattern.ReplaceAllString(s, "${1}vs.")
	s = tidySpacing(s)

	if !hasAlnum(s) {
		return ""
	}

	s = n.titleCase(s)
	s = stripRedundantGroups(s)

	return tidySpacing(s)
}

// FormatPair normalizes an artist and title together. A "feat." clause in the
// title is moved to the artist and a repeated "Artist - " title prefix is
// dropped.
func (n *Normalizer) FormatPair(artist, title string) (string, string) {
	artist = n.Normalize(artist)
	title = n.Normalize(title)

	if artist != "" {
		prefix := artist + " - "
		if strings.HasPrefix(title, prefix) && len(title) > len(prefix) {
			title = title[len(prefix):]
		}
	}

	var featured string
	if m := titleFeatGroup.FindStringSubmatchIndex(title); m != nil {
		rest := strings.TrimSpace(title[:m[0]] + title[m[1]:])
		if hasAlnum(rest) {
			featured = title[m[2]:m[3]]
			title = rest
		}
	} else if m := titleFeatTail.FindStringSubmatchIndex(title); m != nil {
		rest := title[:m[0]]
		if m[4] >= 0 {
			rest += title[m[4]:m[5]]
		}
		if hasAlnum(rest) {
			featured = title[m[2]:m[3]]
			title = rest
		}
	}

	if featured != "" && artist != "" {
		featured = strings.TrimSpace(featured)
		switch {
		case strings.Contains(artist, featured):
		case strings.Contains(artist, " feat. "):
			artist += " & " + featured
		default:
			artist += " feat. " + featured
		}
	}

	return n.Normalize(artist), n.Normalize(title)
}

func (n *Normalizer) acronymMax() int {
	if n == nil || n.AcronymMaxLength <= 0 {
		return DefaultAcronymMaxLength
	}
	return n.AcronymMaxLength
}

// titleCase cases each space-separated word. A field starts at the
// beginning of the text, after a " - " separator and after "feat.", which
// gives the featured artist the same treatment as a standalone field.
func (n *Normalizer) titleCase(s string) string {
	caser := cases.Title(language.Und, cases.NoLower)
	words := strings.Split(s, " ")
	for i, word := range words {
		first := i == 0 || words[i-1] == "-" || isFeatToken(words[i-1])
		last := i == len(words)-1 || words[i+1] == "-"
		words[i] = n.caseWord(caser, word, first, last)
	}
	return strings.Join(words, " ")
}

func (n *Normalizer) caseWord(caser cases.Caser, word string, first, last bool) string {
	if word == "-" || !hasLetter(word) {
		return word
	}

	core := strings.ToLower(strings.Trim(word, `()"'`))
	if connectors[core] && !first && !last {
		return strings.ToLower(word)
	}
	if core == "feat." || core == "vs." {
		if first && strings.HasPrefix(word, "(") {
			return strings.ToLower(word)
		}
	}

	if startsWithDigit(word) {
		return word
	}

	if isAllCaps(word) {
		if letterCount(word) <= n.acronymMax() {
			return word
		}
		return caser.String(strings.ToLower(word))
	}
	if hasInnerUpper(word) {
		return word
	}
	return caser.String(word)
}

// stripRedundantGroups drops "(...)" groups whose content already appears
// verbatim elsewhere in the text, and empty groups.
func stripRedundantGroups(s string) string {
	for {
		s = emptyParens.ReplaceAllString(s, "")
		matches := parenGroup.FindAllStringSubmatchIndex(s, -1)
		removed := false
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			inner := strings.TrimSpace(s[m[2]:m[3]])
			rest := s[:m[0]] + s[m[1]:]
			if inner != "" && containsWord(rest, inner) {
				s = tidySpacing(rest)
				removed = true
				break
			}
		}
		if !removed {
			return s
		}
	}
}

// containsWord reports whether needle occurs in haystack with no letter or
// digit directly around it.
func containsWord(haystack, needle string) bool {
	for offset := 0; offset < len(haystack); {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		before := start == 0 || !isAlnumRune(lastRune(haystack[:start]))
		after := end == len(haystack) || !isAlnumRune(firstRune(haystack[end:]))
		if before && after {
			return true
		}
		offset = start + 1
	}
	return false
}

func tidySpacing(s string) string {
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = parenOpenSpace.ReplaceAllString(s, "(")
	s = parenCloseSpace.ReplaceAllString(s, ")")
	s = parenGlued.ReplaceAllString(s, "$1 (")
	s = parenTrailing.ReplaceAllString(s, ") $1")
	return strings.TrimSpace(s)
}

func isFeatToken(word string) bool {
	w := strings.ToLower(strings.TrimPrefix(word, "("))
	return w == "feat."
}

func hasAlnum(s string) bool {
	return strings.IndexFunc(s, isAlnumRune) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func isAlnumRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func startsWithDigit(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) {
			return false
		}
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isAllCaps(word string) bool {
	return hasLetter(word) && strings.IndexFunc(word, unicode.IsLower) < 0
}

func letterCount(word string) int {
	count := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			count++
		}
	}
	return count
}

// hasInnerUpper reports stylized casing such as "McCartney" or "O'Neil".
func hasInnerUpper(word string) bool {
	seenLetter := false
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		if seenLetter && unicode.IsUpper(r) {
			return true
		}
		seenLetter = true
	}
	return false
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}

func foldKey(s string) string {
	return cases.Fold().String(s)
}
