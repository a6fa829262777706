package dupindex

import (
	"cmp"
	"slices"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/cases"

	"trackrename/internal/library"
)

// Suggestion is a pair of tracks by the same artist whose titles are
// similar but whose content differs. Suggestions are never acted on.
type Suggestion struct {
	A, B  *library.FileEntry
	Score float32
}

// Similar compares the titles of resolved entries that share an artist and
// returns pairs scoring at least threshold (Jaro-Winkler, 0..1). Pairs that
// are already confirmed duplicates in groups are left out. A threshold of
// zero disables the search.
func Similar(entries []*library.FileEntry, groups []*Group, threshold float64) []Suggestion {
	if threshold <= 0 {
		return nil
	}

	confirmed := make(map[*library.FileEntry]string)
	for _, g := range groups {
		for _, m := range g.Members {
			confirmed[m] = g.Fingerprint
		}
	}

	fold := cases.Fold()
	byArtist := make(map[string][]*library.FileEntry)
	for _, e := range entries {
		if !e.Resolved.Complete() {
			continue
		}
		artist := fold.String(e.Resolved.Artist)
		byArtist[artist] = append(byArtist[artist], e)
	}

	var out []Suggestion
	for _, tracks := range byArtist {
		sortByPath(tracks)
		for i := 0; i < len(tracks); i++ {
			for j := i + 1; j < len(tracks); j++ {
				a, b := tracks[i], tracks[j]
				if fp, ok := confirmed[a]; ok && confirmed[b] == fp {
					continue
				}
				score, err := edlib.StringsSimilarity(
					fold.String(a.Resolved.Title),
					fold.String(b.Resolved.Title),
					edlib.JaroWinkler,
				)
				if err != nil || float64(score) < threshold {
					continue
				}
				out = append(out, Suggestion{A: a, B: b, Score: score})
			}
		}
	}

	slices.SortFunc(out, func(x, y Suggestion) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(x.A.Path, y.A.Path); c != 0 {
			return c
		}
		return cmp.Compare(x.B.Path, y.B.Path)
	})
	return out
}
