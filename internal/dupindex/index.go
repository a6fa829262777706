// Package dupindex finds files with identical content. Cheap pre-check
// buckets (normalized artist-title key and file size) decide which files are
// worth hashing; groups form only on equal SHA-256 fingerprints.
package dupindex

import (
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
	"sync"

	"trackrename/internal/library"
	"trackrename/internal/metadata"
)

const shardCount = 64

// Group is a set of files with the same content fingerprint.
type Group struct {
	Fingerprint string
	Members     []*library.FileEntry
}

type shard struct {
	mu      sync.Mutex
	buckets map[string][]*library.FileEntry
	groups  map[string]*Group
}

// Index is safe for concurrent Insert calls. Each key lives in one of a
// fixed set of shards; only callers touching the same shard contend.
type Index struct {
	shards [shardCount]shard

	// OnError is called when a candidate cannot be fingerprinted. The
	// entry is then left out of every group.
	OnError func(e *library.FileEntry, err error)
}

// New returns an empty index.
func New() *Index {
	ix := &Index{}
	for i := range ix.shards {
		ix.shards[i].buckets = make(map[string][]*library.FileEntry)
		ix.shards[i].groups = make(map[string]*Group)
	}
	return ix
}

func (ix *Index) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &ix.shards[h.Sum32()%shardCount]
}

func precheckKeys(e *library.FileEntry) []string {
	keys := []string{"s:" + strconv.FormatInt(e.Size, 10)}
	if k := e.Resolved.Key(); k != "" {
		keys = append(keys, "k:"+k)
	}
	return keys
}

// Insert adds e to the pre-check buckets. When a bucket already holds
// another candidate, every member of that bucket is fingerprinted and
// registered. It returns a snapshot of e's group and true when e's content
// matches at least one earlier file.
func (ix *Index) Insert(e *library.FileEntry) (*Group, bool) {
	var candidates []*library.FileEntry
	for _, key := range precheckKeys(e) {
		s := ix.shardFor(key)
		s.mu.Lock()
		bucket := append(s.buckets[key], e)
		s.buckets[key] = bucket
		if len(bucket) > 1 {
			candidates = append(candidates, bucket...)
		}
		s.mu.Unlock()
	}
	if len(candidates) == 0 {
		return nil, false
	}

	var own *Group
	seen := make(map[*library.FileEntry]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true

		fp, err := c.Fingerprint()
		if err != nil {
			if ix.OnError != nil {
				ix.OnError(c, err)
			}
			continue
		}
		g := ix.register(fp, c)
		if c == e {
			own = g
		}
	}
	if own == nil || len(own.Members) < 2 {
		return nil, false
	}
	return own, true
}

// register adds e to the group for fp and returns a snapshot of the group.
func (ix *Index) register(fp string, e *library.FileEntry) *Group {
	s := ix.shardFor("f:" + fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[fp]
	if !ok {
		g = &Group{Fingerprint: fp}
		s.groups[fp] = g
	}
	if !slices.Contains(g.Members, e) {
		g.Members = append(g.Members, e)
	}
	return g.snapshot()
}

func (g *Group) snapshot() *Group {
	members := slices.Clone(g.Members)
	sortByPath(members)
	return &Group{Fingerprint: g.Fingerprint, Members: members}
}

// Groups returns every confirmed group (two or more members), members
// sorted by path and groups by their first member.
func (ix *Index) Groups() []*Group {
	var out []*Group
	for i := range ix.shards {
		s := &ix.shards[i]
		s.mu.Lock()
		for _, g := range s.groups {
			if len(g.Members) > 1 {
				out = append(out, g.snapshot())
			}
		}
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *Group) int {
		return strings.Compare(a.Members[0].Path, b.Members[0].Path)
	})
	return out
}

// Resolve picks the member to keep. Complete tag metadata beats complete
// metadata from the filename, which beats incomplete metadata. Equal
// candidates are decided by the earliest path.
func Resolve(g *Group) (keep *library.FileEntry, discard []*library.FileEntry) {
	if g == nil || len(g.Members) == 0 {
		return nil, nil
	}
	members := slices.Clone(g.Members)
	sortByPath(members)

	keep = members[0]
	for _, m := range members[1:] {
		if rank(m) > rank(keep) {
			keep = m
		}
	}
	for _, m := range members {
		if m != keep {
			discard = append(discard, m)
		}
	}
	return keep, discard
}

func rank(e *library.FileEntry) int {
	switch {
	case e.Resolved.Complete() && e.Resolved.Source == metadata.FromTag:
		return 2
	case e.Resolved.Complete():
		return 1
	}
	return 0
}

func sortByPath(entries []*library.FileEntry) {
	slices.SortFunc(entries, func(a, b *library.FileEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
}
