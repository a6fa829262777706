package library

import "fmt"

// State is the classification of a FileEntry within one run.
type State int

const (
	Discovered State = iota
	TagOk
	TagUnreadable
	NeedsNothing
	NeedsRename
	NeedsTagFix
	NeedsBoth
	Unreadable
	Pending
	Applied
	Failed
	Skipped
)

var stateNames = map[State]string{
	Discovered:    "discovered",
	TagOk:         "tag-ok",
	TagUnreadable: "tag-unreadable",
	NeedsNothing:  "ok",
	NeedsRename:   "needs-rename",
	NeedsTagFix:   "needs-tag-fix",
	NeedsBoth:     "needs-both",
	Unreadable:    "unreadable",
	Pending:       "pending",
	Applied:       "applied",
	Failed:        "failed",
	Skipped:       "skipped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	Discovered:    {TagOk, TagUnreadable},
	TagOk:         {NeedsNothing, NeedsRename, NeedsTagFix, NeedsBoth, Unreadable},
	TagUnreadable: {Unreadable},
	NeedsNothing:  {Pending},
	NeedsRename:   {Pending},
	NeedsTagFix:   {Pending},
	NeedsBoth:     {Pending},
	Unreadable:    {Pending},
	Pending:       {Applied, Failed, Skipped},
}

// CanTransition reports whether moving from s to next is allowed.
// NeedsNothing may only become Pending when the entry is a duplicate slated
// for the trash, Unreadable when it is trashed or converted.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0 || s == NeedsNothing || s == Unreadable
}

// NeedsChange reports whether the state emits a ProposedChange.
func (s State) NeedsChange() bool {
	return s == NeedsRename || s == NeedsTagFix || s == NeedsBoth
}
