// Package prompt asks the user to confirm one pending change at a time.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Decision is the answer to one confirmation request.
type Decision int

const (
	Accept Decision = iota
	Reject
	AcceptAll
	Quit
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case AcceptAll:
		return "accept-all"
	case Quit:
		return "quit"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Request describes the change awaiting confirmation. The diff itself has
// already been shown by the caller.
type Request struct {
	Index int
	Total int
	Path  string
	Kind  string
}

// Prompter answers confirmation requests synchronously.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Decision, error)
}

// Func adapts an ordinary function to the Prompter interface.
type Func func(ctx context.Context, req Request) (Decision, error)

func (f Func) Prompt(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Terminal reads one answer per line.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a Terminal prompter reading from in and writing the
// question to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Prompt asks until it gets a recognised answer. End of input counts as Quit.
func (t *Terminal) Prompt(ctx context.Context, req Request) (Decision, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Quit, err
		}
		fmt.Fprintf(t.out, "[%d/%d] Apply %s? [Y]es / [n]o / [a]ll / [q]uit: ", req.Index, req.Total, req.Kind)

		line, err := t.in.ReadString('\n')
		// an interrupt while waiting for input wins over the answer
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Quit, ctxErr
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return Quit, fmt.Errorf("failed to read answer: %w", err)
		}
		if d, ok := parseAnswer(line); ok {
			return d, nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(t.out)
			return Quit, nil
		}
		fmt.Fprintf(t.out, "Unrecognised answer %q\n", strings.TrimSpace(line))
	}
}

func parseAnswer(line string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		// bare enter is a yes, but not at end of input
		if line == "" {
			return Quit, false
		}
		return Accept, true
	case "n", "no":
		return Reject, true
	case "a", "all":
		return AcceptAll, true
	case "q", "quit":
		return Quit, true
	}
	return Quit, false
}

// Scripted replays a fixed list of decisions, then answers Quit.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	asked     []Request
}

// NewScripted creates a Scripted prompter.
func NewScripted(decisions ...Decision) *Scripted {
	return &Scripted{decisions: decisions}
}

func (s *Scripted) Prompt(ctx context.Context, req Request) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, req)
	if len(s.decisions) == 0 {
		return Quit, nil
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

// Asked returns the requests seen so far.
func (s *Scripted) Asked() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.asked...)
}
