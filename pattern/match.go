package pattern

import "strings"

// MatchResult is the outcome of simulating an automaton over a prefix.
type MatchResult struct {
	// Plausible reports whether the prefix can still be extended into a match.
	Plausible bool

	// Complete reports whether the prefix is already a full match.
	Complete bool
}

// Match runs a fresh simulation from the start state over the whole prefix.
//
// It stops early and returns {false, false} as soon as a character has no successor states.
// Otherwise Plausible is true and Complete reports whether any active state accepts. The
// empty prefix is always plausible.
//
// Match keeps no state between calls. For a growing prefix, call it again with the longer
// string (or use [Matcher]).
func (a *Automaton) Match(prefix string) MatchResult {
	f, ok := a.simulate(prefix)
	if !ok {
		return MatchResult{}
	}
	return MatchResult{Plausible: true, Complete: a.accepting(f)}
}

// MatchString reports whether s matches the pattern in full, like an anchored regexp match.
func (a *Automaton) MatchString(s string) bool {
	return a.Match(s).Complete
}

// HasMatchPrefix reports whether some prefix of s, possibly empty, is a full match. It stops
// at the first accepting position or as soon as the simulation dies, so only as much of s is
// read as needed.
func (a *Automaton) HasMatchPrefix(s string) bool {
	active := newFrontier(len(a.states))
	active.add(a.start)
	a.closure(active)
	if a.accepting(active) {
		return true
	}

	for _, c := range s {
		next := a.step(active, c)
		if next.empty() {
			return false
		}
		a.closure(next)
		if a.accepting(next) {
			return true
		}
		active = next
	}
	return false
}

// frontier is the active state set of one simulation. It never outlives the call that
// created it.
type frontier struct {
	member []bool
	ids    []int
}

func newFrontier(n int) *frontier {
	return &frontier{member: make([]bool, n)}
}

func (f *frontier) add(id int) bool {
	if f.member[id] {
		return false
	}
	f.member[id] = true
	f.ids = append(f.ids, id)
	return true
}

func (f *frontier) empty() bool {
	return len(f.ids) == 0
}

// simulate returns the epsilon-closed frontier after consuming prefix, or false if some
// character had no successor.
func (a *Automaton) simulate(prefix string) (*frontier, bool) {
	active := newFrontier(len(a.states))
	active.add(a.start)
	a.closure(active)

	for _, c := range prefix {
		next := a.step(active, c)
		if next.empty() {
			return nil, false
		}
		a.closure(next)
		active = next
	}
	return active, true
}

// step computes the pre-closure successor set of active on c.
func (a *Automaton) step(active *frontier, c rune) *frontier {
	next := newFrontier(len(a.states))
	for _, id := range active.ids {
		s := &a.states[id]
		for _, to := range s.trans[c] {
			next.add(to)
		}
		if c != '\n' {
			for _, to := range s.dot {
				next.add(to)
			}
		}
		for _, e := range s.negated {
			if _, excluded := e.excluded[c]; !excluded {
				next.add(e.to)
			}
		}
	}
	return next
}

// closure extends f in place with every state reachable through epsilon edges.
func (a *Automaton) closure(f *frontier) {
	stack := append([]int(nil), f.ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range a.states[id].eps {
			if f.add(to) {
				stack = append(stack, to)
			}
		}
	}
}

func (a *Automaton) accepting(f *frontier) bool {
	for _, id := range f.ids {
		if a.states[id].accepting {
			return true
		}
	}
	return false
}

// extensible reports whether any active state has an outgoing non-epsilon edge, i.e. whether
// some longer input could still be consumed.
func (a *Automaton) extensible(f *frontier) bool {
	for _, id := range f.ids {
		s := &a.states[id]
		if len(s.trans) > 0 || len(s.dot) > 0 || len(s.negated) > 0 {
			return true
		}
	}
	return false
}

// Matcher tracks a growing prefix against one automaton. Every call to Feed re-simulates the
// full prefix from the start state; only the prefix text is retained between calls.
//
// Many Matchers may share one Automaton. A Matcher itself is not safe for concurrent use.
type Matcher struct {
	automaton *Automaton
	prefix    strings.Builder
	last      MatchResult
}

// NewMatcher creates a Matcher over a.
func NewMatcher(a *Automaton) *Matcher {
	return &Matcher{
		automaton: a,
		last:      a.Match(""),
	}
}

// Feed appends chunk to the prefix and returns the match result for the whole prefix.
// Once the prefix is implausible it stays implausible; Feed then skips the simulation.
func (m *Matcher) Feed(chunk string) MatchResult {
	m.prefix.WriteString(chunk)
	if !m.last.Plausible {
		return m.last
	}
	m.last = m.automaton.Match(m.prefix.String())
	return m.last
}

// Result returns the result of the last Feed (or of the empty prefix after Reset).
func (m *Matcher) Result() MatchResult {
	return m.last
}

// Prefix returns everything fed since the last Reset.
func (m *Matcher) Prefix() string {
	return m.prefix.String()
}

// Reset clears the prefix.
func (m *Matcher) Reset() {
	m.prefix.Reset()
	m.last = m.automaton.Match("")
}
