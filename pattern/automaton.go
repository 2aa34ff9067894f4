package pattern

import (
	"fmt"
	"strings"
)

// Automaton is a nondeterministic finite automaton with epsilon transitions, built from a
// pattern by Thompson construction. It is immutable once built and safe for concurrent use.
type Automaton struct {
	pattern string
	start   int
	states  []state
}

// state is one automaton state. A state may carry several kinds of edges at once.
type state struct {
	// trans maps an exact symbol to its target states.
	trans map[rune][]int

	// eps lists epsilon targets.
	eps []int

	// dot lists targets reachable on any character except '\n'.
	dot []int

	// negated lists negated-class edges, resolved against the actual character during
	// simulation.
	negated []negatedEdge

	accepting bool
}

type negatedEdge struct {
	excluded map[rune]struct{}
	to       int
}

// Compile parses and builds a pattern. It fails on unsupported or malformed syntax, before any
// input is matched; the error is a *SyntaxError.
func Compile(pattern string) (*Automaton, error) {
	n, err := Parse(pattern)
	if err != nil {
		return nil, err
	}
	a := Build(n)
	a.pattern = pattern
	return a, nil
}

// MustCompile is like Compile but panics on error.
// Use this for patterns defined at init time.
func MustCompile(pattern string) *Automaton {
	a, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return a
}

// Build compiles a node tree into an automaton.
func Build(n Node) *Automaton {
	b := &builder{}
	f := b.build(n)
	b.states[f.end].accepting = true
	return &Automaton{
		pattern: n.String(),
		start:   f.start,
		states:  b.states,
	}
}

// Start returns the start state id.
func (a *Automaton) Start() int {
	return a.start
}

// NumStates returns the total number of states.
func (a *Automaton) NumStates() int {
	return len(a.states)
}

// Pattern returns the source pattern.
func (a *Automaton) Pattern() string {
	return a.pattern
}

// String renders the transition table, one state per line. Intended for debugging.
func (a *Automaton) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "automaton %q start=%d states=%d\n", a.pattern, a.start, len(a.states))
	for id, s := range a.states {
		fmt.Fprintf(&sb, "  %d", id)
		if s.accepting {
			sb.WriteString(" (accept)")
		}
		for c, to := range s.trans {
			fmt.Fprintf(&sb, " %q->%v", c, to)
		}
		if len(s.dot) > 0 {
			fmt.Fprintf(&sb, " .->%v", s.dot)
		}
		for _, e := range s.negated {
			fmt.Fprintf(&sb, " [^%d]->%d", len(e.excluded), e.to)
		}
		if len(s.eps) > 0 {
			fmt.Fprintf(&sb, " ε->%v", s.eps)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// fragment is a partially built automaton with a single entry and a single exit.
type fragment struct {
	start int
	end   int
}

type builder struct {
	states []state
}

func (b *builder) newState() int {
	b.states = append(b.states, state{})
	return len(b.states) - 1
}

func (b *builder) epsilon(from, to int) {
	b.states[from].eps = append(b.states[from].eps, to)
}

func (b *builder) symbol(from int, c rune, to int) {
	s := &b.states[from]
	if s.trans == nil {
		s.trans = make(map[rune][]int)
	}
	s.trans[c] = append(s.trans[c], to)
}

func (b *builder) build(n Node) fragment {
	switch n := n.(type) {
	case Literal:
		f := fragment{start: b.newState(), end: b.newState()}
		b.symbol(f.start, n.Char, f.end)
		return f

	case CharClass:
		f := fragment{start: b.newState(), end: b.newState()}
		if n.Negated {
			excluded := make(map[rune]struct{}, len(n.Chars))
			for _, c := range n.Chars {
				excluded[c] = struct{}{}
			}
			b.states[f.start].negated = append(b.states[f.start].negated,
				negatedEdge{excluded: excluded, to: f.end})
			return f
		}
		for _, c := range n.Chars {
			b.symbol(f.start, c, f.end)
		}
		return f

	case Dot:
		f := fragment{start: b.newState(), end: b.newState()}
		b.states[f.start].dot = append(b.states[f.start].dot, f.end)
		return f

	case Concat:
		if len(n.Children) == 0 {
			f := fragment{start: b.newState(), end: b.newState()}
			b.epsilon(f.start, f.end)
			return f
		}
		f := b.build(n.Children[0])
		for _, child := range n.Children[1:] {
			next := b.build(child)
			b.epsilon(f.end, next.start)
			f.end = next.end
		}
		return f

	case Star:
		f := fragment{start: b.newState(), end: b.newState()}
		c := b.build(n.Child)
		b.epsilon(f.start, c.start)
		b.epsilon(f.start, f.end)
		b.epsilon(c.end, c.start)
		b.epsilon(c.end, f.end)
		return f

	case Plus:
		f := fragment{start: b.newState(), end: b.newState()}
		c := b.build(n.Child)
		b.epsilon(f.start, c.start)
		b.epsilon(c.end, c.start)
		b.epsilon(c.end, f.end)
		return f

	case Alternation:
		f := fragment{start: b.newState(), end: b.newState()}
		l := b.build(n.Left)
		r := b.build(n.Right)
		b.epsilon(f.start, l.start)
		b.epsilon(f.start, r.start)
		b.epsilon(l.end, f.end)
		b.epsilon(r.end, f.end)
		return f

	default:
		panic(fmt.Sprintf("pattern: unknown node type %T", n))
	}
}
