package pattern

import "strings"

// Node is a node of a parsed pattern. The concrete types are [Literal], [CharClass], [Dot],
// [Concat], [Star], [Plus] and [Alternation].
type Node interface {
	// String renders the node back as pattern syntax.
	String() string

	node()
}

// Literal matches exactly one character.
type Literal struct {
	Char rune
}

// CharClass matches one character from Chars, or, when Negated, any character not in Chars.
type CharClass struct {
	Chars   []rune
	Negated bool
}

// Dot matches any character except newline.
type Dot struct{}

// Concat matches its children in sequence. An empty Concat matches the empty string.
type Concat struct {
	Children []Node
}

// Star matches zero or more repetitions of Child.
type Star struct {
	Child Node
}

// Plus matches one or more repetitions of Child.
type Plus struct {
	Child Node
}

// Alternation matches either Left or Right.
type Alternation struct {
	Left  Node
	Right Node
}

func (Literal) node()     {}
func (CharClass) node()   {}
func (Dot) node()         {}
func (Concat) node()      {}
func (Star) node()        {}
func (Plus) node()        {}
func (Alternation) node() {}

const metaChars = `\.[]()|*+?{}^$`

func (n Literal) String() string {
	return quoteRune(n.Char, metaChars)
}

func (n CharClass) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	if n.Negated {
		sb.WriteByte('^')
	}
	for _, c := range n.Chars {
		sb.WriteString(quoteRune(c, `\]^-`))
	}
	sb.WriteByte(']')
	return sb.String()
}

func (Dot) String() string {
	return "."
}

func (n Concat) String() string {
	var sb strings.Builder
	for _, child := range n.Children {
		if _, ok := child.(Alternation); ok {
			sb.WriteString("(" + child.String() + ")")
			continue
		}
		sb.WriteString(child.String())
	}
	return sb.String()
}

func (n Star) String() string {
	return group(n.Child) + "*"
}

func (n Plus) String() string {
	return group(n.Child) + "+"
}

func (n Alternation) String() string {
	return n.Left.String() + "|" + n.Right.String()
}

// group wraps composite nodes in parentheses so a postfix operator applies to the whole node.
func group(n Node) string {
	switch c := n.(type) {
	case Literal, CharClass, Dot:
		return n.String()
	case Concat:
		if len(c.Children) == 1 {
			return group(c.Children[0])
		}
	}
	return "(" + n.String() + ")"
}

func quoteRune(c rune, special string) string {
	switch c {
	case '\n':
		return `\n`
	case '\t':
		return `\t`
	case '\r':
		return `\r`
	}
	if strings.ContainsRune(special, c) {
		return `\` + string(c)
	}
	return string(c)
}
