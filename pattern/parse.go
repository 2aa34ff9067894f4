package pattern

import (
	"errors"
	"fmt"
)

// Compile errors. A *SyntaxError wraps exactly one of these.
var (
	ErrUnsupportedSyntax = errors.New("unsupported syntax")
	ErrUnterminatedGroup = errors.New("unterminated group")
	ErrUnmatchedParen    = errors.New("unmatched ')'")
	ErrUnterminatedClass = errors.New("unterminated character class")
	ErrUnknownEscape     = errors.New("unknown escape")
	ErrTrailingEscape    = errors.New("trailing backslash")
	ErrNothingToRepeat   = errors.New("nothing to repeat")
	ErrInvalidRange      = errors.New("invalid class range")
)

// SyntaxError reports where a pattern failed to compile.
type SyntaxError struct {
	// Pattern is the full pattern string.
	Pattern string

	// Offset is the rune offset of the offending character.
	Offset int

	// Err is one of the compile error sentinels.
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pattern %q: %v at offset %d", e.Pattern, e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

var (
	digitChars = runeRange('0', '9')
	wordChars  = append(append(append(runeRange('a', 'z'), runeRange('A', 'Z')...),
		digitChars...), '_')
	spaceChars = []rune{' ', '\t', '\n', '\r', '\f', '\v'}
)

// Parse parses a pattern into a node tree.
//
// Grammar, lowest precedence first:
//
//	alternation = concat { "|" concat }
//	concat      = { repeat }
//	repeat      = atom { "*" | "+" }
//	atom        = literal | escape | class | "." | "(" alternation ")"
func Parse(pattern string) (Node, error) {
	p := &parser{pattern: pattern, src: []rune(pattern)}
	n, err := p.parseAlternation()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		// parseConcat only stops early on ')'.
		return nil, p.errorf(ErrUnmatchedParen)
	}
	return n, nil
}

type parser struct {
	pattern string
	src     []rune
	pos     int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() rune {
	return p.src[p.pos]
}

func (p *parser) errorf(err error) error {
	return &SyntaxError{Pattern: p.pattern, Offset: p.pos, Err: err}
}

func (p *parser) parseAlternation() (Node, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek() == '|' {
		p.pos++
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = Alternation{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseConcat() (Node, error) {
	var children []Node
	for !p.eof() {
		c := p.peek()
		if c == '|' || c == ')' {
			break
		}
		n, err := p.parseRepeat()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Concat{Children: children}, nil
}

func (p *parser) parseRepeat() (Node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for !p.eof() {
		switch p.peek() {
		case '*':
			n = Star{Child: n}
		case '+':
			n = Plus{Child: n}
		case '?', '{':
			return nil, p.errorf(ErrUnsupportedSyntax)
		default:
			return n, nil
		}
		p.pos++
	}
	return n, nil
}

func (p *parser) parseAtom() (Node, error) {
	c := p.peek()
	switch c {
	case '(':
		p.pos++
		inner, err := p.parseAlternation()
		if err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, p.errorf(ErrUnterminatedGroup)
		}
		p.pos++ // ')'
		return inner, nil
	case '[':
		return p.parseClass()
	case '.':
		p.pos++
		return Dot{}, nil
	case '\\':
		return p.parseEscape()
	case '*', '+':
		return nil, p.errorf(ErrNothingToRepeat)
	case '?', '{', '}', '^', '$', ']':
		return nil, p.errorf(ErrUnsupportedSyntax)
	}
	p.pos++
	return Literal{Char: c}, nil
}

// parseEscape parses a backslash sequence outside a class.
func (p *parser) parseEscape() (Node, error) {
	chars, lit, err := p.escape()
	if err != nil {
		return nil, err
	}
	if chars != nil {
		return CharClass{Chars: chars}, nil
	}
	return Literal{Char: lit}, nil
}

// escape consumes a backslash sequence. It returns either a class member set (for \d \w \s)
// or a single literal character.
func (p *parser) escape() ([]rune, rune, error) {
	p.pos++ // '\'
	if p.eof() {
		return nil, 0, p.errorf(ErrTrailingEscape)
	}
	c := p.peek()
	switch c {
	case 'd':
		p.pos++
		return digitChars, 0, nil
	case 'w':
		p.pos++
		return wordChars, 0, nil
	case 's':
		p.pos++
		return spaceChars, 0, nil
	case 'n':
		p.pos++
		return nil, '\n', nil
	case 't':
		p.pos++
		return nil, '\t', nil
	case 'r':
		p.pos++
		return nil, '\r', nil
	}
	if isEscapable(c) {
		p.pos++
		return nil, c, nil
	}
	return nil, 0, p.errorf(ErrUnknownEscape)
}

// isEscapable reports whether \c stands for the literal c.
func isEscapable(c rune) bool {
	switch c {
	case '\\', '.', '[', ']', '(', ')', '|', '*', '+', '?', '{', '}', '^', '$', '-', '/',
		'"', '\'', '<', '>', ':', ',', '#', '&', '~', '=', '!', '@', '%', '`', ' ':
		return true
	}
	return false
}

func (p *parser) parseClass() (Node, error) {
	start := p.pos
	p.pos++ // '['
	class := CharClass{}
	if !p.eof() && p.peek() == '^' {
		class.Negated = true
		p.pos++
	}

	first := true
	for {
		if p.eof() {
			p.pos = start
			return nil, p.errorf(ErrUnterminatedClass)
		}
		c := p.peek()
		if c == ']' && !first {
			p.pos++
			break
		}
		first = false

		var lo rune
		if c == '\\' {
			chars, lit, err := p.escape()
			if err != nil {
				return nil, err
			}
			if chars != nil {
				class.Chars = append(class.Chars, chars...)
				continue
			}
			lo = lit
		} else {
			lo = c
			p.pos++
		}

		// Range: lo-hi, unless the '-' is the last member.
		if p.pos+1 < len(p.src) && p.peek() == '-' && p.src[p.pos+1] != ']' {
			p.pos++ // '-'
			var hi rune
			if p.peek() == '\\' {
				chars, lit, err := p.escape()
				if err != nil {
					return nil, err
				}
				if chars != nil {
					return nil, p.errorf(ErrInvalidRange)
				}
				hi = lit
			} else {
				hi = p.peek()
				p.pos++
			}
			if hi < lo {
				return nil, p.errorf(ErrInvalidRange)
			}
			class.Chars = append(class.Chars, runeRange(lo, hi)...)
			continue
		}
		class.Chars = append(class.Chars, lo)
	}
	return class, nil
}

func runeRange(lo, hi rune) []rune {
	out := make([]rune, 0, hi-lo+1)
	for c := lo; c <= hi; c++ {
		out = append(out, c)
	}
	return out
}
