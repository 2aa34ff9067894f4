package section

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickchristie/livefeed"
)

// DefaultLoggerName is the commonlog logger used when a Config carries no Sink.
const DefaultLoggerName = "livefeed.section"

// ErrUnknownPolicy is returned by ParsePolicy for unrecognized policy names.
var ErrUnknownPolicy = errors.New("unknown malformed-input policy")

// Config configures a Parser.
type Config struct {
	// AllowedNames lists the permitted section names, in order. nil allows any name.
	// A non-nil empty slice rejects every name.
	AllowedNames []string

	// SkipValidation allows any section name regardless of AllowedNames. Value types are
	// still sniffed and recorded.
	SkipValidation bool

	// Policy decides how the parser recovers from malformed characters.
	Policy Policy

	// Sink receives malformed-input reports. nil logs them through commonlog under
	// DefaultLoggerName.
	Sink livefeed.DiagnosticSink
}

// DefaultConfig returns a Config that allows any section name, skips malformed characters and
// logs them.
func DefaultConfig() Config {
	return Config{
		Policy: PolicySkip,
		Sink:   livefeed.NewLogSink(DefaultLoggerName),
	}
}

// Parser extracts named top-level values from a live JSON-shaped feed.
//
// The feed is either an object of named sections:
//
//	{"thinking": "...", "count": 3, "action_json": "{\"tool\":\"x\"}"}
//
// or a single root array, which becomes one anonymous section:
//
//	[1, "two", {"x": true}]
//
// Characters are consumed one at a time through an explicit state machine (see [State]). Input
// may arrive in chunks of any size, including single characters and empty strings; state,
// pending escapes and the bracket-expectation stack carry across chunk boundaries.
//
// A Parser is single-owner and not safe for concurrent use. Create one per logical turn, or
// call Reset before each new turn; otherwise entries from the previous turn bleed into the
// next.
type Parser struct {
	cfg     Config
	allowed map[string]struct{}
	sink    livefeed.DiagnosticSink

	state State

	// stack holds the closing delimiters still owed by the value being captured. Its length is
	// the current nesting depth.
	stack []rune

	// escaped is set after a lone backslash; the next character completes the sequence.
	escaped bool

	// inString is set while inside a string nested in an object or array value.
	inString bool

	name    strings.Builder
	entries []*entry

	// current is the entry receiving content. It is not in entries when its name was
	// rejected.
	current *entry

	offset int
}

// entry is one section as accumulated so far.
type entry struct {
	name     string
	raw      strings.Builder
	typ      livefeed.ValueType
	complete bool
}

// NewParser creates a Parser.
func NewParser(cfg Config) *Parser {
	p := &Parser{cfg: cfg, sink: cfg.Sink}
	if p.sink == nil {
		p.sink = livefeed.NewLogSink(DefaultLoggerName)
	}
	if cfg.AllowedNames != nil {
		p.allowed = make(map[string]struct{}, len(cfg.AllowedNames))
		for _, name := range cfg.AllowedNames {
			p.allowed[name] = struct{}{}
		}
	}
	return p
}

// newNestedParser creates the parser used to materialize a nested object. Nested keys are never
// validated, and the raw text was already checked once by the outer parser, so reports are
// dropped.
func newNestedParser() *Parser {
	return NewParser(Config{SkipValidation: true, Sink: livefeed.DiscardSink})
}

// WithSink replaces the diagnostic sink. Returns the parser for chaining.
func (p *Parser) WithSink(sink livefeed.DiagnosticSink) *Parser {
	if sink == nil {
		sink = livefeed.DiscardSink
	}
	p.sink = sink
	return p
}

// Config returns the configuration the parser was created with.
func (p *Parser) Config() Config {
	return p.cfg
}

// State returns the current state.
func (p *Parser) State() State {
	return p.state
}

// Depth returns the current bracket nesting depth.
func (p *Parser) Depth() int {
	return len(p.stack)
}

// Poisoned reports whether the parser stopped accepting input after a malformed character.
func (p *Parser) Poisoned() bool {
	return p.state == StatePoisoned
}

// Len returns the number of sections seen so far, including ones still growing.
func (p *Parser) Len() int {
	return len(p.entries)
}

// ProcessToken feeds a chunk of any size, including empty.
func (p *Parser) ProcessToken(text string) {
	for _, c := range text {
		p.offset++
		p.step(c)
	}
}

// Reset discards all entries and returns the parser to StateInit. Call it at the start of every
// logical turn.
func (p *Parser) Reset() {
	p.state = StateInit
	p.stack = p.stack[:0]
	p.escaped = false
	p.inString = false
	p.name.Reset()
	p.entries = nil
	p.current = nil
	p.offset = 0
}

// ResetAll is an alias of Reset.
func (p *Parser) ResetAll() {
	p.Reset()
}

func (p *Parser) step(c rune) {
	switch p.state {
	case StateInit:
		p.onInit(c)
	case StateSectionNameStart:
		p.onSectionNameStart(c)
	case StateCaptureSectionName:
		p.onCaptureSectionName(c)
	case StateWaitForColon:
		p.onWaitForColon(c)
	case StateSectionContentStart:
		p.onSectionContentStart(c)
	case StateCaptureSectionContent:
		p.onCaptureSectionContent(c)
	case StateSectionEnd:
		p.onSectionEnd(c)
	case StateArrayRoot:
		if p.captureNested(c) {
			p.current.complete = true
			p.state = StateArrayRootEnd
		}
	case StateArrayRootEnd, StateWaitForValueClose:
		if !isSpace(c) {
			p.malformed(c, "only whitespace may follow the root value")
		}
	case StatePoisoned:
		// Dropped until Reset.
	}
}

func (p *Parser) onInit(c rune) {
	switch {
	case isSpace(c):
	case c == '{':
		p.state = StateSectionNameStart
	case c == '[':
		e := p.open("")
		e.typ = livefeed.TypeArray
		e.raw.WriteRune(c)
		p.current = e
		p.stack = append(p.stack, ']')
		p.state = StateArrayRoot
	default:
		p.malformed(c, "expected '{' or '['")
	}
}

func (p *Parser) onSectionNameStart(c rune) {
	switch {
	case isSpace(c):
	case c == '"':
		p.name.Reset()
		p.state = StateCaptureSectionName
	case c == '}':
		p.state = StateWaitForValueClose
	default:
		p.malformed(c, "expected '\"' to open a section name")
	}
}

func (p *Parser) onCaptureSectionName(c rune) {
	if p.escaped {
		p.name.WriteRune('\\')
		p.name.WriteRune(c)
		p.escaped = false
		return
	}
	switch c {
	case '\\':
		p.escaped = true
	case '"':
		p.finishName(c)
	default:
		p.name.WriteRune(c)
	}
}

// finishName unescapes and validates the captured name. An accepted name gets its entry
// immediately, with empty content; a rejected name's value is still consumed, into a detached
// entry that never shows up in results.
func (p *Parser) finishName(c rune) {
	name := Unescape(p.name.String())
	if p.nameAllowed(name) {
		p.current = p.open(name)
	} else {
		p.report(c, fmt.Errorf("%w: %q", livefeed.ErrRejectedSection, name))
		p.current = &entry{name: name}
	}
	p.name.Reset()
	p.state = StateWaitForColon
}

func (p *Parser) nameAllowed(name string) bool {
	if p.cfg.SkipValidation || p.allowed == nil {
		return true
	}
	_, ok := p.allowed[name]
	return ok
}

func (p *Parser) onWaitForColon(c rune) {
	switch {
	case isSpace(c):
	case c == ':':
		p.state = StateSectionContentStart
	default:
		p.malformed(c, "expected ':' after section name")
	}
}

func (p *Parser) onSectionContentStart(c rune) {
	if isSpace(c) {
		return
	}
	typ, ok := livefeed.SniffValueType(c)
	if !ok {
		p.malformed(c, "expected a JSON value")
		return
	}

	e := p.current
	e.typ = typ
	switch typ {
	case livefeed.TypeString:
		// The opening quote is not part of the content.
	case livefeed.TypeObject:
		e.raw.WriteRune(c)
		p.stack = append(p.stack, '}')
	case livefeed.TypeArray:
		e.raw.WriteRune(c)
		p.stack = append(p.stack, ']')
	default:
		e.raw.WriteRune(c)
	}
	p.inString = false
	p.state = StateCaptureSectionContent
}

func (p *Parser) onCaptureSectionContent(c rune) {
	switch p.current.typ {
	case livefeed.TypeString:
		p.captureString(c)
	case livefeed.TypeObject, livefeed.TypeArray:
		if p.captureNested(c) {
			p.current.complete = true
			p.state = StateSectionEnd
		}
	default:
		p.captureScalar(c)
	}
}

// captureString copies string content verbatim until an unescaped quote. Escape sequences are
// preserved, not interpreted.
func (p *Parser) captureString(c rune) {
	e := p.current
	if p.escaped {
		e.raw.WriteRune('\\')
		e.raw.WriteRune(c)
		p.escaped = false
		return
	}
	switch c {
	case '\\':
		p.escaped = true
	case '"':
		e.complete = true
		p.state = StateSectionEnd
	default:
		e.raw.WriteRune(c)
	}
}

// captureNested copies object or array content, keeping the bracket-expectation stack in step.
// Brackets inside nested strings do not count. Returns true when the stack empties, which only
// happens on the closer of the value's own type.
func (p *Parser) captureNested(c rune) bool {
	e := p.current
	if p.inString {
		switch {
		case p.escaped:
			e.raw.WriteRune('\\')
			p.escaped = false
		case c == '\\':
			p.escaped = true
			return false
		case c == '"':
			p.inString = false
		}
		e.raw.WriteRune(c)
		return false
	}

	switch c {
	case '"':
		p.inString = true
	case '{':
		p.stack = append(p.stack, '}')
	case '[':
		p.stack = append(p.stack, ']')
	case '}', ']':
		want := p.stack[len(p.stack)-1]
		if c != want {
			p.malformed(c, fmt.Sprintf("mismatched closer, expected %q", want))
			return false
		}
		p.stack = p.stack[:len(p.stack)-1]
		e.raw.WriteRune(c)
		return len(p.stack) == 0
	}
	e.raw.WriteRune(c)
	return false
}

// captureScalar copies number, boolean and null content. Whitespace is skipped; ',' ends the
// section with more to follow and '}' ends it as the last one. A character that would make the
// literal impossible is malformed.
func (p *Parser) captureScalar(c rune) {
	e := p.current
	switch {
	case isSpace(c):
	case c == ',':
		e.complete = true
		p.state = StateSectionNameStart
	case c == '}':
		e.complete = true
		p.state = StateWaitForValueClose
	case !scalarPlausible(e.typ, e.raw.String()+string(c)):
		p.malformed(c, fmt.Sprintf("not a valid %s literal", e.typ))
	default:
		e.raw.WriteRune(c)
	}
}

func (p *Parser) onSectionEnd(c rune) {
	switch {
	case isSpace(c):
	case c == ',':
		p.state = StateSectionNameStart
	case c == '}':
		p.state = StateWaitForValueClose
	default:
		p.malformed(c, "expected ',' or '}' after a section value")
	}
}

func (p *Parser) open(name string) *entry {
	e := &entry{name: name}
	p.entries = append(p.entries, e)
	return e
}

// malformed reports c and applies the configured policy. Under PolicyPoison the reason also
// wraps ErrPoisoned.
func (p *Parser) malformed(c rune, detail string) {
	reason := fmt.Errorf("%w: %s", livefeed.ErrMalformedInput, detail)
	if p.cfg.Policy != PolicyPoison {
		p.report(c, reason)
		return
	}
	p.report(c, fmt.Errorf("%w: %w", livefeed.ErrPoisoned, reason))
	p.state = StatePoisoned
}

func (p *Parser) report(c rune, reason error) {
	p.sink.Report(livefeed.Malformed{
		State:  p.state.String(),
		Char:   c,
		Offset: p.offset,
		Buffer: p.buffer(),
		Reason: reason,
	})
}

// buffer snapshots whatever is being accumulated.
func (p *Parser) buffer() string {
	if p.state == StateCaptureSectionName {
		return p.name.String()
	}
	if p.current != nil {
		return p.current.raw.String()
	}
	return ""
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
