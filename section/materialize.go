package section

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/rickchristie/livefeed"
	"github.com/rickchristie/livefeed/pattern"
)

// embeddedJSON sniffs string content that is itself escaped JSON: an optional quote and
// whitespace, then a bracket or brace, then an escaped quote.
var embeddedJSON = pattern.MustCompile(`\s*("|)\s*[\[{]\s*\\"`)

// numberLiteral is the JSON number grammar. Partial matches are numbers still arriving.
var numberLiteral = pattern.MustCompile(`(-|)(0|[1-9]\d*)(\.\d+|)([eE]([-+]|)\d+|)`)

var literals = [...]struct {
	text  string
	value any
}{
	{"true", true},
	{"false", false},
	{"null", nil},
}

// CompletedSections materializes every section seen so far, in arrival order.
//
// It is safe to call any number of times; each call reflects everything fed so far. Entries
// before the previous call's length are final; only the last entry may still be growing. See
// [Reconciler] for applying successive snapshots incrementally.
func (p *Parser) CompletedSections() []livefeed.Section {
	out := make([]livefeed.Section, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.section())
	}
	return out
}

// Sections is an alias of CompletedSections.
func (p *Parser) Sections() []livefeed.Section {
	return p.CompletedSections()
}

// Lookup materializes the first section with the given name.
func (p *Parser) Lookup(name string) (livefeed.Section, bool) {
	for _, e := range p.entries {
		if e.name == name {
			return e.section(), true
		}
	}
	return livefeed.Section{}, false
}

func (e *entry) section() livefeed.Section {
	raw := e.raw.String()
	return livefeed.Section{
		Name:     e.name,
		Value:    Materialize(e.typ, raw),
		Type:     e.typ,
		Complete: e.complete,
		Raw:      raw,
	}
}

// Materialize converts a raw section buffer into a typed value. See [livefeed.Section] for the
// Go type produced per value type. Partial input yields the most complete value available.
func Materialize(typ livefeed.ValueType, raw string) any {
	switch typ {
	case livefeed.TypeString:
		return materializeString(raw)
	case livefeed.TypeNumber:
		return materializeNumber(raw)
	case livefeed.TypeBoolean, livefeed.TypeNull:
		return materializeLiteral(raw)
	case livefeed.TypeObject:
		return materializeObject(raw)
	case livefeed.TypeArray:
		return materializeArray(raw)
	default:
		return nil
	}
}

// materializeString unescapes string content. Content that sniffs as escaped embedded JSON is
// unescaped and materialized as the nested object or array instead.
func materializeString(raw string) any {
	if !embeddedJSON.HasMatchPrefix(raw) {
		return Unescape(raw)
	}

	inner := strings.TrimSpace(Unescape(raw))
	if rest, ok := strings.CutPrefix(inner, `"`); ok {
		inner = strings.TrimSpace(rest)
		inner = strings.TrimSuffix(inner, `"`)
	}
	if strings.HasPrefix(inner, "[") {
		return materializeArray(inner)
	}
	return materializeObject(inner)
}

func materializeNumber(raw string) any {
	if !numberLiteral.MatchString(raw) {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return f
}

// materializeLiteral resolves true/false/null. A prefix such as "tr" is still ambiguous and
// yields nil.
func materializeLiteral(raw string) any {
	for _, lit := range literals {
		if raw == lit.text {
			return lit.value
		}
	}
	return nil
}

// scalarPlausible reports whether raw can still grow into a valid literal of typ.
func scalarPlausible(typ livefeed.ValueType, raw string) bool {
	switch typ {
	case livefeed.TypeNumber:
		return numberLiteral.Match(raw).Plausible
	case livefeed.TypeBoolean, livefeed.TypeNull:
		for _, lit := range literals {
			if strings.HasPrefix(lit.text, raw) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// materializeObject runs a fresh parser over the raw object text and flattens its sections
// into one map. Keys whose values have not started yet map to nil.
func materializeObject(raw string) map[string]any {
	sub := newNestedParser()
	sub.ProcessToken(raw)

	out := make(map[string]any, sub.Len())
	for _, s := range sub.CompletedSections() {
		out[s.Name] = s.Value
	}
	return out
}

// materializeArray splits raw array text on top-level commas and materializes each element like
// a section value. A trailing element still arriving is materialized as far as it goes; an
// element with no content yet is left out.
func materializeArray(raw string) []any {
	body := strings.TrimPrefix(strings.TrimSpace(raw), "[")
	elements := splitTopLevel(body)

	out := make([]any, 0, len(elements))
	for _, el := range elements {
		el = strings.TrimSpace(el)
		if el == "" {
			continue
		}
		out = append(out, materializeElement(el))
	}
	return out
}

func materializeElement(el string) any {
	first, _ := utf8.DecodeRuneInString(el)
	typ, ok := livefeed.SniffValueType(first)
	if !ok {
		return nil
	}
	if typ == livefeed.TypeString {
		return materializeString(trimClosingQuote(el[1:]))
	}
	return Materialize(typ, el)
}

// splitTopLevel splits array body text on commas outside nested strings and brackets. It stops
// at the array's own closing bracket.
func splitTopLevel(body string) []string {
	var (
		parts    []string
		start    int
		depth    int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				return append(parts, body[start:i])
			}
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

// trimClosingQuote removes the closing quote of string element content, if it has arrived.
func trimClosingQuote(s string) string {
	if !strings.HasSuffix(s, `"`) {
		return s
	}
	backslashes := 0
	for i := len(s) - 2; i >= 0 && s[i] == '\\'; i-- {
		backslashes++
	}
	if backslashes%2 == 1 {
		return s
	}
	return s[:len(s)-1]
}

// Unescape interprets JSON string escape sequences. An escape sequence cut off at the end of s
// is dropped, since its remaining characters have not arrived yet. Unknown escapes are kept
// verbatim.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		i++
		switch s[i] {
		case '"', '\\', '/':
			sb.WriteByte(s[i])
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'u':
			r, n, partial := decodeUnicodeEscape(s[i+1:])
			if partial {
				return sb.String()
			}
			if n == 0 {
				sb.WriteString(`\u`)
				continue
			}
			sb.WriteRune(r)
			i += n
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// decodeUnicodeEscape decodes the XXXX (and an optional \uXXXX low surrogate) following a \u.
// It returns the rune and the bytes consumed, or partial when s ends before the escape could
// complete. n is 0 for an invalid escape.
func decodeUnicodeEscape(s string) (r rune, n int, partial bool) {
	hi, ok, short := hex4(s)
	if short {
		return 0, 0, true
	}
	if !ok {
		return 0, 0, false
	}
	r = rune(hi)
	if !utf16.IsSurrogate(r) {
		return r, 4, false
	}

	rest := s[4:]
	if len(rest) < 6 && lowSurrogatePrefix(rest) {
		return 0, 0, true
	}
	if strings.HasPrefix(rest, `\u`) {
		if lo, ok, _ := hex4(rest[2:]); ok {
			if dec := utf16.DecodeRune(r, rune(lo)); dec != utf8.RuneError {
				return dec, 10, false
			}
		}
	}
	return utf8.RuneError, 4, false
}

// lowSurrogatePrefix reports whether s could still grow into the \uXXXX that completes a
// surrogate pair.
func lowSurrogatePrefix(s string) bool {
	switch {
	case s == "":
		return true
	case s[0] != '\\':
		return false
	case len(s) == 1:
		return true
	case s[1] != 'u':
		return false
	}
	_, _, short := hex4(s[2:])
	return short
}

// hex4 parses four hex digits at the start of s. short reports that s is a valid but
// incomplete prefix.
func hex4(s string) (v uint64, ok bool, short bool) {
	if len(s) < 4 {
		for i := 0; i < len(s); i++ {
			if !isHex(s[i]) {
				return 0, false, false
			}
		}
		return 0, false, true
	}
	v, err := strconv.ParseUint(s[:4], 16, 32)
	if err != nil {
		return 0, false, false
	}
	return v, true, false
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
