package livefeed

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/tliron/commonlog"
)

// Soft failures reported through a DiagnosticSink. A Malformed record's Reason wraps one of
// these.
var (
	ErrMalformedInput  = errors.New("malformed input")
	ErrRejectedSection = errors.New("section name not allowed")
	ErrPoisoned        = errors.New("parser poisoned by malformed input")
)

// Malformed describes one character the parser refused.
type Malformed struct {
	// State is the parser state the character arrived in (e.g. "SECTION_END").
	State string

	// Char is the offending character.
	Char rune

	// Offset is the 1-indexed rune offset of Char since the last reset.
	Offset int

	// Buffer is a snapshot of the buffer being accumulated when Char arrived.
	Buffer string

	// Reason explains the refusal. It wraps ErrMalformedInput or ErrRejectedSection, and
	// also ErrPoisoned when the refusal poisoned the parser.
	Reason error
}

// Error implements error so a Malformed record can be returned or wrapped directly.
func (m Malformed) Error() string {
	return fmt.Sprintf(
		"%v at offset %d in state %s: char %s, buffer %q",
		m.Reason, m.Offset, m.State, strconv.QuoteRune(m.Char), m.Buffer,
	)
}

// Unwrap returns the Reason.
func (m Malformed) Unwrap() error {
	return m.Reason
}

// DiagnosticSink receives soft failures from a streaming parser.
//
// Report is called synchronously from inside ProcessToken. Implementations must not call
// back into the parser.
type DiagnosticSink interface {
	Report(m Malformed)
}

// DiagnosticFunc adapts a plain function to DiagnosticSink.
type DiagnosticFunc func(m Malformed)

// Report calls f(m).
func (f DiagnosticFunc) Report(m Malformed) {
	f(m)
}

// DiscardSink drops every report.
var DiscardSink DiagnosticSink = DiagnosticFunc(func(Malformed) {})

// LogSink writes reports to a commonlog logger at warning level.
type LogSink struct {
	log commonlog.Logger
}

// NewLogSink creates a LogSink that logs under the given logger name.
func NewLogSink(name string) *LogSink {
	return &LogSink{log: commonlog.GetLogger(name)}
}

// Report logs m.
func (s *LogSink) Report(m Malformed) {
	s.log.Warningf("%s", m.Error())
}

// Diagnostics collects reports in memory. It is safe for concurrent use.
type Diagnostics struct {
	mu      sync.Mutex
	records []Malformed
}

// Report appends m.
func (d *Diagnostics) Report(m Malformed) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, m)
}

// Records returns a copy of everything reported so far.
func (d *Diagnostics) Records() []Malformed {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Malformed, len(d.records))
	copy(out, d.records)
	return out
}

// Len returns the number of reports.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Reset discards all reports.
func (d *Diagnostics) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = nil
}

// Compile-time checks.
var (
	_ DiagnosticSink = (*LogSink)(nil)
	_ DiagnosticSink = (*Diagnostics)(nil)
)
