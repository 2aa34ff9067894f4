// Package feed connects a streaming language model to a section parser.
//
// A [Session] owns one parser per turn. Its Write method has the shape langchaingo expects of a
// streaming callback, so wiring a model is one call option:
//
//	s := feed.NewSession(feed.Config{Section: section.Config{AllowedNames: names}})
//	updates, unsubscribe := s.Subscribe()
//	defer unsubscribe()
//
//	go func() {
//	    for u := range updates {
//	        render(u.Delta)
//	    }
//	}()
//
//	turn, err := s.Generate(ctx, llm, messages)
//
// Every chunk that changes the snapshot is published to subscribers as an [Update] carrying the
// reconciled delta, so a UI only touches what grew.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rickchristie/livefeed"
	"github.com/rickchristie/livefeed/internal/buffer"
	"github.com/rickchristie/livefeed/section"
	"github.com/rickchristie/livefeed/toolcall"
	"github.com/tliron/commonlog"
	"github.com/tmc/langchaingo/llms"
)

// LoggerName is the commonlog logger sessions log under.
const LoggerName = "livefeed.feed"

// ErrSessionClosed is returned by Write and Generate after Close.
var ErrSessionClosed = errors.New("feed session closed")

// Config configures a Session.
type Config struct {
	// Section configures the parser created for the session.
	Section section.Config

	// Tools, when set, extracts tool calls from the feed. The first Update after the tool-call
	// section completes carries them.
	Tools *toolcall.Registry
}

// Update is published whenever a write changes the snapshot.
type Update struct {
	// TurnID identifies the turn the update belongs to.
	TurnID string

	// Seq numbers updates within a turn, starting at 1.
	Seq int

	// Delta is the change since the previous update of the same turn.
	Delta section.Delta

	// Sections is the full snapshot after the write.
	Sections []livefeed.Section

	// Calls holds the extracted tool calls. It is set on exactly one update per turn, when the
	// tool-call section completes, and only if Config.Tools is set.
	Calls *toolcall.Result

	// CallsErr is set instead of Calls when the completed tool-call section could not be
	// decoded.
	CallsErr error
}

// Turn is the outcome of one Generate call.
type Turn struct {
	ID       string
	Sections []livefeed.Section
	Calls    *toolcall.Result
	CallsErr error
	Response *llms.ContentResponse
}

// UnsubscribeFunc cancels a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Session feeds streamed chunks into a section parser and fans updates out to subscribers.
//
// All methods are safe for concurrent use; the parser itself is only ever touched under the
// session's lock.
type Session struct {
	mu  sync.Mutex
	cfg Config
	log commonlog.Logger

	parser *section.Parser
	rec    section.Reconciler

	turnID    string
	seq       int
	written   int
	pending   []byte
	callsDone bool

	subs   map[uint64]*buffer.Mailbox[Update]
	nextID uint64
	closed bool
}

// NewSession creates a Session. Malformed-input reports go to cfg.Section.Sink, or to the
// session's logger when it is nil.
func NewSession(cfg Config) *Session {
	log := commonlog.GetLogger(LoggerName)
	if cfg.Section.Sink == nil {
		cfg.Section.Sink = livefeed.NewLogSink(LoggerName)
	}
	return &Session{
		cfg:    cfg,
		log:    log,
		parser: section.NewParser(cfg.Section),
		subs:   make(map[uint64]*buffer.Mailbox[Update]),
	}
}

// BeginTurn resets the parser and starts a new turn. Returns the new turn id.
func (s *Session) BeginTurn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginTurn()
}

func (s *Session) beginTurn() string {
	s.parser.Reset()
	s.rec.Reset()
	s.turnID = uuid.NewString()
	s.seq = 0
	s.written = 0
	s.pending = s.pending[:0]
	s.callsDone = false
	s.log.Debugf("turn %s started", s.turnID)
	return s.turnID
}

// TurnID returns the current turn id, or "" before the first turn.
func (s *Session) TurnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnID
}

// Write feeds one streamed chunk. A turn is started implicitly if none is active. Bytes of a
// UTF-8 sequence split across chunks are held until the sequence completes.
//
// Write matches the llms.WithStreamingFunc callback signature.
func (s *Session) Write(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.turnID == "" {
		s.beginTurn()
	}

	s.written += len(chunk)
	s.pending = append(s.pending, chunk...)
	text, rest := completeRunes(s.pending)
	if len(text) == 0 {
		return nil
	}
	s.parser.ProcessToken(string(text))
	s.pending = append(s.pending[:0], rest...)

	s.publish()
	return nil
}

// Flush feeds bytes still held back at the end of a stream. A stream that ends inside a UTF-8
// sequence leaves an incomplete tail; it is fed as replacement characters and logged. Generate
// calls Flush itself; callers driving Write through StreamingOption should call it once the
// model returns.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush()
}

func (s *Session) flush() {
	if len(s.pending) == 0 || s.closed {
		return
	}
	s.log.Warningf("turn %s: stream ended inside a UTF-8 sequence, feeding %d dangling bytes",
		s.turnID, len(s.pending))
	s.parser.ProcessToken(string(s.pending))
	s.pending = s.pending[:0]
	s.publish()
}

// StreamingOption returns the call option that streams a model's output into the session.
func (s *Session) StreamingOption() llms.CallOption {
	return llms.WithStreamingFunc(s.Write)
}

// Snapshot returns the current turn's sections.
func (s *Session) Snapshot() []livefeed.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.CompletedSections()
}

// Generate starts a new turn and runs model with streaming wired into the session. Models that
// ignore the streaming callback are handled by feeding the final response content in one go.
func (s *Session) Generate(
	ctx context.Context,
	model llms.Model,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*Turn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	id := s.beginTurn()
	s.mu.Unlock()

	opts := append(append([]llms.CallOption(nil), options...), s.StreamingOption())
	resp, err := model.GenerateContent(ctx, messages, opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnID == id {
		s.flush()
	}
	if err == nil && s.written == 0 && resp != nil && len(resp.Choices) > 0 && s.turnID == id {
		if content := resp.Choices[0].Content; content != "" {
			s.log.Debugf("turn %s: model did not stream, feeding response content", id)
			s.parser.ProcessToken(content)
			s.written = len(content)
			s.publish()
		}
	}

	turn := &Turn{
		ID:       id,
		Sections: s.parser.CompletedSections(),
		Response: resp,
	}
	if s.cfg.Tools != nil {
		turn.Calls, turn.CallsErr = s.cfg.Tools.Extract(turn.Sections)
	}
	if err != nil {
		return turn, fmt.Errorf("generate turn %s: %w", id, err)
	}
	return turn, nil
}

// publish reconciles the snapshot and sends an Update if anything changed. Callers hold mu.
func (s *Session) publish() {
	sections := s.parser.CompletedSections()
	d := s.rec.Apply(sections)
	if d.Empty() {
		return
	}

	s.seq++
	u := Update{TurnID: s.turnID, Seq: s.seq, Delta: d, Sections: sections}
	if s.cfg.Tools != nil && !s.callsDone {
		res, err := s.cfg.Tools.Extract(sections)
		if res != nil || err != nil {
			s.callsDone = true
			u.Calls, u.CallsErr = res, err
			if err != nil {
				s.log.Warningf("turn %s: %s", s.turnID, err)
			}
		}
	}

	for _, mb := range s.subs {
		mb.Send(u)
	}
}

// Subscribe returns a channel receiving every Update from now on. The channel closes after the
// returned function is called or the session is closed.
func (s *Session) Subscribe() (<-chan Update, UnsubscribeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		ch := make(chan Update)
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	mb := buffer.NewMailbox[Update]()
	s.subs[id] = mb

	return mb.Receive(), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
		mb.Stop()
	}
}

// Close closes the session. Subscribers still receive updates already published, then their
// channels close. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, mb := range s.subs {
		mb.Close()
		delete(s.subs, id)
	}
}

// completeRunes splits b before a trailing incomplete UTF-8 sequence.
func completeRunes(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}
