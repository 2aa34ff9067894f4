package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickchristie/livefeed"
	"github.com/rickchristie/livefeed/internal/tt"
	"github.com/rickchristie/livefeed/schema"
	"github.com/rickchristie/livefeed/section"
	"github.com/rickchristie/livefeed/toolcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newTestSession(t *testing.T, tools *toolcall.Registry) (*Session, *livefeed.Diagnostics) {
	t.Helper()
	diags := &livefeed.Diagnostics{}
	s := NewSession(Config{
		Section: section.Config{
			AllowedNames: []string{"thinking", "answer", "action_json"},
			Sink:         diags,
		},
		Tools: tools,
	})
	t.Cleanup(s.Close)
	return s, diags
}

func collect(t *testing.T, ch <-chan Update) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("timed out waiting for updates")
			return out
		}
	}
}

func userMessage(text string) []llms.MessageContent {
	return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, text)}
}

func TestSession_Generate(t *testing.T) {
	s, diags := newTestSession(t, nil)
	model := tt.NewMockModel().AddChunks(`{"thinking": "The user`, ` wants 42", "ans`, `wer": 4`, `2}`)

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	turn, err := s.Generate(context.Background(), model, userMessage("what is 6*7?"))
	require.NoError(t, err)

	tt.AssertSections(t, []tt.SectionView{
		{Name: "thinking", Type: livefeed.TypeString, Value: "The user wants 42", Complete: true},
		{Name: "answer", Type: livefeed.TypeNumber, Value: float64(42), Complete: true},
	}, turn.Sections)
	assert.Equal(t, s.TurnID(), turn.ID)
	assert.Equal(t, `{"thinking": "The user wants 42", "answer": 42}`, turn.Response.Choices[0].Content)
	assert.Equal(t, 1, model.CallCount())
	assert.Empty(t, diags.Records())

	s.Close()
	got := collect(t, updates)
	require.Len(t, got, 4)

	for i, u := range got {
		assert.Equal(t, turn.ID, u.TurnID)
		assert.Equal(t, i+1, u.Seq)
	}

	// Rebuilding the view from deltas matches the final snapshot.
	var view []livefeed.Section
	for _, u := range got {
		if u.Delta.Replaced != nil {
			view[u.Delta.Replaced.Index] = u.Delta.Replaced.Section
		}
		view = append(view, u.Delta.Appended...)
	}
	assert.Equal(t, turn.Sections, view)
}

func TestSession_ToolCalls(t *testing.T) {
	tools := toolcall.NewRegistry()
	require.NoError(t, tools.Register("search", "Search", schema.Object(map[string]*schema.Property{
		"query": schema.String("Query"),
	}, "query")))

	s, _ := newTestSession(t, tools)
	model := tt.NewMockModel().AddChunks(
		`{"thinking": "search it", "action_json": "{\"tool\": `,
		`\"search\", \"args\": {\"query\": \"go\"}}`,
		`"}`,
	)

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	turn, err := s.Generate(context.Background(), model, userMessage("find go"))
	require.NoError(t, err)
	require.NotNil(t, turn.Calls)
	assert.Equal(t, []*toolcall.Call{{Name: "search", Args: map[string]any{"query": "go"}}}, turn.Calls.Calls)
	assert.NoError(t, turn.Calls.Err())

	s.Close()
	withCalls := 0
	for _, u := range collect(t, updates) {
		if u.Calls != nil {
			withCalls++
			assert.Equal(t, turn.Calls.Calls, u.Calls.Calls)
		}
	}
	assert.Equal(t, 1, withCalls)
}

func TestSession_TurnsAreIsolated(t *testing.T) {
	s, _ := newTestSession(t, nil)
	model := tt.NewMockModel().
		AddChunks(`{"thinking": "first", "answer": 1}`).
		AddChunks(`{"answer": `, `2}`)

	first, err := s.Generate(context.Background(), model, userMessage("one"))
	require.NoError(t, err)
	second, err := s.Generate(context.Background(), model, userMessage("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	tt.AssertSections(t, []tt.SectionView{
		{Name: "answer", Type: livefeed.TypeNumber, Value: float64(2), Complete: true},
	}, second.Sections)
	assert.Equal(t, second.Sections, s.Snapshot())
}

func TestSession_ModelError(t *testing.T) {
	s, _ := newTestSession(t, nil)
	boom := errors.New("rate limited")
	model := tt.NewMockModel().AddError(boom)

	turn, err := s.Generate(context.Background(), model, userMessage("hi"))
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, turn)
	assert.Empty(t, turn.Sections)
}

type nonStreamingModel struct {
	content string
}

func (m nonStreamingModel) GenerateContent(
	_ context.Context,
	_ []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func (m nonStreamingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestSession_StreamEndsInsideRune(t *testing.T) {
	s, _ := newTestSession(t, nil)
	model := tt.NewMockModel().AddChunks(`{"thinking": "caf`, "\xc3")
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	turn, err := s.Generate(context.Background(), model, userMessage("hi"))
	require.NoError(t, err)

	tt.AssertSections(t, []tt.SectionView{
		{Name: "thinking", Type: livefeed.TypeString, Value: "caf\uFFFD"},
	}, turn.Sections)

	s.Close()
	got := collect(t, updates)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.NotNil(t, last.Delta.Replaced)
	assert.Equal(t, "caf\uFFFD", last.Delta.Replaced.Section.Value)
}

func TestSession_Flush(t *testing.T) {
	s, _ := newTestSession(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, []byte("{\"thinking\": \"caf\xc3")))
	thinking := s.Snapshot()[0]
	assert.Equal(t, "caf", thinking.Value)

	s.Flush()
	assert.Equal(t, "caf\uFFFD", s.Snapshot()[0].Value)

	s.Flush()
	assert.Equal(t, "caf\uFFFD", s.Snapshot()[0].Value)
}

func TestSession_NonStreamingModel(t *testing.T) {
	s, _ := newTestSession(t, nil)

	turn, err := s.Generate(context.Background(), nonStreamingModel{content: `{"answer": "done"}`}, userMessage("hi"))
	require.NoError(t, err)
	tt.AssertSections(t, []tt.SectionView{
		{Name: "answer", Type: livefeed.TypeString, Value: "done", Complete: true},
	}, turn.Sections)
}

func TestSession_Write(t *testing.T) {
	t.Run("implicit turn", func(t *testing.T) {
		s, _ := newTestSession(t, nil)
		assert.Empty(t, s.TurnID())

		require.NoError(t, s.Write(context.Background(), []byte(`{"answer": "x"}`)))
		assert.NotEmpty(t, s.TurnID())
		assert.Len(t, s.Snapshot(), 1)
	})

	t.Run("utf-8 split across chunks", func(t *testing.T) {
		s, _ := newTestSession(t, nil)
		s.BeginTurn()

		payload := []byte(`{"answer": "café ☕"}`)
		for _, b := range payload {
			require.NoError(t, s.Write(context.Background(), []byte{b}))
		}

		tt.AssertSections(t, []tt.SectionView{
			{Name: "answer", Type: livefeed.TypeString, Value: "café ☕", Complete: true},
		}, s.Snapshot())
	})

	t.Run("cancelled context", func(t *testing.T) {
		s, _ := newTestSession(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.Write(ctx, []byte(`{`)), context.Canceled)
	})

	t.Run("closed session", func(t *testing.T) {
		s, _ := newTestSession(t, nil)
		s.Close()
		assert.NotPanics(t, s.Close)

		assert.ErrorIs(t, s.Write(context.Background(), []byte(`{`)), ErrSessionClosed)
		_, err := s.Generate(context.Background(), tt.NewMockModel(), userMessage("hi"))
		assert.ErrorIs(t, err, ErrSessionClosed)

		ch, unsubscribe := s.Subscribe()
		_, ok := <-ch
		assert.False(t, ok)
		assert.NotPanics(t, func() { unsubscribe() })
	})

	t.Run("rejected section reported, no update", func(t *testing.T) {
		s, diags := newTestSession(t, nil)
		updates, unsubscribe := s.Subscribe()

		require.NoError(t, s.Write(context.Background(), []byte(`{"secret": "x"}`)))
		assert.Equal(t, 1, diags.Len())

		unsubscribe()
		assert.Empty(t, collect(t, updates))
	})
}

func TestSession_StreamingOption(t *testing.T) {
	s, _ := newTestSession(t, nil)
	s.BeginTurn()

	opts := llms.CallOptions{}
	s.StreamingOption()(&opts)
	require.NotNil(t, opts.StreamingFunc)

	require.NoError(t, opts.StreamingFunc(context.Background(), []byte(`{"answer": true}`)))
	tt.AssertSections(t, []tt.SectionView{
		{Name: "answer", Type: livefeed.TypeBoolean, Value: true, Complete: true},
	}, s.Snapshot())
}

func TestCompleteRunes(t *testing.T) {
	euro := []byte("€") // 3 bytes

	tests := []struct {
		name         string
		in           []byte
		wantComplete []byte
		wantRest     []byte
	}{
		{name: "ascii", in: []byte("ab"), wantComplete: []byte("ab"), wantRest: nil},
		{name: "empty", in: []byte{}, wantComplete: []byte{}, wantRest: nil},
		{name: "full multibyte", in: append([]byte("a"), euro...), wantComplete: append([]byte("a"), euro...), wantRest: nil},
		{name: "one byte of three", in: append([]byte("a"), euro[0]), wantComplete: []byte("a"), wantRest: euro[:1]},
		{name: "two bytes of three", in: append([]byte("a"), euro[:2]...), wantComplete: []byte("a"), wantRest: euro[:2]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			complete, rest := completeRunes(tc.in)
			assert.Equal(t, tc.wantComplete, complete)
			assert.Equal(t, tc.wantRest, rest)
		})
	}
}
