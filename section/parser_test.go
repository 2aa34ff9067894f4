package section

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rickchristie/livefeed"
	"github.com/rickchristie/livefeed/internal/tt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(cfg Config) (*Parser, *livefeed.Diagnostics) {
	diags := &livefeed.Diagnostics{}
	cfg.Sink = diags
	return NewParser(cfg), diags
}

func TestParser_Sections(t *testing.T) {
	type input struct {
		feed string
	}

	type expected struct {
		sections []tt.SectionView
		state    State
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:  "string and number",
			input: input{feed: `{"a": "x", "b": 5}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeString, Value: "x", Complete: true},
					{Name: "b", Type: livefeed.TypeNumber, Value: float64(5), Complete: true},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "array with mixed elements",
			input: input{feed: `{"items": [1, "two", {"x": true}]}`},
			expected: expected{
				sections: []tt.SectionView{
					{
						Name:     "items",
						Type:     livefeed.TypeArray,
						Value:    []any{float64(1), "two", map[string]any{"x": true}},
						Complete: true,
					},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "embedded escaped json",
			input: input{feed: `{"action_json": "{\"tool\":\"x\"}"}`},
			expected: expected{
				sections: []tt.SectionView{
					{
						Name:     "action_json",
						Type:     livefeed.TypeString,
						Value:    map[string]any{"tool": "x"},
						Complete: true,
					},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "booleans and null",
			input: input{feed: `{"t": true, "f": false, "n": null}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "t", Type: livefeed.TypeBoolean, Value: true, Complete: true},
					{Name: "f", Type: livefeed.TypeBoolean, Value: false, Complete: true},
					{Name: "n", Type: livefeed.TypeNull, Value: nil, Complete: true},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "nested object with brackets inside strings",
			input: input{feed: `{"o": {"s": "a}b]c", "k": [1, [2]]}}`},
			expected: expected{
				sections: []tt.SectionView{
					{
						Name: "o",
						Type: livefeed.TypeObject,
						Value: map[string]any{
							"s": "a}b]c",
							"k": []any{float64(1), []any{float64(2)}},
						},
						Complete: true,
					},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "string keeps whitespace and interprets escapes on materialize",
			input: input{feed: `{"s": "  line\n\t\"quoted\" \\ end "}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "s", Type: livefeed.TypeString, Value: "  line\n\t\"quoted\" \\ end ", Complete: true},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "unicode escapes",
			input: input{feed: `{"s": "caf\u00e9 \ud83d\ude00"}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "s", Type: livefeed.TypeString, Value: "café 😀", Complete: true},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "negative and fractional numbers",
			input: input{feed: `{"a": -1.5e2, "b": 0}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeNumber, Value: float64(-150), Complete: true},
					{Name: "b", Type: livefeed.TypeNumber, Value: float64(0), Complete: true},
				},
				state: StateWaitForValueClose,
			},
		},
		{
			name:  "root array",
			input: input{feed: `[1, "two", {"x": true}, [null]]`},
			expected: expected{
				sections: []tt.SectionView{
					{
						Name:     "",
						Type:     livefeed.TypeArray,
						Value:    []any{float64(1), "two", map[string]any{"x": true}, []any{nil}},
						Complete: true,
					},
				},
				state: StateArrayRootEnd,
			},
		},
		{
			name:  "empty object",
			input: input{feed: `{}`},
			expected: expected{
				sections: nil,
				state:    StateWaitForValueClose,
			},
		},
		{
			name:  "whitespace everywhere",
			input: input{feed: " \n{ \"a\" \t:\n \"x\" ,\n\"b\"\t: [ ]\r\n}\n "},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeString, Value: "x", Complete: true},
					{Name: "b", Type: livefeed.TypeArray, Value: []any{}, Complete: true},
				},
				state: StateWaitForValueClose,
			},
		},
	}

	for _, tt_ := range tests {
		t.Run(tt_.name, func(t *testing.T) {
			for _, size := range tt.ChunkSizes {
				p, diags := newTestParser(Config{})
				tt.Feed(p, tt_.input.feed, size)

				tt.AssertSections(t, tt_.expected.sections, p.CompletedSections(), "chunk size %d", size)
				assert.Equal(t, tt_.expected.state, p.State(), "chunk size %d", size)
				assert.Equal(t, 0, p.Depth(), "chunk size %d", size)
				assert.Empty(t, diags.Records(), "chunk size %d", size)
			}
		})
	}
}

func TestParser_CharByCharMatchesSingleCall(t *testing.T) {
	feed := `{"a": "x", "b": 5}`

	whole, _ := newTestParser(Config{})
	whole.ProcessToken(feed)

	chars, _ := newTestParser(Config{})
	for _, c := range feed {
		chars.ProcessToken(string(c))
	}

	assert.Equal(t, whole.CompletedSections(), chars.CompletedSections())
	require.Len(t, chars.CompletedSections(), 2)
}

func TestParser_PartialProgress(t *testing.T) {
	type step struct {
		chunk    string
		sections []tt.SectionView
	}

	steps := []step{
		{chunk: ``, sections: nil},
		{chunk: `{"thin`, sections: nil},
		{chunk: `king"`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeUnknown},
		}},
		{chunk: `: "The user wa`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: "The user wa"},
		}},
		{chunk: `nts \`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: "The user wants "},
		}},
		{chunk: `"a hero\"", "n": 4`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: `The user wants "a hero"`, Complete: true},
			{Name: "n", Type: livefeed.TypeNumber, Value: float64(4)},
		}},
		{chunk: `2, "ok": tr`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: `The user wants "a hero"`, Complete: true},
			{Name: "n", Type: livefeed.TypeNumber, Value: float64(42), Complete: true},
			{Name: "ok", Type: livefeed.TypeBoolean, Value: nil},
		}},
		{chunk: `ue, "list": [1, {"a": "b`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: `The user wants "a hero"`, Complete: true},
			{Name: "n", Type: livefeed.TypeNumber, Value: float64(42), Complete: true},
			{Name: "ok", Type: livefeed.TypeBoolean, Value: true, Complete: true},
			{Name: "list", Type: livefeed.TypeArray, Value: []any{float64(1), map[string]any{"a": "b"}}},
		}},
		{chunk: `c"}]}`, sections: []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: `The user wants "a hero"`, Complete: true},
			{Name: "n", Type: livefeed.TypeNumber, Value: float64(42), Complete: true},
			{Name: "ok", Type: livefeed.TypeBoolean, Value: true, Complete: true},
			{Name: "list", Type: livefeed.TypeArray, Value: []any{float64(1), map[string]any{"a": "bc"}}, Complete: true},
		}},
	}

	p, diags := newTestParser(Config{})
	for i, s := range steps {
		p.ProcessToken(s.chunk)
		tt.AssertSections(t, s.sections, p.CompletedSections(), "step %d", i)
		// Querying is idempotent.
		tt.AssertSections(t, s.sections, p.CompletedSections(), "step %d (repeat)", i)
	}
	assert.Empty(t, diags.Records())
}

func TestParser_DepthTracksNesting(t *testing.T) {
	p, _ := newTestParser(Config{})

	expectations := []struct {
		chunk string
		depth int
	}{
		{`{"a": `, 0},
		{`{`, 1},
		{`"b": [`, 2},
		{`[`, 3},
		{`"]]"`, 3},
		{`]`, 2},
		{`]`, 1},
		{`}`, 0},
	}
	for _, e := range expectations {
		p.ProcessToken(e.chunk)
		assert.Equal(t, e.depth, p.Depth(), "after %q", e.chunk)
	}
	assert.Equal(t, StateSectionEnd, p.State())
}

func TestParser_Reset(t *testing.T) {
	p, _ := newTestParser(Config{})

	p.ProcessToken(`{"first": "turn one", "shared": 1}`)
	require.Len(t, p.CompletedSections(), 2)

	p.Reset()
	assert.Equal(t, StateInit, p.State())
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, p.CompletedSections())

	p.ProcessToken(`{"second": "turn`)
	tt.AssertSections(t, []tt.SectionView{
		{Name: "second", Type: livefeed.TypeString, Value: "turn"},
	}, p.CompletedSections())

	// Reset mid-escape and mid-nesting must not leak either.
	p.ProcessToken(`", "o": {"x": "\`)
	p.ResetAll()
	assert.Equal(t, 0, p.Depth())
	p.ProcessToken(`{"s": "n"}`)
	tt.AssertSections(t, []tt.SectionView{
		{Name: "s", Type: livefeed.TypeString, Value: "n", Complete: true},
	}, p.CompletedSections())
}

func TestParser_AllowList(t *testing.T) {
	feed := `{"thinking": "hm", "secret": {"k": [1, "}"]}, "answer": 42}`

	t.Run("restrictive allow-list reports and excludes", func(t *testing.T) {
		p, diags := newTestParser(Config{AllowedNames: []string{"thinking", "answer"}})
		p.ProcessToken(feed)

		tt.AssertSections(t, []tt.SectionView{
			{Name: "thinking", Type: livefeed.TypeString, Value: "hm", Complete: true},
			{Name: "answer", Type: livefeed.TypeNumber, Value: float64(42), Complete: true},
		}, p.CompletedSections())

		records := diags.Records()
		require.Len(t, records, 1)
		assert.ErrorIs(t, records[0], livefeed.ErrRejectedSection)
		assert.Equal(t, "secret", records[0].Buffer)
		assert.Equal(t, "CAPTURE_SECTION_NAME", records[0].State)
		assert.Equal(t, '"', records[0].Char)
	})

	t.Run("validation disabled includes it", func(t *testing.T) {
		p, diags := newTestParser(Config{
			AllowedNames:   []string{"thinking", "answer"},
			SkipValidation: true,
		})
		p.ProcessToken(feed)

		assert.Equal(t, []string{"thinking", "secret", "answer"}, tt.Names(p.CompletedSections()))
		secret, ok := p.Lookup("secret")
		require.True(t, ok)
		assert.Equal(t, livefeed.TypeObject, secret.Type)
		assert.Equal(t, map[string]any{"k": []any{float64(1), "}"}}, secret.Value)
		assert.Empty(t, diags.Records())
	})

	t.Run("nil allow-list accepts any name", func(t *testing.T) {
		p, diags := newTestParser(Config{AllowedNames: nil})
		p.ProcessToken(feed)

		assert.Len(t, p.CompletedSections(), 3)
		assert.Empty(t, diags.Records())
	})

	t.Run("rejected name under poison policy does not poison", func(t *testing.T) {
		p, diags := newTestParser(Config{
			AllowedNames: []string{"thinking", "answer"},
			Policy:       PolicyPoison,
		})
		p.ProcessToken(feed)

		assert.False(t, p.Poisoned())
		assert.Equal(t, []string{"thinking", "answer"}, tt.Names(p.CompletedSections()))
		assert.Equal(t, 1, diags.Len())
	})
}

func TestParser_EscapedNames(t *testing.T) {
	t.Run("section names and nested keys are unescaped", func(t *testing.T) {
		feed := `{"o": {"a\"b": 1, "c\u0041": 2}, "a\"b": "x"}`
		for _, size := range tt.ChunkSizes {
			p, diags := newTestParser(Config{})
			tt.Feed(p, feed, size)

			tt.AssertSections(t, []tt.SectionView{
				{
					Name:     "o",
					Type:     livefeed.TypeObject,
					Value:    map[string]any{`a"b`: float64(1), "cA": float64(2)},
					Complete: true,
				},
				{Name: `a"b`, Type: livefeed.TypeString, Value: "x", Complete: true},
			}, p.CompletedSections(), "chunk size %d", size)
			assert.Empty(t, diags.Records(), "chunk size %d", size)
		}
	})

	t.Run("allow-list compares unescaped names", func(t *testing.T) {
		p, diags := newTestParser(Config{AllowedNames: []string{"ab"}})
		p.ProcessToken(`{"a\u0062": true, "a\u0063": false}`)

		tt.AssertSections(t, []tt.SectionView{
			{Name: "ab", Type: livefeed.TypeBoolean, Value: true, Complete: true},
		}, p.CompletedSections())

		records := diags.Records()
		require.Len(t, records, 1)
		assert.ErrorIs(t, records[0], livefeed.ErrRejectedSection)
		assert.Contains(t, records[0].Error(), `"ac"`)
	})
}

func TestParser_MalformedSkip(t *testing.T) {
	type input struct {
		feed string
	}

	type expected struct {
		sections []tt.SectionView
		chars    []rune
		states   []string
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:  "markdown fence before the root is skipped",
			input: input{feed: "```json\n{\"a\": 1}"},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeNumber, Value: float64(1), Complete: true},
				},
				chars:  []rune("```json"),
				states: []string{"INIT", "INIT", "INIT", "INIT", "INIT", "INIT", "INIT"},
			},
		},
		{
			name:  "stray character between sections",
			input: input{feed: `{"a": "x"; "b": 2}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeString, Value: "x", Complete: true},
				},
				// SECTION_END only accepts ',' or '}', so everything up to the root '}' is
				// dropped except whitespace.
				chars:  []rune(`;"b":2`),
				states: []string{"SECTION_END", "SECTION_END", "SECTION_END", "SECTION_END", "SECTION_END", "SECTION_END"},
			},
		},
		{
			name:  "bad literal character is dropped",
			input: input{feed: `{"ok": trxue}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "ok", Type: livefeed.TypeBoolean, Value: true, Complete: true},
				},
				chars:  []rune("x"),
				states: []string{"CAPTURE_SECTION_CONTENT"},
			},
		},
		{
			name:  "leading zero in number is dropped",
			input: input{feed: `{"n": 01}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "n", Type: livefeed.TypeNumber, Value: float64(0), Complete: true},
				},
				chars:  []rune("1"),
				states: []string{"CAPTURE_SECTION_CONTENT"},
			},
		},
		{
			name:  "mismatched closer is dropped",
			input: input{feed: `{"o": {"a": [1}]}}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "o", Type: livefeed.TypeObject, Value: map[string]any{"a": []any{float64(1)}}, Complete: true},
				},
				chars:  []rune("}"),
				states: []string{"CAPTURE_SECTION_CONTENT"},
			},
		},
		{
			name:  "garbage after root",
			input: input{feed: `{"a": 1} x`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeNumber, Value: float64(1), Complete: true},
				},
				chars:  []rune("x"),
				states: []string{"WAIT_FOR_VALUE_CLOSE"},
			},
		},
		{
			name:  "missing colon",
			input: input{feed: `{"a" "x"}`},
			expected: expected{
				sections: []tt.SectionView{
					{Name: "a", Type: livefeed.TypeUnknown},
				},
				chars:  []rune(`"x"}`),
				states: []string{"WAIT_FOR_COLON", "WAIT_FOR_COLON", "WAIT_FOR_COLON", "WAIT_FOR_COLON"},
			},
		},
	}

	for _, tt_ := range tests {
		t.Run(tt_.name, func(t *testing.T) {
			p, diags := newTestParser(Config{Policy: PolicySkip})
			p.ProcessToken(tt_.input.feed)

			tt.AssertSections(t, tt_.expected.sections, p.CompletedSections())

			records := diags.Records()
			var chars []rune
			var states []string
			for _, r := range records {
				assert.ErrorIs(t, r, livefeed.ErrMalformedInput)
				assert.NotErrorIs(t, r, livefeed.ErrPoisoned)
				chars = append(chars, r.Char)
				states = append(states, r.State)
			}
			assert.Equal(t, tt_.expected.chars, chars)
			assert.Equal(t, tt_.expected.states, states)
			assert.False(t, p.Poisoned())
		})
	}
}

func TestParser_MalformedPoison(t *testing.T) {
	p, diags := newTestParser(Config{Policy: PolicyPoison})

	p.ProcessToken(`{"a": "kept", "b": 1`)
	p.ProcessToken(`x, "c": "never"}`)

	assert.True(t, p.Poisoned())
	assert.Equal(t, StatePoisoned, p.State())

	records := diags.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 'x', records[0].Char)
	assert.Equal(t, "CAPTURE_SECTION_CONTENT", records[0].State)
	assert.Equal(t, "1", records[0].Buffer)
	assert.Equal(t, 21, records[0].Offset)
	assert.ErrorIs(t, records[0], livefeed.ErrMalformedInput)
	assert.ErrorIs(t, records[0], livefeed.ErrPoisoned)

	tt.AssertSections(t, []tt.SectionView{
		{Name: "a", Type: livefeed.TypeString, Value: "kept", Complete: true},
		{Name: "b", Type: livefeed.TypeNumber, Value: float64(1)},
	}, p.CompletedSections())

	p.Reset()
	assert.False(t, p.Poisoned())
	p.ProcessToken(`{"c": "fresh"}`)
	tt.AssertSections(t, []tt.SectionView{
		{Name: "c", Type: livefeed.TypeString, Value: "fresh", Complete: true},
	}, p.CompletedSections())
	assert.Equal(t, 1, diags.Len())
}

func TestParser_EscapeSplitAcrossChunks(t *testing.T) {
	p, _ := newTestParser(Config{})

	p.ProcessToken(`{"s": "a\`)
	s, ok := p.Lookup("s")
	require.True(t, ok)
	assert.Equal(t, "a", s.Value)
	assert.Equal(t, "a", s.Raw)

	p.ProcessToken(`"b"}`)
	s, _ = p.Lookup("s")
	assert.Equal(t, `a"b`, s.Value)
	assert.Equal(t, `a\"b`, s.Raw)
	assert.True(t, s.Complete)
}

func TestParser_TypeIsImmutable(t *testing.T) {
	p, _ := newTestParser(Config{})

	p.ProcessToken(`{"v": "`)
	first, _ := p.Lookup("v")
	p.ProcessToken(`{\"a\": [1]}" }`)
	last, _ := p.Lookup("v")

	assert.Equal(t, livefeed.TypeString, first.Type)
	assert.Equal(t, livefeed.TypeString, last.Type)
	assert.Equal(t, map[string]any{"a": []any{float64(1)}}, last.Value)
}

func TestParser_DefaultSinkLogs(t *testing.T) {
	p := NewParser(Config{})
	assert.NotPanics(t, func() { p.ProcessToken("x{}") })

	p = NewParser(DefaultConfig())
	assert.NotPanics(t, func() { p.ProcessToken("x{}") })
}

func TestParser_WithSink(t *testing.T) {
	var got []livefeed.Malformed
	p := NewParser(Config{}).WithSink(livefeed.DiagnosticFunc(func(m livefeed.Malformed) {
		got = append(got, m)
	}))
	p.ProcessToken("?{}")

	require.Len(t, got, 1)
	assert.True(t, errors.Is(got[0], livefeed.ErrMalformedInput))
	assert.Contains(t, got[0].Error(), "INIT")
	assert.Contains(t, fmt.Sprint(got[0]), "'?'")
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in       string
		expected Policy
		err      error
	}{
		{in: "skip", expected: PolicySkip},
		{in: "", expected: PolicySkip},
		{in: "poison", expected: PolicyPoison},
		{in: "halt", expected: PolicySkip, err: ErrUnknownPolicy},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			p, err := ParsePolicy(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, p)
			assert.Equal(t, tc.expected, mustParsePolicy(t, p.String()))
		})
	}
}

func mustParsePolicy(t *testing.T, s string) Policy {
	t.Helper()
	p, err := ParsePolicy(s)
	require.NoError(t, err)
	return p
}
