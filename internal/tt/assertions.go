// Package tt holds test helpers shared across packages.
package tt

import (
	"testing"

	"github.com/rickchristie/livefeed"
	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// Feeding Helpers
// -----------------------------------------------------------------------------

// TokenProcessor is anything fed with ProcessToken, e.g. *section.Parser.
type TokenProcessor interface {
	ProcessToken(text string)
}

// SplitEvery splits s into chunks of n runes. The last chunk may be shorter.
func SplitEvery(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}

// Feed feeds s to p in chunks of n runes. n <= 0 feeds s in one call.
func Feed(p TokenProcessor, s string, n int) {
	for _, chunk := range SplitEvery(s, n) {
		p.ProcessToken(chunk)
	}
}

// ChunkSizes are the chunk sizes tests use to show results do not depend on chunk alignment:
// one character, a few characters, and the whole input.
var ChunkSizes = []int{1, 2, 3, 7, 0}

// -----------------------------------------------------------------------------
// Section Assertion Helpers
// -----------------------------------------------------------------------------

// SectionView is the part of a section tests usually assert on.
type SectionView struct {
	Name     string
	Type     livefeed.ValueType
	Value    any
	Complete bool
}

// Views strips Raw from sections.
func Views(sections []livefeed.Section) []SectionView {
	out := make([]SectionView, len(sections))
	for i, s := range sections {
		out[i] = SectionView{Name: s.Name, Type: s.Type, Value: s.Value, Complete: s.Complete}
	}
	return out
}

// AssertSections asserts that actual matches expected, ignoring Raw.
func AssertSections(t *testing.T, expected []SectionView, actual []livefeed.Section, msgAndArgs ...any) {
	t.Helper()

	if len(expected) == 0 {
		assert.Empty(t, actual, msgAndArgs...)
		return
	}
	assert.Equal(t, expected, Views(actual), msgAndArgs...)
}

// Names returns the section names in order.
func Names(sections []livefeed.Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Name
	}
	return out
}
