// Package pattern compiles a constrained regular expression into an automaton with partial-match
// semantics.
//
// # Overview
//
// A conventional anchored match answers "does this string match?". When the string is the
// first few characters of a live feed, that is the wrong question. A stream consumer needs to
// know whether the prefix could still grow into a match, so it can hold those characters back
// instead of rendering them. [Automaton.Match] answers both questions at once:
//
//	a := pattern.MustCompile(`ab*c`)
//	a.Match("a")    // {Plausible: true,  Complete: false}  hold back
//	a.Match("abbc") // {Plausible: true,  Complete: true}   delimiter found
//	a.Match("x")    // {Plausible: false, Complete: false}  plain text
//
// # Supported Syntax
//
//   - Literals, and escaped metacharacters such as \. \* \( \\
//   - Escapes: \d \w \s \n \t \r
//   - Classes: [abc], ranges [a-z], negation [^abc]
//   - Wildcard: . (any character except newline)
//   - Grouping ( ), alternation |, zero-or-more *, one-or-more +
//
// Precedence: postfix operators bind tighter than concatenation, which binds tighter than
// alternation. Parentheses override both.
//
// Not supported: ?, bounded repetition {n,m}, anchors, lookaround, backreferences. They fail at
// compile time with [ErrUnsupportedSyntax] rather than being silently misread.
//
// # Pipeline
//
//  1. [Parse] turns the pattern string into a [Node] tree.
//  2. [Build] turns the tree into an [Automaton] via Thompson construction.
//  3. [Automaton.Match] simulates the automaton over a prefix.
//
// [Compile] runs steps 1 and 2.
//
// # Thread Safety
//
// An Automaton is immutable once built and safe for concurrent use. Match keeps its frontier
// local to one call; nothing survives between calls. [Matcher] and [Detector] are per-stream
// wrappers and are not safe for concurrent use.
package pattern
