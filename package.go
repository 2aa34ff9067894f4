// Package livefeed turns a live, arbitrarily-chunked character feed from a language model into
// structured, partially-complete results as early as possible.
//
// The library has two independent engines:
//
//   - [pattern]: a constrained regex compiler whose automaton answers two questions about a
//     prefix: "could this still grow into a match?" and "is it already a match?". It powers
//     streaming delimiter detection ([pattern.Detector]).
//   - [section]: an incremental parser that extracts named top-level values from a live
//     JSON-shaped feed and exposes them, typed, while they are still growing.
//
// The root package holds the vocabulary both sides share with callers: [Section],
// [ValueType], and the diagnostic channel for malformed input ([DiagnosticSink]).
//
// # Quick Start: Streaming Sections
//
//	p := section.NewParser(section.Config{
//	    AllowedNames: []string{"thinking", "action_json"},
//	})
//
//	for chunk := range chunks {
//	    p.ProcessToken(chunk)
//	    for _, s := range p.CompletedSections() {
//	        fmt.Printf("%s (%s, complete=%v): %v\n", s.Name, s.Type, s.Complete, s.Value)
//	    }
//	}
//
//	// New turn: never reuse entries from the previous one.
//	p.Reset()
//
// # Quick Start: Partial Matching
//
//	a := pattern.MustCompile(`</?answer>`)
//	a.Match("</ans")     // {Plausible: true, Complete: false}
//	a.Match("</answer>") // {Plausible: true, Complete: true}
//	a.Match("<x")        // {Plausible: false, Complete: false}
//
// # Turns and Reconciliation
//
// [section.Parser.CompletedSections] always returns the full ordered snapshot. Callers that
// render incrementally compare snapshots by position: entries before the previous length are
// final, the entry at the previous last index may have grown, and entries beyond the previous
// length are new. [section.Reconciler] implements that protocol, and [feed.Session] wires it to
// a langchaingo streaming callback.
//
// # Malformed Input
//
// A live feed cannot be rejected and rewound. Characters that violate the grammar are
// reported to a [DiagnosticSink] and dropped; see [section.Policy] for the two available
// recovery policies.
package livefeed
