// Package section extracts named top-level values from a live, JSON-shaped feed and exposes
// them, typed, while they are still growing.
//
// # Overview
//
// A language model streaming a tool call emits something like:
//
//	{"thinking": "The user wants a hero section", "action_json": "{\"tool\":\"add\"}"}
//
// one token at a time. [Parser] consumes that feed character by character without lookahead and
// keeps an ordered list of sections. [Parser.CompletedSections] materializes them at any point:
//
//	p := section.NewParser(section.Config{AllowedNames: []string{"thinking", "action_json"}})
//	p.ProcessToken(`{"thinking": "The user wa`)
//	p.CompletedSections()
//	// [{Name: "thinking", Type: string, Value: "The user wa", Complete: false}]
//
// # Value Types
//
// A section's type is sniffed from its first non-whitespace character and never changes:
//
//   - string: content is copied verbatim, escapes preserved, until an unescaped quote
//   - object, array: content is copied with bracket tracking until the value's own closer
//   - number, boolean, null: non-whitespace is copied until ',' or the root '}'
//
// Objects and arrays are stored as raw text. Materializing them runs a fresh Parser over the
// raw text (objects) or splits it on top-level commas (arrays), recursively. A string that
// carries escaped JSON is unescaped and materialized as the nested value.
//
// # Name Validation
//
// [Config.AllowedNames] restricts section names. A rejected name is reported to the
// diagnostic sink and its value is consumed but never appears in results. Set
// [Config.SkipValidation] (or leave AllowedNames nil) to accept any name.
//
// # Malformed Input
//
// A live feed cannot be rejected and rewound. A character that violates the current state's
// grammar is reported as a [livefeed.Malformed] record and then handled per [Policy]:
//
//   - [PolicySkip] (default): drop the character and stay in the same state. A stray
//     character, such as the backticks of a markdown fence around the JSON, is skipped and the
//     parser picks up again at the next character the state accepts.
//   - [PolicyPoison]: stop at the first error. Later input is ignored until Reset, so one
//     glitch can never silently desynchronize the rest of the turn.
//
// # Reconciliation
//
// Snapshots grow monotonically. [Reconciler] turns successive snapshots into deltas: which
// section grew in place and which sections are new.
package section
