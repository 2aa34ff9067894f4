package section

// State is the position of a Parser in its character-level state machine.
type State int

const (
	// StateInit waits for the root '{' or '['.
	StateInit State = iota

	// StateSectionNameStart waits for the opening quote of a section name.
	StateSectionNameStart

	// StateCaptureSectionName accumulates a section name until its closing quote.
	StateCaptureSectionName

	// StateWaitForColon waits for the ':' between a section name and its value.
	StateWaitForColon

	// StateSectionContentStart sniffs the first character of a value to fix its type.
	StateSectionContentStart

	// StateCaptureSectionContent accumulates a value until its own terminator.
	StateCaptureSectionContent

	// StateSectionEnd waits for ',' (another section follows) or '}' (root closes).
	StateSectionEnd

	// StateArrayRoot accumulates a root-level array as one anonymous section.
	StateArrayRoot

	// StateArrayRootEnd accepts only trailing whitespace after a root array.
	StateArrayRootEnd

	// StateWaitForValueClose accepts only trailing whitespace after the root object.
	StateWaitForValueClose

	// StatePoisoned ignores all input until Reset. Only reachable under PolicyPoison.
	StatePoisoned
)

var stateNames = [...]string{
	StateInit:                  "INIT",
	StateSectionNameStart:      "SECTION_NAME_START",
	StateCaptureSectionName:    "CAPTURE_SECTION_NAME",
	StateWaitForColon:          "WAIT_FOR_COLON",
	StateSectionContentStart:   "SECTION_CONTENT_START",
	StateCaptureSectionContent: "CAPTURE_SECTION_CONTENT",
	StateSectionEnd:            "SECTION_END",
	StateArrayRoot:             "ARRAY_ROOT",
	StateArrayRootEnd:          "ARRAY_ROOT_END",
	StateWaitForValueClose:     "WAIT_FOR_VALUE_CLOSE",
	StatePoisoned:              "POISONED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Policy decides what a Parser does after a malformed character.
type Policy int

const (
	// PolicySkip drops the malformed character and keeps the current state, so the next
	// character is evaluated as if the dropped one never arrived. Every dropped character
	// is reported.
	PolicySkip Policy = iota

	// PolicyPoison moves the parser to StatePoisoned on the first malformed character. That
	// character is reported; everything after it is ignored without reports until Reset.
	// Sections captured before the error stay queryable.
	PolicyPoison
)

func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyPoison:
		return "poison"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "skip" or "poison".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "skip", "":
		return PolicySkip, nil
	case "poison":
		return PolicyPoison, nil
	}
	return PolicySkip, ErrUnknownPolicy
}
