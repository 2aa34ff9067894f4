// Package toolcall turns a completed tool-call section of a live feed into validated calls.
//
// A model answering in the section format typically carries its tool call as escaped JSON in a
// string section:
//
//	{"thinking": "...", "action_json": "{\"tool\": \"search\", \"args\": {\"query\": \"go\"}}"}
//
// The section parser materializes that string as the nested object. A [Registry] picks the
// section up once it is complete and decodes it, as a single call or an array of calls:
//
//	{"tool": "search", "args": {"query": "weather"}}
//	[{"tool": "search", "args": {...}}, {"tool": "calendar", "args": {...}}]
//
// Arguments are validated against each tool's schema. Validation applies to the extracted
// arguments only, never to the feed itself.
package toolcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rickchristie/livefeed"
	"github.com/rickchristie/livefeed/schema"
)

// DefaultSectionName is the section a Registry extracts calls from unless told otherwise.
const DefaultSectionName = "action_json"

var (
	ErrInvalidJSON     = errors.New("invalid JSON in tool call section")
	ErrMalformedCall   = errors.New("tool call must be an object or an array of objects")
	ErrMissingToolName = errors.New("tool call missing 'tool' field")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrInvalidToolArgs = errors.New("invalid tool arguments")
	ErrDuplicateTool   = errors.New("tool already registered")
)

// Call is one decoded tool call.
type Call struct {
	Name string         `json:"tool" yaml:"tool"`
	Args map[string]any `json:"args" yaml:"args"`
}

// Result holds the calls decoded from one section, with a parallel slice of per-call
// validation errors. Errors[i] is nil when Calls[i] is valid.
type Result struct {
	Calls  []*Call
	Errors []error
}

// Err joins the per-call errors, or returns nil when every call is valid.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Errors...)
}

// Tool is a registered tool.
type Tool struct {
	Name        string
	Description string
	Args        *schema.Schema
}

// Registry knows the allowed tools and where calls appear in the feed.
type Registry struct {
	sectionName string
	tools       map[string]*Tool
}

// NewRegistry creates an empty registry that reads DefaultSectionName.
func NewRegistry() *Registry {
	return &Registry{
		sectionName: DefaultSectionName,
		tools:       make(map[string]*Tool),
	}
}

// WithSectionName sets the section calls are read from.
func (r *Registry) WithSectionName(name string) *Registry {
	r.sectionName = name
	return r
}

// SectionName returns the section calls are read from.
func (r *Registry) SectionName() string {
	return r.sectionName
}

// Register adds a tool. args is its argument schema document; nil accepts any arguments.
func (r *Registry) Register(name, description string, args map[string]any) error {
	if name == "" {
		return ErrMissingToolName
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	compiled, err := schema.Compile(args)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}
	r.tools[name] = &Tool{Name: name, Description: description, Args: compiled}
	return nil
}

// Tool returns a registered tool by name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Guidance describes the expected call format and the available tools, for a system prompt.
func (r *Registry) Guidance() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Put tool calls in the %q section as escaped JSON:\n", r.sectionName)
	sb.WriteString(`{"tool": "tool_name", "args": {...}}`)
	sb.WriteString("\n\nFor multiple calls, use an array:\n")
	sb.WriteString(`[{"tool": "tool1", "args": {...}}, {"tool": "tool2", "args": {...}}]`)
	sb.WriteString("\n\nAvailable tools:\n")
	for _, name := range r.Names() {
		t := r.tools[name]
		fmt.Fprintf(&sb, "\n- %s: %s\n", t.Name, t.Description)
		if raw := t.Args.Raw(); raw != nil {
			if doc, err := json.Marshal(raw); err == nil {
				fmt.Fprintf(&sb, "  Parameters: %s\n", doc)
			}
		}
	}
	return sb.String()
}

// Extract decodes the tool-call section from a snapshot. It returns nil, nil while the section
// is absent or still growing, so it can be called after every chunk.
func (r *Registry) Extract(sections []livefeed.Section) (*Result, error) {
	for _, s := range sections {
		if s.Name != r.sectionName {
			continue
		}
		if !s.Complete {
			return nil, nil
		}
		return r.Decode(s.Value)
	}
	return nil, nil
}

// Decode decodes calls from a materialized section value and validates each one. Shape errors
// fail the whole decode; per-call problems land in Result.Errors.
func (r *Registry) Decode(value any) (*Result, error) {
	if text, ok := value.(string); ok {
		text = strings.TrimSpace(text)
		if text == "" {
			return &Result{}, nil
		}
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	var objects []map[string]any
	switch v := value.(type) {
	case nil:
		return &Result{}, nil
	case map[string]any:
		objects = append(objects, v)
	case []any:
		for i, el := range v {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrMalformedCall, i, el)
			}
			objects = append(objects, obj)
		}
	default:
		return nil, fmt.Errorf("%w: got %T", ErrMalformedCall, value)
	}

	res := &Result{
		Calls:  make([]*Call, 0, len(objects)),
		Errors: make([]error, 0, len(objects)),
	}
	for _, obj := range objects {
		call, err := decodeCall(obj)
		if err != nil {
			return nil, err
		}
		res.Calls = append(res.Calls, call)
		res.Errors = append(res.Errors, r.Validate(call))
	}
	return res, nil
}

func decodeCall(obj map[string]any) (*Call, error) {
	name, _ := obj["tool"].(string)
	if name == "" {
		return nil, ErrMissingToolName
	}
	call := &Call{Name: name, Args: map[string]any{}}
	switch args := obj["args"].(type) {
	case nil:
	case map[string]any:
		call.Args = args
	default:
		return nil, fmt.Errorf("%w: %s: args must be an object, got %T", ErrInvalidToolArgs, name, args)
	}
	return call, nil
}

// Validate checks that call names a registered tool and that its arguments satisfy the tool's
// schema.
func (r *Registry) Validate(call *Call) error {
	t, ok := r.tools[call.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if err := t.Args.Validate(call.Args); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidToolArgs, call.Name, err)
	}
	return nil
}
