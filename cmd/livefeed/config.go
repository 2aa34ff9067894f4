package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/rickchristie/livefeed/section"
	"github.com/rickchristie/livefeed/toolcall"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML config accepted by --config.
//
//	allowed_names: [thinking, action_json]
//	skip_validation: false
//	policy: skip
//	tool_section: action_json
//	tools:
//	  - name: search
//	    description: Search the web
//	    args:
//	      type: object
//	      properties:
//	        query: {type: string}
//	      required: [query]
type fileConfig struct {
	AllowedNames   []string     `yaml:"allowed_names"`
	SkipValidation bool         `yaml:"skip_validation"`
	Policy         string       `yaml:"policy"`
	ToolSection    string       `yaml:"tool_section"`
	Tools          []toolConfig `yaml:"tools"`
}

type toolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Args        map[string]any `yaml:"args"`
}

// parserFlags are the parser settings shared by commands. Flags override the config file.
type parserFlags struct {
	configPath     string
	allowed        []string
	skipValidation bool
	policy         string
}

func (f *parserFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringSliceVarP(&f.allowed, "allow", "a", nil, "allowed section names (default: any)")
	cmd.Flags().BoolVar(&f.skipValidation, "skip-validation", false, "accept any section name")
	cmd.Flags().StringVar(&f.policy, "policy", "", "malformed input policy (skip, poison)")
}

func loadFileConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolve merges the config file with flags into a parser config and an optional tool registry.
func (f *parserFlags) resolve() (section.Config, *toolcall.Registry, error) {
	fc, err := loadFileConfig(f.configPath)
	if err != nil {
		return section.Config{}, nil, err
	}

	cfg := section.Config{
		AllowedNames:   fc.AllowedNames,
		SkipValidation: fc.SkipValidation || f.skipValidation,
	}
	if len(f.allowed) > 0 {
		cfg.AllowedNames = f.allowed
	}

	policy := fc.Policy
	if f.policy != "" {
		policy = f.policy
	}
	if cfg.Policy, err = section.ParsePolicy(policy); err != nil {
		return section.Config{}, nil, fmt.Errorf("%w: %q", err, policy)
	}

	if len(fc.Tools) == 0 {
		return cfg, nil, nil
	}
	tools := toolcall.NewRegistry()
	if fc.ToolSection != "" {
		tools.WithSectionName(fc.ToolSection)
	}
	for _, t := range fc.Tools {
		if err := tools.Register(t.Name, t.Description, normalizeYAML(t.Args)); err != nil {
			return section.Config{}, nil, fmt.Errorf("config tool: %w", err)
		}
	}
	if cfg.AllowedNames != nil && !slices.Contains(cfg.AllowedNames, tools.SectionName()) {
		cfg.AllowedNames = append(cfg.AllowedNames, tools.SectionName())
	}
	return cfg, tools, nil
}

// normalizeYAML converts what yaml.v3 decodes into shapes encoding/json can marshal, so schema
// documents from YAML compile like ones from JSON.
func normalizeYAML(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out, _ := normalizeValue(v).(map[string]any)
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
