package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rickchristie/livefeed"
	"github.com/rickchristie/livefeed/feed"
	"github.com/rickchristie/livefeed/toolcall"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newParseCmd() *cobra.Command {
	var (
		flags        parserFlags
		chunkSize    int
		outputFormat string
		showDeltas   bool
	)

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Feed a model response through the section parser and print the sections",
		Long: `Streams the input (a file, or stdin) through a live section parser in chunks of
--chunk characters, as a model would emit it, then prints the materialized sections, any tool
calls and every malformed-input report.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tools, err := flags.resolve()
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			diags := &livefeed.Diagnostics{}
			cfg.Sink = diags
			s := feed.NewSession(feed.Config{Section: cfg, Tools: tools})

			out := cmd.OutOrStdout()
			var done chan struct{}
			if showDeltas {
				updates, unsubscribe := s.Subscribe()
				defer unsubscribe()
				done = make(chan struct{})
				go func() {
					defer close(done)
					for u := range updates {
						printUpdate(out, u)
					}
				}()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s.BeginTurn()
			for _, chunk := range chunkRunes(string(data), chunkSize) {
				if err := s.Write(ctx, []byte(chunk)); err != nil {
					return err
				}
			}
			sections := s.Snapshot()
			s.Close()
			if done != nil {
				<-done
			}

			rep := newReport(sections, diags.Records())
			if tools != nil {
				res, err := tools.Extract(sections)
				rep.setCalls(res, err)
			}
			return writeReport(out, outputFormat, rep)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&chunkSize, "chunk", 4, "characters per streamed chunk (0 feeds everything at once)")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "yaml", "output format (yaml, json)")
	cmd.Flags().BoolVarP(&showDeltas, "deltas", "d", false, "print every update while streaming")

	return cmd
}

func chunkRunes(s string, n int) []string {
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

// report is what parse prints.
type report struct {
	Sections    []sectionView    `yaml:"sections" json:"sections"`
	Calls       []*toolcall.Call `yaml:"calls,omitempty" json:"calls,omitempty"`
	CallErrors  []string         `yaml:"call_errors,omitempty" json:"call_errors,omitempty"`
	Diagnostics []string         `yaml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
}

type sectionView struct {
	Name     string             `yaml:"name" json:"name"`
	Type     livefeed.ValueType `yaml:"type" json:"type"`
	Complete bool               `yaml:"complete" json:"complete"`
	Value    any                `yaml:"value" json:"value"`
}

func newReport(sections []livefeed.Section, records []livefeed.Malformed) *report {
	r := &report{Sections: make([]sectionView, 0, len(sections))}
	for _, s := range sections {
		r.Sections = append(r.Sections, sectionView{
			Name:     s.Name,
			Type:     s.Type,
			Complete: s.Complete,
			Value:    s.Value,
		})
	}
	for _, m := range records {
		r.Diagnostics = append(r.Diagnostics, m.Error())
	}
	return r
}

func (r *report) setCalls(res *toolcall.Result, err error) {
	if err != nil {
		r.CallErrors = append(r.CallErrors, err.Error())
		return
	}
	if res == nil {
		return
	}
	r.Calls = res.Calls
	for i, cerr := range res.Errors {
		if cerr != nil {
			r.CallErrors = append(r.CallErrors, fmt.Sprintf("call %d: %v", i, cerr))
		}
	}
}

func writeReport(w io.Writer, format string, r *report) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func printUpdate(w io.Writer, u feed.Update) {
	if u.Delta.Reset {
		fmt.Fprintf(w, "%s#%d reset%s\n", colorDim, u.Seq, colorReset)
	}
	if r := u.Delta.Replaced; r != nil {
		fmt.Fprintf(w, "%s#%d ~ [%d] %s%s\n", colorDim, u.Seq, r.Index, describe(r.Section), colorReset)
	}
	for _, s := range u.Delta.Appended {
		fmt.Fprintf(w, "%s#%d + %s%s\n", colorDim, u.Seq, describe(s), colorReset)
	}
	if u.Calls != nil {
		for _, c := range u.Calls.Calls {
			fmt.Fprintf(w, "%s#%d call %s%s\n", colorGreen, u.Seq, c.Name, colorReset)
		}
	}
	if u.CallsErr != nil {
		fmt.Fprintf(w, "%s#%d call error: %v%s\n", colorRed, u.Seq, u.CallsErr, colorReset)
	}
}

func describe(s livefeed.Section) string {
	state := "open"
	if s.Complete {
		state = "done"
	}
	return fmt.Sprintf("%s (%s, %s): %v", s.Name, s.Type, state, s.Value)
}
