package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rickchristie/livefeed/pattern"
	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	var showPrefixes bool
	var showAutomaton bool

	cmd := &cobra.Command{
		Use:   "match <pattern> [input...]",
		Short: "Report whether inputs are plausible prefixes or complete matches of a pattern",
		Long: `Compiles the pattern and reports, for each input, whether it could still grow into a
match (plausible) and whether it already is one (complete). Inputs are read line by line from
stdin when none are given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := pattern.Compile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showAutomaton {
				fmt.Fprint(out, a.String())
			}

			report := func(input string) {
				if showPrefixes {
					m := pattern.NewMatcher(a)
					for _, r := range input {
						m.Feed(string(r))
						printMatch(out, m.Prefix(), m.Result())
					}
					return
				}
				printMatch(out, input, a.Match(input))
			}

			if len(args) > 1 {
				for _, input := range args[1:] {
					report(input)
				}
				return nil
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				report(scanner.Text())
			}
			return scanner.Err()
		},
	}

	cmd.Flags().BoolVarP(&showPrefixes, "prefixes", "p", false, "report every prefix of each input")
	cmd.Flags().BoolVar(&showAutomaton, "automaton", false, "print the compiled transition table")

	return cmd
}

func printMatch(w io.Writer, input string, r pattern.MatchResult) {
	word, color := "no match", colorRed
	switch {
	case r.Complete:
		word, color = "complete", colorGreen
	case r.Plausible:
		word, color = "plausible", colorYellow
	}
	fmt.Fprintf(w, "%s%s%s%s %q\n", color, word, colorReset, strings.Repeat(" ", len("plausible")-len(word)), input)
}

// splitChunkRunes is how much stdin the split command feeds per Write.
const splitChunkRunes = 16

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <delimiter-pattern>",
		Short: "Split stdin on a delimiter pattern as it streams in",
		Long: `Reads stdin in small chunks and splits it on every match of the delimiter pattern.
Text that could still turn into a delimiter is held back until it resolves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := pattern.Compile(args[0])
			if err != nil {
				return err
			}
			d := pattern.NewDetector(a)

			out := cmd.OutOrStdout()
			emit := func(segs []pattern.Segment) {
				for _, s := range segs {
					if s.Delimiter {
						fmt.Fprintf(out, "%s[delim] %q%s\n", colorCyan, s.Text, colorReset)
					} else {
						fmt.Fprintf(out, "[text]  %q\n", s.Text)
					}
				}
			}

			r := bufio.NewReader(cmd.InOrStdin())
			chunk := make([]rune, 0, splitChunkRunes)
			for {
				c, _, err := r.ReadRune()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				chunk = append(chunk, c)
				if len(chunk) == splitChunkRunes {
					emit(d.Write(string(chunk)))
					chunk = chunk[:0]
				}
			}
			emit(d.Write(string(chunk)))
			emit(d.Flush())
			return nil
		},
	}
	return cmd
}
