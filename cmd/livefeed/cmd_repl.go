package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rickchristie/livefeed/feed"
	"github.com/rickchristie/livefeed/pattern"
	"github.com/rickchristie/livefeed/section"
	"github.com/spf13/cobra"
)

const replHelp = `Commands:
  :pattern <expr>  compile a pattern and match each following line against it
  :feed            stream each following line into the section parser
  :turn            start a new parser turn
  :show            print the current sections
  :help            show this help
  :quit            exit
`

func newReplCmd() *cobra.Command {
	var flags parserFlags

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactively match patterns or stream chunks into the section parser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tools, err := flags.resolve()
			if err != nil {
				return err
			}
			rl, err := readline.New(colorCyan + "livefeed> " + colorReset)
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			r := newRepl(rl.Stdout(), feed.NewSession(feed.Config{Section: cfg, Tools: tools}))
			defer r.close()
			fmt.Fprint(rl.Stdout(), replHelp)

			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if r.handle(cmd.Context(), line) {
					return nil
				}
			}
		},
	}

	flags.register(cmd)
	return cmd
}

// repl holds the interactive state. It is driven line by line so it can be exercised without
// a terminal.
type repl struct {
	out     io.Writer
	session *feed.Session
	matcher *pattern.Matcher
	feeding bool

	// rec tracks what has been printed, so each line only shows what it changed.
	rec section.Reconciler
	seq int
}

func newRepl(out io.Writer, s *feed.Session) *repl {
	return &repl{out: out, session: s}
}

func (r *repl) close() {
	r.session.Close()
}

// handle processes one input line. Returns true when the user asked to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if cmd, ok := strings.CutPrefix(line, ":"); ok {
		name, arg, _ := strings.Cut(cmd, " ")
		switch name {
		case "quit", "q":
			return true
		case "help":
			fmt.Fprint(r.out, replHelp)
		case "pattern":
			a, err := pattern.Compile(arg)
			if err != nil {
				fmt.Fprintf(r.out, "%s%v%s\n", colorRed, err, colorReset)
				return false
			}
			r.matcher = pattern.NewMatcher(a)
			r.feeding = false
			fmt.Fprintf(r.out, "matching %q (%d states)\n", a.Pattern(), a.NumStates())
		case "feed":
			r.feeding = true
			fmt.Fprintf(r.out, "feeding turn %s\n", r.turn())
		case "turn":
			r.rec.Reset()
			r.seq = 0
			fmt.Fprintf(r.out, "turn %s\n", r.session.BeginTurn())
		case "show":
			if err := writeReport(r.out, "yaml", newReport(r.session.Snapshot(), nil)); err != nil {
				fmt.Fprintf(r.out, "%s%v%s\n", colorRed, err, colorReset)
			}
		default:
			fmt.Fprintf(r.out, "unknown command %q, try :help\n", name)
		}
		return false
	}

	switch {
	case r.feeding:
		if err := r.session.Write(ctx, []byte(line)); err != nil {
			fmt.Fprintf(r.out, "%s%v%s\n", colorRed, err, colorReset)
			return false
		}
		r.printDelta()
	case r.matcher != nil:
		r.matcher.Reset()
		printMatch(r.out, line, r.matcher.Feed(line))
	default:
		fmt.Fprint(r.out, "set a :pattern or switch to :feed first\n")
	}
	return false
}

func (r *repl) turn() string {
	if id := r.session.TurnID(); id != "" {
		return id
	}
	return r.session.BeginTurn()
}

// printDelta prints what the last line changed in the snapshot.
func (r *repl) printDelta() {
	d := r.rec.Apply(r.session.Snapshot())
	if d.Empty() {
		return
	}
	r.seq++
	printUpdate(r.out, feed.Update{TurnID: r.session.TurnID(), Seq: r.seq, Delta: d})
}
