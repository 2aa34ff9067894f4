package pattern

// Segment is a piece of detector output: either plain text or one recognized delimiter.
type Segment struct {
	Text      string
	Delimiter bool
}

// Detector finds delimiter matches in a live feed without lookahead.
//
// Characters that might be the start of a delimiter are held back until the automaton rules
// them in or out, so a delimiter split across any number of chunks is still recognized, and
// text is never released and then retroactively reclassified.
//
// Matching is leftmost-longest: a complete match is held while a longer match stays
// plausible, and released as soon as the next character rules the longer match out or the
// automaton has nowhere left to go. Patterns that match the empty string never produce empty
// delimiters.
//
//	d := pattern.NewDetector(pattern.MustCompile(`</answer>`))
//	d.Write("Done.</ans") // [{Text: "Done."}]
//	d.Write("wer> bye")   // [{Text: "</answer>", Delimiter: true}, {Text: " bye"}]
//
// A Detector is not safe for concurrent use.
type Detector struct {
	automaton *Automaton

	// held is the current delimiter candidate.
	held []rune

	// complete is the length of the longest complete match within held, or 0.
	complete int

	queue []rune
	out   []Segment
}

// NewDetector creates a Detector over a.
func NewDetector(a *Automaton) *Detector {
	return &Detector{automaton: a}
}

// Write feeds chunk and returns the segments it resolved. Held characters are not included
// until a later Write or Flush resolves them.
func (d *Detector) Write(chunk string) []Segment {
	d.queue = append(d.queue, []rune(chunk)...)
	d.drain()
	return d.take()
}

// Flush resolves everything still held, as at end of stream. A held complete match is emitted
// as a delimiter; the rest is emitted as text.
func (d *Detector) Flush() []Segment {
	for len(d.held) > 0 {
		rest := d.release()
		d.queue = append(rest, d.queue...)
		d.drain()
	}
	return d.take()
}

// Held returns the characters currently held back.
func (d *Detector) Held() string {
	return string(d.held)
}

// Reset discards held characters and pending output.
func (d *Detector) Reset() {
	d.held = nil
	d.complete = 0
	d.queue = nil
	d.out = nil
}

func (d *Detector) drain() {
	for len(d.queue) > 0 {
		c := d.queue[0]
		d.queue = d.queue[1:]
		d.step(c)
	}
}

func (d *Detector) step(c rune) {
	candidate := make([]rune, len(d.held)+1)
	copy(candidate, d.held)
	candidate[len(d.held)] = c

	f, ok := d.automaton.simulate(string(candidate))
	if ok {
		d.held = candidate
		if d.automaton.accepting(f) {
			d.complete = len(candidate)
			if !d.automaton.extensible(f) {
				d.emit(string(d.held), true)
				d.held = nil
				d.complete = 0
			}
		}
		return
	}

	if len(d.held) == 0 {
		d.emit(string(c), false)
		return
	}

	// c rules out every extension of the candidate. Release what is settled and re-scan the
	// remainder, since a delimiter may start inside it.
	rest := d.release()
	d.queue = append(append(rest, c), d.queue...)
}

// release emits the settled head of held (the longest complete match, or else its first
// character as text), clears the candidate and returns the unsettled remainder.
func (d *Detector) release() []rune {
	var rest []rune
	if d.complete > 0 {
		d.emit(string(d.held[:d.complete]), true)
		rest = d.held[d.complete:]
	} else {
		d.emit(string(d.held[0]), false)
		rest = d.held[1:]
	}
	d.held = nil
	d.complete = 0
	return append([]rune(nil), rest...)
}

func (d *Detector) emit(text string, delimiter bool) {
	if !delimiter && len(d.out) > 0 && !d.out[len(d.out)-1].Delimiter {
		d.out[len(d.out)-1].Text += text
		return
	}
	d.out = append(d.out, Segment{Text: text, Delimiter: delimiter})
}

func (d *Detector) take() []Segment {
	out := d.out
	d.out = nil
	return out
}
