package section

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/rickchristie/livefeed"
)

// Replacement is a section that was already observed but has grown since.
type Replacement struct {
	// Index is the section's position in the snapshot.
	Index int

	// Section is the new content. It replaces the previously observed one in place.
	Section livefeed.Section
}

// Delta is the difference between two successive snapshots.
type Delta struct {
	// Reset is set when the snapshot shrank, which only happens when the parser was reset
	// between observations. Appended then holds the whole new snapshot.
	Reset bool

	// Replaced is the previously last section, if its content changed.
	Replaced *Replacement

	// Appended holds sections beyond the previously observed length, in order.
	Appended []livefeed.Section
}

// Empty reports whether the delta carries no change.
func (d Delta) Empty() bool {
	return !d.Reset && d.Replaced == nil && len(d.Appended) == 0
}

// Reconciler applies successive CompletedSections snapshots by position:
//   - entries before the previous length are final and are never reported again,
//   - the entry at the previous last index may have grown and is reported as a Replacement
//     when its content changed,
//   - entries beyond the previous length are reported as Appended.
//
// Content changes are detected by digest, so an unchanged snapshot yields an empty Delta.
//
//	var rec section.Reconciler
//	for chunk := range chunks {
//	    p.ProcessToken(chunk)
//	    d := rec.Apply(p.CompletedSections())
//	    if d.Replaced != nil {
//	        view[d.Replaced.Index] = render(d.Replaced.Section)
//	    }
//	    for _, s := range d.Appended {
//	        view = append(view, render(s))
//	    }
//	}
//
// The zero value is ready to use. A Reconciler is not safe for concurrent use.
type Reconciler struct {
	observed   int
	lastDigest uint64
}

// Apply compares current against the previously applied snapshot and records current as the
// new baseline.
func (r *Reconciler) Apply(current []livefeed.Section) Delta {
	var d Delta
	n := len(current)

	switch {
	case n < r.observed:
		d.Reset = true
		d.Appended = append([]livefeed.Section(nil), current...)
	default:
		if r.observed > 0 {
			i := r.observed - 1
			if Digest(current[i]) != r.lastDigest {
				d.Replaced = &Replacement{Index: i, Section: current[i]}
			}
		}
		if n > r.observed {
			d.Appended = append([]livefeed.Section(nil), current[r.observed:]...)
		}
	}

	r.observed = n
	r.lastDigest = 0
	if n > 0 {
		r.lastDigest = Digest(current[n-1])
	}
	return d
}

// Observed returns the length of the last applied snapshot.
func (r *Reconciler) Observed() int {
	return r.observed
}

// Reset forgets the baseline. Call it together with Parser.Reset.
func (r *Reconciler) Reset() {
	r.observed = 0
	r.lastDigest = 0
}

// Digest fingerprints everything about a section that can change while it grows.
func Digest(s livefeed.Section) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(s.Name)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(int(s.Type)))
	_, _ = h.WriteString(strconv.FormatBool(s.Complete))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(s.Raw)
	return h.Sum64()
}
