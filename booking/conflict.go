/*
conflict.go - Availability conflict detection and resolution

PURPOSE:
  Detects time-overlap conflicts between candidate availability windows and
  existing availability (recurring templates, one-off slots, blocked time),
  and proposes resolutions: alternative shifts or automatic adjustment.

ALGORITHM:
  Half-open interval overlap: newStart < existingEnd AND newEnd > existingStart.
  Symmetric, and catches full containment, partial overlap and exact
  duplication in one test.

DETERMINISM:
  Given the same existing set and candidate, results are identical and
  order-independent: conflicting windows are sorted by start time before
  being returned, never reported in map/iteration order.

SEE ALSO:
  - registry.go: materialization and CreateAvailability delegate here
*/
package booking

import (
	"sort"
	"time"
)

// =============================================================================
// WINDOWS
// =============================================================================

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether End is after Start.
func (w Window) Valid() bool { return w.End.After(w.Start) }

// Overlaps reports whether two half-open windows intersect. Symmetric:
// w.Overlaps(o) == o.Overlaps(w) for all windows.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Shift returns the window moved by d.
func (w Window) Shift(d time.Duration) Window {
	return Window{Start: w.Start.Add(d), End: w.End.Add(d)}
}

// SameDay reports whether both endpoints fall on the given calendar day (UTC).
func (w Window) SameDay(day time.Time) bool {
	y, m, d := day.UTC().Date()
	sy, sm, sd := w.Start.UTC().Date()
	// End is exclusive; a window ending exactly at midnight still counts.
	e := w.End.Add(-time.Nanosecond)
	ey, em, ed := e.UTC().Date()
	return sy == y && sm == m && sd == d && ey == y && em == m && ed == d
}

// WindowSource classifies where an existing window came from.
type WindowSource string

const (
	SourceTemplate WindowSource = "template" // materialized from a recurring template
	SourceSlot     WindowSource = "slot"     // one-off slot
	SourceBlocked  WindowSource = "blocked"  // explicitly blocked time
)

// ExistingWindow is an occupied window with its provenance.
type ExistingWindow struct {
	Window
	Source WindowSource
	Ref    string // slot/template id
}

// =============================================================================
// DETECTION
// =============================================================================

// Conflict lists, for one candidate, every existing window it overlaps,
// sorted by start time and split by source via the Source field.
type Conflict struct {
	Candidate   Window
	Conflicting []ExistingWindow
}

// DetectConflicts checks each candidate against every existing window and
// returns one Conflict per overlapping candidate, in candidate order.
// Candidates that do not conflict are omitted.
func DetectConflicts(candidates []Window, existing []ExistingWindow) []Conflict {
	var out []Conflict
	for _, c := range candidates {
		var hits []ExistingWindow
		for _, e := range existing {
			if c.Overlaps(e.Window) {
				hits = append(hits, e)
			}
		}
		if len(hits) == 0 {
			continue
		}
		sort.SliceStable(hits, func(i, j int) bool {
			if !hits[i].Start.Equal(hits[j].Start) {
				return hits[i].Start.Before(hits[j].Start)
			}
			return hits[i].Ref < hits[j].Ref
		})
		out = append(out, Conflict{Candidate: c, Conflicting: hits})
	}
	return out
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ShiftDirection constrains which way suggested adjustments may move.
type ShiftDirection string

const (
	ShiftEarlier ShiftDirection = "earlier"
	ShiftLater   ShiftDirection = "later"
	ShiftAny     ShiftDirection = "any"
)

// SuggestOptions bound the search for non-conflicting shifts.
type SuggestOptions struct {
	MaxShift       time.Duration  // largest adjustment considered
	Step           time.Duration  // granularity; defaults to 15 minutes
	Direction      ShiftDirection // defaults to ShiftAny
	Limit          int            // max suggestions; defaults to 3
	AllowDayChange bool           // permit crossing the day boundary
}

func (o SuggestOptions) withDefaults() SuggestOptions {
	if o.Step <= 0 {
		o.Step = 15 * time.Minute
	}
	if o.Direction == "" {
		o.Direction = ShiftAny
	}
	if o.Limit <= 0 {
		o.Limit = 3
	}
	return o
}

// SuggestAlternatives proposes up to Limit non-conflicting shifts of the
// candidate within MaxShift, preferring the requested direction and the
// smallest displacement. Windows never cross the candidate's day boundary
// unless AllowDayChange is set.
func SuggestAlternatives(candidate Window, existing []ExistingWindow, opts SuggestOptions) []Window {
	opts = opts.withDefaults()
	day := candidate.Start

	var out []Window
	for shift := opts.Step; shift <= opts.MaxShift; shift += opts.Step {
		for _, d := range directions(opts.Direction, shift) {
			w := candidate.Shift(d)
			if !opts.AllowDayChange && !w.SameDay(day) {
				continue
			}
			if len(DetectConflicts([]Window{w}, existing)) == 0 {
				out = append(out, w)
				if len(out) >= opts.Limit {
					return out
				}
			}
		}
	}
	return out
}

// directions expands a direction preference into concrete offsets, preferred
// direction first so suggestions honor the caller's request.
func directions(dir ShiftDirection, shift time.Duration) []time.Duration {
	switch dir {
	case ShiftEarlier:
		return []time.Duration{-shift}
	case ShiftLater:
		return []time.Duration{shift}
	default:
		return []time.Duration{shift, -shift}
	}
}

// AutoAdjust applies the first valid suggestion and returns the adjusted
// window. Returns ErrUnresolvable when no conflict-free shift exists within
// bounds - a candidate is never silently dropped.
func AutoAdjust(candidate Window, existing []ExistingWindow, opts SuggestOptions) (Window, error) {
	if len(DetectConflicts([]Window{candidate}, existing)) == 0 {
		return candidate, nil
	}
	opts = opts.withDefaults()
	opts.Limit = 1
	suggestions := SuggestAlternatives(candidate, existing, opts)
	if len(suggestions) == 0 {
		return Window{}, ErrUnresolvable
	}
	return suggestions[0], nil
}
