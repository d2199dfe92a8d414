package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makersapien/classlog-sub002/booking"
)

func window(startOffset, length time.Duration) booking.Window {
	return booking.Window{
		Start: baseTime.Add(startOffset),
		End:   baseTime.Add(startOffset + length),
	}
}

func existing(w booking.Window, ref string) booking.ExistingWindow {
	return booking.ExistingWindow{Window: w, Source: booking.SourceSlot, Ref: ref}
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestOverlaps_Symmetric(t *testing.T) {
	cases := []struct {
		name string
		a, b booking.Window
		want bool
	}{
		{"partial", window(0, 2*time.Hour), window(time.Hour, 2*time.Hour), true},
		{"containment", window(0, 4*time.Hour), window(time.Hour, time.Hour), true},
		{"duplicate", window(0, time.Hour), window(0, time.Hour), true},
		{"adjacent half-open", window(0, time.Hour), window(time.Hour, time.Hour), false},
		{"disjoint", window(0, time.Hour), window(3*time.Hour, time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a), "overlap must be symmetric")
		})
	}
}

func TestWindow_Valid(t *testing.T) {
	assert.True(t, window(0, time.Hour).Valid())
	assert.False(t, booking.Window{Start: baseTime, End: baseTime}.Valid())
	assert.False(t, booking.Window{Start: baseTime, End: baseTime.Add(-time.Hour)}.Valid())
}

// =============================================================================
// DETECTION
// =============================================================================

func TestDetectConflicts_ReportsAllOverlapsSorted(t *testing.T) {
	// GIVEN: A candidate overlapping two existing windows, supplied out of
	//        time order
	// WHEN: Conflicts are detected
	// THEN: One conflict is reported with both hits, sorted by start time
	//       regardless of input order

	candidate := window(0, 3*time.Hour)
	later := existing(window(2*time.Hour, time.Hour), "b")
	earlier := existing(window(30*time.Minute, time.Hour), "a")

	conflicts := booking.DetectConflicts([]booking.Window{candidate},
		[]booking.ExistingWindow{later, earlier})
	require.Len(t, conflicts, 1)
	require.Len(t, conflicts[0].Conflicting, 2)
	assert.Equal(t, "a", conflicts[0].Conflicting[0].Ref)
	assert.Equal(t, "b", conflicts[0].Conflicting[1].Ref)

	// Same inputs, other order: identical result.
	again := booking.DetectConflicts([]booking.Window{candidate},
		[]booking.ExistingWindow{earlier, later})
	assert.Equal(t, conflicts, again)
}

func TestDetectConflicts_CleanCandidatesOmitted(t *testing.T) {
	clean := window(5*time.Hour, time.Hour)
	dirty := window(0, time.Hour)
	ex := []booking.ExistingWindow{existing(window(30*time.Minute, time.Hour), "x")}

	conflicts := booking.DetectConflicts([]booking.Window{clean, dirty}, ex)
	require.Len(t, conflicts, 1)
	assert.Equal(t, dirty, conflicts[0].Candidate)
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func TestSuggestAlternatives_SmallestShiftFirst(t *testing.T) {
	// GIVEN: A candidate blocked by an existing window right on top of it
	// WHEN: Alternatives are requested with a 2h bound
	// THEN: The nearest free shifts come first

	candidate := window(0, time.Hour)
	ex := []booking.ExistingWindow{existing(window(0, time.Hour), "x")}

	got := booking.SuggestAlternatives(candidate, ex, booking.SuggestOptions{
		MaxShift: 2 * time.Hour,
		Step:     time.Hour,
		Limit:    2,
	})
	require.Len(t, got, 2)
	assert.Equal(t, candidate.Shift(time.Hour), got[0])
	assert.Equal(t, candidate.Shift(-time.Hour), got[1])
}

func TestSuggestAlternatives_HonorsDirection(t *testing.T) {
	candidate := window(0, time.Hour)
	ex := []booking.ExistingWindow{existing(window(0, time.Hour), "x")}

	got := booking.SuggestAlternatives(candidate, ex, booking.SuggestOptions{
		MaxShift:  2 * time.Hour,
		Step:      time.Hour,
		Direction: booking.ShiftEarlier,
		Limit:     2,
	})
	require.Len(t, got, 2)
	for _, w := range got {
		assert.True(t, w.Start.Before(candidate.Start))
	}
}

func TestSuggestAlternatives_StaysWithinDay(t *testing.T) {
	// baseTime is noon; a 13h later shift would cross midnight and must be
	// skipped without AllowDayChange.
	candidate := window(0, time.Hour)
	ex := []booking.ExistingWindow{existing(window(0, time.Hour), "x")}

	got := booking.SuggestAlternatives(candidate, ex, booking.SuggestOptions{
		MaxShift:  14 * time.Hour,
		Step:      13 * time.Hour,
		Direction: booking.ShiftLater,
		Limit:     5,
	})
	assert.Empty(t, got)

	got = booking.SuggestAlternatives(candidate, ex, booking.SuggestOptions{
		MaxShift:       14 * time.Hour,
		Step:           13 * time.Hour,
		Direction:      booking.ShiftLater,
		Limit:          5,
		AllowDayChange: true,
	})
	assert.NotEmpty(t, got)
}

// =============================================================================
// AUTO-ADJUST
// =============================================================================

func TestAutoAdjust_PassesThroughCleanCandidate(t *testing.T) {
	candidate := window(0, time.Hour)
	got, err := booking.AutoAdjust(candidate, nil, booking.SuggestOptions{MaxShift: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, candidate, got)
}

func TestAutoAdjust_AppliesFirstSuggestion(t *testing.T) {
	candidate := window(0, time.Hour)
	ex := []booking.ExistingWindow{existing(window(0, time.Hour), "x")}

	got, err := booking.AutoAdjust(candidate, ex, booking.SuggestOptions{
		MaxShift: 2 * time.Hour,
		Step:     time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, candidate.Shift(time.Hour), got)
}

func TestAutoAdjust_UnresolvableNeverDropsSilently(t *testing.T) {
	// GIVEN: Existing windows covering every shift within bounds
	// WHEN: Auto-adjust runs
	// THEN: ErrUnresolvable, not a silent drop or an overlapping window

	candidate := window(0, time.Hour)
	ex := []booking.ExistingWindow{existing(window(-2*time.Hour, 5*time.Hour), "wall")}

	_, err := booking.AutoAdjust(candidate, ex, booking.SuggestOptions{
		MaxShift: time.Hour,
		Step:     30 * time.Minute,
	})
	require.ErrorIs(t, err, booking.ErrUnresolvable)
}
