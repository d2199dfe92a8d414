/*
registry.go - Slot lifecycle: materialization, availability, deletion

PURPOSE:
  The SlotRegistry owns the creation side of the slot lifecycle. It turns
  recurring TimeSlotTemplates into concrete ScheduleSlots over a rolling
  window, creates ad hoc availability, and deletes unbooked future slots.
  Booking-side transitions (book/cancel/complete/no-show) are performed by
  the engine; both go through the store's compare-and-swap so the state
  machine in types.go is the only path a status can take.

MATERIALIZATION:
  One slot per template occurrence. Occurrences that would overlap existing
  available-or-booked windows on the same day are skipped (delegated to the
  conflict detector), reported back to the caller, never silently dropped.

CREATE AVAILABILITY:
  All-or-nothing: when any candidate conflicts, nothing is created unless
  the caller passes an explicit override, in which case only the
  conflict-free candidates are created and the conflicts are reported.

SEE ALSO:
  - conflict.go: overlap detection the registry delegates to
  - engine.go:   status transitions for booked slots
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaterializeWeeksDefault is the rolling window kept populated for
// recurring templates.
const MaterializeWeeksDefault = 4

// =============================================================================
// SLOT REGISTRY
// =============================================================================

type SlotRegistry struct {
	store TxStore
	now   func() time.Time
}

func NewSlotRegistry(store TxStore) *SlotRegistry {
	return &SlotRegistry{store: store, now: time.Now}
}

// SetClock overrides the registry clock. Tests only.
func (r *SlotRegistry) SetClock(now func() time.Time) { r.now = now }

// =============================================================================
// TEMPLATES
// =============================================================================

// CreateTemplate validates and stores a recurring availability rule.
func (r *SlotRegistry) CreateTemplate(ctx context.Context, t TimeSlotTemplate) (*TimeSlotTemplate, error) {
	if t.TeacherID == "" || t.DurationMinutes <= 0 {
		return nil, ErrInvalidInput
	}
	if t.StartHour < 0 || t.StartHour > 23 || t.StartMinute < 0 || t.StartMinute > 59 {
		return nil, fmt.Errorf("%w: start time out of range", ErrInvalidInput)
	}
	if t.MaxStudents <= 0 {
		t.MaxStudents = 1
	}
	t.ID = TemplateID(uuid.NewString())
	t.CreatedAt = r.now().UTC()
	if err := r.store.SaveTemplate(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTemplate removes the rule. Already-materialized slots are not
// cascaded; they remain until individually deleted.
func (r *SlotRegistry) DeleteTemplate(ctx context.Context, id TemplateID) error {
	if _, err := r.store.GetTemplate(ctx, id); err != nil {
		return err
	}
	return r.store.DeleteTemplate(ctx, id)
}

// =============================================================================
// MATERIALIZATION
// =============================================================================

// SkippedOccurrence reports a template occurrence that was not materialized
// because it conflicts with existing windows.
type SkippedOccurrence struct {
	Window      Window
	Conflicting []ExistingWindow
}

// MaterializeResult is the outcome of one materialization pass.
type MaterializeResult struct {
	Created []ScheduleSlot
	Skipped []SkippedOccurrence
}

// MaterializeFromTemplate generates one ScheduleSlot per occurrence of the
// template over the next `weeks` weeks, skipping occurrences that conflict
// with existing available-or-booked windows. Idempotent: re-running over
// the same window skips occurrences whose slots already exist, because an
// existing identical window always counts as a conflict.
func (r *SlotRegistry) MaterializeFromTemplate(ctx context.Context, templateID TemplateID, weeks int) (*MaterializeResult, error) {
	if weeks <= 0 {
		weeks = MaterializeWeeksDefault
	}

	tmpl, err := r.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	res := &MaterializeResult{}
	err = r.store.WithTx(ctx, func(s Store) error {
		now := r.now().UTC()
		first := nextWeekday(now, tmpl.DayOfWeek)

		existing, err := existingWindows(ctx, s, tmpl.TeacherID, now, first.AddDate(0, 0, 7*weeks))
		if err != nil {
			return err
		}

		for i := 0; i < weeks; i++ {
			day := first.AddDate(0, 0, 7*i)
			w := tmpl.OccurrenceOn(day)
			if !w.Start.After(now) {
				continue // never materialize into the past
			}
			if conflicts := DetectConflicts([]Window{w}, existing); len(conflicts) > 0 {
				res.Skipped = append(res.Skipped, SkippedOccurrence{Window: w, Conflicting: conflicts[0].Conflicting})
				continue
			}

			slot := &ScheduleSlot{
				ID:          SlotID(uuid.NewString()),
				TeacherID:   tmpl.TeacherID,
				StartTime:   w.Start,
				EndTime:     w.End,
				Status:      SlotAvailable,
				MaxStudents: tmpl.MaxStudents,
				TemplateID:  &tmpl.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.CreateSlot(ctx, slot); err != nil {
				return err
			}
			res.Created = append(res.Created, *slot)
			existing = append(existing, ExistingWindow{Window: w, Source: SourceTemplate, Ref: string(slot.ID)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MaterializeAllRecurring runs MaterializeFromTemplate for every recurring
// template. Invoked by the background sweeper so slots always exist at
// least `weeks` weeks ahead.
func (r *SlotRegistry) MaterializeAllRecurring(ctx context.Context, weeks int) error {
	templates, err := r.store.ListRecurringTemplates(ctx)
	if err != nil {
		return err
	}
	for _, t := range templates {
		if _, err := r.MaterializeFromTemplate(ctx, t.ID, weeks); err != nil {
			return fmt.Errorf("materialize template %s: %w", t.ID, err)
		}
	}
	return nil
}

// =============================================================================
// AD HOC AVAILABILITY
// =============================================================================

// AvailabilityResult reports what was created and what conflicted.
type AvailabilityResult struct {
	Created   []ScheduleSlot
	Conflicts []Conflict
}

// CreateAvailability creates one available slot per candidate window.
// When any candidate conflicts and override is false, nothing is created
// and the conflicts are returned inside a TimeConflictError. With override,
// conflict-free candidates are created and conflicts reported alongside.
func (r *SlotRegistry) CreateAvailability(ctx context.Context, teacher TeacherID, windows []Window, maxStudents int, override bool) (*AvailabilityResult, error) {
	if teacher == "" || len(windows) == 0 {
		return nil, ErrInvalidInput
	}
	for _, w := range windows {
		if !w.Valid() {
			return nil, ErrInvalidWindow
		}
	}
	if maxStudents <= 0 {
		maxStudents = 1
	}

	res := &AvailabilityResult{}
	err := r.store.WithTx(ctx, func(s Store) error {
		now := r.now().UTC()
		from, to := windowsExtent(windows)
		existing, err := existingWindows(ctx, s, teacher, from, to)
		if err != nil {
			return err
		}

		// Candidates also conflict with each other; check incrementally.
		conflicts := DetectConflicts(windows, existing)
		if len(conflicts) > 0 && !override {
			return &TimeConflictError{Conflicts: conflicts}
		}
		res.Conflicts = conflicts

		conflicted := make(map[Window]bool, len(conflicts))
		for _, c := range conflicts {
			conflicted[c.Candidate] = true
		}

		for _, w := range windows {
			if conflicted[w] {
				continue
			}
			if again := DetectConflicts([]Window{w}, existing); len(again) > 0 {
				// Overlap introduced by an earlier candidate in this batch.
				res.Conflicts = append(res.Conflicts, again[0])
				continue
			}
			slot := &ScheduleSlot{
				ID:          SlotID(uuid.NewString()),
				TeacherID:   teacher,
				StartTime:   w.Start.UTC(),
				EndTime:     w.End.UTC(),
				Status:      SlotAvailable,
				MaxStudents: maxStudents,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.CreateSlot(ctx, slot); err != nil {
				return err
			}
			res.Created = append(res.Created, *slot)
			existing = append(existing, ExistingWindow{Window: w, Source: SourceSlot, Ref: string(slot.ID)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// =============================================================================
// DELETION AND LISTING
// =============================================================================

// DeleteSlot removes a slot. Only unbooked future slots are deletable;
// everything else is history and stays.
func (r *SlotRegistry) DeleteSlot(ctx context.Context, id SlotID) error {
	return r.store.WithTx(ctx, func(s Store) error {
		slot, err := s.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		if slot.Status != SlotAvailable || !slot.StartTime.After(r.now().UTC()) {
			return ErrSlotNotDeletable
		}
		return s.DeleteSlot(ctx, id)
	})
}

// ListOpenSlots returns a teacher's future available slots, what the public
// booking surface renders behind a share link.
func (r *SlotRegistry) ListOpenSlots(ctx context.Context, teacher TeacherID, until time.Time) ([]ScheduleSlot, error) {
	now := r.now().UTC()
	slots, err := r.store.ListSlotsByTeacher(ctx, teacher, now, until)
	if err != nil {
		return nil, err
	}
	open := make([]ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		if s.Status == SlotAvailable && s.StartTime.After(now) {
			open = append(open, s)
		}
	}
	return open, nil
}

// ListSlots returns all of a teacher's slots in [from, to).
func (r *SlotRegistry) ListSlots(ctx context.Context, teacher TeacherID, from, to time.Time) ([]ScheduleSlot, error) {
	return r.store.ListSlotsByTeacher(ctx, teacher, from, to)
}

// =============================================================================
// HELPERS
// =============================================================================

// existingWindows collects the teacher's occupied windows (available or
// booked slots) in [from, to) for conflict checks.
func existingWindows(ctx context.Context, s Store, teacher TeacherID, from, to time.Time) ([]ExistingWindow, error) {
	slots, err := s.ListSlotsByTeacher(ctx, teacher, from, to)
	if err != nil {
		return nil, err
	}
	var out []ExistingWindow
	for _, slot := range slots {
		if slot.Status != SlotAvailable && slot.Status != SlotBooked {
			continue
		}
		src := SourceSlot
		if slot.TemplateID != nil {
			src = SourceTemplate
		}
		out = append(out, ExistingWindow{Window: slot.Window(), Source: src, Ref: string(slot.ID)})
	}
	return out, nil
}

// nextWeekday returns the first day >= t (UTC, midnight) falling on wd.
func nextWeekday(t time.Time, wd time.Weekday) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

// windowsExtent returns the min start and max end across windows.
func windowsExtent(windows []Window) (time.Time, time.Time) {
	from, to := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(from) {
			from = w.Start
		}
		if w.End.After(to) {
			to = w.End
		}
	}
	return from, to
}
