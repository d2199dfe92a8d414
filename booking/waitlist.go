/*
waitlist.go - Per-pattern queue for oversubscribed slots

PURPOSE:
  Students queue against a slot pattern (teacher + weekday + start time)
  when no matching slot is open. Entries are ordered by (priority desc,
  joined_at asc). When a cancellation frees a slot the queue is consulted
  before the slot is advertised again: the top entry is notified and, if it
  asked for auto-book, booked on the student's behalf.

FAILURE POLICY:
  An auto-book that fails (credits lapsed, slot re-taken) reverts the entry
  to waiting rather than dropping it. A notified entry not acted on within
  its window reverts to waiting at the back of its priority band and the
  next entry is notified.

SEE ALSO:
  - engine.go: Cancel invokes OnSlotFreed after commit
  - api/sweeper.go: runs ExpireNotified on a schedule
*/
package booking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotifyTTLDefault is how long a notified entry holds its claim before it
// reverts to waiting.
const NotifyTTLDefault = 24 * time.Hour

// Booker books a slot on a student's behalf. Implemented by BookingEngine;
// an interface here keeps the waitlist testable without the full engine.
type Booker interface {
	Book(ctx context.Context, slotID SlotID, studentID StudentID, notes string) (*BookingResult, error)
}

// =============================================================================
// WAITLIST QUEUE
// =============================================================================

type WaitlistQueue struct {
	store     TxStore
	booker    Booker
	notifier  Notifier
	logger    *zap.Logger
	notifyTTL time.Duration
	now       func() time.Time
}

func NewWaitlistQueue(store TxStore, booker Booker, notifier Notifier, logger *zap.Logger) *WaitlistQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	return &WaitlistQueue{
		store:     store,
		booker:    booker,
		notifier:  notifier,
		logger:    logger,
		notifyTTL: NotifyTTLDefault,
		now:       time.Now,
	}
}

// SetClock overrides the queue clock. Tests only.
func (q *WaitlistQueue) SetClock(now func() time.Time) { q.now = now }

// SetNotifyTTL overrides the notified-entry expiry window.
func (q *WaitlistQueue) SetNotifyTTL(ttl time.Duration) { q.notifyTTL = ttl }

// =============================================================================
// JOIN
// =============================================================================

// JoinResult reports the assigned position and a rough wait estimate.
type JoinResult struct {
	Entry              WaitlistEntry
	EstimatedWaitHours int
}

// Join queues a student for a pattern. Rejected with ErrSlotOpenNow when a
// matching slot is open right now - queueing is only for genuinely full
// patterns; the caller should book directly instead.
func (q *WaitlistQueue) Join(ctx context.Context, pattern SlotPattern, studentID StudentID, priority int, autoBook bool) (*JoinResult, error) {
	if pattern.TeacherID == "" || studentID == "" {
		return nil, ErrInvalidInput
	}

	var res *JoinResult
	err := q.store.WithTx(ctx, func(s Store) error {
		now := q.now().UTC()

		open, err := q.openSlotForPattern(ctx, s, pattern, now)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrSlotOpenNow
		}

		entry := &WaitlistEntry{
			ID:        EntryID(uuid.NewString()),
			Pattern:   pattern,
			StudentID: studentID,
			Priority:  priority,
			Status:    WaitlistWaiting,
			AutoBook:  autoBook,
			JoinedAt:  now,
		}
		if err := s.SaveEntry(ctx, entry); err != nil {
			return err
		}
		if err := q.recomputePositions(ctx, s, pattern.Key()); err != nil {
			return err
		}

		// Re-read for the recomputed position.
		saved, err := s.GetEntry(ctx, entry.ID)
		if err != nil {
			return err
		}
		res = &JoinResult{
			Entry: *saved,
			// One pattern occurrence per week: the nth in line waits
			// roughly n-1 weeks.
			EstimatedWaitHours: (saved.Position - 1) * 7 * 24,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Remove takes an entry out of the queue and recomputes positions.
func (q *WaitlistQueue) Remove(ctx context.Context, entryID EntryID) error {
	return q.store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		entry.Status = WaitlistRemoved
		if err := s.SaveEntry(ctx, entry); err != nil {
			return err
		}
		return q.recomputePositions(ctx, s, entry.Pattern.Key())
	})
}

// =============================================================================
// PROMOTE
// =============================================================================

// Promote moves an entry to the head of its pattern's queue (manual
// teacher reordering) and recomputes every position in the pattern.
func (q *WaitlistQueue) Promote(ctx context.Context, entryID EntryID) (*WaitlistEntry, error) {
	var out *WaitlistEntry
	err := q.store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != WaitlistWaiting {
			return ErrInvalidInput
		}

		peers, err := s.ListEntries(ctx, entry.Pattern.Key(), WaitlistWaiting, WaitlistNotified)
		if err != nil {
			return err
		}
		top := entry.Priority
		for _, p := range peers {
			if p.Priority > top {
				top = p.Priority
			}
		}
		entry.Priority = top + 1
		if err := s.SaveEntry(ctx, entry); err != nil {
			return err
		}
		if err := q.recomputePositions(ctx, s, entry.Pattern.Key()); err != nil {
			return err
		}
		saved, err := s.GetEntry(ctx, entry.ID)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// PROMOTION ON FREED SLOTS
// =============================================================================

// OnSlotFreed is invoked by the engine after a cancellation re-lists a
// slot. The highest-priority waiting entry is notified; auto-book entries
// are booked immediately, reverting to waiting if the booking fails.
func (q *WaitlistQueue) OnSlotFreed(ctx context.Context, slot ScheduleSlot) {
	key := slot.Pattern().Key()

	var top *WaitlistEntry
	err := q.store.WithTx(ctx, func(s Store) error {
		entries, err := s.ListEntries(ctx, key, WaitlistWaiting)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		now := q.now().UTC()
		entry := entries[0]
		entry.Status = WaitlistNotified
		entry.NotifiedAt = &now
		if err := s.SaveEntry(ctx, &entry); err != nil {
			return err
		}
		top = &entry
		return nil
	})
	if err != nil {
		q.logger.Error("waitlist promotion failed",
			zap.String("pattern", key), zap.Error(err))
		return
	}
	if top == nil {
		return
	}

	q.notifier.Notify(ctx, NotificationEvent{
		Kind:      "waitlist_notified",
		StudentID: top.StudentID,
		TeacherID: slot.TeacherID,
		SlotID:    slot.ID,
		At:        q.now().UTC(),
	})

	if !top.AutoBook || q.booker == nil {
		return
	}

	if _, err := q.booker.Book(ctx, slot.ID, top.StudentID, "auto-booked from waitlist"); err != nil {
		// Credits may have lapsed or the slot was re-taken; the student
		// keeps their place in line.
		q.logger.Warn("waitlist auto-book failed, reverting entry to waiting",
			zap.String("entry_id", string(top.ID)), zap.Error(err))
		q.revert(ctx, top.ID, false)
		return
	}
	q.markBooked(ctx, top.ID)
}

// ExpireNotified reverts notified entries whose window has lapsed back to
// waiting, at the back of their priority band, and recomputes positions.
// Idempotent; run on a schedule by the sweeper.
func (q *WaitlistQueue) ExpireNotified(ctx context.Context) (int, error) {
	entries, err := q.store.ListEntriesByStatus(ctx, WaitlistNotified)
	if err != nil {
		return 0, err
	}

	cutoff := q.now().UTC().Add(-q.notifyTTL)
	expired := 0
	for _, e := range entries {
		if e.NotifiedAt == nil || e.NotifiedAt.After(cutoff) {
			continue
		}
		q.revert(ctx, e.ID, true)
		expired++
	}
	return expired, nil
}

// Entries returns a pattern's queue in order.
func (q *WaitlistQueue) Entries(ctx context.Context, pattern SlotPattern) ([]WaitlistEntry, error) {
	return q.store.ListEntries(ctx, pattern.Key(), WaitlistWaiting, WaitlistNotified)
}

// =============================================================================
// INTERNAL
// =============================================================================

// revert returns an entry to waiting. When demote is set the entry joins
// the back of its priority band (its join time is reset), which is how an
// expired notification loses its turn without losing its place entirely.
func (q *WaitlistQueue) revert(ctx context.Context, id EntryID, demote bool) {
	err := q.store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		entry.Status = WaitlistWaiting
		entry.NotifiedAt = nil
		if demote {
			entry.JoinedAt = q.now().UTC()
		}
		if err := s.SaveEntry(ctx, entry); err != nil {
			return err
		}
		return q.recomputePositions(ctx, s, entry.Pattern.Key())
	})
	if err != nil {
		q.logger.Error("waitlist revert failed", zap.String("entry_id", string(id)), zap.Error(err))
	}
}

func (q *WaitlistQueue) markBooked(ctx context.Context, id EntryID) {
	err := q.store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		entry.Status = WaitlistBooked
		if err := s.SaveEntry(ctx, entry); err != nil {
			return err
		}
		return q.recomputePositions(ctx, s, entry.Pattern.Key())
	})
	if err != nil {
		q.logger.Error("waitlist mark-booked failed", zap.String("entry_id", string(id)), zap.Error(err))
	}
}

// recomputePositions rewrites Position for every live entry in a pattern:
// 1-based, ordered by (priority desc, joined_at asc). Position is derived
// state; this is the only writer.
func (q *WaitlistQueue) recomputePositions(ctx context.Context, s Store, patternKey string) error {
	entries, err := s.ListEntries(ctx, patternKey, WaitlistWaiting, WaitlistNotified)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
	for i := range entries {
		if entries[i].Position == i+1 {
			continue
		}
		entries[i].Position = i + 1
		if err := s.SaveEntry(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// openSlotForPattern finds a future available slot matching the pattern.
func (q *WaitlistQueue) openSlotForPattern(ctx context.Context, s Store, pattern SlotPattern, now time.Time) (*ScheduleSlot, error) {
	slots, err := s.ListSlotsByTeacher(ctx, pattern.TeacherID, now, now.AddDate(0, 0, 7*MaterializeWeeksDefault))
	if err != nil {
		return nil, err
	}
	for i := range slots {
		slot := slots[i]
		if slot.Status != SlotAvailable || !slot.StartTime.After(now) {
			continue
		}
		if slot.Pattern() == pattern {
			return &slot, nil
		}
	}
	return nil, nil
}
