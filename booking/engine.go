/*
engine.go - Atomic booking transactions

PURPOSE:
  The BookingEngine is the orchestrator: it validates availability and
  funds, then commits the slot reservation, the booking row and the ledger
  debit as one unit. Cancellation refunds in the same fashion, and the
  no-show sweep forfeits credits explicitly.

CORE CORRECTNESS REQUIREMENT:
  The slot's status is re-read inside the same atomic unit used for the
  write - never from a stale cache - and the status change is a
  compare-and-swap. A second concurrent booker observes the already-booked
  status and fails cleanly with a Conflict error. The ledger debit shares
  the unit: a slot can never end up booked without a matching deduction,
  or vice versa. Any guard failure aborts the whole unit.

RETRY POLICY:
  The engine never retries. A request that times out before commit is the
  caller's decision to retry; retrying a deduction could double-charge.

SEE ALSO:
  - ledger.go:   applyLedger, shared with this package's transactions
  - registry.go: the creation side of the slot lifecycle
  - waitlist.go: promotion triggered after a cancellation frees a slot
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// NOTIFICATIONS - fire-and-forget collaborator
// =============================================================================

// NotificationEvent describes something a student or teacher should hear
// about. Delivery is external; the engine never blocks on it.
type NotificationEvent struct {
	Kind      string // "booked", "cancelled", "waitlist_notified", "no_show"
	StudentID StudentID
	TeacherID TeacherID
	SlotID    SlotID
	BookingID BookingID
	At        time.Time
}

// Notifier delivers events best-effort. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, ev NotificationEvent)
}

// LogNotifier writes events to the log. The default when no delivery
// integration is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(_ context.Context, ev NotificationEvent) {
	if n.Logger == nil {
		return
	}
	n.Logger.Info("notification",
		zap.String("kind", ev.Kind),
		zap.String("student_id", string(ev.StudentID)),
		zap.String("teacher_id", string(ev.TeacherID)),
		zap.String("slot_id", string(ev.SlotID)),
		zap.String("booking_id", string(ev.BookingID)),
	)
}

// SlotFreedListener is consulted when a cancellation frees a slot, before
// the slot is advertised again. Implemented by the waitlist queue.
type SlotFreedListener interface {
	OnSlotFreed(ctx context.Context, slot ScheduleSlot)
}

// =============================================================================
// ENGINE
// =============================================================================

// EngineConfig carries the policy knobs left configurable on purpose: the
// cancellation notice window and the per-booking debit unit.
type EngineConfig struct {
	CancelNotice time.Duration   // minimum notice before slot start; default 24h
	NoShowGrace  time.Duration   // grace after slot end before sweeping; default 1h
	DebitHours   decimal.Decimal // per-booking debit; default 1
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.CancelNotice <= 0 {
		c.CancelNotice = 24 * time.Hour
	}
	if c.NoShowGrace <= 0 {
		c.NoShowGrace = time.Hour
	}
	if c.DebitHours.IsZero() {
		c.DebitHours = DefaultDebitHours
	}
	return c
}

type BookingEngine struct {
	store    TxStore
	cfg      EngineConfig
	notifier Notifier
	freed    SlotFreedListener
	logger   *zap.Logger
	now      func() time.Time
}

func NewBookingEngine(store TxStore, cfg EngineConfig, notifier Notifier, logger *zap.Logger) *BookingEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	return &BookingEngine{
		store:    store,
		cfg:      cfg.withDefaults(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *BookingEngine) SetClock(now func() time.Time) { e.now = now }

// SetFreedListener wires the waitlist queue. Set after construction to
// break the engine <-> waitlist dependency cycle.
func (e *BookingEngine) SetFreedListener(l SlotFreedListener) { e.freed = l }

// =============================================================================
// BOOK
// =============================================================================

// BookingResult is returned on a successful booking.
type BookingResult struct {
	Booking          Booking
	Slot             ScheduleSlot
	CreditsDeducted  decimal.Decimal
	RemainingCredits decimal.Decimal
}

// Book atomically reserves the slot for the student and debits the credit
// account. All guards run against state read inside the transaction; any
// failure aborts the whole unit with no partial state.
func (e *BookingEngine) Book(ctx context.Context, slotID SlotID, studentID StudentID, notes string) (*BookingResult, error) {
	if slotID == "" || studentID == "" {
		return nil, ErrInvalidInput
	}

	var res *BookingResult
	err := e.store.WithTx(ctx, func(s Store) error {
		now := e.now().UTC()

		slot, err := s.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.Status != SlotAvailable {
			return &BookingConflictError{SlotID: slot.ID, Status: slot.Status}
		}
		if !slot.StartTime.After(now) {
			return ErrSlotInPast
		}

		acct, err := s.GetAccountByPair(ctx, studentID, slot.TeacherID)
		if err != nil {
			if IsNotFound(err) {
				return ErrNoCreditAccount
			}
			return err
		}
		if !acct.IsActive {
			return ErrAccountInactive
		}

		taken := 0
		if slot.MaxStudents > 1 {
			taken, err = s.CountActiveBookings(ctx, slot.ID)
			if err != nil {
				return err
			}
			if taken >= slot.MaxStudents {
				return &BookingConflictError{SlotID: slot.ID, Status: SlotBooked}
			}
		}

		b := Booking{
			ID:        BookingID(uuid.NewString()),
			SlotID:    slot.ID,
			StudentID: studentID,
			TeacherID: slot.TeacherID,
			Status:    BookingConfirmed,
			Notes:     notes,
			BookedAt:  now,
		}
		if err := s.SaveBooking(ctx, &b); err != nil {
			return err
		}

		// Single-student slots flip to booked; group slots stay available
		// until the last seat is taken.
		if slot.MaxStudents <= 1 {
			slot.Status = SlotBooked
			slot.BookedBy = &studentID
		} else if taken+1 >= slot.MaxStudents {
			slot.Status = SlotBooked
		}
		slot.UpdatedAt = now
		if err := s.UpdateSlot(ctx, slot, SlotAvailable); err != nil {
			return err
		}

		ledger, err := applyLedger(ctx, s, ApplyInput{
			AccountID:     acct.ID,
			Type:          TxDeduction,
			Hours:         e.cfg.DebitHours,
			Description:   fmt.Sprintf("lesson booking %s", b.ID),
			ReferenceType: RefBooking,
			ReferenceID:   string(b.ID),
			PerformedBy:   string(studentID),
		}, now)
		if err != nil {
			return err
		}

		res = &BookingResult{
			Booking:          b,
			Slot:             *slot,
			CreditsDeducted:  e.cfg.DebitHours,
			RemainingCredits: ledger.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, NotificationEvent{
		Kind:      "booked",
		StudentID: res.Booking.StudentID,
		TeacherID: res.Booking.TeacherID,
		SlotID:    res.Slot.ID,
		BookingID: res.Booking.ID,
		At:        e.now().UTC(),
	})
	return res, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelResult reports the refund issued for a cancellation.
type CancelResult struct {
	Booking        Booking
	RefundedHours  decimal.Decimal
	BalanceAfter   decimal.Decimal
	SlotRelisted   bool
	RelistedSlotID SlotID
}

// Cancel transitions the booking and its slot to cancelled, refunds the
// original deduction, and afterwards offers the freed slot to the
// waitlist. The notice-window guard runs before any mutation.
func (e *BookingEngine) Cancel(ctx context.Context, bookingID BookingID, actor string) (*CancelResult, error) {
	var (
		res       *CancelResult
		freedSlot *ScheduleSlot
	)
	err := e.store.WithTx(ctx, func(s Store) error {
		now := e.now().UTC()

		b, err := s.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		switch b.Status {
		case BookingConfirmed:
			// cancellable
		case BookingCancelled:
			return ErrAlreadyCancelled
		default:
			return fmt.Errorf("%w: booking is %s", ErrInvalidInput, b.Status)
		}

		slot, err := s.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		if now.Add(e.cfg.CancelNotice).After(slot.StartTime) {
			return ErrCancellationWindowPassed
		}

		b.Status = BookingCancelled
		b.CancelledAt = &now
		b.CancelledBy = actor
		if err := s.SaveBooking(ctx, b); err != nil {
			return err
		}

		// Re-list the freed seat so the waitlist (or anyone) can book it.
		expect := slot.Status
		if slot.Status == SlotBooked {
			slot.Status = SlotAvailable
			slot.BookedBy = nil
		}
		slot.UpdatedAt = now
		if err := s.UpdateSlot(ctx, slot, expect); err != nil {
			return err
		}

		acct, err := s.GetAccountByPair(ctx, b.StudentID, b.TeacherID)
		if err != nil {
			return err
		}
		ledger, err := applyLedger(ctx, s, ApplyInput{
			AccountID:     acct.ID,
			Type:          TxRefund,
			Hours:         e.cfg.DebitHours,
			Description:   fmt.Sprintf("cancellation refund for booking %s", b.ID),
			ReferenceType: RefBooking,
			ReferenceID:   string(b.ID),
			PerformedBy:   actor,
		}, now)
		if err != nil {
			return err
		}

		freedSlot = slot
		res = &CancelResult{
			Booking:        *b,
			RefundedHours:  e.cfg.DebitHours,
			BalanceAfter:   ledger.BalanceAfter,
			SlotRelisted:   slot.Status == SlotAvailable,
			RelistedSlotID: slot.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Waitlist promotion and notification happen after commit: a failed
	// promotion must not undo the cancellation.
	if e.freed != nil && freedSlot != nil && freedSlot.Status == SlotAvailable {
		e.freed.OnSlotFreed(ctx, *freedSlot)
	}
	e.notifier.Notify(ctx, NotificationEvent{
		Kind:      "cancelled",
		StudentID: res.Booking.StudentID,
		TeacherID: res.Booking.TeacherID,
		SlotID:    res.Booking.SlotID,
		BookingID: res.Booking.ID,
		At:        e.now().UTC(),
	})
	return res, nil
}

// =============================================================================
// COMPLETE
// =============================================================================

// Complete marks a booked lesson as held. Completed slots are exempt from
// the no-show sweep.
func (e *BookingEngine) Complete(ctx context.Context, bookingID BookingID, actor string) error {
	return e.store.WithTx(ctx, func(s Store) error {
		now := e.now().UTC()

		b, err := s.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != BookingConfirmed {
			return fmt.Errorf("%w: booking is %s", ErrInvalidInput, b.Status)
		}
		b.Status = BookingCompleted
		b.CompletedAt = &now
		if err := s.SaveBooking(ctx, b); err != nil {
			return err
		}

		slot, err := s.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		if slot.Status == SlotBooked {
			expect := slot.Status
			slot.Status = SlotCompleted
			slot.UpdatedAt = now
			if err := s.UpdateSlot(ctx, slot, expect); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// NO-SHOW SWEEP
// =============================================================================

// SweepNoShows finds slots whose end time passed the grace period without a
// completion record and transitions them to no_show. Booked slots qualify
// directly; available slots qualify only when they carry confirmed bookings,
// which happens for group slots that lapsed before filling their seats. The
// credit is forfeited - no refund - recorded explicitly with a zero-hour
// adjustment row so the forfeit is auditable in the ledger. Idempotent and
// safe to run concurrently with booking requests.
func (e *BookingEngine) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := e.now().UTC().Add(-e.cfg.NoShowGrace)
	candidates, err := e.store.ListSlotsByStatus(ctx, SlotBooked, cutoff)
	if err != nil {
		return 0, err
	}
	open, err := e.store.ListSlotsByStatus(ctx, SlotAvailable, cutoff)
	if err != nil {
		return 0, err
	}
	candidates = append(candidates, open...)

	swept := 0
	for _, candidate := range candidates {
		var events []NotificationEvent
		err := e.store.WithTx(ctx, func(s Store) error {
			events = events[:0]
			now := e.now().UTC()

			slot, err := s.GetSlot(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if slot.Status != SlotBooked && slot.Status != SlotAvailable {
				return nil // completed or cancelled since listing; skip
			}
			if slot.EndTime.After(cutoff) {
				return nil
			}

			bookings, err := s.ListBookingsBySlot(ctx, slot.ID)
			if err != nil {
				return err
			}
			confirmed := bookings[:0]
			for i := range bookings {
				if bookings[i].Status == BookingConfirmed {
					confirmed = append(confirmed, bookings[i])
				}
			}
			if slot.Status == SlotAvailable && len(confirmed) == 0 {
				return nil // lapsed but empty; nothing to forfeit
			}

			expect := slot.Status
			slot.Status = SlotNoShow
			slot.UpdatedAt = now
			if err := s.UpdateSlot(ctx, slot, expect); err != nil {
				return err
			}

			for i := range confirmed {
				b := &confirmed[i]
				b.Status = BookingNoShow
				if err := s.SaveBooking(ctx, b); err != nil {
					return err
				}

				acct, err := s.GetAccountByPair(ctx, b.StudentID, b.TeacherID)
				if err != nil {
					return err
				}
				if _, err := applyLedger(ctx, s, ApplyInput{
					AccountID:     acct.ID,
					Type:          TxAdjustment,
					Hours:         decimal.Zero,
					Description:   fmt.Sprintf("no-show forfeit for booking %s", b.ID),
					ReferenceType: RefSweep,
					ReferenceID:   string(b.ID),
					PerformedBy:   "system",
				}, now); err != nil {
					return err
				}

				events = append(events, NotificationEvent{
					Kind:      "no_show",
					StudentID: b.StudentID,
					TeacherID: b.TeacherID,
					SlotID:    slot.ID,
					BookingID: b.ID,
					At:        now,
				})
			}
			swept++
			return nil
		})
		if err != nil {
			e.logger.Error("no-show sweep failed for slot",
				zap.String("slot_id", string(candidate.ID)), zap.Error(err))
			continue
		}
		// Notify only once the transaction committed.
		for _, ev := range events {
			e.notifier.Notify(ctx, ev)
		}
	}
	return swept, nil
}
