package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makersapien/classlog-sub002/booking"
	"github.com/makersapien/classlog-sub002/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// Shared by the other _test.go files in this package.

// baseTime is a Monday noon, far enough from any boundary to shift freely.
var baseTime = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func hours(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(st booking.TxStore) *booking.BookingEngine {
	e := booking.NewBookingEngine(st, booking.EngineConfig{}, nil, zap.NewNop())
	e.SetClock(fixedClock(baseTime))
	return e
}

func newTestLedger(st booking.TxStore) *booking.CreditLedger {
	l := booking.NewCreditLedger(st)
	l.SetClock(fixedClock(baseTime))
	return l
}

// seedAccount purchases hours for the pair and returns the account.
func seedAccount(t *testing.T, st booking.TxStore, student booking.StudentID, teacher booking.TeacherID, balance string) *booking.CreditAccount {
	t.Helper()
	_, err := newTestLedger(st).Purchase(context.Background(), student, teacher, hours(balance), hours("50"), "test")
	require.NoError(t, err)
	acct, err := st.GetAccountByPair(context.Background(), student, teacher)
	require.NoError(t, err)
	return acct
}

// seedSlot creates an available slot starting at the given offset from
// baseTime, one hour long.
func seedSlot(t *testing.T, st booking.TxStore, teacher booking.TeacherID, startOffset time.Duration) *booking.ScheduleSlot {
	t.Helper()
	return seedGroupSlot(t, st, teacher, startOffset, 1)
}

func seedGroupSlot(t *testing.T, st booking.TxStore, teacher booking.TeacherID, startOffset time.Duration, maxStudents int) *booking.ScheduleSlot {
	t.Helper()
	slot := &booking.ScheduleSlot{
		ID:          booking.SlotID(uuid.NewString()),
		TeacherID:   teacher,
		StartTime:   baseTime.Add(startOffset),
		EndTime:     baseTime.Add(startOffset + time.Hour),
		Status:      booking.SlotAvailable,
		MaxStudents: maxStudents,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
	require.NoError(t, st.CreateSlot(context.Background(), slot))
	return slot
}

// requireLedgerIntegrity asserts the stored balance equals the sum of the
// account's ledger rows.
func requireLedgerIntegrity(t *testing.T, st booking.TxStore, id booking.AccountID) {
	t.Helper()
	ctx := context.Background()
	acct, err := st.GetAccount(ctx, id)
	require.NoError(t, err)
	recon, err := newTestLedger(st).Reconstruct(ctx, id)
	require.NoError(t, err)
	require.True(t, acct.BalanceHours.Equal(recon),
		"stored balance %s diverged from ledger sum %s", acct.BalanceHours, recon)
}

// =============================================================================
// BOOK
// =============================================================================

func TestBook_DebitsAndReservesAtomically(t *testing.T) {
	// GIVEN: A student with 5 prepaid hours and an open slot in 48h
	// WHEN: The student books the slot
	// THEN: The slot is booked, a confirmed booking exists, and exactly
	//       one hour was deducted in the same unit

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	res, err := engine.Book(ctx, slot.ID, "stu-1", "first lesson")
	require.NoError(t, err)

	assert.Equal(t, booking.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, booking.SlotBooked, res.Slot.Status)
	require.NotNil(t, res.Slot.BookedBy)
	assert.Equal(t, booking.StudentID("stu-1"), *res.Slot.BookedBy)
	assert.True(t, res.CreditsDeducted.Equal(hours("1")))
	assert.True(t, res.RemainingCredits.Equal(hours("4")))

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2) // purchase + deduction
	assert.Equal(t, booking.TxDeduction, rows[1].Type)
	assert.True(t, rows[1].HoursAmount.Equal(hours("-1")))
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestBook_NoAccount(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	_, err := engine.Book(context.Background(), slot.ID, "stranger", "")
	require.ErrorIs(t, err, booking.ErrNoCreditAccount)
}

func TestBook_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")
	require.NoError(t, newTestLedger(st).Deactivate(ctx, acct.ID))
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	_, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.ErrorIs(t, err, booking.ErrAccountInactive)
}

func TestBook_InsufficientCreditsLeavesNoPartialState(t *testing.T) {
	// GIVEN: A student with zero balance
	// WHEN: Booking fails on the funds guard
	// THEN: The slot is still available and no booking row survives the
	//       rollback

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)

	acct := seedAccount(t, st, "stu-1", "tea-1", "1")
	// Drain the balance.
	_, err := newTestLedger(st).Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxAdjustment, Hours: hours("-1"),
		Description: "drain", ReferenceType: booking.RefManual, PerformedBy: "test",
	})
	require.NoError(t, err)

	slot := seedSlot(t, st, "tea-1", 48*time.Hour)
	_, err = engine.Book(ctx, slot.ID, "stu-1", "")
	require.ErrorIs(t, err, booking.ErrInsufficientBalance)

	after, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, after.Status)
	assert.Nil(t, after.BookedBy)

	bookings, err := st.ListBookingsByStudent(ctx, "stu-1")
	require.NoError(t, err)
	assert.Empty(t, bookings)
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestBook_SlotAlreadyBooked(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	seedAccount(t, st, "stu-2", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	_, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)

	_, err = engine.Book(ctx, slot.ID, "stu-2", "")
	require.ErrorIs(t, err, booking.ErrSlotUnavailable)
	assert.True(t, booking.IsConflict(err))
}

func TestBook_SlotInPast(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", -2*time.Hour)

	_, err := engine.Book(context.Background(), slot.ID, "stu-1", "")
	require.ErrorIs(t, err, booking.ErrSlotInPast)
}

func TestBook_ConcurrentBookersExactlyOneWins(t *testing.T) {
	// GIVEN: Ten students racing for the same single-seat slot
	// WHEN: All book concurrently
	// THEN: Exactly one succeeds; the rest fail with a conflict, and only
	//       one deduction exists across all accounts

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	const n = 10
	students := make([]booking.StudentID, n)
	for i := range students {
		students[i] = booking.StudentID("stu-" + string(rune('a'+i)))
		seedAccount(t, st, students[i], "tea-1", "3")
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Book(ctx, slot.ID, students[i], "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, booking.IsConflict(err), "unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)

	deductions := 0
	for _, s := range students {
		acct, err := st.GetAccountByPair(ctx, s, "tea-1")
		require.NoError(t, err)
		rows, err := st.LedgerEntries(ctx, acct.ID)
		require.NoError(t, err)
		for _, row := range rows {
			if row.Type == booking.TxDeduction {
				deductions++
			}
		}
		requireLedgerIntegrity(t, st, acct.ID)
	}
	assert.Equal(t, 1, deductions)
}

func TestBook_GroupSlotStaysAvailableUntilFull(t *testing.T) {
	// GIVEN: A slot with two seats
	// WHEN: Two students book it in turn
	// THEN: The slot stays available after the first and flips to booked
	//       on the second; a third booker is rejected

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	seedAccount(t, st, "stu-2", "tea-1", "5")
	seedAccount(t, st, "stu-3", "tea-1", "5")
	slot := seedGroupSlot(t, st, "tea-1", 48*time.Hour, 2)

	res1, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, res1.Slot.Status)

	res2, err := engine.Book(ctx, slot.ID, "stu-2", "")
	require.NoError(t, err)
	assert.Equal(t, booking.SlotBooked, res2.Slot.Status)

	_, err = engine.Book(ctx, slot.ID, "stu-3", "")
	require.ErrorIs(t, err, booking.ErrSlotUnavailable)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_RefundsAndRelists(t *testing.T) {
	// GIVEN: A booking on a slot 48h out (outside the 24h notice window)
	// WHEN: The student cancels
	// THEN: The booking is cancelled, the hour refunded (net zero against
	//       the deduction) and the slot is open again

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	booked, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)

	res, err := engine.Cancel(ctx, booked.Booking.ID, "student:stu-1")
	require.NoError(t, err)

	assert.Equal(t, booking.BookingCancelled, res.Booking.Status)
	assert.Equal(t, "student:stu-1", res.Booking.CancelledBy)
	assert.True(t, res.RefundedHours.Equal(hours("1")))
	assert.True(t, res.BalanceAfter.Equal(hours("5")))
	assert.True(t, res.SlotRelisted)

	after, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, after.Status)
	assert.Nil(t, after.BookedBy)

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3) // purchase, deduction, refund
	assert.Equal(t, booking.TxRefund, rows[2].Type)
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestCancel_WithinNoticeWindowRejected(t *testing.T) {
	// GIVEN: A booking on a slot starting in 2h with the default 24h notice
	// WHEN: The student cancels
	// THEN: The cancellation is rejected and no refund is issued

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 2*time.Hour)

	booked, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, booked.Booking.ID, "student:stu-1")
	require.ErrorIs(t, err, booking.ErrCancellationWindowPassed)

	b, err := st.GetBooking(ctx, booked.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingConfirmed, b.Status)

	balance, err := newTestLedger(st).Balance(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(hours("4")))
}

func TestCancel_ShortNoticeConfigured(t *testing.T) {
	// A teacher running a 1h notice policy can take the same cancellation.
	ctx := context.Background()
	st := memory.New()
	engine := booking.NewBookingEngine(st, booking.EngineConfig{CancelNotice: time.Hour}, nil, zap.NewNop())
	engine.SetClock(fixedClock(baseTime))
	seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 2*time.Hour)

	booked, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)

	res, err := engine.Cancel(ctx, booked.Booking.ID, "student:stu-1")
	require.NoError(t, err)
	assert.True(t, res.SlotRelisted)
}

func TestCancel_AlreadyCancelled(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	booked, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, booked.Booking.ID, "student:stu-1")
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, booked.Booking.ID, "student:stu-1")
	require.ErrorIs(t, err, booking.ErrAlreadyCancelled)
}

func TestCancel_MissingBooking(t *testing.T) {
	st := memory.New()
	engine := newTestEngine(st)
	_, err := engine.Cancel(context.Background(), "nope", "student:x")
	require.ErrorIs(t, err, booking.ErrBookingNotFound)
}

// =============================================================================
// COMPLETE + NO-SHOW SWEEP
// =============================================================================

func TestComplete_MarksLessonHeld(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 48*time.Hour)

	booked, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)
	require.NoError(t, engine.Complete(ctx, booked.Booking.ID, "tea-1"))

	b, err := st.GetBooking(ctx, booked.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingCompleted, b.Status)
	require.NotNil(t, b.CompletedAt)

	after, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotCompleted, after.Status)
}

func TestSweepNoShows_ForfeitsCreditWithAuditRow(t *testing.T) {
	// GIVEN: A booked slot whose end passed the 1h grace window with no
	//        completion record
	// WHEN: The sweep runs
	// THEN: Slot and booking become no_show, the deduction stands, and a
	//       zero-hour adjustment row makes the forfeit auditable

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 4*time.Hour)

	booked, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)

	// Jump past slot end plus grace.
	engine.SetClock(fixedClock(baseTime.Add(7 * time.Hour)))

	swept, err := engine.SweepNoShows(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	afterSlot, err := st.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotNoShow, afterSlot.Status)

	b, err := st.GetBooking(ctx, booked.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingNoShow, b.Status)

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3) // purchase, deduction, forfeit marker
	last := rows[2]
	assert.Equal(t, booking.TxAdjustment, last.Type)
	assert.True(t, last.HoursAmount.IsZero())
	assert.Equal(t, booking.RefSweep, last.ReferenceType)

	balance, err := newTestLedger(st).Balance(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(hours("4")), "no refund on a no-show")
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestSweepNoShows_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	slot := seedSlot(t, st, "tea-1", 4*time.Hour)
	_, err := engine.Book(ctx, slot.ID, "stu-1", "")
	require.NoError(t, err)

	engine.SetClock(fixedClock(baseTime.Add(7 * time.Hour)))
	swept, err := engine.SweepNoShows(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	swept, err = engine.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSweepNoShows_SkipsCompletedAndGrace(t *testing.T) {
	// GIVEN: One completed lesson and one booked slot still inside grace
	// WHEN: The sweep runs
	// THEN: Neither is swept

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	seedAccount(t, st, "stu-1", "tea-1", "5")
	seedAccount(t, st, "stu-2", "tea-1", "5")

	done := seedSlot(t, st, "tea-1", 4*time.Hour)
	recent := seedSlot(t, st, "tea-1", 6*time.Hour)

	b1, err := engine.Book(ctx, done.ID, "stu-1", "")
	require.NoError(t, err)
	_, err = engine.Book(ctx, recent.ID, "stu-2", "")
	require.NoError(t, err)
	require.NoError(t, engine.Complete(ctx, b1.Booking.ID, "tea-1"))

	// done ended at +5h (completed), recent ends at +7h: at +7h30m only
	// recent is past end but still inside its 1h grace.
	engine.SetClock(fixedClock(baseTime.Add(7*time.Hour + 30*time.Minute)))
	swept, err := engine.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSweepNoShows_LapsedGroupSlotForfeits(t *testing.T) {
	// GIVEN: A two-seat group slot with one confirmed booking, so the slot
	//        is still available, plus an empty open slot in the same window
	// WHEN: The sweep runs well past both end times
	// THEN: The half-filled slot and its booking become no_show with a
	//       forfeit row; the empty slot is left alone

	ctx := context.Background()
	st := memory.New()
	engine := newTestEngine(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")
	group := seedGroupSlot(t, st, "tea-1", 4*time.Hour, 2)
	empty := seedSlot(t, st, "tea-2", 4*time.Hour)

	booked, err := engine.Book(ctx, group.ID, "stu-1", "")
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, booked.Slot.Status, "one of two seats keeps the slot open")

	engine.SetClock(fixedClock(baseTime.Add(15 * time.Hour)))

	swept, err := engine.SweepNoShows(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	afterGroup, err := st.GetSlot(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotNoShow, afterGroup.Status)

	b, err := st.GetBooking(ctx, booked.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingNoShow, b.Status)

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3) // purchase, deduction, forfeit marker
	assert.Equal(t, booking.RefSweep, rows[2].ReferenceType)
	assert.True(t, rows[2].HoursAmount.IsZero())

	balance, err := newTestLedger(st).Balance(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(hours("4")), "no refund on a no-show")
	requireLedgerIntegrity(t, st, acct.ID)

	// The lapsed empty slot carries no bookings: never swept, never counted.
	afterEmpty, err := st.GetSlot(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, afterEmpty.Status)
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []booking.NotificationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev booking.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) snapshot() []booking.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]booking.NotificationEvent(nil), n.events...)
}

func TestSweepNoShows_NotifiesOnlyAfterCommit(t *testing.T) {
	// GIVEN: Two lapsed booked slots, one of whose forfeit transaction
	//        fails because the booking's credit account is missing
	// WHEN: The sweep runs
	// THEN: Only the committed slot produces a notification; the rolled
	//       back slot's state is untouched and nobody was told otherwise

	ctx := context.Background()
	st := memory.New()
	notifier := &recordingNotifier{}
	engine := booking.NewBookingEngine(st, booking.EngineConfig{}, notifier, zap.NewNop())
	engine.SetClock(fixedClock(baseTime))

	seedAccount(t, st, "stu-1", "tea-1", "5")
	good := seedSlot(t, st, "tea-1", 4*time.Hour)
	booked, err := engine.Book(ctx, good.ID, "stu-1", "")
	require.NoError(t, err)

	// A confirmed booking whose account was never created: the forfeit
	// write inside the sweep transaction fails and rolls the slot back.
	broken := seedSlot(t, st, "tea-1", 5*time.Hour)
	ghost := booking.StudentID("ghost")
	orphan := &booking.Booking{
		ID:        booking.BookingID(uuid.NewString()),
		SlotID:    broken.ID,
		StudentID: ghost,
		TeacherID: "tea-1",
		Status:    booking.BookingConfirmed,
		BookedAt:  baseTime,
	}
	require.NoError(t, st.SaveBooking(ctx, orphan))
	broken.Status = booking.SlotBooked
	broken.BookedBy = &ghost
	require.NoError(t, st.UpdateSlot(ctx, broken, booking.SlotAvailable))

	engine.SetClock(fixedClock(baseTime.Add(15 * time.Hour)))

	swept, err := engine.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	events := notifier.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "no_show", events[0].Kind)
	assert.Equal(t, booked.Booking.ID, events[0].BookingID)

	// The failed slot rolled back whole: still booked, booking untouched.
	afterBroken, err := st.GetSlot(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotBooked, afterBroken.Status)
	afterOrphan, err := st.GetBooking(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingConfirmed, afterOrphan.Status)
}
