package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makersapien/classlog-sub002/booking"
	"github.com/makersapien/classlog-sub002/store/memory"
)

var baseTime = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

func availableSlot(id booking.SlotID, startOffset time.Duration) *booking.ScheduleSlot {
	start := baseTime.Add(startOffset)
	return &booking.ScheduleSlot{
		ID:          id,
		TeacherID:   "tea-1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      booking.SlotAvailable,
		MaxStudents: 1,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func TestWithTx_RollbackRestoresSnapshot(t *testing.T) {
	// GIVEN: A store with an account and a slot
	// WHEN: A transaction mutates both and then fails
	// THEN: Every mutation is rolled back, including appended ledger rows

	ctx := context.Background()
	st := memory.New()

	acct := &booking.CreditAccount{
		ID:           "acct-1",
		StudentID:    "stu-1",
		TeacherID:    "tea-1",
		BalanceHours: decimal.NewFromInt(5),
		IsActive:     true,
	}
	require.NoError(t, st.SaveAccount(ctx, acct))
	require.NoError(t, st.CreateSlot(ctx, availableSlot("slot-1", 24*time.Hour)))

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx booking.Store) error {
		a, err := tx.GetAccount(ctx, "acct-1")
		if err != nil {
			return err
		}
		a.BalanceHours = decimal.NewFromInt(4)
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, booking.CreditTransaction{
			ID: "tx-1", AccountID: "acct-1", Type: booking.TxDeduction,
			HoursAmount:  decimal.NewFromInt(-1),
			BalanceAfter: decimal.NewFromInt(4),
			CreatedAt:    baseTime,
		}); err != nil {
			return err
		}
		s, err := tx.GetSlot(ctx, "slot-1")
		if err != nil {
			return err
		}
		student := booking.StudentID("stu-1")
		s.Status = booking.SlotBooked
		s.BookedBy = &student
		if err := tx.UpdateSlot(ctx, s, booking.SlotAvailable); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := st.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, a.BalanceHours.Equal(decimal.NewFromInt(5)))

	rows, err := st.LedgerEntries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	s, err := st.GetSlot(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, s.Status)
	assert.Nil(t, s.BookedBy)
}

func TestUpdateSlot_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateSlot(ctx, availableSlot("slot-1", 24*time.Hour)))

	s, err := st.GetSlot(ctx, "slot-1")
	require.NoError(t, err)
	s.Status = booking.SlotBooked
	require.NoError(t, st.UpdateSlot(ctx, s, booking.SlotAvailable))

	// Stale expectation loses.
	err = st.UpdateSlot(ctx, s, booking.SlotAvailable)
	require.ErrorIs(t, err, booking.ErrSlotConflict)

	// Illegal transitions are rejected even with the right expectation.
	s.Status = booking.SlotCompleted
	require.NoError(t, st.UpdateSlot(ctx, s, booking.SlotBooked))
	s.Status = booking.SlotBooked
	err = st.UpdateSlot(ctx, s, booking.SlotCompleted)
	require.ErrorIs(t, err, booking.ErrSlotConflict)

	err = st.UpdateSlot(ctx, availableSlot("missing", time.Hour), booking.SlotAvailable)
	require.ErrorIs(t, err, booking.ErrSlotNotFound)
}

func TestGetAccountByPair_Index(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	require.NoError(t, st.SaveAccount(ctx, &booking.CreditAccount{
		ID: "acct-1", StudentID: "stu-1", TeacherID: "tea-1",
	}))

	got, err := st.GetAccountByPair(ctx, "stu-1", "tea-1")
	require.NoError(t, err)
	assert.Equal(t, booking.AccountID("acct-1"), got.ID)

	_, err = st.GetAccountByPair(ctx, "stu-1", "tea-2")
	require.ErrorIs(t, err, booking.ErrAccountNotFound)
}

func TestListEntries_OrderedByPriorityThenJoinTime(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	pattern := booking.SlotPattern{TeacherID: "tea-1", Weekday: time.Wednesday, StartHour: 15}

	save := func(id booking.EntryID, priority int, joinOffset time.Duration, status booking.WaitlistStatus) {
		require.NoError(t, st.SaveEntry(ctx, &booking.WaitlistEntry{
			ID: id, Pattern: pattern, StudentID: "stu-" + booking.StudentID(id),
			Priority: priority, Status: status,
			JoinedAt: baseTime.Add(joinOffset),
		}))
	}
	save("a", 0, 0, booking.WaitlistWaiting)
	save("b", 5, time.Minute, booking.WaitlistWaiting)
	save("c", 0, 2*time.Minute, booking.WaitlistWaiting)
	save("d", 9, 3*time.Minute, booking.WaitlistRemoved)

	got, err := st.ListEntries(ctx, pattern.Key(), booking.WaitlistWaiting)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, booking.EntryID("b"), got[0].ID)
	assert.Equal(t, booking.EntryID("a"), got[1].ID)
	assert.Equal(t, booking.EntryID("c"), got[2].ID)

	all, err := st.ListEntries(ctx, pattern.Key())
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStoreReturnsCopies(t *testing.T) {
	// Mutating a returned value must not write through to the store.
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateSlot(ctx, availableSlot("slot-1", 24*time.Hour)))

	s, err := st.GetSlot(ctx, "slot-1")
	require.NoError(t, err)
	s.Status = booking.SlotCancelled

	again, err := st.GetSlot(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, booking.SlotAvailable, again.Status)
}
