package booking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makersapien/classlog-sub002/booking"
	"github.com/makersapien/classlog-sub002/store/memory"
)

// =============================================================================
// PURCHASE
// =============================================================================

func TestPurchase_CreatesAccountOnFirstPurchase(t *testing.T) {
	// GIVEN: No account for the pair
	// WHEN: The first purchase is recorded
	// THEN: An active account exists with the purchased balance and one
	//       ledger row

	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)

	res, err := ledger.Purchase(ctx, "stu-1", "tea-1", hours("10"), hours("45.50"), "tea-1")
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(hours("10")))
	assert.Equal(t, booking.TxPurchase, res.Transaction.Type)

	acct, err := st.GetAccountByPair(ctx, "stu-1", "tea-1")
	require.NoError(t, err)
	assert.True(t, acct.IsActive)
	assert.True(t, acct.BalanceHours.Equal(hours("10")))
	assert.True(t, acct.TotalPurchased.Equal(hours("10")))
	assert.True(t, acct.RatePerHour.Equal(hours("45.50")))
}

func TestPurchase_TopsUpExistingAccount(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)

	_, err := ledger.Purchase(ctx, "stu-1", "tea-1", hours("10"), hours("50"), "tea-1")
	require.NoError(t, err)
	res, err := ledger.Purchase(ctx, "stu-1", "tea-1", hours("2.5"), hours("50"), "tea-1")
	require.NoError(t, err)

	assert.True(t, res.BalanceAfter.Equal(hours("12.5")))

	acct, err := st.GetAccountByPair(ctx, "stu-1", "tea-1")
	require.NoError(t, err)
	assert.True(t, acct.TotalPurchased.Equal(hours("12.5")))
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestPurchase_RejectsNonPositiveHours(t *testing.T) {
	st := memory.New()
	ledger := newTestLedger(st)

	_, err := ledger.Purchase(context.Background(), "stu-1", "tea-1", hours("0"), hours("50"), "tea-1")
	require.ErrorIs(t, err, booking.ErrInvalidAmount)
	_, err = ledger.Purchase(context.Background(), "stu-1", "tea-1", hours("-3"), hours("50"), "tea-1")
	require.ErrorIs(t, err, booking.ErrInvalidAmount)
}

func TestPurchase_SeparateAccountsPerPair(t *testing.T) {
	// Credits with one teacher are not spendable with another.
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)

	_, err := ledger.Purchase(ctx, "stu-1", "tea-1", hours("10"), hours("50"), "tea-1")
	require.NoError(t, err)
	_, err = ledger.Purchase(ctx, "stu-1", "tea-2", hours("3"), hours("60"), "tea-2")
	require.NoError(t, err)

	a1, err := st.GetAccountByPair(ctx, "stu-1", "tea-1")
	require.NoError(t, err)
	a2, err := st.GetAccountByPair(ctx, "stu-1", "tea-2")
	require.NoError(t, err)
	assert.NotEqual(t, a1.ID, a2.ID)
	assert.True(t, a1.BalanceHours.Equal(hours("10")))
	assert.True(t, a2.BalanceHours.Equal(hours("3")))
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_DeductionAndRefundRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "4")

	_, err := ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxDeduction, Hours: hours("1.5"),
		Description: "lesson", ReferenceType: booking.RefBooking, ReferenceID: "b-1", PerformedBy: "stu-1",
	})
	require.NoError(t, err)

	res, err := ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxRefund, Hours: hours("1.5"),
		Description: "refund", ReferenceType: booking.RefBooking, ReferenceID: "b-1", PerformedBy: "tea-1",
	})
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(hours("4")))
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestApply_InsufficientBalance(t *testing.T) {
	// GIVEN: A balance of 1 hour
	// WHEN: Deducting 2 hours
	// THEN: The deduction is rejected with the shortfall and nothing is
	//       written

	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "1")

	_, err := ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxDeduction, Hours: hours("2"),
		Description: "lesson", ReferenceType: booking.RefBooking, PerformedBy: "stu-1",
	})
	require.ErrorIs(t, err, booking.ErrInsufficientBalance)

	var ib *booking.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.True(t, ib.Available.Equal(hours("1")))
	assert.True(t, ib.Requested.Equal(hours("2")))

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1) // purchase only
}

func TestApply_AdjustmentIsSigned(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")

	res, err := ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxAdjustment, Hours: hours("-2"),
		Description: "goodwill correction", ReferenceType: booking.RefManual, PerformedBy: "tea-1",
	})
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(hours("3")))

	// Zero-hour adjustments are allowed as auditable markers.
	res, err = ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxAdjustment, Hours: hours("0"),
		Description: "marker", ReferenceType: booking.RefManual, PerformedBy: "system",
	})
	require.NoError(t, err)
	assert.True(t, res.BalanceAfter.Equal(hours("3")))
	requireLedgerIntegrity(t, st, acct.ID)
}

func TestApply_AdjustmentCannotGoNegative(t *testing.T) {
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "1")

	_, err := ledger.Apply(context.Background(), booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxAdjustment, Hours: hours("-2"),
		Description: "too much", ReferenceType: booking.RefManual, PerformedBy: "tea-1",
	})
	require.ErrorIs(t, err, booking.ErrInsufficientBalance)
}

func TestApply_UnknownAccount(t *testing.T) {
	st := memory.New()
	ledger := newTestLedger(st)

	_, err := ledger.Apply(context.Background(), booking.ApplyInput{
		AccountID: "missing", Type: booking.TxPurchase, Hours: hours("1"),
		Description: "x", ReferenceType: booking.RefManual, PerformedBy: "x",
	})
	require.ErrorIs(t, err, booking.ErrAccountNotFound)
}

// =============================================================================
// RECONSTRUCTION
// =============================================================================

func TestReconstruct_EqualsStoredBalanceAfterMixedSequence(t *testing.T) {
	// GIVEN: A sequence of purchases, deductions, refunds and adjustments
	// WHEN: The balance is recomputed from the transaction log alone
	// THEN: It equals the stored balance exactly

	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "8")

	steps := []booking.ApplyInput{
		{AccountID: acct.ID, Type: booking.TxDeduction, Hours: hours("1"), Description: "lesson", ReferenceType: booking.RefBooking, PerformedBy: "stu-1"},
		{AccountID: acct.ID, Type: booking.TxDeduction, Hours: hours("1.5"), Description: "long lesson", ReferenceType: booking.RefBooking, PerformedBy: "stu-1"},
		{AccountID: acct.ID, Type: booking.TxRefund, Hours: hours("1"), Description: "cancelled", ReferenceType: booking.RefBooking, PerformedBy: "tea-1"},
		{AccountID: acct.ID, Type: booking.TxAdjustment, Hours: hours("-0.5"), Description: "correction", ReferenceType: booking.RefManual, PerformedBy: "tea-1"},
		{AccountID: acct.ID, Type: booking.TxPurchase, Hours: hours("4"), Description: "top up", ReferenceType: booking.RefPayment, PerformedBy: "tea-1"},
	}
	for _, in := range steps {
		_, err := ledger.Apply(ctx, in)
		require.NoError(t, err)
	}

	stored, err := ledger.Balance(ctx, acct.ID)
	require.NoError(t, err)
	recon, err := ledger.Reconstruct(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, stored.Equal(recon))
	assert.True(t, stored.Equal(hours("10"))) // 8 -1 -1.5 +1 -0.5 +4
}

func TestLedgerEntries_AppendOrderPreserved(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")

	_, err := ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxDeduction, Hours: hours("1"),
		Description: "first", ReferenceType: booking.RefBooking, PerformedBy: "stu-1",
	})
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, booking.ApplyInput{
		AccountID: acct.ID, Type: booking.TxRefund, Hours: hours("1"),
		Description: "second", ReferenceType: booking.RefBooking, PerformedBy: "tea-1",
	})
	require.NoError(t, err)

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, booking.TxPurchase, rows[0].Type)
	assert.Equal(t, "first", rows[1].Description)
	assert.Equal(t, "second", rows[2].Description)

	// Each row's BalanceAfter snapshot is consistent with the running sum.
	running := hours("0")
	for _, row := range rows {
		running = running.Add(row.HoursAmount)
		assert.True(t, row.BalanceAfter.Equal(running))
	}
}

// =============================================================================
// DEACTIVATE
// =============================================================================

func TestPurchase_RejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")

	require.NoError(t, ledger.Deactivate(ctx, acct.ID))

	_, err := ledger.Purchase(ctx, "stu-1", "tea-1", hours("2"), hours("40"), "teacher")
	require.ErrorIs(t, err, booking.ErrAccountInactive)

	// The frozen balance did not move.
	after, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, after.BalanceHours.Equal(hours("5")))
}

func TestDeactivate_KeepsHistoryReadable(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newTestLedger(st)
	acct := seedAccount(t, st, "stu-1", "tea-1", "5")

	require.NoError(t, ledger.Deactivate(ctx, acct.ID))

	after, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)

	rows, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
