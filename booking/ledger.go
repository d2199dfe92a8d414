/*
ledger.go - Credit ledger: balances and the append-only transaction log

PURPOSE:
  The CreditLedger is the single source of truth for how many lesson hours
  a student may consume with a teacher. The stored balance column and the
  transaction log are written in the same atomic unit and must never
  diverge: replaying the log always reproduces the stored balance.

CRITICAL INVARIANTS:
  1. Balance never goes negative; a deduction that would overdraw fails
     with InsufficientBalance before anything is written.
  2. Every balance change appends exactly one ledger row.
  3. Rows are immutable; corrections are refund/adjustment rows.
  4. purchase/deduction/refund amounts must be > 0; adjustments are signed
     and may be zero (used for auditable no-ops such as no-show forfeits).

FAILURE POLICY:
  Failures are always reported to the caller, never silently retried -
  retrying a deduction could double-charge.

SEE ALSO:
  - store.go:  AccountStore contract the ledger runs against
  - engine.go: books/cancels debit and refund through applyLedger inside
               their own transaction
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultDebitHours is the fixed per-booking debit unit. Variable-duration
// billing is a configuration extension, not a change to this contract.
var DefaultDebitHours = decimal.NewFromInt(1)

// =============================================================================
// CREDIT LEDGER
// =============================================================================

type CreditLedger struct {
	store TxStore
	now   func() time.Time
}

func NewCreditLedger(store TxStore) *CreditLedger {
	return &CreditLedger{store: store, now: time.Now}
}

// SetClock overrides the ledger clock. Tests only.
func (l *CreditLedger) SetClock(now func() time.Time) { l.now = now }

// ApplyInput describes one balance change.
type ApplyInput struct {
	AccountID     AccountID
	Type          TransactionType
	Hours         decimal.Decimal // magnitude for purchase/deduction/refund, signed for adjustment
	Description   string
	ReferenceType ReferenceType
	ReferenceID   string
	PerformedBy   string
}

// TransactionResult reports the appended row and the resulting balance.
type TransactionResult struct {
	Transaction  CreditTransaction
	BalanceAfter decimal.Decimal
}

// Apply validates and commits one balance change as a single atomic unit:
// the account balance and the appended ledger row can never diverge.
func (l *CreditLedger) Apply(ctx context.Context, in ApplyInput) (*TransactionResult, error) {
	var res *TransactionResult
	err := l.store.WithTx(ctx, func(s Store) error {
		r, err := applyLedger(ctx, s, in, l.now().UTC())
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Balance returns the stored balance. Read-only, side-effect free.
func (l *CreditLedger) Balance(ctx context.Context, id AccountID) (decimal.Decimal, error) {
	acct, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.BalanceHours, nil
}

// Reconstruct recomputes the balance by summing the transaction log. It
// must always equal the stored balance; ledger tests assert this after
// every sequence of operations.
func (l *CreditLedger) Reconstruct(ctx context.Context, id AccountID) (decimal.Decimal, error) {
	rows, err := l.store.LedgerEntries(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.HoursAmount)
	}
	return sum, nil
}

// Purchase records a manually reconciled payment. The account is created on
// first purchase; subsequent purchases top it up.
func (l *CreditLedger) Purchase(ctx context.Context, student StudentID, teacher TeacherID, hours, ratePerHour decimal.Decimal, performedBy string) (*TransactionResult, error) {
	if !hours.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var res *TransactionResult
	err := l.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccountByPair(ctx, student, teacher)
		if errors.Is(err, ErrAccountNotFound) {
			now := l.now().UTC()
			acct = &CreditAccount{
				ID:             AccountID(uuid.NewString()),
				StudentID:      student,
				TeacherID:      teacher,
				BalanceHours:   decimal.Zero,
				TotalPurchased: decimal.Zero,
				TotalUsed:      decimal.Zero,
				RatePerHour:    ratePerHour,
				IsActive:       true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.SaveAccount(ctx, acct); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if !acct.IsActive {
			return ErrAccountInactive
		}

		r, err := applyLedger(ctx, s, ApplyInput{
			AccountID:     acct.ID,
			Type:          TxPurchase,
			Hours:         hours,
			Description:   "credit purchase",
			ReferenceType: RefPayment,
			PerformedBy:   performedBy,
		}, l.now().UTC())
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Deactivate soft-deactivates an account. Accounts are never hard-deleted;
// the transaction log must survive for audit.
func (l *CreditLedger) Deactivate(ctx context.Context, id AccountID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		acct.IsActive = false
		acct.UpdatedAt = l.now().UTC()
		return s.SaveAccount(ctx, acct)
	})
}

// =============================================================================
// CORE APPLY - shared with the booking engine's transaction
// =============================================================================

// applyLedger performs the balance change against an already-open unit.
// The engine calls this inside its own WithTx so the slot write, booking
// row and ledger row commit or abort together.
func applyLedger(ctx context.Context, s Store, in ApplyInput, at time.Time) (*TransactionResult, error) {
	acct, err := s.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	delta, err := signedDelta(in.Type, in.Hours)
	if err != nil {
		return nil, err
	}

	balanceAfter := acct.BalanceHours.Add(delta)
	if balanceAfter.IsNegative() {
		return nil, &InsufficientBalanceError{
			AccountID: acct.ID,
			Available: acct.BalanceHours,
			Requested: delta.Neg(),
		}
	}

	acct.BalanceHours = balanceAfter
	switch in.Type {
	case TxPurchase:
		acct.TotalPurchased = acct.TotalPurchased.Add(in.Hours)
	case TxDeduction:
		acct.TotalUsed = acct.TotalUsed.Add(in.Hours)
	}
	acct.UpdatedAt = at

	row := CreditTransaction{
		ID:            TransactionID(uuid.NewString()),
		AccountID:     acct.ID,
		Type:          in.Type,
		HoursAmount:   delta,
		BalanceAfter:  balanceAfter,
		Description:   in.Description,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		PerformedBy:   in.PerformedBy,
		CreatedAt:     at,
	}

	if err := s.SaveAccount(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.AppendLedger(ctx, row); err != nil {
		return nil, fmt.Errorf("append ledger row: %w", err)
	}

	return &TransactionResult{Transaction: row, BalanceAfter: balanceAfter}, nil
}

// signedDelta converts (type, hours) into the signed ledger delta.
func signedDelta(t TransactionType, hours decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case TxPurchase, TxRefund:
		if !hours.IsPositive() {
			return decimal.Zero, ErrInvalidAmount
		}
		return hours, nil
	case TxDeduction:
		if !hours.IsPositive() {
			return decimal.Zero, ErrInvalidAmount
		}
		return hours.Neg(), nil
	case TxAdjustment:
		// Signed as given; zero is allowed for auditable no-ops.
		return hours, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, t)
	}
}
