/*
store.go - Persistence contract for the booking engine

PURPOSE:
  Defines the interface between domain logic and the durable store. The
  store is the single shared mutable resource: all cross-entity invariants
  (slot status <-> booking <-> ledger) are enforced here, never in
  request-handler memory.

KEY INTERFACES:
  AccountStore   Credit accounts + append-only ledger rows
  SlotStore      Slots with compare-and-swap status updates
  BookingStore   Booking history
  TemplateStore  Recurring availability rules
  WaitlistStore  Per-pattern queues
  TokenStore     Share tokens + audit trail
  Store          All of the above
  TxStore        Store + WithTx for atomic multi-row mutations

CONCURRENCY CONTRACT:
  - WithTx executes fn as one serializable unit. Every multi-row mutation
    in the engine runs inside WithTx.
  - UpdateSlot is a compare-and-swap on status: the write applies only if
    the stored status still equals expectStatus, otherwise ErrSlotConflict.
    Combined with WithTx this yields at-most-one successful booking per
    slot even under concurrent handlers.

APPEND-ONLY CONTRACT:
  AppendLedger and AppendTokenAudit have no update or delete counterpart.
  Ledger corrections are refund/adjustment rows.

IMPLEMENTATIONS:
  - store/memory:   in-memory, global mutex (tests/dev)
  - store/sqlite:   SQLite with WAL (default runtime)
  - store/postgres: PostgreSQL via pgx, row-level locking
*/
package booking

import (
	"context"
	"time"
)

// =============================================================================
// ACCOUNT + LEDGER
// =============================================================================

type AccountStore interface {
	// GetAccount returns the account or ErrAccountNotFound.
	GetAccount(ctx context.Context, id AccountID) (*CreditAccount, error)

	// GetAccountByPair returns the account for a (student, teacher) pair
	// or ErrAccountNotFound.
	GetAccountByPair(ctx context.Context, student StudentID, teacher TeacherID) (*CreditAccount, error)

	// SaveAccount inserts or updates an account. Balance fields must only
	// be written together with a matching AppendLedger in the same unit.
	SaveAccount(ctx context.Context, acct *CreditAccount) error

	// AppendLedger appends one immutable ledger row.
	AppendLedger(ctx context.Context, tx CreditTransaction) error

	// LedgerEntries returns the account's rows in append order.
	LedgerEntries(ctx context.Context, id AccountID) ([]CreditTransaction, error)
}

// =============================================================================
// SLOTS
// =============================================================================

type SlotStore interface {
	// GetSlot returns the slot or ErrSlotNotFound.
	GetSlot(ctx context.Context, id SlotID) (*ScheduleSlot, error)

	// CreateSlot inserts a new slot.
	CreateSlot(ctx context.Context, slot *ScheduleSlot) error

	// UpdateSlot writes the slot only if its stored status still equals
	// expectStatus (compare-and-swap). Returns ErrSlotConflict otherwise.
	UpdateSlot(ctx context.Context, slot *ScheduleSlot, expectStatus SlotStatus) error

	// DeleteSlot removes a slot row. Guards (unbooked, future) live in the
	// registry, not here.
	DeleteSlot(ctx context.Context, id SlotID) error

	// ListSlotsByTeacher returns the teacher's slots with start in [from, to).
	ListSlotsByTeacher(ctx context.Context, teacher TeacherID, from, to time.Time) ([]ScheduleSlot, error)

	// ListSlotsByStatus returns slots in the given status whose end time is
	// before the cutoff. Used by the no-show sweep.
	ListSlotsByStatus(ctx context.Context, status SlotStatus, endedBefore time.Time) ([]ScheduleSlot, error)

	// CountActiveBookings returns the number of confirmed bookings under a
	// slot. Used for group-slot capacity checks.
	CountActiveBookings(ctx context.Context, slot SlotID) (int, error)
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingStore interface {
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)
	SaveBooking(ctx context.Context, b *Booking) error
	ListBookingsByStudent(ctx context.Context, student StudentID) ([]Booking, error)
	ListBookingsBySlot(ctx context.Context, slot SlotID) ([]Booking, error)
}

// =============================================================================
// TEMPLATES
// =============================================================================

type TemplateStore interface {
	GetTemplate(ctx context.Context, id TemplateID) (*TimeSlotTemplate, error)
	SaveTemplate(ctx context.Context, t *TimeSlotTemplate) error
	DeleteTemplate(ctx context.Context, id TemplateID) error
	ListTemplates(ctx context.Context, teacher TeacherID) ([]TimeSlotTemplate, error)
	ListRecurringTemplates(ctx context.Context) ([]TimeSlotTemplate, error)
}

// =============================================================================
// WAITLIST
// =============================================================================

type WaitlistStore interface {
	GetEntry(ctx context.Context, id EntryID) (*WaitlistEntry, error)
	SaveEntry(ctx context.Context, e *WaitlistEntry) error

	// ListEntries returns the pattern's entries filtered by status (all
	// statuses when none given), ordered by (priority desc, joined_at asc).
	ListEntries(ctx context.Context, patternKey string, statuses ...WaitlistStatus) ([]WaitlistEntry, error)

	// ListEntriesByStatus returns entries in a status across all patterns.
	// Used by the notified-entry expiry job.
	ListEntriesByStatus(ctx context.Context, status WaitlistStatus) ([]WaitlistEntry, error)
}

// =============================================================================
// SHARE TOKENS
// =============================================================================

type TokenStore interface {
	// GetTokenByValue returns the token row matching the raw bearer value,
	// or ErrInvalidToken.
	GetTokenByValue(ctx context.Context, token string) (*ShareToken, error)

	// GetActiveToken returns the pair's active token or ErrInvalidToken.
	GetActiveToken(ctx context.Context, student StudentID, teacher TeacherID) (*ShareToken, error)

	SaveToken(ctx context.Context, t *ShareToken) error

	// AppendTokenAudit appends one audit row. Append-only; callers treat
	// failures as best-effort.
	AppendTokenAudit(ctx context.Context, e TokenAuditEntry) error
}

// =============================================================================
// COMBINED STORE
// =============================================================================

type Store interface {
	AccountStore
	SlotStore
	BookingStore
	TemplateStore
	WaitlistStore
	TokenStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// unit is rolled back; otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
