/*
Package booking provides the booking and credit-ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for running a
  tutoring practice on prepaid lesson hours: recurring availability is
  materialized into concrete bookable slots, students book slots through
  capability tokens, and every booking debits an hour-credit ledger in the
  same atomic unit that reserves the slot.

KEY CONCEPTS IN THIS FILE (types.go):
  - CreditAccount / CreditTransaction: the prepaid-hour ledger
  - ScheduleSlot / TimeSlotTemplate: concrete slots and the recurring rules
    that generate them
  - Booking: the confirmed assignment of one student to one slot
  - WaitlistEntry / SlotPattern: the queue for full slot patterns
  - ShareToken: the bearer capability that stands in for login

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all hour amounts, never float
  2. Auditability: balances change only through ledger rows
  3. Single mutator: slot status/booked_by change only through the engine
  4. Type safety: distinct ID types prevent mixing students and teachers

SEE ALSO:
  - ledger.go:   balance rules and the append-only transaction log
  - registry.go: slot lifecycle and template materialization
  - engine.go:   the atomic book/cancel/sweep orchestration
  - store.go:    persistence contract all of the above run against
*/
package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type TeacherID string
type AccountID string
type TransactionID string
type SlotID string
type TemplateID string
type BookingID string
type EntryID string
type TokenID string

// =============================================================================
// CREDIT ACCOUNT - Prepaid hour balance for one (student, teacher) pair
// =============================================================================

// CreditAccount holds the prepaid lesson hours a student may consume with a
// specific teacher. BalanceHours is never mutated directly: every change
// goes through a CreditTransaction appended in the same atomic unit.
//
// INVARIANT: BalanceHours == sum of signed HoursAmount over the account's
// transaction log, and BalanceHours is never negative.
type CreditAccount struct {
	ID             AccountID
	StudentID      StudentID
	TeacherID      TeacherID
	BalanceHours   decimal.Decimal
	TotalPurchased decimal.Decimal
	TotalUsed      decimal.Decimal
	RatePerHour    decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// =============================================================================
// CREDIT TRANSACTION - Immutable ledger row
// =============================================================================

type TransactionType string

const (
	TxPurchase   TransactionType = "purchase"   // Hours bought (payment reconciled off-platform)
	TxDeduction  TransactionType = "deduction"  // Hours consumed by a booking
	TxAdjustment TransactionType = "adjustment" // Manual or system correction (signed, may be zero)
	TxRefund     TransactionType = "refund"     // Hours returned on cancellation
)

// ReferenceType identifies what caused a ledger row.
type ReferenceType string

const (
	RefBooking ReferenceType = "booking"
	RefPayment ReferenceType = "payment"
	RefSweep   ReferenceType = "sweep"
	RefManual  ReferenceType = "manual"
)

// CreditTransaction is an append-only log row. Never updated or deleted;
// corrections are made with adjustment/refund rows.
type CreditTransaction struct {
	ID            TransactionID
	AccountID     AccountID
	Type          TransactionType
	HoursAmount   decimal.Decimal // signed: purchase/refund > 0, deduction < 0
	BalanceAfter  decimal.Decimal // snapshot taken in the same atomic unit
	Description   string
	ReferenceType ReferenceType
	ReferenceID   string
	PerformedBy   string
	CreatedAt     time.Time
}

// =============================================================================
// SCHEDULE SLOT - A concrete bookable time window
// =============================================================================

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotCompleted SlotStatus = "completed"
	SlotCancelled SlotStatus = "cancelled"
	SlotNoShow    SlotStatus = "no_show"
)

// ScheduleSlot is a dated, bookable window owned by a teacher. Status moves
// only along the state machine enforced by CanTransition; BookedBy is set
// only for single-student slots in booked/completed/no_show status.
type ScheduleSlot struct {
	ID          SlotID
	TeacherID   TeacherID
	StartTime   time.Time
	EndTime     time.Time
	Status      SlotStatus
	MaxStudents int
	BookedBy    *StudentID
	TemplateID  *TemplateID // set when materialized from a recurring template
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Window returns the slot's time window for conflict checks.
func (s ScheduleSlot) Window() Window {
	return Window{Start: s.StartTime, End: s.EndTime}
}

// Pattern returns the recurring pattern this slot belongs to
// (teacher + weekday + start clock time), used as the waitlist key.
func (s ScheduleSlot) Pattern() SlotPattern {
	return SlotPattern{
		TeacherID: s.TeacherID,
		Weekday:   s.StartTime.UTC().Weekday(),
		StartHour: s.StartTime.UTC().Hour(),
		StartMin:  s.StartTime.UTC().Minute(),
	}
}

// CanTransition reports whether the slot state machine allows from -> to.
//
//	available -> booked | cancelled | no_show (lapsed group slot with confirmed seats)
//	booked    -> completed | cancelled | no_show | available (re-list on cancel)
//
// completed, cancelled and no_show are terminal. A group slot stays
// available until its seats fill, so it can lapse into no_show without
// ever having been booked-out.
func CanTransition(from, to SlotStatus) bool {
	switch from {
	case SlotAvailable:
		return to == SlotBooked || to == SlotCancelled || to == SlotNoShow
	case SlotBooked:
		return to == SlotCompleted || to == SlotCancelled || to == SlotNoShow || to == SlotAvailable
	default:
		return false
	}
}

// =============================================================================
// TIME SLOT TEMPLATE - Recurring availability rule
// =============================================================================

// TimeSlotTemplate generates ScheduleSlots over a rolling window. Editing or
// deleting a template does not retroactively alter already-materialized slots.
type TimeSlotTemplate struct {
	ID              TemplateID
	TeacherID       TeacherID
	DayOfWeek       time.Weekday
	StartHour       int // 0-23, UTC
	StartMinute     int // 0-59
	DurationMinutes int
	MaxStudents     int
	IsRecurring     bool
	CreatedAt       time.Time
}

// OccurrenceOn returns the concrete window of this template on the given day.
// The date's weekday is not checked here; callers iterate matching days.
func (t TimeSlotTemplate) OccurrenceOn(day time.Time) Window {
	start := time.Date(day.Year(), day.Month(), day.Day(), t.StartHour, t.StartMinute, 0, 0, time.UTC)
	return Window{Start: start, End: start.Add(time.Duration(t.DurationMinutes) * time.Minute)}
}

// =============================================================================
// BOOKING - Confirmed assignment of a student to a slot
// =============================================================================

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

// Booking preserves history even after its slot is deleted or re-listed.
type Booking struct {
	ID          BookingID
	SlotID      SlotID
	StudentID   StudentID
	TeacherID   TeacherID
	Status      BookingStatus
	Notes       string
	BookedAt    time.Time
	CancelledAt *time.Time
	CancelledBy string
	CompletedAt *time.Time
}

// =============================================================================
// WAITLIST
// =============================================================================

type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistBooked   WaitlistStatus = "booked"
	WaitlistExpired  WaitlistStatus = "expired"
	WaitlistRemoved  WaitlistStatus = "removed"
)

// SlotPattern identifies a recurring weekly slot shape. Waitlist entries
// queue against patterns, not individual slots.
type SlotPattern struct {
	TeacherID TeacherID
	Weekday   time.Weekday
	StartHour int
	StartMin  int
}

// Key returns the stable storage key for the pattern.
func (p SlotPattern) Key() string {
	return fmt.Sprintf("%s|%d|%02d:%02d", p.TeacherID, int(p.Weekday), p.StartHour, p.StartMin)
}

// WaitlistEntry is ordered by (priority desc, joined_at asc). Position is
// recomputed whenever the pattern's queue changes.
type WaitlistEntry struct {
	ID         EntryID
	Pattern    SlotPattern
	StudentID  StudentID
	Priority   int
	Position   int
	Status     WaitlistStatus
	AutoBook   bool
	JoinedAt   time.Time
	NotifiedAt *time.Time
}

// =============================================================================
// SHARE TOKEN - Bearer capability for the public booking surface
// =============================================================================

// ShareToken substitutes for authentication on the public booking page.
// At most one active token exists per (student, teacher) pair; regeneration
// rotates (deactivates the prior token) rather than appending.
type ShareToken struct {
	ID           TokenID
	Token        string
	StudentID    StudentID
	TeacherID    TeacherID
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int
	LastAccessed *time.Time
	IsActive     bool
}

// TokenAuditEntry records a validation attempt. Keyed by a hash of the
// token, never the raw value.
type TokenAuditEntry struct {
	ID        string
	TokenHash string
	StudentID StudentID
	TeacherID TeacherID
	Outcome   string // "ok", "expired", "invalid"
	ClientIP  string
	UserAgent string
	At        time.Time
}

// ClientInfo carries the caller identity recorded in the token audit trail.
type ClientInfo struct {
	IP        string
	UserAgent string
}
