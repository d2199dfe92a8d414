/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Wire-level shapes for the HTTP API. These types decouple the domain
  model from the external contract: hour amounts travel as decimal
  strings (never floats), timestamps as RFC3339, statuses as their
  storage strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/types.go: the domain types these project
*/
package api

import (
	"time"

	"github.com/makersapien/classlog-sub002/booking"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PurchaseRequest records prepaid hours for a (student, teacher) pair.
// Payment itself is reconciled off-platform.
type PurchaseRequest struct {
	StudentID   string `json:"student_id"`
	TeacherID   string `json:"teacher_id"`
	Hours       string `json:"hours"`
	RatePerHour string `json:"rate_per_hour"`
	PerformedBy string `json:"performed_by"`
}

// AdjustmentRequest applies a signed manual correction to an account.
type AdjustmentRequest struct {
	Hours       string `json:"hours"` // signed
	Description string `json:"description"`
	PerformedBy string `json:"performed_by"`
}

// BookRequest books a slot for the token's student.
type BookRequest struct {
	SlotID string `json:"slot_id"`
	Notes  string `json:"notes,omitempty"`
}

// WindowDTO is one availability window.
type WindowDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AvailabilityRequest creates ad hoc availability slots.
type AvailabilityRequest struct {
	TeacherID   string      `json:"teacher_id"`
	Windows     []WindowDTO `json:"windows"`
	MaxStudents int         `json:"max_students,omitempty"`
	Override    bool        `json:"override,omitempty"`
}

// CreateTemplateRequest creates a recurring availability rule.
type CreateTemplateRequest struct {
	TeacherID       string `json:"teacher_id"`
	DayOfWeek       int    `json:"day_of_week"` // 0 = Sunday
	StartHour       int    `json:"start_hour"`
	StartMinute     int    `json:"start_minute"`
	DurationMinutes int    `json:"duration_minutes"`
	MaxStudents     int    `json:"max_students,omitempty"`
	IsRecurring     bool   `json:"is_recurring"`
}

// MaterializeRequest generates slots from a template.
type MaterializeRequest struct {
	Weeks int `json:"weeks,omitempty"`
}

// JoinWaitlistRequest queues the token's student for a slot pattern.
type JoinWaitlistRequest struct {
	Weekday     int  `json:"weekday"`
	StartHour   int  `json:"start_hour"`
	StartMinute int  `json:"start_minute"`
	Priority    int  `json:"priority,omitempty"`
	AutoBook    bool `json:"auto_book,omitempty"`
}

// TokenRequest issues or rotates a share token for a pair.
type TokenRequest struct {
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the standard error envelope. Code is the machine
// contract clients branch on; Error is for humans.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// AccountDTO is the public view of a credit account.
type AccountDTO struct {
	ID             string `json:"id"`
	StudentID      string `json:"student_id"`
	TeacherID      string `json:"teacher_id"`
	BalanceHours   string `json:"balance_hours"`
	TotalPurchased string `json:"total_purchased"`
	TotalUsed      string `json:"total_used"`
	RatePerHour    string `json:"rate_per_hour"`
	IsActive       bool   `json:"is_active"`
}

// TransactionDTO is one ledger row.
type TransactionDTO struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	HoursAmount   string `json:"hours_amount"`
	BalanceAfter  string `json:"balance_after"`
	Description   string `json:"description"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id,omitempty"`
	PerformedBy   string `json:"performed_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// SlotDTO is the public view of a schedule slot.
type SlotDTO struct {
	ID          string `json:"id"`
	TeacherID   string `json:"teacher_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	MaxStudents int    `json:"max_students"`
	BookedBy    string `json:"booked_by,omitempty"`
	TemplateID  string `json:"template_id,omitempty"`
}

// BookingDTO is one booking with its lifecycle timestamps.
type BookingDTO struct {
	ID          string `json:"id"`
	SlotID      string `json:"slot_id"`
	StudentID   string `json:"student_id"`
	TeacherID   string `json:"teacher_id"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	BookedAt    string `json:"booked_at"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// BookingResultDTO is returned on a successful booking.
type BookingResultDTO struct {
	Booking          BookingDTO `json:"booking"`
	Slot             SlotDTO    `json:"slot"`
	CreditsDeducted  string     `json:"credits_deducted"`
	RemainingCredits string     `json:"remaining_credits"`
}

// CancelResultDTO reports the refund issued for a cancellation.
type CancelResultDTO struct {
	Booking       BookingDTO `json:"booking"`
	RefundedHours string     `json:"refunded_hours"`
	BalanceAfter  string     `json:"balance_after"`
	SlotRelisted  bool       `json:"slot_relisted"`
}

// TemplateDTO is one recurring availability rule.
type TemplateDTO struct {
	ID              string `json:"id"`
	TeacherID       string `json:"teacher_id"`
	DayOfWeek       int    `json:"day_of_week"`
	StartHour       int    `json:"start_hour"`
	StartMinute     int    `json:"start_minute"`
	DurationMinutes int    `json:"duration_minutes"`
	MaxStudents     int    `json:"max_students"`
	IsRecurring     bool   `json:"is_recurring"`
}

// ConflictDTO reports one candidate window that overlapped existing
// availability, with the windows it collided with.
type ConflictDTO struct {
	Candidate WindowDTO   `json:"candidate"`
	Existing  []WindowDTO `json:"existing"`
}

// AvailabilityResultDTO reports created slots and (with override) the
// candidates that were skipped as conflicts.
type AvailabilityResultDTO struct {
	Created   []SlotDTO     `json:"created"`
	Conflicts []ConflictDTO `json:"conflicts,omitempty"`
}

// MaterializeResultDTO reports one materialization pass.
type MaterializeResultDTO struct {
	Created []SlotDTO     `json:"created"`
	Skipped []ConflictDTO `json:"skipped,omitempty"`
}

// WaitlistEntryDTO is one queue entry.
type WaitlistEntryDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	TeacherID   string `json:"teacher_id"`
	Weekday     int    `json:"weekday"`
	StartHour   int    `json:"start_hour"`
	StartMinute int    `json:"start_minute"`
	Priority    int    `json:"priority"`
	Position    int    `json:"position"`
	Status      string `json:"status"`
	AutoBook    bool   `json:"auto_book"`
	JoinedAt    string `json:"joined_at"`
	NotifiedAt  string `json:"notified_at,omitempty"`
}

// JoinWaitlistResultDTO reports the assigned queue position.
type JoinWaitlistResultDTO struct {
	Entry              WaitlistEntryDTO `json:"entry"`
	EstimatedWaitHours int              `json:"estimated_wait_hours"`
}

// TokenDTO is returned when a share token is issued or rotated. The raw
// token value appears here and nowhere else in the API.
type TokenDTO struct {
	Token     string `json:"token"`
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
	ExpiresAt string `json:"expires_at"`
}

// SessionDTO is what a validated share token grants the public page.
type SessionDTO struct {
	StudentID     string `json:"student_id"`
	TeacherID     string `json:"teacher_id"`
	NeedsRotation bool   `json:"needs_rotation"`
}

// SweepResultDTO reports a manual maintenance run.
type SweepResultDTO struct {
	NoShowsSwept    int `json:"no_shows_swept"`
	WaitlistExpired int `json:"waitlist_expired"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAccountDTO(a *booking.CreditAccount) AccountDTO {
	return AccountDTO{
		ID:             string(a.ID),
		StudentID:      string(a.StudentID),
		TeacherID:      string(a.TeacherID),
		BalanceHours:   a.BalanceHours.String(),
		TotalPurchased: a.TotalPurchased.String(),
		TotalUsed:      a.TotalUsed.String(),
		RatePerHour:    a.RatePerHour.String(),
		IsActive:       a.IsActive,
	}
}

func toTransactionDTO(tx booking.CreditTransaction) TransactionDTO {
	return TransactionDTO{
		ID:            string(tx.ID),
		Type:          string(tx.Type),
		HoursAmount:   tx.HoursAmount.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Description:   tx.Description,
		ReferenceType: string(tx.ReferenceType),
		ReferenceID:   tx.ReferenceID,
		PerformedBy:   tx.PerformedBy,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []booking.CreditTransaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toSlotDTO(s booking.ScheduleSlot) SlotDTO {
	dto := SlotDTO{
		ID:          string(s.ID),
		TeacherID:   string(s.TeacherID),
		StartTime:   s.StartTime.Format(time.RFC3339),
		EndTime:     s.EndTime.Format(time.RFC3339),
		Status:      string(s.Status),
		MaxStudents: s.MaxStudents,
	}
	if s.BookedBy != nil {
		dto.BookedBy = string(*s.BookedBy)
	}
	if s.TemplateID != nil {
		dto.TemplateID = string(*s.TemplateID)
	}
	return dto
}

func toSlotDTOs(slots []booking.ScheduleSlot) []SlotDTO {
	dtos := make([]SlotDTO, len(slots))
	for i, s := range slots {
		dtos[i] = toSlotDTO(s)
	}
	return dtos
}

func toBookingDTO(b booking.Booking) BookingDTO {
	dto := BookingDTO{
		ID:          string(b.ID),
		SlotID:      string(b.SlotID),
		StudentID:   string(b.StudentID),
		TeacherID:   string(b.TeacherID),
		Status:      string(b.Status),
		Notes:       b.Notes,
		BookedAt:    b.BookedAt.Format(time.RFC3339),
		CancelledBy: b.CancelledBy,
	}
	if b.CancelledAt != nil {
		dto.CancelledAt = b.CancelledAt.Format(time.RFC3339)
	}
	if b.CompletedAt != nil {
		dto.CompletedAt = b.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func toTemplateDTO(t booking.TimeSlotTemplate) TemplateDTO {
	return TemplateDTO{
		ID:              string(t.ID),
		TeacherID:       string(t.TeacherID),
		DayOfWeek:       int(t.DayOfWeek),
		StartHour:       t.StartHour,
		StartMinute:     t.StartMinute,
		DurationMinutes: t.DurationMinutes,
		MaxStudents:     t.MaxStudents,
		IsRecurring:     t.IsRecurring,
	}
}

func toWindowDTO(w booking.Window) WindowDTO {
	return WindowDTO{Start: w.Start, End: w.End}
}

func toConflictDTO(c booking.Conflict) ConflictDTO {
	dto := ConflictDTO{Candidate: toWindowDTO(c.Candidate)}
	for _, e := range c.Conflicting {
		dto.Existing = append(dto.Existing, toWindowDTO(e.Window))
	}
	return dto
}

func toConflictDTOs(cs []booking.Conflict) []ConflictDTO {
	if len(cs) == 0 {
		return nil
	}
	dtos := make([]ConflictDTO, len(cs))
	for i, c := range cs {
		dtos[i] = toConflictDTO(c)
	}
	return dtos
}

func toWaitlistEntryDTO(e booking.WaitlistEntry) WaitlistEntryDTO {
	dto := WaitlistEntryDTO{
		ID:          string(e.ID),
		StudentID:   string(e.StudentID),
		TeacherID:   string(e.Pattern.TeacherID),
		Weekday:     int(e.Pattern.Weekday),
		StartHour:   e.Pattern.StartHour,
		StartMinute: e.Pattern.StartMin,
		Priority:    e.Priority,
		Position:    e.Position,
		Status:      string(e.Status),
		AutoBook:    e.AutoBook,
		JoinedAt:    e.JoinedAt.Format(time.RFC3339),
	}
	if e.NotifiedAt != nil {
		dto.NotifiedAt = e.NotifiedAt.Format(time.RFC3339)
	}
	return dto
}

func toWaitlistEntryDTOs(entries []booking.WaitlistEntry) []WaitlistEntryDTO {
	dtos := make([]WaitlistEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toWaitlistEntryDTO(e)
	}
	return dtos
}

func toTokenDTO(t *booking.ShareToken) TokenDTO {
	return TokenDTO{
		Token:     t.Token,
		StudentID: string(t.StudentID),
		TeacherID: string(t.TeacherID),
		ExpiresAt: t.ExpiresAt.Format(time.RFC3339),
	}
}
