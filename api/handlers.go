/*
handlers.go - HTTP request handlers for the booking API

PURPOSE:
  Implements REST endpoints over the booking domain. Handlers decode,
  delegate to the domain layer, and encode; every business rule lives in
  booking/*, so a handler never touches the store except for plain reads.

ENDPOINTS:
  Admin (teacher-facing):
    POST   /api/credits/purchase          Record a prepaid-hours purchase
    POST   /api/accounts/{id}/adjust      Signed manual balance correction
    POST   /api/accounts/{id}/deactivate  Freeze an account
    GET    /api/accounts/{id}             Account with balance
    GET    /api/accounts/{id}/ledger      Transaction history
    POST   /api/availability              Create ad hoc slots
    GET    /api/teachers/{id}/slots       All slots in a range
    DELETE /api/slots/{id}                Delete an unbooked future slot
    POST   /api/templates                 Create a recurring rule
    GET    /api/teachers/{id}/templates   List a teacher's rules
    DELETE /api/templates/{id}            Delete a rule
    POST   /api/templates/{id}/materialize  Generate slots from a rule
    POST   /api/bookings/{id}/cancel      Cancel on the teacher's side
    POST   /api/bookings/{id}/complete    Mark a lesson held
    GET    /api/waitlist                  A pattern's queue in order
    POST   /api/waitlist/{id}/promote     Move an entry to the head
    DELETE /api/waitlist/{id}             Remove an entry
    POST   /api/tokens                    Issue (or return) a pair's token
    POST   /api/tokens/rotate             Force a new token
    POST   /api/admin/sweep               Run maintenance immediately

  Public (share-token scoped; {token} is the capability):
    GET    /api/public/{token}            Session claims for the pair
    GET    /api/public/{token}/slots      The teacher's open slots
    GET    /api/public/{token}/account    Balance + history
    GET    /api/public/{token}/bookings   The student's bookings
    POST   /api/public/{token}/bookings   Book a slot
    POST   /api/public/{token}/bookings/{id}/cancel  Cancel own booking
    POST   /api/public/{token}/waitlist   Join a pattern's queue

ERROR CONTRACT:
  Domain errors map to machine codes via booking.ErrorCode; clients
  branch on the code field, never on message text. Decode failures are
  invalid_input. Unknown errors are internal_error with no detail leak.

SEE ALSO:
  - booking/errors.go: the code/status table
  - server.go: route wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makersapien/classlog-sub002/booking"
)

// Handler holds the domain services the endpoints delegate to.
type Handler struct {
	Store    booking.TxStore
	Ledger   *booking.CreditLedger
	Registry *booking.SlotRegistry
	Engine   *booking.BookingEngine
	Waitlist *booking.WaitlistQueue
	Tokens   *booking.ShareTokenAuthority
	Logger   *zap.Logger
}

// NewHandler wires a handler over the domain services.
func NewHandler(store booking.TxStore, ledger *booking.CreditLedger, registry *booking.SlotRegistry,
	engine *booking.BookingEngine, waitlist *booking.WaitlistQueue, tokens *booking.ShareTokenAuthority,
	logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		Registry: registry,
		Engine:   engine,
		Waitlist: waitlist,
		Tokens:   tokens,
		Logger:   logger,
	}
}

// =============================================================================
// CREDITS
// =============================================================================

// Purchase records prepaid hours for a (student, teacher) pair, creating
// the account on first purchase.
// POST /api/credits/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, booking.ErrInvalidInput, "invalid request body")
		return
	}
	hours, err := decimal.NewFromString(req.Hours)
	if err != nil {
		writeError(w, booking.ErrInvalidAmount, "hours must be a decimal string")
		return
	}
	rate, err := decimal.NewFromString(req.RatePerHour)
	if err != nil {
		writeError(w, booking.ErrInvalidAmount, "rate_per_hour must be a decimal string")
		return
	}

	res, err := h.Ledger.Purchase(r.Context(),
		booking.StudentID(req.StudentID), booking.TeacherID(req.TeacherID),
		hours, rate, req.PerformedBy)
	if err != nil {
		writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction":   toTransactionDTO(res.Transaction),
		"balance_after": res.BalanceAfter.String(),
	})
}

// Adjust applies a signed manual correction to an account's balance.
// POST /api/accounts/{id}/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	accountID := booking.AccountID(chi.URLParam(r, "id"))

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, booking.ErrInvalidInput, "invalid request body")
		return
	}
	hours, err := decimal.NewFromString(req.Hours)
	if err != nil {
		writeError(w, booking.ErrInvalidAmount, "hours must be a signed decimal string")
		return
	}

	res, err := h.Ledger.Apply(r.Context(), booking.ApplyInput{
		AccountID:     accountID,
		Type:          booking.TxAdjustment,
		Hours:         hours,
		Description:   req.Description,
		ReferenceType: booking.RefManual,
		PerformedBy:   req.PerformedBy,
	})
	if err != nil {
		writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction":   toTransactionDTO(res.Transaction),
		"balance_after": res.BalanceAfter.String(),
	})
}

// DeactivateAccount freezes an account. History stays readable; bookings
// and purchases against it are rejected.
// POST /api/accounts/{id}/deactivate
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID := booking.AccountID(chi.URLParam(r, "id"))
	if err := h.Ledger.Deactivate(r.Context(), accountID); err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

// GetAccount returns an account with its live balance.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Store.GetAccount(r.Context(), booking.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// GetLedger returns an account's transaction history in append order.
// GET /api/accounts/{id}/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	accountID := booking.AccountID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetAccount(r.Context(), accountID); err != nil {
		writeError(w, err, "")
		return
	}
	rows, err := h.Store.LedgerEntries(r.Context(), accountID)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": toTransactionDTOs(rows)})
}

// =============================================================================
// AVAILABILITY + SLOTS
// =============================================================================

// CreateAvailability creates one open slot per requested window. Without
// override the whole batch is rejected when any window conflicts.
// POST /api/availability
func (h *Handler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, booking.ErrInvalidInput, "invalid request body")
		return
	}

	windows := make([]booking.Window, len(req.Windows))
	for i, wd := range req.Windows {
		windows[i] = booking.Window{Start: wd.Start, End: wd.End}
	}

	res, err := h.Registry.CreateAvailability(r.Context(),
		booking.TeacherID(req.TeacherID), windows, req.MaxStudents, req.Override)
	if err != nil {
		writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, AvailabilityResultDTO{
		Created:   toSlotDTOs(res.Created),
		Conflicts: toConflictDTOs(res.Conflicts),
	})
}

// ListTeacherSlots returns all of a teacher's slots in [from, to). The
// range defaults to the next materialization window.
// GET /api/teachers/{id}/slots?from=...&to=...
func (h *Handler) ListTeacherSlots(w http.ResponseWriter, r *http.Request) {
	teacher := booking.TeacherID(chi.URLParam(r, "id"))

	from := time.Now().UTC()
	to := from.AddDate(0, 0, 7*booking.MaterializeWeeksDefault)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, booking.ErrInvalidInput, "from must be RFC3339")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, booking.ErrInvalidInput, "to must be RFC3339")
			return
		}
		to = t
	}

	slots, err := h.Registry.ListSlots(r.Context(), teacher, from, to)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": toSlotDTOs(slots)})
}

// DeleteSlot removes an unbooked future slot.
// DELETE /api/slots/{id}
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DeleteSlot(r.Context(), booking.SlotID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// TEMPLATES
// =============================================================================

// CreateTemplate stores a recurring availability rule.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, booking.ErrInvalidInput, "invalid request body")
		return
	}

	tmpl, err := h.Registry.CreateTemplate(r.Context(), booking.TimeSlotTemplate{
		TeacherID:       booking.TeacherID(req.TeacherID),
		DayOfWeek:       time.Weekday(req.DayOfWeek),
		StartHour:       req.StartHour,
		StartMinute:     req.StartMinute,
		DurationMinutes: req.DurationMinutes,
		MaxStudents:     req.MaxStudents,
		IsRecurring:     req.IsRecurring,
	})
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(*tmpl))
}

// ListTeacherTemplates lists a teacher's rules.
// GET /api/teachers/{id}/templates
func (h *Handler) ListTeacherTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Store.ListTemplates(r.Context(), booking.TeacherID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err, "")
		return
	}
	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": dtos})
}

// DeleteTemplate removes a rule. Already-materialized slots remain.
// DELETE /api/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DeleteTemplate(r.Context(), booking.TemplateID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// MaterializeTemplate generates concrete slots from a rule over the next
// N weeks, reporting occurrences skipped as conflicts.
// POST /api/templates/{id}/materialize
func (h *Handler) MaterializeTemplate(w http.ResponseWriter, r *http.Request) {
	var req MaterializeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, booking.ErrInvalidInput, "invalid request body")
			return
		}
	}

	res, err := h.Registry.MaterializeFromTemplate(r.Context(),
		booking.TemplateID(chi.URLParam(r, "id")), req.Weeks)
	if err != nil {
		writeError(w, err, "")
		return
	}

	out := MaterializeResultDTO{Created: toSlotDTOs(res.Created)}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, toConflictDTO(booking.Conflict{
			Candidate:   sk.Window,
			Conflicting: sk.Conflicting,
		}))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// BOOKINGS (TEACHER SIDE)
// =============================================================================

type actorRequest struct {
	Actor string `json:"actor"`
}

// CancelBooking cancels on the teacher's side. The refund policy is the
// same as for students; the actor is recorded on the booking.
// POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, booking.ErrInvalidInput, "invalid request body")
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "teacher"
	}

	res, err := h.Engine.Cancel(r.Context(), booking.BookingID(chi.URLParam(r, "id")), req.Actor)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, CancelResultDTO{
		Booking:       toBookingDTO(res.Booking),
		RefundedHours: res.RefundedHours.String(),
		BalanceAfter:  res.BalanceAfter.String(),
		SlotRelisted:  res.SlotRelisted,
	})
}

// CompleteBooking marks a lesson held. The deduction already happened at
// booking time; this is a pure state transition.
// POST /api/bookings/{id}/complete
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, booking.ErrInvalidInput, "invalid request body")
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "teacher"
	}

	if err := h.Engine.Complete(r.Context(), booking.BookingID(chi.URLParam(r, "id")), req.Actor); err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed"})
}

// =============================================================================
// WAITLIST (TEACHER SIDE)
// =============================================================================

// patternFromQuery builds a slot pattern from query parameters.
func patternFromQuery(r *http.Request) (booking.SlotPattern, error) {
	teacher := r.URL.Query().Get("teacher_id")
	if teacher == "" {
		return booking.SlotPattern{}, booking.ErrInvalidInput
	}
	weekday, err := strconv.Atoi(r.URL.Query().Get("weekday"))
	if err != nil {
		return booking.SlotPattern{}, booking.ErrInvalidInput
	}
	hour, err := strconv.Atoi(r.URL.Query().Get("start_hour"))
	if err != nil {
		return booking.SlotPattern{}, booking.ErrInvalidInput
	}
	minute := 0
	if v := r.URL.Query().Get("start_minute"); v != "" {
		minute, err = strconv.Atoi(v)
		if err != nil {
			return booking.SlotPattern{}, booking.ErrInvalidInput
		}
	}
	return booking.SlotPattern{
		TeacherID: booking.TeacherID(teacher),
		Weekday:   time.Weekday(weekday),
		StartHour: hour,
		StartMin:  minute,
	}, nil
}

// ListWaitlist returns a pattern's queue in order.
// GET /api/waitlist?teacher_id=...&weekday=...&start_hour=...&start_minute=...
func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	pattern, err := patternFromQuery(r)
	if err != nil {
		writeError(w, err, "teacher_id, weekday and start_hour are required")
		return
	}
	entries, err := h.Waitlist.Entries(r.Context(), pattern)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toWaitlistEntryDTOs(entries)})
}

// PromoteEntry moves a waiting entry to the head of its queue.
// POST /api/waitlist/{id}/promote
func (h *Handler) PromoteEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Waitlist.Promote(r.Context(), booking.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistEntryDTO(*entry))
}

// RemoveEntry takes an entry out of the queue.
// DELETE /api/waitlist/{id}
func (h *Handler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Waitlist.Remove(r.Context(), booking.EntryID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

// =============================================================================
// TOKENS
// =============================================================================

// CreateToken issues a share token for a pair, or returns the existing
// active one. The raw value appears only in this response.
// POST /api/tokens
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, booking.ErrInvalidInput, "invalid request body")
		return
	}
	t, err := h.Tokens.Create(r.Context(),
		booking.StudentID(req.StudentID), booking.TeacherID(req.TeacherID))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, toTokenDTO(t))
}

// RotateToken forces a new token, invalidating the current one even if it
// has not expired.
// POST /api/tokens/rotate
func (h *Handler) RotateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, booking.ErrInvalidInput, "invalid request body")
		return
	}
	t, err := h.Tokens.Rotate(r.Context(),
		booking.StudentID(req.StudentID), booking.TeacherID(req.TeacherID))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, toTokenDTO(t))
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// RunSweep runs the no-show sweep and waitlist expiry immediately instead
// of waiting for the next scheduled pass.
// POST /api/admin/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.Engine.SweepNoShows(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	expired, err := h.Waitlist.ExpireNotified(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{NoShowsSwept: swept, WaitlistExpired: expired})
}

// =============================================================================
// PUBLIC SURFACE (SHARE-TOKEN SCOPED)
// =============================================================================

// withClaims validates the {token} path segment and hands the claims to
// next. Every attempt, valid or not, is audited by the authority.
func (h *Handler) withClaims(w http.ResponseWriter, r *http.Request, next func(booking.TokenClaims)) {
	claims, err := h.Tokens.Validate(r.Context(), chi.URLParam(r, "token"), clientInfo(r))
	if err != nil {
		writeError(w, err, "")
		return
	}
	next(*claims)
}

// GetSession returns what the token grants. The public page calls this
// first to render the pair and a rotation hint near expiry.
// GET /api/public/{token}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		writeJSON(w, http.StatusOK, SessionDTO{
			StudentID:     string(c.StudentID),
			TeacherID:     string(c.TeacherID),
			NeedsRotation: c.NeedsRotation,
		})
	})
}

// ListOpenSlots returns the teacher's future open slots.
// GET /api/public/{token}/slots?weeks=N
func (h *Handler) ListOpenSlots(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		weeks := booking.MaterializeWeeksDefault
		if v := r.URL.Query().Get("weeks"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, booking.ErrInvalidInput, "weeks must be a positive integer")
				return
			}
			weeks = n
		}
		until := time.Now().UTC().AddDate(0, 0, 7*weeks)
		slots, err := h.Registry.ListOpenSlots(r.Context(), c.TeacherID, until)
		if err != nil {
			writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"slots": toSlotDTOs(slots)})
	})
}

// GetOwnAccount returns the pair's balance and history.
// GET /api/public/{token}/account
func (h *Handler) GetOwnAccount(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		acct, err := h.Store.GetAccountByPair(r.Context(), c.StudentID, c.TeacherID)
		if err != nil {
			writeError(w, err, "")
			return
		}
		rows, err := h.Store.LedgerEntries(r.Context(), acct.ID)
		if err != nil {
			writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"account":      toAccountDTO(acct),
			"transactions": toTransactionDTOs(rows),
		})
	})
}

// ListOwnBookings returns the student's bookings with this teacher.
// GET /api/public/{token}/bookings
func (h *Handler) ListOwnBookings(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		all, err := h.Store.ListBookingsByStudent(r.Context(), c.StudentID)
		if err != nil {
			writeError(w, err, "")
			return
		}
		dtos := make([]BookingDTO, 0, len(all))
		for _, b := range all {
			if b.TeacherID != c.TeacherID {
				continue
			}
			dtos = append(dtos, toBookingDTO(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": dtos})
	})
}

// Book reserves a slot for the token's student and debits their credits,
// atomically.
// POST /api/public/{token}/bookings
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, booking.ErrInvalidInput, "invalid request body")
			return
		}

		// The token scopes the student to one teacher; a slot belonging to
		// anyone else is out of reach no matter how the id was obtained.
		slot, err := h.Store.GetSlot(r.Context(), booking.SlotID(req.SlotID))
		if err != nil {
			writeError(w, err, "")
			return
		}
		if slot.TeacherID != c.TeacherID {
			writeError(w, booking.ErrSlotNotFound, "")
			return
		}

		res, err := h.Engine.Book(r.Context(), booking.SlotID(req.SlotID), c.StudentID, req.Notes)
		if err != nil {
			writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusCreated, BookingResultDTO{
			Booking:          toBookingDTO(res.Booking),
			Slot:             toSlotDTO(res.Slot),
			CreditsDeducted:  res.CreditsDeducted.String(),
			RemainingCredits: res.RemainingCredits.String(),
		})
	})
}

// CancelOwnBooking cancels the student's own booking, refunding the
// deduction when the notice window allows.
// POST /api/public/{token}/bookings/{id}/cancel
func (h *Handler) CancelOwnBooking(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		id := booking.BookingID(chi.URLParam(r, "id"))

		b, err := h.Store.GetBooking(r.Context(), id)
		if err != nil {
			writeError(w, err, "")
			return
		}
		if b.StudentID != c.StudentID || b.TeacherID != c.TeacherID {
			// Someone else's booking looks like a missing one.
			writeError(w, booking.ErrBookingNotFound, "")
			return
		}

		res, err := h.Engine.Cancel(r.Context(), id, "student:"+string(c.StudentID))
		if err != nil {
			writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, CancelResultDTO{
			Booking:       toBookingDTO(res.Booking),
			RefundedHours: res.RefundedHours.String(),
			BalanceAfter:  res.BalanceAfter.String(),
			SlotRelisted:  res.SlotRelisted,
		})
	})
}

// JoinWaitlist queues the student for a weekly pattern. Rejected when a
// matching slot is open right now.
// POST /api/public/{token}/waitlist
func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	h.withClaims(w, r, func(c booking.TokenClaims) {
		var req JoinWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, booking.ErrInvalidInput, "invalid request body")
			return
		}

		pattern := booking.SlotPattern{
			TeacherID: c.TeacherID,
			Weekday:   time.Weekday(req.Weekday),
			StartHour: req.StartHour,
			StartMin:  req.StartMinute,
		}
		res, err := h.Waitlist.Join(r.Context(), pattern, c.StudentID, req.Priority, req.AutoBook)
		if err != nil {
			writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusCreated, JoinWaitlistResultDTO{
			Entry:              toWaitlistEntryDTO(res.Entry),
			EstimatedWaitHours: res.EstimatedWaitHours,
		})
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a domain error to the machine-code contract. An
// optional message overrides the error text for humans; the code always
// comes from the error. Internal errors never leak detail.
func writeError(w http.ResponseWriter, err error, message string) {
	code, status := booking.ErrorCode(err)

	resp := ErrorResponse{Code: code}
	if message != "" {
		resp.Error = message
	} else {
		resp.Error = err.Error()
	}
	if code == "internal_error" {
		resp.Error = "internal error"
	}

	// Time conflicts carry the overlapping windows so the client can
	// render them.
	var tc *booking.TimeConflictError
	if errors.As(err, &tc) {
		resp.Details = toConflictDTOs(tc.Conflicts)
	}

	writeJSON(w, status, resp)
}

// clientInfo extracts the caller's address and user agent for the token
// audit trail.
func clientInfo(r *http.Request) booking.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = fwd
	}
	return booking.ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}
