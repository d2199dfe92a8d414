// Package memory provides an in-memory booking.TxStore for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/makersapien/classlog-sub002/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps everything in maps guarded by one RWMutex. WithTx holds the
// write lock for the whole unit, which makes it trivially serializable -
// the property the engine's correctness rests on.
type Store struct {
	mu sync.RWMutex

	accounts  map[booking.AccountID]booking.CreditAccount
	pairIndex map[pairKey]booking.AccountID
	ledger    map[booking.AccountID][]booking.CreditTransaction
	slots     map[booking.SlotID]booking.ScheduleSlot
	bookings  map[booking.BookingID]booking.Booking
	templates map[booking.TemplateID]booking.TimeSlotTemplate
	entries   map[booking.EntryID]booking.WaitlistEntry
	tokens    map[booking.TokenID]booking.ShareToken
	audits    []booking.TokenAuditEntry
}

type pairKey struct {
	Student booking.StudentID
	Teacher booking.TeacherID
}

func New() *Store {
	return &Store{
		accounts:  make(map[booking.AccountID]booking.CreditAccount),
		pairIndex: make(map[pairKey]booking.AccountID),
		ledger:    make(map[booking.AccountID][]booking.CreditTransaction),
		slots:     make(map[booking.SlotID]booking.ScheduleSlot),
		bookings:  make(map[booking.BookingID]booking.Booking),
		templates: make(map[booking.TemplateID]booking.TimeSlotTemplate),
		entries:   make(map[booking.EntryID]booking.WaitlistEntry),
		tokens:    make(map[booking.TokenID]booking.ShareToken),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn under the write lock against an unlocked view,
// snapshotting first so an error restores the pre-transaction state.
func (m *Store) WithTx(_ context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	accounts  map[booking.AccountID]booking.CreditAccount
	pairIndex map[pairKey]booking.AccountID
	ledger    map[booking.AccountID][]booking.CreditTransaction
	slots     map[booking.SlotID]booking.ScheduleSlot
	bookings  map[booking.BookingID]booking.Booking
	templates map[booking.TemplateID]booking.TimeSlotTemplate
	entries   map[booking.EntryID]booking.WaitlistEntry
	tokens    map[booking.TokenID]booking.ShareToken
	audits    []booking.TokenAuditEntry
}

func (m *Store) snapshot() snapshot {
	s := snapshot{
		accounts:  make(map[booking.AccountID]booking.CreditAccount, len(m.accounts)),
		pairIndex: make(map[pairKey]booking.AccountID, len(m.pairIndex)),
		ledger:    make(map[booking.AccountID][]booking.CreditTransaction, len(m.ledger)),
		slots:     make(map[booking.SlotID]booking.ScheduleSlot, len(m.slots)),
		bookings:  make(map[booking.BookingID]booking.Booking, len(m.bookings)),
		templates: make(map[booking.TemplateID]booking.TimeSlotTemplate, len(m.templates)),
		entries:   make(map[booking.EntryID]booking.WaitlistEntry, len(m.entries)),
		tokens:    make(map[booking.TokenID]booking.ShareToken, len(m.tokens)),
		audits:    append([]booking.TokenAuditEntry{}, m.audits...),
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.pairIndex {
		s.pairIndex[k] = v
	}
	for k, v := range m.ledger {
		s.ledger[k] = append([]booking.CreditTransaction{}, v...)
	}
	for k, v := range m.slots {
		s.slots[k] = v
	}
	for k, v := range m.bookings {
		s.bookings[k] = v
	}
	for k, v := range m.templates {
		s.templates[k] = v
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	for k, v := range m.tokens {
		s.tokens[k] = v
	}
	return s
}

func (m *Store) restore(s snapshot) {
	m.accounts = s.accounts
	m.pairIndex = s.pairIndex
	m.ledger = s.ledger
	m.slots = s.slots
	m.bookings = s.bookings
	m.templates = s.templates
	m.entries = s.entries
	m.tokens = s.tokens
	m.audits = s.audits
}

// txView exposes the unlocked internals to a WithTx callback.
type txView struct{ m *Store }

// =============================================================================
// ACCOUNTS + LEDGER
// =============================================================================

func (m *Store) GetAccount(ctx context.Context, id booking.AccountID) (*booking.CreditAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Store) getAccountLocked(id booking.AccountID) (*booking.CreditAccount, error) {
	acct, ok := m.accounts[id]
	if !ok {
		return nil, booking.ErrAccountNotFound
	}
	out := acct
	return &out, nil
}

func (m *Store) GetAccountByPair(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountByPairLocked(student, teacher)
}

func (m *Store) getAccountByPairLocked(student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	id, ok := m.pairIndex[pairKey{student, teacher}]
	if !ok {
		return nil, booking.ErrAccountNotFound
	}
	return m.getAccountLocked(id)
}

func (m *Store) SaveAccount(ctx context.Context, acct *booking.CreditAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(acct)
}

func (m *Store) saveAccountLocked(acct *booking.CreditAccount) error {
	m.accounts[acct.ID] = *acct
	m.pairIndex[pairKey{acct.StudentID, acct.TeacherID}] = acct.ID
	return nil
}

func (m *Store) AppendLedger(ctx context.Context, tx booking.CreditTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLedgerLocked(tx)
}

func (m *Store) appendLedgerLocked(tx booking.CreditTransaction) error {
	m.ledger[tx.AccountID] = append(m.ledger[tx.AccountID], tx)
	return nil
}

func (m *Store) LedgerEntries(ctx context.Context, id booking.AccountID) ([]booking.CreditTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledgerEntriesLocked(id)
}

func (m *Store) ledgerEntriesLocked(id booking.AccountID) ([]booking.CreditTransaction, error) {
	return append([]booking.CreditTransaction{}, m.ledger[id]...), nil
}

// =============================================================================
// SLOTS
// =============================================================================

func (m *Store) GetSlot(ctx context.Context, id booking.SlotID) (*booking.ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSlotLocked(id)
}

func (m *Store) getSlotLocked(id booking.SlotID) (*booking.ScheduleSlot, error) {
	slot, ok := m.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	out := slot
	return &out, nil
}

func (m *Store) CreateSlot(ctx context.Context, slot *booking.ScheduleSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSlotLocked(slot)
}

func (m *Store) createSlotLocked(slot *booking.ScheduleSlot) error {
	m.slots[slot.ID] = *slot
	return nil
}

func (m *Store) UpdateSlot(ctx context.Context, slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSlotLocked(slot, expect)
}

func (m *Store) updateSlotLocked(slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	current, ok := m.slots[slot.ID]
	if !ok {
		return booking.ErrSlotNotFound
	}
	// Compare-and-swap on status: a concurrent writer loses here.
	if current.Status != expect {
		return booking.ErrSlotConflict
	}
	if current.Status != slot.Status && !booking.CanTransition(current.Status, slot.Status) {
		return booking.ErrSlotConflict
	}
	m.slots[slot.ID] = *slot
	return nil
}

func (m *Store) DeleteSlot(ctx context.Context, id booking.SlotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSlotLocked(id)
}

func (m *Store) deleteSlotLocked(id booking.SlotID) error {
	if _, ok := m.slots[id]; !ok {
		return booking.ErrSlotNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *Store) ListSlotsByTeacher(ctx context.Context, teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSlotsByTeacherLocked(teacher, from, to)
}

func (m *Store) listSlotsByTeacherLocked(teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	var out []booking.ScheduleSlot
	for _, s := range m.slots {
		if s.TeacherID != teacher {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Store) ListSlotsByStatus(ctx context.Context, status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSlotsByStatusLocked(status, endedBefore)
}

func (m *Store) listSlotsByStatusLocked(status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	var out []booking.ScheduleSlot
	for _, s := range m.slots {
		if s.Status == status && s.EndTime.Before(endedBefore) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Store) CountActiveBookings(ctx context.Context, slot booking.SlotID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countActiveBookingsLocked(slot)
}

func (m *Store) countActiveBookingsLocked(slot booking.SlotID) (int, error) {
	n := 0
	for _, b := range m.bookings {
		if b.SlotID == slot && b.Status == booking.BookingConfirmed {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (m *Store) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBookingLocked(id)
}

func (m *Store) getBookingLocked(id booking.BookingID) (*booking.Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	out := b
	return &out, nil
}

func (m *Store) SaveBooking(ctx context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveBookingLocked(b)
}

func (m *Store) saveBookingLocked(b *booking.Booking) error {
	m.bookings[b.ID] = *b
	return nil
}

func (m *Store) ListBookingsByStudent(ctx context.Context, student booking.StudentID) ([]booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBookingsByStudentLocked(student)
}

func (m *Store) listBookingsByStudentLocked(student booking.StudentID) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range m.bookings {
		if b.StudentID == student {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return out, nil
}

func (m *Store) ListBookingsBySlot(ctx context.Context, slot booking.SlotID) ([]booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBookingsBySlotLocked(slot)
}

func (m *Store) listBookingsBySlotLocked(slot booking.SlotID) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range m.bookings {
		if b.SlotID == slot {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return out, nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

func (m *Store) GetTemplate(ctx context.Context, id booking.TemplateID) (*booking.TimeSlotTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTemplateLocked(id)
}

func (m *Store) getTemplateLocked(id booking.TemplateID) (*booking.TimeSlotTemplate, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, booking.ErrTemplateNotFound
	}
	out := t
	return &out, nil
}

func (m *Store) SaveTemplate(ctx context.Context, t *booking.TimeSlotTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTemplateLocked(t)
}

func (m *Store) saveTemplateLocked(t *booking.TimeSlotTemplate) error {
	m.templates[t.ID] = *t
	return nil
}

func (m *Store) DeleteTemplate(ctx context.Context, id booking.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTemplateLocked(id)
}

func (m *Store) deleteTemplateLocked(id booking.TemplateID) error {
	if _, ok := m.templates[id]; !ok {
		return booking.ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *Store) ListTemplates(ctx context.Context, teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTemplatesLocked(teacher)
}

func (m *Store) listTemplatesLocked(teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	var out []booking.TimeSlotTemplate
	for _, t := range m.templates {
		if t.TeacherID == teacher {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) ListRecurringTemplates(ctx context.Context) ([]booking.TimeSlotTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRecurringTemplatesLocked()
}

func (m *Store) listRecurringTemplatesLocked() ([]booking.TimeSlotTemplate, error) {
	var out []booking.TimeSlotTemplate
	for _, t := range m.templates {
		if t.IsRecurring {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// WAITLIST
// =============================================================================

func (m *Store) GetEntry(ctx context.Context, id booking.EntryID) (*booking.WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntryLocked(id)
}

func (m *Store) getEntryLocked(id booking.EntryID) (*booking.WaitlistEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, booking.ErrEntryNotFound
	}
	out := e
	return &out, nil
}

func (m *Store) SaveEntry(ctx context.Context, e *booking.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEntryLocked(e)
}

func (m *Store) saveEntryLocked(e *booking.WaitlistEntry) error {
	m.entries[e.ID] = *e
	return nil
}

func (m *Store) ListEntries(ctx context.Context, patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntriesLocked(patternKey, statuses...)
}

func (m *Store) listEntriesLocked(patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	match := func(s booking.WaitlistStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}
	var out []booking.WaitlistEntry
	for _, e := range m.entries {
		if e.Pattern.Key() == patternKey && match(e.Status) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (m *Store) ListEntriesByStatus(ctx context.Context, status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntriesByStatusLocked(status)
}

func (m *Store) listEntriesByStatusLocked(status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	var out []booking.WaitlistEntry
	for _, e := range m.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// =============================================================================
// SHARE TOKENS
// =============================================================================

func (m *Store) GetTokenByValue(ctx context.Context, token string) (*booking.ShareToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTokenByValueLocked(token)
}

func (m *Store) getTokenByValueLocked(token string) (*booking.ShareToken, error) {
	for _, t := range m.tokens {
		if t.Token == token {
			out := t
			return &out, nil
		}
	}
	return nil, booking.ErrInvalidToken
}

func (m *Store) GetActiveToken(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getActiveTokenLocked(student, teacher)
}

func (m *Store) getActiveTokenLocked(student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	for _, t := range m.tokens {
		if t.StudentID == student && t.TeacherID == teacher && t.IsActive {
			out := t
			return &out, nil
		}
	}
	return nil, booking.ErrInvalidToken
}

func (m *Store) SaveToken(ctx context.Context, t *booking.ShareToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTokenLocked(t)
}

func (m *Store) saveTokenLocked(t *booking.ShareToken) error {
	m.tokens[t.ID] = *t
	return nil
}

func (m *Store) AppendTokenAudit(ctx context.Context, e booking.TokenAuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTokenAuditLocked(e)
}

func (m *Store) appendTokenAuditLocked(e booking.TokenAuditEntry) error {
	m.audits = append(m.audits, e)
	return nil
}

// TokenAudits returns the audit trail. Test helper.
func (m *Store) TokenAudits() []booking.TokenAuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]booking.TokenAuditEntry{}, m.audits...)
}

// =============================================================================
// TX VIEW - unlocked delegates used inside WithTx
// =============================================================================

func (tv *txView) GetAccount(ctx context.Context, id booking.AccountID) (*booking.CreditAccount, error) {
	return tv.m.getAccountLocked(id)
}

func (tv *txView) GetAccountByPair(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	return tv.m.getAccountByPairLocked(student, teacher)
}

func (tv *txView) SaveAccount(ctx context.Context, acct *booking.CreditAccount) error {
	return tv.m.saveAccountLocked(acct)
}

func (tv *txView) AppendLedger(ctx context.Context, tx booking.CreditTransaction) error {
	return tv.m.appendLedgerLocked(tx)
}

func (tv *txView) LedgerEntries(ctx context.Context, id booking.AccountID) ([]booking.CreditTransaction, error) {
	return tv.m.ledgerEntriesLocked(id)
}

func (tv *txView) GetSlot(ctx context.Context, id booking.SlotID) (*booking.ScheduleSlot, error) {
	return tv.m.getSlotLocked(id)
}

func (tv *txView) CreateSlot(ctx context.Context, slot *booking.ScheduleSlot) error {
	return tv.m.createSlotLocked(slot)
}

func (tv *txView) UpdateSlot(ctx context.Context, slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	return tv.m.updateSlotLocked(slot, expect)
}

func (tv *txView) DeleteSlot(ctx context.Context, id booking.SlotID) error {
	return tv.m.deleteSlotLocked(id)
}

func (tv *txView) ListSlotsByTeacher(ctx context.Context, teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	return tv.m.listSlotsByTeacherLocked(teacher, from, to)
}

func (tv *txView) ListSlotsByStatus(ctx context.Context, status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	return tv.m.listSlotsByStatusLocked(status, endedBefore)
}

func (tv *txView) CountActiveBookings(ctx context.Context, slot booking.SlotID) (int, error) {
	return tv.m.countActiveBookingsLocked(slot)
}

func (tv *txView) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return tv.m.getBookingLocked(id)
}

func (tv *txView) SaveBooking(ctx context.Context, b *booking.Booking) error {
	return tv.m.saveBookingLocked(b)
}

func (tv *txView) ListBookingsByStudent(ctx context.Context, student booking.StudentID) ([]booking.Booking, error) {
	return tv.m.listBookingsByStudentLocked(student)
}

func (tv *txView) ListBookingsBySlot(ctx context.Context, slot booking.SlotID) ([]booking.Booking, error) {
	return tv.m.listBookingsBySlotLocked(slot)
}

func (tv *txView) GetTemplate(ctx context.Context, id booking.TemplateID) (*booking.TimeSlotTemplate, error) {
	return tv.m.getTemplateLocked(id)
}

func (tv *txView) SaveTemplate(ctx context.Context, t *booking.TimeSlotTemplate) error {
	return tv.m.saveTemplateLocked(t)
}

func (tv *txView) DeleteTemplate(ctx context.Context, id booking.TemplateID) error {
	return tv.m.deleteTemplateLocked(id)
}

func (tv *txView) ListTemplates(ctx context.Context, teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	return tv.m.listTemplatesLocked(teacher)
}

func (tv *txView) ListRecurringTemplates(ctx context.Context) ([]booking.TimeSlotTemplate, error) {
	return tv.m.listRecurringTemplatesLocked()
}

func (tv *txView) GetEntry(ctx context.Context, id booking.EntryID) (*booking.WaitlistEntry, error) {
	return tv.m.getEntryLocked(id)
}

func (tv *txView) SaveEntry(ctx context.Context, e *booking.WaitlistEntry) error {
	return tv.m.saveEntryLocked(e)
}

func (tv *txView) ListEntries(ctx context.Context, patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	return tv.m.listEntriesLocked(patternKey, statuses...)
}

func (tv *txView) ListEntriesByStatus(ctx context.Context, status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	return tv.m.listEntriesByStatusLocked(status)
}

func (tv *txView) GetTokenByValue(ctx context.Context, token string) (*booking.ShareToken, error) {
	return tv.m.getTokenByValueLocked(token)
}

func (tv *txView) GetActiveToken(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	return tv.m.getActiveTokenLocked(student, teacher)
}

func (tv *txView) SaveToken(ctx context.Context, t *booking.ShareToken) error {
	return tv.m.saveTokenLocked(t)
}

func (tv *txView) AppendTokenAudit(ctx context.Context, e booking.TokenAuditEntry) error {
	return tv.m.appendTokenAuditLocked(e)
}
