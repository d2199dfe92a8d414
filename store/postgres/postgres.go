/*
Package postgres provides a PostgreSQL-backed implementation of the
booking store.

PURPOSE:
  The multi-process deployment target. Unlike the sqlite store, which
  serializes writers behind a process-local mutex, this store leans on
  real database concurrency control: WithTx opens a transaction and the
  slot row is locked with SELECT ... FOR UPDATE, so two processes racing
  for the same slot queue up at the row instead of double-selling it.

COMPARE-AND-SWAP:
  UpdateSlot still compiles the expected status into the WHERE clause.
  Together with the row lock this is belt and braces: the lock orders the
  writers, the CAS catches any path that skipped the locked read.

SCHEMA:
  Managed by goose migrations embedded in this package; see migrate.go.
  Hour amounts are NUMERIC (decimal.Decimal round-trips losslessly),
  timestamps are TIMESTAMPTZ stored in UTC.

SEE ALSO:
  - booking/store.go: interface definitions and the concurrency contract
  - store/sqlite: the single-process default
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makersapien/classlog-sub002/booking"
)

// Store implements booking.TxStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database, verifies the connection and runs pending
// migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so every query
// below can run inside or outside an explicit transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// TRANSACTIONAL STORE (booking.TxStore interface)
// =============================================================================

// WithTx executes fn within one database transaction. Reads of slot rows
// inside the transaction take FOR UPDATE locks, which is what orders
// concurrent booking attempts across processes.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore backs both the transactional view (q = pgx.Tx, inTx = true)
// and the plain pool-backed methods.
type txStore struct {
	q    querier
	inTx bool
}

func (s *Store) view() *txStore { return &txStore{q: s.pool} }

// =============================================================================
// ACCOUNT + LEDGER STORE
// =============================================================================

const accountCols = `id, student_id, teacher_id, balance_hours, total_purchased, total_used, rate_per_hour, is_active, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id booking.AccountID) (*booking.CreditAccount, error) {
	return s.view().GetAccount(ctx, id)
}

func (ts *txStore) GetAccount(ctx context.Context, id booking.AccountID) (*booking.CreditAccount, error) {
	query := `SELECT ` + accountCols + ` FROM credit_accounts WHERE id = $1`
	if ts.inTx {
		query += ` FOR UPDATE`
	}
	return scanAccount(ts.q.QueryRow(ctx, query, string(id)))
}

func (s *Store) GetAccountByPair(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	return s.view().GetAccountByPair(ctx, student, teacher)
}

func (ts *txStore) GetAccountByPair(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	query := `SELECT ` + accountCols + ` FROM credit_accounts WHERE student_id = $1 AND teacher_id = $2`
	if ts.inTx {
		query += ` FOR UPDATE`
	}
	return scanAccount(ts.q.QueryRow(ctx, query, string(student), string(teacher)))
}

func scanAccount(row pgx.Row) (*booking.CreditAccount, error) {
	var a booking.CreditAccount
	err := row.Scan(&a.ID, &a.StudentID, &a.TeacherID, &a.BalanceHours,
		&a.TotalPurchased, &a.TotalUsed, &a.RatePerHour, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (s *Store) SaveAccount(ctx context.Context, a *booking.CreditAccount) error {
	return s.view().SaveAccount(ctx, a)
}

func (ts *txStore) SaveAccount(ctx context.Context, a *booking.CreditAccount) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO credit_accounts (`+accountCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			balance_hours = excluded.balance_hours,
			total_purchased = excluded.total_purchased,
			total_used = excluded.total_used,
			rate_per_hour = excluded.rate_per_hour,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		string(a.ID), string(a.StudentID), string(a.TeacherID),
		a.BalanceHours, a.TotalPurchased, a.TotalUsed, a.RatePerHour,
		a.IsActive, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) AppendLedger(ctx context.Context, tx booking.CreditTransaction) error {
	return s.view().AppendLedger(ctx, tx)
}

func (ts *txStore) AppendLedger(ctx context.Context, tx booking.CreditTransaction) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO credit_transactions
		(id, account_id, type, hours_amount, balance_after, description,
		 reference_type, reference_id, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(tx.ID), string(tx.AccountID), string(tx.Type),
		tx.HoursAmount, tx.BalanceAfter, tx.Description,
		string(tx.ReferenceType), tx.ReferenceID, tx.PerformedBy,
		tx.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) LedgerEntries(ctx context.Context, id booking.AccountID) ([]booking.CreditTransaction, error) {
	return s.view().LedgerEntries(ctx, id)
}

func (ts *txStore) LedgerEntries(ctx context.Context, id booking.AccountID) ([]booking.CreditTransaction, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT id, account_id, type, hours_amount, balance_after, description,
		       reference_type, reference_id, performed_by, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY seq ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []booking.CreditTransaction
	for rows.Next() {
		var tx booking.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.HoursAmount,
			&tx.BalanceAfter, &tx.Description, &tx.ReferenceType,
			&tx.ReferenceID, &tx.PerformedBy, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// SLOT STORE
// =============================================================================

const slotCols = `id, teacher_id, start_time, end_time, status, max_students, booked_by, template_id, created_at, updated_at`

func (s *Store) GetSlot(ctx context.Context, id booking.SlotID) (*booking.ScheduleSlot, error) {
	return s.view().GetSlot(ctx, id)
}

func (ts *txStore) GetSlot(ctx context.Context, id booking.SlotID) (*booking.ScheduleSlot, error) {
	query := `SELECT ` + slotCols + ` FROM schedule_slots WHERE id = $1`
	if ts.inTx {
		// Concurrent bookings of the same slot serialize here.
		query += ` FOR UPDATE`
	}
	slot, err := scanSlot(ts.q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrSlotNotFound
	}
	return slot, err
}

func scanSlot(row pgx.Row) (*booking.ScheduleSlot, error) {
	var slot booking.ScheduleSlot
	var bookedBy, templateID *string

	err := row.Scan(&slot.ID, &slot.TeacherID, &slot.StartTime, &slot.EndTime,
		&slot.Status, &slot.MaxStudents, &bookedBy, &templateID,
		&slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		return nil, err
	}

	slot.StartTime = slot.StartTime.UTC()
	slot.EndTime = slot.EndTime.UTC()
	slot.CreatedAt = slot.CreatedAt.UTC()
	slot.UpdatedAt = slot.UpdatedAt.UTC()
	if bookedBy != nil {
		id := booking.StudentID(*bookedBy)
		slot.BookedBy = &id
	}
	if templateID != nil {
		id := booking.TemplateID(*templateID)
		slot.TemplateID = &id
	}
	return &slot, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot *booking.ScheduleSlot) error {
	return s.view().CreateSlot(ctx, slot)
}

func (ts *txStore) CreateSlot(ctx context.Context, slot *booking.ScheduleSlot) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO schedule_slots (`+slotCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(slot.ID), string(slot.TeacherID),
		slot.StartTime.UTC(), slot.EndTime.UTC(), string(slot.Status),
		slot.MaxStudents, nullStudent(slot.BookedBy), nullTemplate(slot.TemplateID),
		slot.CreatedAt.UTC(), slot.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (s *Store) UpdateSlot(ctx context.Context, slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	return s.view().UpdateSlot(ctx, slot, expect)
}

func (ts *txStore) UpdateSlot(ctx context.Context, slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	tag, err := ts.q.Exec(ctx, `
		UPDATE schedule_slots
		SET status = $1, max_students = $2, booked_by = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		string(slot.Status), slot.MaxStudents, nullStudent(slot.BookedBy),
		slot.UpdatedAt.UTC(), string(slot.ID), string(expect))
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := ts.GetSlot(ctx, slot.ID); err != nil {
			return err
		}
		return booking.ErrSlotConflict
	}
	return nil
}

func (s *Store) DeleteSlot(ctx context.Context, id booking.SlotID) error {
	return s.view().DeleteSlot(ctx, id)
}

func (ts *txStore) DeleteSlot(ctx context.Context, id booking.SlotID) error {
	tag, err := ts.q.Exec(ctx, `DELETE FROM schedule_slots WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrSlotNotFound
	}
	return nil
}

func (s *Store) ListSlotsByTeacher(ctx context.Context, teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	return s.view().ListSlotsByTeacher(ctx, teacher, from, to)
}

func (ts *txStore) ListSlotsByTeacher(ctx context.Context, teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+slotCols+` FROM schedule_slots
		WHERE teacher_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC`,
		string(teacher), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	return collectSlots(rows)
}

func (s *Store) ListSlotsByStatus(ctx context.Context, status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	return s.view().ListSlotsByStatus(ctx, status, endedBefore)
}

func (ts *txStore) ListSlotsByStatus(ctx context.Context, status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+slotCols+` FROM schedule_slots
		WHERE status = $1 AND end_time < $2
		ORDER BY start_time ASC`,
		string(status), endedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]booking.ScheduleSlot, error) {
	defer rows.Close()
	var out []booking.ScheduleSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		out = append(out, *slot)
	}
	return out, rows.Err()
}

func (s *Store) CountActiveBookings(ctx context.Context, slot booking.SlotID) (int, error) {
	return s.view().CountActiveBookings(ctx, slot)
}

func (ts *txStore) CountActiveBookings(ctx context.Context, slot booking.SlotID) (int, error) {
	var count int
	err := ts.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE slot_id = $1 AND status = $2`,
		string(slot), string(booking.BookingConfirmed)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// =============================================================================
// BOOKING STORE
// =============================================================================

const bookingCols = `id, slot_id, student_id, teacher_id, status, notes, booked_at, cancelled_at, cancelled_by, completed_at`

func (s *Store) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return s.view().GetBooking(ctx, id)
}

func (ts *txStore) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	query := `SELECT ` + bookingCols + ` FROM bookings WHERE id = $1`
	if ts.inTx {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(ts.q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	return b, err
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var b booking.Booking
	err := row.Scan(&b.ID, &b.SlotID, &b.StudentID, &b.TeacherID, &b.Status,
		&b.Notes, &b.BookedAt, &b.CancelledAt, &b.CancelledBy, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	b.BookedAt = b.BookedAt.UTC()
	if b.CancelledAt != nil {
		t := b.CancelledAt.UTC()
		b.CancelledAt = &t
	}
	if b.CompletedAt != nil {
		t := b.CompletedAt.UTC()
		b.CompletedAt = &t
	}
	return &b, nil
}

func (s *Store) SaveBooking(ctx context.Context, b *booking.Booking) error {
	return s.view().SaveBooking(ctx, b)
}

func (ts *txStore) SaveBooking(ctx context.Context, b *booking.Booking) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO bookings (`+bookingCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			notes = excluded.notes,
			cancelled_at = excluded.cancelled_at,
			cancelled_by = excluded.cancelled_by,
			completed_at = excluded.completed_at`,
		string(b.ID), string(b.SlotID), string(b.StudentID), string(b.TeacherID),
		string(b.Status), b.Notes, b.BookedAt.UTC(),
		b.CancelledAt, b.CancelledBy, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

func (s *Store) ListBookingsByStudent(ctx context.Context, student booking.StudentID) ([]booking.Booking, error) {
	return s.view().ListBookingsByStudent(ctx, student)
}

func (ts *txStore) ListBookingsByStudent(ctx context.Context, student booking.StudentID) ([]booking.Booking, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE student_id = $1 ORDER BY booked_at ASC`, string(student))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return collectBookings(rows)
}

func (s *Store) ListBookingsBySlot(ctx context.Context, slot booking.SlotID) ([]booking.Booking, error) {
	return s.view().ListBookingsBySlot(ctx, slot)
}

func (ts *txStore) ListBookingsBySlot(ctx context.Context, slot booking.SlotID) ([]booking.Booking, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE slot_id = $1 ORDER BY booked_at ASC`, string(slot))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]booking.Booking, error) {
	defer rows.Close()
	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

const templateCols = `id, teacher_id, day_of_week, start_hour, start_minute, duration_minutes, max_students, is_recurring, created_at`

func (s *Store) GetTemplate(ctx context.Context, id booking.TemplateID) (*booking.TimeSlotTemplate, error) {
	return s.view().GetTemplate(ctx, id)
}

func (ts *txStore) GetTemplate(ctx context.Context, id booking.TemplateID) (*booking.TimeSlotTemplate, error) {
	t, err := scanTemplate(ts.q.QueryRow(ctx,
		`SELECT `+templateCols+` FROM slot_templates WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrTemplateNotFound
	}
	return t, err
}

func scanTemplate(row pgx.Row) (*booking.TimeSlotTemplate, error) {
	var t booking.TimeSlotTemplate
	var dow int
	err := row.Scan(&t.ID, &t.TeacherID, &dow, &t.StartHour, &t.StartMinute,
		&t.DurationMinutes, &t.MaxStudents, &t.IsRecurring, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.DayOfWeek = time.Weekday(dow)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) SaveTemplate(ctx context.Context, t *booking.TimeSlotTemplate) error {
	return s.view().SaveTemplate(ctx, t)
}

func (ts *txStore) SaveTemplate(ctx context.Context, t *booking.TimeSlotTemplate) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO slot_templates (`+templateCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			day_of_week = excluded.day_of_week,
			start_hour = excluded.start_hour,
			start_minute = excluded.start_minute,
			duration_minutes = excluded.duration_minutes,
			max_students = excluded.max_students,
			is_recurring = excluded.is_recurring`,
		string(t.ID), string(t.TeacherID), int(t.DayOfWeek),
		t.StartHour, t.StartMinute, t.DurationMinutes, t.MaxStudents,
		t.IsRecurring, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id booking.TemplateID) error {
	return s.view().DeleteTemplate(ctx, id)
}

func (ts *txStore) DeleteTemplate(ctx context.Context, id booking.TemplateID) error {
	tag, err := ts.q.Exec(ctx, `DELETE FROM slot_templates WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrTemplateNotFound
	}
	return nil
}

func (s *Store) ListTemplates(ctx context.Context, teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	return s.view().ListTemplates(ctx, teacher)
}

func (ts *txStore) ListTemplates(ctx context.Context, teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+templateCols+` FROM slot_templates
		WHERE teacher_id = $1 ORDER BY created_at ASC`, string(teacher))
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	return collectTemplates(rows)
}

func (s *Store) ListRecurringTemplates(ctx context.Context) ([]booking.TimeSlotTemplate, error) {
	return s.view().ListRecurringTemplates(ctx)
}

func (ts *txStore) ListRecurringTemplates(ctx context.Context) ([]booking.TimeSlotTemplate, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+templateCols+` FROM slot_templates
		WHERE is_recurring ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	return collectTemplates(rows)
}

func collectTemplates(rows pgx.Rows) ([]booking.TimeSlotTemplate, error) {
	defer rows.Close()
	var out []booking.TimeSlotTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// =============================================================================
// WAITLIST STORE
// =============================================================================

const entryCols = `id, pattern_key, teacher_id, weekday, start_hour, start_min, student_id, priority, position, status, auto_book, joined_at, notified_at`

func (s *Store) GetEntry(ctx context.Context, id booking.EntryID) (*booking.WaitlistEntry, error) {
	return s.view().GetEntry(ctx, id)
}

func (ts *txStore) GetEntry(ctx context.Context, id booking.EntryID) (*booking.WaitlistEntry, error) {
	query := `SELECT ` + entryCols + ` FROM waitlist_entries WHERE id = $1`
	if ts.inTx {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(ts.q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrEntryNotFound
	}
	return e, err
}

func scanEntry(row pgx.Row) (*booking.WaitlistEntry, error) {
	var e booking.WaitlistEntry
	var key string
	var weekday int
	err := row.Scan(&e.ID, &key, &e.Pattern.TeacherID, &weekday,
		&e.Pattern.StartHour, &e.Pattern.StartMin, &e.StudentID,
		&e.Priority, &e.Position, &e.Status, &e.AutoBook,
		&e.JoinedAt, &e.NotifiedAt)
	if err != nil {
		return nil, err
	}
	e.Pattern.Weekday = time.Weekday(weekday)
	e.JoinedAt = e.JoinedAt.UTC()
	return &e, nil
}

func (s *Store) SaveEntry(ctx context.Context, e *booking.WaitlistEntry) error {
	return s.view().SaveEntry(ctx, e)
}

func (ts *txStore) SaveEntry(ctx context.Context, e *booking.WaitlistEntry) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO waitlist_entries (`+entryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			priority = excluded.priority,
			position = excluded.position,
			status = excluded.status,
			auto_book = excluded.auto_book,
			joined_at = excluded.joined_at,
			notified_at = excluded.notified_at`,
		string(e.ID), e.Pattern.Key(), string(e.Pattern.TeacherID),
		int(e.Pattern.Weekday), e.Pattern.StartHour, e.Pattern.StartMin,
		string(e.StudentID), e.Priority, e.Position, string(e.Status),
		e.AutoBook, e.JoinedAt.UTC(), e.NotifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save waitlist entry: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	return s.view().ListEntries(ctx, patternKey, statuses...)
}

func (ts *txStore) ListEntries(ctx context.Context, patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	query := `SELECT ` + entryCols + ` FROM waitlist_entries WHERE pattern_key = $1`
	args := []any{patternKey}
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, strs)
	}
	query += ` ORDER BY priority DESC, joined_at ASC`

	rows, err := ts.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *Store) ListEntriesByStatus(ctx context.Context, status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	return s.view().ListEntriesByStatus(ctx, status)
}

func (ts *txStore) ListEntriesByStatus(ctx context.Context, status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	rows, err := ts.q.Query(ctx, `
		SELECT `+entryCols+` FROM waitlist_entries
		WHERE status = $1 ORDER BY joined_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist entries: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]booking.WaitlistEntry, error) {
	defer rows.Close()
	var out []booking.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// =============================================================================
// TOKEN STORE
// =============================================================================

const tokenCols = `id, token, student_id, teacher_id, created_at, expires_at, access_count, last_accessed, is_active`

func (s *Store) GetTokenByValue(ctx context.Context, token string) (*booking.ShareToken, error) {
	return s.view().GetTokenByValue(ctx, token)
}

func (ts *txStore) GetTokenByValue(ctx context.Context, token string) (*booking.ShareToken, error) {
	query := `SELECT ` + tokenCols + ` FROM share_tokens WHERE token = $1`
	if ts.inTx {
		query += ` FOR UPDATE`
	}
	t, err := scanToken(ts.q.QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrInvalidToken
	}
	return t, err
}

func (s *Store) GetActiveToken(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	return s.view().GetActiveToken(ctx, student, teacher)
}

func (ts *txStore) GetActiveToken(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	query := `
		SELECT ` + tokenCols + ` FROM share_tokens
		WHERE student_id = $1 AND teacher_id = $2 AND is_active
		ORDER BY created_at DESC LIMIT 1`
	if ts.inTx {
		query += ` FOR UPDATE`
	}
	t, err := scanToken(ts.q.QueryRow(ctx, query, string(student), string(teacher)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrInvalidToken
	}
	return t, err
}

func scanToken(row pgx.Row) (*booking.ShareToken, error) {
	var t booking.ShareToken
	err := row.Scan(&t.ID, &t.Token, &t.StudentID, &t.TeacherID,
		&t.CreatedAt, &t.ExpiresAt, &t.AccessCount, &t.LastAccessed, &t.IsActive)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return &t, nil
}

func (s *Store) SaveToken(ctx context.Context, t *booking.ShareToken) error {
	return s.view().SaveToken(ctx, t)
}

func (ts *txStore) SaveToken(ctx context.Context, t *booking.ShareToken) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO share_tokens (`+tokenCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed,
			is_active = excluded.is_active`,
		string(t.ID), t.Token, string(t.StudentID), string(t.TeacherID),
		t.CreatedAt.UTC(), t.ExpiresAt.UTC(), t.AccessCount,
		t.LastAccessed, t.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *Store) AppendTokenAudit(ctx context.Context, e booking.TokenAuditEntry) error {
	return s.view().AppendTokenAudit(ctx, e)
}

func (ts *txStore) AppendTokenAudit(ctx context.Context, e booking.TokenAuditEntry) error {
	_, err := ts.q.Exec(ctx, `
		INSERT INTO token_audit
		(id, token_hash, student_id, teacher_id, outcome, client_ip, user_agent, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TokenHash, string(e.StudentID), string(e.TeacherID),
		e.Outcome, e.ClientIP, e.UserAgent, e.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to append token audit: %w", err)
	}
	return nil
}

// Helper functions

func nullStudent(id *booking.StudentID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullTemplate(id *booking.TemplateID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}
