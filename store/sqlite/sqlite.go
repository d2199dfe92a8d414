/*
Package sqlite provides a SQLite-backed implementation of the booking store.

PURPOSE:
  The default durable store for a single-teacher deployment. Implements
  booking.TxStore using one database file in WAL mode.

APPEND-ONLY ENFORCEMENT:
  The ledger and audit tables are append-only by construction:
  - No UPDATE statements on credit_transactions or token_audit
  - Corrections happen via refund/adjustment rows

COMPARE-AND-SWAP:
  UpdateSlot compiles the status check into the WHERE clause
  ("WHERE id = ? AND status = ?"). Zero rows affected means a concurrent
  writer changed the slot first; the caller gets ErrSlotConflict and the
  booking attempt fails cleanly instead of double-selling the slot.

TIMESTAMPS:
  All times are stored as RFC3339 TEXT in UTC. Lexicographic order equals
  chronological order, so range queries compare strings directly.

AMOUNTS:
  Hour balances are TEXT via decimal.Decimal.String(). REAL would
  reintroduce the float drift the ledger exists to prevent.

CONCURRENCY:
  A store-level mutex serializes writers on top of SQLite's own single
  writer. WithTx holds the mutex for the whole unit so the engine's
  invariants hold without SQLITE_BUSY retry loops.

USAGE:
  store, err := sqlite.New("./data/classlog.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - booking/store.go: interface definitions and the concurrency contract
  - store/memory: in-memory implementation for tests
  - store/postgres: multi-process deployment
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/makersapien/classlog-sub002/booking"
)

// Store implements booking.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Credit accounts: one per (student, teacher) pair
	CREATE TABLE IF NOT EXISTS credit_accounts (
		id              TEXT PRIMARY KEY,
		student_id      TEXT NOT NULL,
		teacher_id      TEXT NOT NULL,
		balance_hours   TEXT NOT NULL,
		total_purchased TEXT NOT NULL,
		total_used      TEXT NOT NULL,
		rate_per_hour   TEXT NOT NULL,
		is_active       BOOLEAN NOT NULL,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		UNIQUE(student_id, teacher_id)
	);

	-- Credit transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS credit_transactions (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		id             TEXT NOT NULL UNIQUE,
		account_id     TEXT NOT NULL REFERENCES credit_accounts(id),
		type           TEXT NOT NULL,
		hours_amount   TEXT NOT NULL,
		balance_after  TEXT NOT NULL,
		description    TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		reference_id   TEXT NOT NULL,
		performed_by   TEXT NOT NULL,
		created_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON credit_transactions(account_id, seq);

	-- Schedule slots
	CREATE TABLE IF NOT EXISTS schedule_slots (
		id           TEXT PRIMARY KEY,
		teacher_id   TEXT NOT NULL,
		start_time   TEXT NOT NULL,
		end_time     TEXT NOT NULL,
		status       TEXT NOT NULL,
		max_students INTEGER NOT NULL,
		booked_by    TEXT,
		template_id  TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	-- Availability and open-slot listings (hot path)
	CREATE INDEX IF NOT EXISTS idx_slots_teacher_start
		ON schedule_slots(teacher_id, start_time);

	-- No-show sweep scans by (status, end_time)
	CREATE INDEX IF NOT EXISTS idx_slots_status_end
		ON schedule_slots(status, end_time);

	-- Bookings (history survives slot re-listing)
	CREATE TABLE IF NOT EXISTS bookings (
		id           TEXT PRIMARY KEY,
		slot_id      TEXT NOT NULL,
		student_id   TEXT NOT NULL,
		teacher_id   TEXT NOT NULL,
		status       TEXT NOT NULL,
		notes        TEXT NOT NULL DEFAULT '',
		booked_at    TEXT NOT NULL,
		cancelled_at TEXT,
		cancelled_by TEXT NOT NULL DEFAULT '',
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_slot
		ON bookings(slot_id, status);
	CREATE INDEX IF NOT EXISTS idx_bookings_student
		ON bookings(student_id);

	-- Recurring availability templates
	CREATE TABLE IF NOT EXISTS slot_templates (
		id               TEXT PRIMARY KEY,
		teacher_id       TEXT NOT NULL,
		day_of_week      INTEGER NOT NULL,
		start_hour       INTEGER NOT NULL,
		start_minute     INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		max_students     INTEGER NOT NULL,
		is_recurring     BOOLEAN NOT NULL,
		created_at       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_teacher
		ON slot_templates(teacher_id);

	-- Waitlist entries, keyed by slot pattern
	CREATE TABLE IF NOT EXISTS waitlist_entries (
		id          TEXT PRIMARY KEY,
		pattern_key TEXT NOT NULL,
		teacher_id  TEXT NOT NULL,
		weekday     INTEGER NOT NULL,
		start_hour  INTEGER NOT NULL,
		start_min   INTEGER NOT NULL,
		student_id  TEXT NOT NULL,
		priority    INTEGER NOT NULL,
		position    INTEGER NOT NULL,
		status      TEXT NOT NULL,
		auto_book   BOOLEAN NOT NULL,
		joined_at   TEXT NOT NULL,
		notified_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_waitlist_pattern
		ON waitlist_entries(pattern_key, status);
	CREATE INDEX IF NOT EXISTS idx_waitlist_status
		ON waitlist_entries(status);

	-- Share tokens
	CREATE TABLE IF NOT EXISTS share_tokens (
		id            TEXT PRIMARY KEY,
		token         TEXT NOT NULL UNIQUE,
		student_id    TEXT NOT NULL,
		teacher_id    TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		expires_at    TEXT NOT NULL,
		access_count  INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT,
		is_active     BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_pair
		ON share_tokens(student_id, teacher_id, is_active);

	-- Token audit trail (append-only, keyed by token hash)
	CREATE TABLE IF NOT EXISTS token_audit (
		id         TEXT PRIMARY KEY,
		token_hash TEXT NOT NULL,
		student_id TEXT NOT NULL DEFAULT '',
		teacher_id TEXT NOT NULL DEFAULT '',
		outcome    TEXT NOT NULL,
		client_ip  TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		at         TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_token_audit_hash
		ON token_audit(token_hash);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query below can
// run inside or outside an explicit transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface{ Scan(dest ...any) error }

// =============================================================================
// TRANSACTIONAL STORE (booking.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the Store view handed to WithTx callbacks. The same struct
// backs the plain (non-transactional) methods with q = *sql.DB.
type txStore struct {
	q      dbtx
	parent *Store
}

func (s *Store) view() *txStore { return &txStore{q: s.db, parent: s} }

// =============================================================================
// ACCOUNT + LEDGER STORE
// =============================================================================

const accountCols = `id, student_id, teacher_id, balance_hours, total_purchased, total_used, rate_per_hour, is_active, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id booking.AccountID) (*booking.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetAccount(ctx, id)
}

func (ts *txStore) GetAccount(ctx context.Context, id booking.AccountID) (*booking.CreditAccount, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM credit_accounts WHERE id = ?`, string(id))
	return scanAccount(row)
}

func (s *Store) GetAccountByPair(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetAccountByPair(ctx, student, teacher)
}

func (ts *txStore) GetAccountByPair(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.CreditAccount, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM credit_accounts WHERE student_id = ? AND teacher_id = ?`,
		string(student), string(teacher))
	return scanAccount(row)
}

func scanAccount(row rowScanner) (*booking.CreditAccount, error) {
	var a booking.CreditAccount
	var balance, purchased, used, rate, createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.StudentID, &a.TeacherID, &balance, &purchased,
		&used, &rate, &a.IsActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if a.BalanceHours, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance_hours: %w", err)
	}
	if a.TotalPurchased, err = decimal.NewFromString(purchased); err != nil {
		return nil, fmt.Errorf("invalid total_purchased: %w", err)
	}
	if a.TotalUsed, err = decimal.NewFromString(used); err != nil {
		return nil, fmt.Errorf("invalid total_used: %w", err)
	}
	if a.RatePerHour, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("invalid rate_per_hour: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

func (s *Store) SaveAccount(ctx context.Context, a *booking.CreditAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveAccount(ctx, a)
}

func (ts *txStore) SaveAccount(ctx context.Context, a *booking.CreditAccount) error {
	query := `
		INSERT INTO credit_accounts (` + accountCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance_hours = excluded.balance_hours,
			total_purchased = excluded.total_purchased,
			total_used = excluded.total_used,
			rate_per_hour = excluded.rate_per_hour,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(a.ID), string(a.StudentID), string(a.TeacherID),
		a.BalanceHours.String(), a.TotalPurchased.String(), a.TotalUsed.String(),
		a.RatePerHour.String(), a.IsActive,
		a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) AppendLedger(ctx context.Context, tx booking.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendLedger(ctx, tx)
}

func (ts *txStore) AppendLedger(ctx context.Context, tx booking.CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions
		(id, account_id, type, hours_amount, balance_after, description,
		 reference_type, reference_id, performed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(tx.ID), string(tx.AccountID), string(tx.Type),
		tx.HoursAmount.String(), tx.BalanceAfter.String(), tx.Description,
		string(tx.ReferenceType), tx.ReferenceID, tx.PerformedBy,
		tx.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) LedgerEntries(ctx context.Context, id booking.AccountID) ([]booking.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().LedgerEntries(ctx, id)
}

func (ts *txStore) LedgerEntries(ctx context.Context, id booking.AccountID) ([]booking.CreditTransaction, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT id, account_id, type, hours_amount, balance_after, description,
		       reference_type, reference_id, performed_by, created_at
		FROM credit_transactions
		WHERE account_id = ?
		ORDER BY seq ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []booking.CreditTransaction
	for rows.Next() {
		var tx booking.CreditTransaction
		var hours, after, createdAt string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &hours, &after,
			&tx.Description, &tx.ReferenceType, &tx.ReferenceID,
			&tx.PerformedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if tx.HoursAmount, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("invalid hours_amount: %w", err)
		}
		if tx.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("invalid balance_after: %w", err)
		}
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// SLOT STORE
// =============================================================================

const slotCols = `id, teacher_id, start_time, end_time, status, max_students, booked_by, template_id, created_at, updated_at`

func (s *Store) GetSlot(ctx context.Context, id booking.SlotID) (*booking.ScheduleSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetSlot(ctx, id)
}

func (ts *txStore) GetSlot(ctx context.Context, id booking.SlotID) (*booking.ScheduleSlot, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+slotCols+` FROM schedule_slots WHERE id = ?`, string(id))
	slot, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrSlotNotFound
	}
	return slot, err
}

func scanSlot(row rowScanner) (*booking.ScheduleSlot, error) {
	var slot booking.ScheduleSlot
	var start, end, createdAt, updatedAt string
	var bookedBy, templateID sql.NullString

	err := row.Scan(&slot.ID, &slot.TeacherID, &start, &end, &slot.Status,
		&slot.MaxStudents, &bookedBy, &templateID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	slot.StartTime, _ = time.Parse(time.RFC3339, start)
	slot.EndTime, _ = time.Parse(time.RFC3339, end)
	slot.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	slot.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if bookedBy.Valid {
		id := booking.StudentID(bookedBy.String)
		slot.BookedBy = &id
	}
	if templateID.Valid {
		id := booking.TemplateID(templateID.String)
		slot.TemplateID = &id
	}
	return &slot, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot *booking.ScheduleSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateSlot(ctx, slot)
}

func (ts *txStore) CreateSlot(ctx context.Context, slot *booking.ScheduleSlot) error {
	query := `
		INSERT INTO schedule_slots (` + slotCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(slot.ID), string(slot.TeacherID),
		slot.StartTime.UTC().Format(time.RFC3339), slot.EndTime.UTC().Format(time.RFC3339),
		string(slot.Status), slot.MaxStudents,
		nullStudent(slot.BookedBy), nullTemplate(slot.TemplateID),
		slot.CreatedAt.UTC().Format(time.RFC3339), slot.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (s *Store) UpdateSlot(ctx context.Context, slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateSlot(ctx, slot, expect)
}

// UpdateSlot writes only if the stored status still equals expect.
// Zero rows affected means a concurrent writer got there first.
func (ts *txStore) UpdateSlot(ctx context.Context, slot *booking.ScheduleSlot, expect booking.SlotStatus) error {
	res, err := ts.q.ExecContext(ctx, `
		UPDATE schedule_slots
		SET status = ?, max_students = ?, booked_by = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(slot.Status), slot.MaxStudents, nullStudent(slot.BookedBy),
		slot.UpdatedAt.UTC().Format(time.RFC3339),
		string(slot.ID), string(expect))
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if n == 0 {
		// Distinguish a missing slot from a lost race.
		if _, err := ts.GetSlot(ctx, slot.ID); err != nil {
			return err
		}
		return booking.ErrSlotConflict
	}
	return nil
}

func (s *Store) DeleteSlot(ctx context.Context, id booking.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteSlot(ctx, id)
}

func (ts *txStore) DeleteSlot(ctx context.Context, id booking.SlotID) error {
	res, err := ts.q.ExecContext(ctx,
		`DELETE FROM schedule_slots WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrSlotNotFound
	}
	return nil
}

func (s *Store) ListSlotsByTeacher(ctx context.Context, teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListSlotsByTeacher(ctx, teacher, from, to)
}

func (ts *txStore) ListSlotsByTeacher(ctx context.Context, teacher booking.TeacherID, from, to time.Time) ([]booking.ScheduleSlot, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+slotCols+` FROM schedule_slots
		WHERE teacher_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time ASC`,
		string(teacher), from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	return collectSlots(rows)
}

func (s *Store) ListSlotsByStatus(ctx context.Context, status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListSlotsByStatus(ctx, status, endedBefore)
}

func (ts *txStore) ListSlotsByStatus(ctx context.Context, status booking.SlotStatus, endedBefore time.Time) ([]booking.ScheduleSlot, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+slotCols+` FROM schedule_slots
		WHERE status = ? AND end_time < ?
		ORDER BY start_time ASC`,
		string(status), endedBefore.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	return collectSlots(rows)
}

func collectSlots(rows *sql.Rows) ([]booking.ScheduleSlot, error) {
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().CountActiveBookings(ctx, slot)
}

func (ts *txStore) CountActiveBookings(ctx context.Context, slot booking.SlotID) (int, error) {
	var count int
	err := ts.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE slot_id = ? AND status = ?`,
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetBooking(ctx, id)
}

func (ts *txStore) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id = ?`, string(id))
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrBookingNotFound
	}
	return b, err
}

func scanBooking(row rowScanner) (*booking.Booking, error) {
	var b booking.Booking
	var bookedAt string
	var cancelledAt, completedAt sql.NullString

	err := row.Scan(&b.ID, &b.SlotID, &b.StudentID, &b.TeacherID, &b.Status,
		&b.Notes, &bookedAt, &cancelledAt, &b.CancelledBy, &completedAt)
	if err != nil {
		return nil, err
	}

	b.BookedAt, _ = time.Parse(time.RFC3339, bookedAt)
	if cancelledAt.Valid {
		t, _ := time.Parse(time.RFC3339, cancelledAt.String)
		b.CancelledAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		b.CompletedAt = &t
	}
	return &b, nil
}

func (s *Store) SaveBooking(ctx context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveBooking(ctx, b)
}

func (ts *txStore) SaveBooking(ctx context.Context, b *booking.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			notes = excluded.notes,
			cancelled_at = excluded.cancelled_at,
			cancelled_by = excluded.cancelled_by,
			completed_at = excluded.completed_at
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(b.ID), string(b.SlotID), string(b.StudentID), string(b.TeacherID),
		string(b.Status), b.Notes, b.BookedAt.UTC().Format(time.RFC3339),
		nullTime(b.CancelledAt), b.CancelledBy, nullTime(b.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

func (s *Store) ListBookingsByStudent(ctx context.Context, student booking.StudentID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListBookingsByStudent(ctx, student)
}

func (ts *txStore) ListBookingsByStudent(ctx context.Context, student booking.StudentID) ([]booking.Booking, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE student_id = ? ORDER BY booked_at ASC`, string(student))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return collectBookings(rows)
}

func (s *Store) ListBookingsBySlot(ctx context.Context, slot booking.SlotID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListBookingsBySlot(ctx, slot)
}

func (ts *txStore) ListBookingsBySlot(ctx context.Context, slot booking.SlotID) ([]booking.Booking, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE slot_id = ? ORDER BY booked_at ASC`, string(slot))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]booking.Booking, error) {
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTemplate(ctx, id)
}

func (ts *txStore) GetTemplate(ctx context.Context, id booking.TemplateID) (*booking.TimeSlotTemplate, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+templateCols+` FROM slot_templates WHERE id = ?`, string(id))
	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrTemplateNotFound
	}
	return tmpl, err
}

func scanTemplate(row rowScanner) (*booking.TimeSlotTemplate, error) {
	var t booking.TimeSlotTemplate
	var dow int
	var createdAt string

	err := row.Scan(&t.ID, &t.TeacherID, &dow, &t.StartHour, &t.StartMinute,
		&t.DurationMinutes, &t.MaxStudents, &t.IsRecurring, &createdAt)
	if err != nil {
		return nil, err
	}
	t.DayOfWeek = time.Weekday(dow)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func (s *Store) SaveTemplate(ctx context.Context, t *booking.TimeSlotTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveTemplate(ctx, t)
}

func (ts *txStore) SaveTemplate(ctx context.Context, t *booking.TimeSlotTemplate) error {
	query := `
		INSERT INTO slot_templates (` + templateCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			day_of_week = excluded.day_of_week,
			start_hour = excluded.start_hour,
			start_minute = excluded.start_minute,
			duration_minutes = excluded.duration_minutes,
			max_students = excluded.max_students,
			is_recurring = excluded.is_recurring
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(t.ID), string(t.TeacherID), int(t.DayOfWeek),
		t.StartHour, t.StartMinute, t.DurationMinutes, t.MaxStudents,
		t.IsRecurring, t.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id booking.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteTemplate(ctx, id)
}

func (ts *txStore) DeleteTemplate(ctx context.Context, id booking.TemplateID) error {
	res, err := ts.q.ExecContext(ctx,
		`DELETE FROM slot_templates WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrTemplateNotFound
	}
	return nil
}

func (s *Store) ListTemplates(ctx context.Context, teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListTemplates(ctx, teacher)
}

func (ts *txStore) ListTemplates(ctx context.Context, teacher booking.TeacherID) ([]booking.TimeSlotTemplate, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+templateCols+` FROM slot_templates
		WHERE teacher_id = ? ORDER BY created_at ASC`, string(teacher))
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	return collectTemplates(rows)
}

func (s *Store) ListRecurringTemplates(ctx context.Context) ([]booking.TimeSlotTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListRecurringTemplates(ctx)
}

func (ts *txStore) ListRecurringTemplates(ctx context.Context) ([]booking.TimeSlotTemplate, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+templateCols+` FROM slot_templates
		WHERE is_recurring = TRUE ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	return collectTemplates(rows)
}

func collectTemplates(rows *sql.Rows) ([]booking.TimeSlotTemplate, error) {
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetEntry(ctx, id)
}

func (ts *txStore) GetEntry(ctx context.Context, id booking.EntryID) (*booking.WaitlistEntry, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM waitlist_entries WHERE id = ?`, string(id))
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrEntryNotFound
	}
	return e, err
}

func scanEntry(row rowScanner) (*booking.WaitlistEntry, error) {
	var e booking.WaitlistEntry
	var key, joinedAt string
	var weekday int
	var notifiedAt sql.NullString

	err := row.Scan(&e.ID, &key, &e.Pattern.TeacherID, &weekday,
		&e.Pattern.StartHour, &e.Pattern.StartMin, &e.StudentID,
		&e.Priority, &e.Position, &e.Status, &e.AutoBook, &joinedAt, &notifiedAt)
	if err != nil {
		return nil, err
	}

	e.Pattern.Weekday = time.Weekday(weekday)
	e.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt)
	if notifiedAt.Valid {
		t, _ := time.Parse(time.RFC3339, notifiedAt.String)
		e.NotifiedAt = &t
	}
	return &e, nil
}

func (s *Store) SaveEntry(ctx context.Context, e *booking.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveEntry(ctx, e)
}

func (ts *txStore) SaveEntry(ctx context.Context, e *booking.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (` + entryCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			priority = excluded.priority,
			position = excluded.position,
			status = excluded.status,
			auto_book = excluded.auto_book,
			joined_at = excluded.joined_at,
			notified_at = excluded.notified_at
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(e.ID), e.Pattern.Key(), string(e.Pattern.TeacherID),
		int(e.Pattern.Weekday), e.Pattern.StartHour, e.Pattern.StartMin,
		string(e.StudentID), e.Priority, e.Position, string(e.Status),
		e.AutoBook, e.JoinedAt.UTC().Format(time.RFC3339), nullTime(e.NotifiedAt))
	if err != nil {
		return fmt.Errorf("failed to save waitlist entry: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListEntries(ctx, patternKey, statuses...)
}

func (ts *txStore) ListEntries(ctx context.Context, patternKey string, statuses ...booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	query := `SELECT ` + entryCols + ` FROM waitlist_entries WHERE pattern_key = ?`
	args := []any{patternKey}
	if len(statuses) > 0 {
		query += ` AND status IN (?`
		args = append(args, string(statuses[0]))
		for _, st := range statuses[1:] {
			query += `, ?`
			args = append(args, string(st))
		}
		query += `)`
	}
	query += ` ORDER BY priority DESC, joined_at ASC`

	rows, err := ts.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *Store) ListEntriesByStatus(ctx context.Context, status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListEntriesByStatus(ctx, status)
}

func (ts *txStore) ListEntriesByStatus(ctx context.Context, status booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	rows, err := ts.q.QueryContext(ctx, `
		SELECT `+entryCols+` FROM waitlist_entries
		WHERE status = ? ORDER BY joined_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist entries: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]booking.WaitlistEntry, error) {
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTokenByValue(ctx, token)
}

func (ts *txStore) GetTokenByValue(ctx context.Context, token string) (*booking.ShareToken, error) {
	row := ts.q.QueryRowContext(ctx,
		`SELECT `+tokenCols+` FROM share_tokens WHERE token = ?`, token)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrInvalidToken
	}
	return t, err
}

func (s *Store) GetActiveToken(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetActiveToken(ctx, student, teacher)
}

func (ts *txStore) GetActiveToken(ctx context.Context, student booking.StudentID, teacher booking.TeacherID) (*booking.ShareToken, error) {
	row := ts.q.QueryRowContext(ctx, `
		SELECT `+tokenCols+` FROM share_tokens
		WHERE student_id = ? AND teacher_id = ? AND is_active = TRUE
		ORDER BY created_at DESC LIMIT 1`,
		string(student), string(teacher))
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrInvalidToken
	}
	return t, err
}

func scanToken(row rowScanner) (*booking.ShareToken, error) {
	var t booking.ShareToken
	var createdAt, expiresAt string
	var lastAccessed sql.NullString

	err := row.Scan(&t.ID, &t.Token, &t.StudentID, &t.TeacherID,
		&createdAt, &expiresAt, &t.AccessCount, &lastAccessed, &t.IsActive)
	if err != nil {
		return nil, err
	}

	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	if lastAccessed.Valid {
		ts, _ := time.Parse(time.RFC3339, lastAccessed.String)
		t.LastAccessed = &ts
	}
	return &t, nil
}

func (s *Store) SaveToken(ctx context.Context, t *booking.ShareToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveToken(ctx, t)
}

func (ts *txStore) SaveToken(ctx context.Context, t *booking.ShareToken) error {
	query := `
		INSERT INTO share_tokens (` + tokenCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed,
			is_active = excluded.is_active
	`
	_, err := ts.q.ExecContext(ctx, query,
		string(t.ID), t.Token, string(t.StudentID), string(t.TeacherID),
		t.CreatedAt.UTC().Format(time.RFC3339), t.ExpiresAt.UTC().Format(time.RFC3339),
		t.AccessCount, nullTime(t.LastAccessed), t.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *Store) AppendTokenAudit(ctx context.Context, e booking.TokenAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendTokenAudit(ctx, e)
}

func (ts *txStore) AppendTokenAudit(ctx context.Context, e booking.TokenAuditEntry) error {
	query := `
		INSERT INTO token_audit
		(id, token_hash, student_id, teacher_id, outcome, client_ip, user_agent, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ts.q.ExecContext(ctx, query,
		e.ID, e.TokenHash, string(e.StudentID), string(e.TeacherID),
		e.Outcome, e.ClientIP, e.UserAgent, e.At.UTC().Format(time.RFC3339))
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

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
