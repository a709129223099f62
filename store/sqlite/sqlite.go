/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Persists coaches, sessions (templates and instances) and payments. In
  production the same patterns apply to PostgreSQL with minor dialect
  differences.

KEY TABLES:
  coaches:  Rate records
  sessions: Templates, instances and one-off sessions. Coaches and bookings
            are JSON columns: they are always read and written with their
            session.
  payments: One row per (session, coach)

CONSTRAINTS:
  - idx_sessions_occurrence: one instance per (template, date), surfaced as
    generic.ErrDuplicateOccurrence
  - UNIQUE(session_id, coach_id) on payments, surfaced as
    generic.ErrDuplicatePayment
  - version columns: updates carry "WHERE version = ?" so a stale write
    affects no row and returns generic.ErrConcurrentModification

ENCODING:
  Decimals are TEXT (exact). Times are UTC TEXT in a fixed-width layout so
  that string order is time order.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/coaching.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := coaching.NewService(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/generic"
)

// timeLayout is fixed width so TEXT comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

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

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS coaches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		hourly_rate TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		coaches_json TEXT NOT NULL DEFAULT '[]',
		recurrence_days INTEGER,
		recurrence_active INTEGER NOT NULL DEFAULT 0,
		template_id TEXT,
		occurrence_date TEXT,
		max_students INTEGER NOT NULL DEFAULT 1,
		students_json TEXT NOT NULL DEFAULT '[]',
		paid INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Expansion idempotence: one instance per template and date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_occurrence
		ON sessions(template_id, occurrence_date)
		WHERE template_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_sessions_start
		ON sessions(start_at, id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		coach_id TEXT NOT NULL,
		hours TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount_owed TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		paid_at TEXT,
		cancelled_at TEXT,
		version INTEGER NOT NULL,
		UNIQUE(session_id, coach_id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_coach
		ON payments(coach_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, name, description, start_at, end_at, coaches_json,
	recurrence_days, recurrence_active, template_id, occurrence_date,
	max_students, students_json, paid, version, created_at, updated_at`

func (s *Store) GetSession(ctx context.Context, id generic.SessionID) (*generic.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSession(ctx, s.db, id)
}

func (s *Store) SaveSession(ctx context.Context, sess *generic.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSession(ctx, s.db, sess)
}

func (s *Store) ListSessions(ctx context.Context, filter generic.SessionFilter) ([]*generic.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSessions(ctx, s.db, filter)
}

func (s *Store) DeleteSession(ctx context.Context, id generic.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSession(ctx, s.db, id)
}

func getSession(ctx context.Context, q querier, id generic.SessionID) (*generic.Session, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, generic.ErrSessionNotFound
	}
	return scanSession(rows)
}

func saveSession(ctx context.Context, q querier, sess *generic.Session) error {
	coachesJSON, err := json.Marshal(sess.Coaches)
	if err != nil {
		return fmt.Errorf("failed to encode coaches: %w", err)
	}
	studentsJSON, err := json.Marshal(toBookingRows(sess.Students))
	if err != nil {
		return fmt.Errorf("failed to encode students: %w", err)
	}

	var days sql.NullInt64
	active := false
	if sess.Recurrence != nil {
		days = sql.NullInt64{Int64: int64(sess.Recurrence.Days), Valid: true}
		active = sess.Recurrence.Active
	}

	args := []any{
		sess.Name,
		sess.Description,
		formatTime(sess.Window.Start),
		formatTime(sess.Window.End),
		string(coachesJSON),
		days,
		active,
		nullString(string(sess.TemplateID)),
		nullString(sess.OccurrenceDate),
		sess.MaxStudents,
		string(studentsJSON),
		sess.Paid,
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
	}

	if sess.Version == 0 {
		query := `
			INSERT INTO sessions
			(name, description, start_at, end_at, coaches_json, recurrence_days,
			 recurrence_active, template_id, occurrence_date, max_students,
			 students_json, paid, created_at, updated_at, id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := q.ExecContext(ctx, query, append(args, sess.ID)...); err != nil {
			if sess.OccurrenceKey() != "" && isConstraintError(err, "sessions.id") {
				// Instance ids derive from the occurrence key.
				return generic.ErrDuplicateOccurrence
			}
			return mapSessionError(err)
		}
		sess.Version = 1
		return nil
	}

	query := `
		UPDATE sessions SET
			name = ?, description = ?, start_at = ?, end_at = ?, coaches_json = ?,
			recurrence_days = ?, recurrence_active = ?, template_id = ?,
			occurrence_date = ?, max_students = ?, students_json = ?, paid = ?,
			created_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := q.ExecContext(ctx, query, append(args, sess.ID, sess.Version)...)
	if err != nil {
		return mapSessionError(err)
	}
	if err := checkVersioned(ctx, q, res, "sessions", string(sess.ID), generic.ErrSessionNotFound); err != nil {
		return err
	}
	sess.Version++
	return nil
}

func listSessions(ctx context.Context, q querier, filter generic.SessionFilter) ([]*generic.Session, error) {
	var (
		where []string
		args  []any
	)
	if filter.CoachID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(sessions.coaches_json) WHERE value = ?)")
		args = append(args, string(filter.CoachID))
	}
	if filter.TemplateID != "" {
		where = append(where, "template_id = ?")
		args = append(args, string(filter.TemplateID))
	}
	if filter.TemplatesOnly {
		where = append(where, "recurrence_days IS NOT NULL")
	}
	if !filter.From.IsZero() {
		where = append(where, "start_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, formatTime(filter.To))
	}

	query := "SELECT " + sessionColumns + " FROM sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_at ASC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*generic.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func deleteSession(ctx context.Context, q querier, id generic.SessionID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrSessionNotFound
	}
	return nil
}

func scanSession(rows *sql.Rows) (*generic.Session, error) {
	var (
		sess           generic.Session
		startAt, endAt string
		coachesJSON    string
		days           sql.NullInt64
		active         bool
		templateID     sql.NullString
		occurrenceDate sql.NullString
		studentsJSON   string
		createdAt      string
		updatedAt      string
	)

	err := rows.Scan(
		&sess.ID, &sess.Name, &sess.Description, &startAt, &endAt, &coachesJSON,
		&days, &active, &templateID, &occurrenceDate,
		&sess.MaxStudents, &studentsJSON, &sess.Paid, &sess.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if sess.Window.Start, err = parseTime(startAt); err != nil {
		return nil, fmt.Errorf("failed to scan session %s: %w", sess.ID, err)
	}
	if sess.Window.End, err = parseTime(endAt); err != nil {
		return nil, fmt.Errorf("failed to scan session %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(coachesJSON), &sess.Coaches); err != nil {
		return nil, fmt.Errorf("failed to decode coaches of %s: %w", sess.ID, err)
	}
	if days.Valid {
		sess.Recurrence = &generic.Recurrence{Days: generic.DaySet(days.Int64), Active: active}
	}
	sess.TemplateID = generic.SessionID(templateID.String)
	sess.OccurrenceDate = occurrenceDate.String

	var bookings []bookingRow
	if err := json.Unmarshal([]byte(studentsJSON), &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode students of %s: %w", sess.ID, err)
	}
	if sess.Students, err = fromBookingRows(bookings); err != nil {
		return nil, fmt.Errorf("failed to decode students of %s: %w", sess.ID, err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan session %s: %w", sess.ID, err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan session %s: %w", sess.ID, err)
	}

	return &sess, nil
}

// bookingRow is the students_json element.
type bookingRow struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	BookedAt string `json:"booked_at"`
}

func toBookingRows(bookings []generic.Booking) []bookingRow {
	rows := make([]bookingRow, len(bookings))
	for i, b := range bookings {
		rows[i] = bookingRow{Name: b.Name, Email: b.Email, BookedAt: formatTime(b.BookedAt)}
	}
	return rows
}

func fromBookingRows(rows []bookingRow) ([]generic.Booking, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	bookings := make([]generic.Booking, len(rows))
	for i, r := range rows {
		bookedAt, err := parseTime(r.BookedAt)
		if err != nil {
			return nil, err
		}
		bookings[i] = generic.Booking{Name: r.Name, Email: r.Email, BookedAt: bookedAt}
	}
	return bookings, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, session_id, coach_id, hours, rate, amount_owed, amount_paid,
	status, created_at, paid_at, cancelled_at, version`

func (s *Store) GetPayment(ctx context.Context, id generic.PaymentID) (*generic.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}

func (s *Store) SavePayment(ctx context.Context, p *generic.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePayment(ctx, s.db, p)
}

func (s *Store) ListPayments(ctx context.Context, filter generic.PaymentFilter) ([]*generic.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayments(ctx, s.db, filter)
}

func (s *Store) DeletePayment(ctx context.Context, id generic.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePayment(ctx, s.db, id)
}

func (s *Store) DeletePaymentsBySession(ctx context.Context, id generic.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePaymentsBySession(ctx, s.db, id)
}

func getPayment(ctx context.Context, q querier, id generic.PaymentID) (*generic.Payment, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, generic.ErrPaymentNotFound
	}
	return scanPayment(rows)
}

func savePayment(ctx context.Context, q querier, p *generic.Payment) error {
	args := []any{
		p.SessionID,
		p.CoachID,
		p.Hours.String(),
		p.Rate.String(),
		p.AmountOwed.String(),
		p.AmountPaid.String(),
		p.Status,
		formatTime(p.CreatedAt),
		nullTime(p.PaidAt),
		nullTime(p.CancelledAt),
	}

	if p.Version == 0 {
		query := `
			INSERT INTO payments
			(session_id, coach_id, hours, rate, amount_owed, amount_paid, status,
			 created_at, paid_at, cancelled_at, id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := q.ExecContext(ctx, query, append(args, p.ID)...); err != nil {
			return mapPaymentError(err)
		}
		p.Version = 1
		return nil
	}

	query := `
		UPDATE payments SET
			session_id = ?, coach_id = ?, hours = ?, rate = ?, amount_owed = ?,
			amount_paid = ?, status = ?, created_at = ?, paid_at = ?,
			cancelled_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := q.ExecContext(ctx, query, append(args, p.ID, p.Version)...)
	if err != nil {
		return mapPaymentError(err)
	}
	if err := checkVersioned(ctx, q, res, "payments", string(p.ID), generic.ErrPaymentNotFound); err != nil {
		return err
	}
	p.Version++
	return nil
}

func listPayments(ctx context.Context, q querier, filter generic.PaymentFilter) ([]*generic.Payment, error) {
	var (
		where []string
		args  []any
	)
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, string(filter.SessionID))
	}
	if filter.CoachID != "" {
		where = append(where, "coach_id = ?")
		args = append(args, string(filter.CoachID))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + paymentColumns + " FROM payments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*generic.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func deletePayment(ctx context.Context, q querier, id generic.PaymentID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrPaymentNotFound
	}
	return nil
}

func deletePaymentsBySession(ctx context.Context, q querier, id generic.SessionID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM payments WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete payments of %s: %w", id, err)
	}
	return nil
}

func scanPayment(rows *sql.Rows) (*generic.Payment, error) {
	var (
		p                       generic.Payment
		hours, rate, owed, paid string
		createdAt               string
		paidAt, cancelledAt     sql.NullString
	)

	err := rows.Scan(
		&p.ID, &p.SessionID, &p.CoachID, &hours, &rate, &owed, &paid,
		&p.Status, &createdAt, &paidAt, &cancelledAt, &p.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		col string
		raw string
	}{
		{&p.Hours, "hours", hours},
		{&p.Rate, "rate", rate},
		{&p.AmountOwed, "amount_owed", owed},
		{&p.AmountPaid, "amount_paid", paid},
	} {
		if *f.dst, err = parseDecimal(f.col, f.raw); err != nil {
			return nil, fmt.Errorf("failed to scan payment %s: %w", p.ID, err)
		}
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan payment %s: %w", p.ID, err)
	}
	if p.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, fmt.Errorf("failed to scan payment %s: %w", p.ID, err)
	}
	if p.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return nil, fmt.Errorf("failed to scan payment %s: %w", p.ID, err)
	}

	return &p, nil
}

// =============================================================================
// COACHES
// =============================================================================

func (s *Store) GetCoach(ctx context.Context, id generic.CoachID) (generic.Coach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCoach(ctx, s.db, id)
}

func (s *Store) ListCoaches(ctx context.Context) ([]generic.Coach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCoaches(ctx, s.db)
}

func (s *Store) SaveCoach(ctx context.Context, c generic.Coach) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCoach(ctx, s.db, c)
}

func getCoach(ctx context.Context, q querier, id generic.CoachID) (generic.Coach, error) {
	var (
		c    generic.Coach
		rate string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, hourly_rate FROM coaches WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Email, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Coach{}, generic.ErrCoachNotFound
	}
	if err != nil {
		return generic.Coach{}, fmt.Errorf("failed to query coach: %w", err)
	}
	if c.HourlyRate, err = parseDecimal("hourly_rate", rate); err != nil {
		return generic.Coach{}, fmt.Errorf("failed to scan coach %s: %w", c.ID, err)
	}
	return c, nil
}

func listCoaches(ctx context.Context, q querier) ([]generic.Coach, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, email, hourly_rate FROM coaches ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query coaches: %w", err)
	}
	defer rows.Close()

	var coaches []generic.Coach
	for rows.Next() {
		var (
			c    generic.Coach
			rate string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan coach: %w", err)
		}
		var err error
		if c.HourlyRate, err = parseDecimal("hourly_rate", rate); err != nil {
			return nil, fmt.Errorf("failed to scan coach %s: %w", c.ID, err)
		}
		coaches = append(coaches, c)
	}
	return coaches, rows.Err()
}

func saveCoach(ctx context.Context, q querier, c generic.Coach) error {
	query := `
		INSERT INTO coaches (id, name, email, hourly_rate)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hourly_rate = excluded.hourly_rate
	`
	if _, err := q.ExecContext(ctx, query, c.ID, c.Name, c.Email, c.HourlyRate.String()); err != nil {
		return fmt.Errorf("failed to save coach: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	ts := &txStore{tx: sqlTx}
	if err := fn(ts); err != nil {
		ts.rollbackVersions()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		ts.rollbackVersions()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every call on the open transaction. It takes no lock: WithTx
// already holds the writer lock.
type txStore struct {
	tx   *sql.Tx
	undo []func()
}

// rollbackVersions puts back the Version of every aggregate saved in the
// transaction, newest first.
func (ts *txStore) rollbackVersions() {
	for i := len(ts.undo) - 1; i >= 0; i-- {
		ts.undo[i]()
	}
	ts.undo = nil
}

func (ts *txStore) GetSession(ctx context.Context, id generic.SessionID) (*generic.Session, error) {
	return getSession(ctx, ts.tx, id)
}

func (ts *txStore) SaveSession(ctx context.Context, sess *generic.Session) error {
	version := sess.Version
	if err := saveSession(ctx, ts.tx, sess); err != nil {
		return err
	}
	ts.undo = append(ts.undo, func() { sess.Version = version })
	return nil
}

func (ts *txStore) ListSessions(ctx context.Context, filter generic.SessionFilter) ([]*generic.Session, error) {
	return listSessions(ctx, ts.tx, filter)
}

func (ts *txStore) DeleteSession(ctx context.Context, id generic.SessionID) error {
	return deleteSession(ctx, ts.tx, id)
}

func (ts *txStore) GetPayment(ctx context.Context, id generic.PaymentID) (*generic.Payment, error) {
	return getPayment(ctx, ts.tx, id)
}

func (ts *txStore) SavePayment(ctx context.Context, p *generic.Payment) error {
	version := p.Version
	if err := savePayment(ctx, ts.tx, p); err != nil {
		return err
	}
	ts.undo = append(ts.undo, func() { p.Version = version })
	return nil
}

func (ts *txStore) ListPayments(ctx context.Context, filter generic.PaymentFilter) ([]*generic.Payment, error) {
	return listPayments(ctx, ts.tx, filter)
}

func (ts *txStore) DeletePayment(ctx context.Context, id generic.PaymentID) error {
	return deletePayment(ctx, ts.tx, id)
}

func (ts *txStore) DeletePaymentsBySession(ctx context.Context, id generic.SessionID) error {
	return deletePaymentsBySession(ctx, ts.tx, id)
}

func (ts *txStore) GetCoach(ctx context.Context, id generic.CoachID) (generic.Coach, error) {
	return getCoach(ctx, ts.tx, id)
}

func (ts *txStore) ListCoaches(ctx context.Context) ([]generic.Coach, error) {
	return listCoaches(ctx, ts.tx)
}

func (ts *txStore) SaveCoach(ctx context.Context, c generic.Coach) error {
	return saveCoach(ctx, ts.tx, c)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes every row. Used by the demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payments", "sessions", "coaches"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

// checkVersioned turns a zero-row versioned UPDATE into NotFound or a
// concurrent modification.
func checkVersioned(ctx context.Context, q querier, res sql.Result, table, id string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return generic.ErrConcurrentModification
}

func mapSessionError(err error) error {
	if isConstraintError(err, "sessions.id") {
		return generic.ErrConcurrentModification
	}
	if isConstraintError(err, "sessions.template_id") {
		return generic.ErrDuplicateOccurrence
	}
	return fmt.Errorf("failed to save session: %w", err)
}

func mapPaymentError(err error) error {
	if isConstraintError(err, "payments.id") {
		return generic.ErrConcurrentModification
	}
	if isConstraintError(err, "payments.session_id") {
		return generic.ErrDuplicatePayment
	}
	return fmt.Errorf("failed to save payment: %w", err)
}

// isConstraintError reports a UNIQUE or PRIMARY KEY violation naming column.
func isConstraintError(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique &&
		sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return strings.Contains(sqliteErr.Error(), column)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return d, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
