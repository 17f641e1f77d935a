/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements finance.Store and finance.TxStore using SQLite, plus the
  student/payment/obligation records the HTTP surface needs. In production
  the same patterns apply to PostgreSQL - only minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  The allocations table is append-only:
  - No UPDATE statements on allocations
  - No DELETE statements on allocations
  - UNIQUE(payment_id, allocation_order) keeps order values contiguous
    and collision-free

KEY TABLES:
  students:          Entity records per tenant
  payments:          Immutable incoming payments (owned by the capture flow)
  fee_obligations:   What each student owes per fee and year
  installments:      Ordering/display hints for tuition obligations
  payment_summaries: Derived aggregate per obligation
  arrears:           Inter-year balances, UNIQUE(student, from_year, to_year)
  allocations:       Immutable audit trail of payment application

AMOUNTS:
  All money columns are TEXT holding decimal strings. They are parsed back
  through finance.MustParseMoney - never through floating point.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; the engine additionally serializes
  allocation runs per student. SQLite is opened in WAL mode.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := finance.NewEngine(store)

SEE ALSO:
  - finance/store.go: Interface definitions
  - finance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edufin/finance-engine/finance"
)

// Store implements finance.TxStore plus the record stores the API uses.
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	-- Payments are captured outside the engine; stored here for the API
	-- and the receipt flow. Immutable.
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		academic_year_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		received_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(tenant_id, student_id, academic_year_id);

	CREATE TABLE IF NOT EXISTS fee_obligations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		academic_year_id TEXT NOT NULL,
		category TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'NOT_STARTED',
		created_at TEXT NOT NULL
	);

	-- Catalog order for a student's year (hot path for allocation reads)
	CREATE INDEX IF NOT EXISTS idx_obligations_student_year
		ON fee_obligations(tenant_id, student_id, academic_year_id, created_at);

	CREATE TABLE IF NOT EXISTS installments (
		fee_obligation_id TEXT NOT NULL,
		label TEXT NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		PRIMARY KEY (fee_obligation_id, order_index)
	);

	CREATE TABLE IF NOT EXISTS payment_summaries (
		fee_obligation_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		expected_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		last_payment_date TEXT
	);

	-- One arrear per (student, fromYear, toYear); generation is idempotent
	CREATE TABLE IF NOT EXISTS arrears (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		from_year TEXT NOT NULL,
		to_year TEXT NOT NULL,
		amount_due TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		balance_due TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_arrears_unique
		ON arrears(tenant_id, student_id, from_year, to_year);
	CREATE INDEX IF NOT EXISTS idx_arrears_student
		ON arrears(tenant_id, student_id, from_year);

	-- Allocations (append-only audit trail)
	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		allocation_order INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: order values for one payment never collide
	CREATE UNIQUE INDEX IF NOT EXISTS idx_allocations_payment_order
		ON allocations(payment_id, allocation_order);
	CREATE INDEX IF NOT EXISTS idx_allocations_target
		ON allocations(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same queries serve
// direct calls and calls inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// FINANCE STORE (finance.Store interface)
// =============================================================================

func (s *Store) StudentExists(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return studentExists(ctx, s.db, tenantID, studentID)
}

func studentExists(ctx context.Context, db dbtx, tenantID finance.TenantID, studentID finance.StudentID) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students WHERE tenant_id = ? AND id = ?",
		tenantID, studentID,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) ArrearsByStudent(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID) ([]finance.Arrear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return arrearsByStudent(ctx, s.db, tenantID, studentID)
}

func arrearsByStudent(ctx context.Context, db dbtx, tenantID finance.TenantID, studentID finance.StudentID) ([]finance.Arrear, error) {
	query := `
		SELECT id, tenant_id, student_id, from_year, to_year,
		       amount_due, amount_paid, balance_due, status, created_at
		FROM arrears
		WHERE tenant_id = ? AND student_id = ?
		ORDER BY from_year ASC, created_at ASC
	`
	rows, err := db.QueryContext(ctx, query, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query arrears: %w", err)
	}
	defer rows.Close()

	var arrears []finance.Arrear
	for rows.Next() {
		a, err := scanArrear(rows)
		if err != nil {
			return nil, err
		}
		arrears = append(arrears, a)
	}
	return arrears, rows.Err()
}

func scanArrear(rows *sql.Rows) (finance.Arrear, error) {
	var (
		a                             finance.Arrear
		due, paid, balance, createdAt string
	)
	err := rows.Scan(&a.ID, &a.TenantID, &a.StudentID, &a.FromYear, &a.ToYear,
		&due, &paid, &balance, &a.Status, &createdAt)
	if err != nil {
		return a, fmt.Errorf("failed to scan arrear: %w", err)
	}
	a.AmountDue = finance.MustParseMoney(due)
	a.AmountPaid = finance.MustParseMoney(paid)
	a.BalanceDue = finance.MustParseMoney(balance)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

func (s *Store) ArrearExists(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID, fromYear, toYear finance.AcademicYearID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return arrearExists(ctx, s.db, tenantID, studentID, fromYear, toYear)
}

func arrearExists(ctx context.Context, db dbtx, tenantID finance.TenantID, studentID finance.StudentID, fromYear, toYear finance.AcademicYearID) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM arrears WHERE tenant_id = ? AND student_id = ? AND from_year = ? AND to_year = ?",
		tenantID, studentID, fromYear, toYear,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) InsertArrear(ctx context.Context, a finance.Arrear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertArrear(ctx, s.db, a)
}

func insertArrear(ctx context.Context, db dbtx, a finance.Arrear) error {
	query := `
		INSERT INTO arrears
		(id, tenant_id, student_id, from_year, to_year, amount_due, amount_paid, balance_due, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.StudentID, a.FromYear, a.ToYear,
		a.AmountDue.String(), a.AmountPaid.String(), a.BalanceDue.String(),
		a.Status, a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert arrear: %w", err)
	}
	return nil
}

func (s *Store) UpdateArrear(ctx context.Context, a finance.Arrear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateArrear(ctx, s.db, a)
}

func updateArrear(ctx context.Context, db dbtx, a finance.Arrear) error {
	// Only the mutable fields; identity and amount_due never change.
	res, err := db.ExecContext(ctx,
		"UPDATE arrears SET amount_paid = ?, balance_due = ?, status = ? WHERE id = ?",
		a.AmountPaid.String(), a.BalanceDue.String(), a.Status, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update arrear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.ErrTargetNotFound
	}
	return nil
}

func (s *Store) ObligationsByStudent(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID, yearID finance.AcademicYearID) ([]finance.FeeObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return obligationsByStudent(ctx, s.db, tenantID, studentID, yearID)
}

func obligationsByStudent(ctx context.Context, db dbtx, tenantID finance.TenantID, studentID finance.StudentID, yearID finance.AcademicYearID) ([]finance.FeeObligation, error) {
	query := `
		SELECT o.id, o.tenant_id, o.student_id, o.academic_year_id, o.category,
		       o.total_amount, o.status, COALESCE(ps.paid_amount, '0')
		FROM fee_obligations o
		LEFT JOIN payment_summaries ps ON ps.fee_obligation_id = o.id
		WHERE o.tenant_id = ? AND o.student_id = ? AND o.academic_year_id = ?
		ORDER BY o.created_at ASC, o.id ASC
	`
	rows, err := db.QueryContext(ctx, query, tenantID, studentID, yearID)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var obligations []finance.FeeObligation
	for rows.Next() {
		var (
			f           finance.FeeObligation
			total, paid string
			category    string
		)
		if err := rows.Scan(&f.ID, &f.TenantID, &f.StudentID, &f.AcademicYearID,
			&category, &total, &f.Status, &paid); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		f.Category = finance.ParseFeeCategory(category)
		f.TotalAmount = finance.MustParseMoney(total)
		f.Paid = finance.MustParseMoney(paid)
		obligations = append(obligations, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range obligations {
		installments, err := installmentsFor(ctx, db, obligations[i].ID)
		if err != nil {
			return nil, err
		}
		obligations[i].Installments = installments
	}
	return obligations, nil
}

func installmentsFor(ctx context.Context, db dbtx, id finance.FeeObligationID) ([]finance.Installment, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT label, amount, due_date, order_index FROM installments WHERE fee_obligation_id = ? ORDER BY order_index ASC",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var installments []finance.Installment
	for rows.Next() {
		var (
			inst            finance.Installment
			amount, dueDate string
		)
		if err := rows.Scan(&inst.Label, &amount, &dueDate, &inst.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		inst.Amount = finance.MustParseMoney(amount)
		inst.DueDate, _ = time.Parse(time.RFC3339, dueDate)
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

func (s *Store) UpsertPaymentSummary(ctx context.Context, sum finance.PaymentSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertPaymentSummary(ctx, s.db, sum)
}

func upsertPaymentSummary(ctx context.Context, db dbtx, sum finance.PaymentSummary) error {
	query := `
		INSERT INTO payment_summaries (fee_obligation_id, tenant_id, expected_amount, paid_amount, balance, last_payment_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fee_obligation_id) DO UPDATE SET
			expected_amount = excluded.expected_amount,
			paid_amount = excluded.paid_amount,
			balance = excluded.balance,
			last_payment_date = excluded.last_payment_date
	`
	var lastPayment *string
	if sum.LastPaymentDate != nil {
		t := sum.LastPaymentDate.Format(time.RFC3339)
		lastPayment = &t
	}
	_, err := db.ExecContext(ctx, query,
		sum.FeeObligationID, sum.TenantID,
		sum.ExpectedAmount.String(), sum.PaidAmount.String(), sum.Balance.String(),
		lastPayment,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment summary: %w", err)
	}
	return nil
}

func (s *Store) UpdateObligationStatus(ctx context.Context, id finance.FeeObligationID, status finance.FeeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateObligationStatus(ctx, s.db, id, status)
}

func updateObligationStatus(ctx context.Context, db dbtx, id finance.FeeObligationID, status finance.FeeStatus) error {
	res, err := db.ExecContext(ctx,
		"UPDATE fee_obligations SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update obligation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.ErrTargetNotFound
	}
	return nil
}

func (s *Store) OutstandingByYear(ctx context.Context, tenantID finance.TenantID, yearID finance.AcademicYearID) ([]finance.StudentOutstanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return outstandingByYear(ctx, s.db, tenantID, yearID)
}

func outstandingByYear(ctx context.Context, db dbtx, tenantID finance.TenantID, yearID finance.AcademicYearID) ([]finance.StudentOutstanding, error) {
	// Amounts are decimal strings, so summation happens in Go, not SQL.
	query := `
		SELECT o.student_id, o.total_amount, COALESCE(ps.paid_amount, '0')
		FROM fee_obligations o
		LEFT JOIN payment_summaries ps ON ps.fee_obligation_id = o.id
		WHERE o.tenant_id = ? AND o.academic_year_id = ?
		ORDER BY o.student_id ASC
	`
	rows, err := db.QueryContext(ctx, query, tenantID, yearID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding balances: %w", err)
	}
	defer rows.Close()

	totals := make(map[finance.StudentID]finance.Money)
	var order []finance.StudentID
	for rows.Next() {
		var (
			studentID   finance.StudentID
			total, paid string
		)
		if err := rows.Scan(&studentID, &total, &paid); err != nil {
			return nil, err
		}
		balance := finance.MustParseMoney(total).Sub(finance.MustParseMoney(paid)).ClampZero()
		if _, seen := totals[studentID]; !seen {
			order = append(order, studentID)
		}
		totals[studentID] = totals[studentID].Add(balance)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Unpaid arrears carried into the closing year roll forward too.
	arrearRows, err := db.QueryContext(ctx,
		"SELECT student_id, balance_due FROM arrears WHERE tenant_id = ? AND to_year = ? ORDER BY student_id ASC",
		tenantID, yearID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query arrear balances: %w", err)
	}
	defer arrearRows.Close()
	for arrearRows.Next() {
		var (
			studentID finance.StudentID
			balance   string
		)
		if err := arrearRows.Scan(&studentID, &balance); err != nil {
			return nil, err
		}
		if _, seen := totals[studentID]; !seen {
			order = append(order, studentID)
		}
		totals[studentID] = totals[studentID].Add(finance.MustParseMoney(balance))
	}
	if err := arrearRows.Err(); err != nil {
		return nil, err
	}

	out := make([]finance.StudentOutstanding, 0, len(order))
	for _, id := range order {
		out = append(out, finance.StudentOutstanding{StudentID: id, Balance: totals[id]})
	}
	return out, nil
}

func (s *Store) AppendAllocation(ctx context.Context, a finance.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAllocation(ctx, s.db, a)
}

func appendAllocation(ctx context.Context, db dbtx, a finance.Allocation) error {
	query := `
		INSERT INTO allocations (id, payment_id, target_type, target_id, amount, allocation_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		a.ID, a.PaymentID, a.Target.Kind(), a.Target.TargetID(),
		a.Amount.String(), a.Order, a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrConcurrentModification
		}
		return fmt.Errorf("failed to append allocation: %w", err)
	}
	return nil
}

func (s *Store) AllocationsByPayment(ctx context.Context, paymentID finance.PaymentID) ([]finance.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allocationsByPayment(ctx, s.db, paymentID)
}

func allocationsByPayment(ctx context.Context, db dbtx, paymentID finance.PaymentID) ([]finance.Allocation, error) {
	query := `
		SELECT id, payment_id, target_type, target_id, amount, allocation_order, created_at
		FROM allocations
		WHERE payment_id = ?
		ORDER BY allocation_order ASC
	`
	rows, err := db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []finance.Allocation
	for rows.Next() {
		var (
			a                  finance.Allocation
			targetType, target string
			amount, createdAt  string
		)
		if err := rows.Scan(&a.ID, &a.PaymentID, &targetType, &target, &amount, &a.Order, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		switch finance.TargetType(targetType) {
		case finance.TargetArrear:
			a.Target = finance.ArrearTarget{ID: finance.ArrearID(target)}
		default:
			a.Target = finance.StudentFeeTarget{ID: finance.FeeObligationID(target)}
		}
		a.Amount = finance.MustParseMoney(amount)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (finance.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store finance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", finance.ErrConcurrentModification, err)
	}
	return nil
}

// txStore routes every Store call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) StudentExists(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID) (bool, error) {
	return studentExists(ctx, ts.tx, tenantID, studentID)
}

func (ts *txStore) ArrearsByStudent(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID) ([]finance.Arrear, error) {
	return arrearsByStudent(ctx, ts.tx, tenantID, studentID)
}

func (ts *txStore) ArrearExists(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID, fromYear, toYear finance.AcademicYearID) (bool, error) {
	return arrearExists(ctx, ts.tx, tenantID, studentID, fromYear, toYear)
}

func (ts *txStore) InsertArrear(ctx context.Context, a finance.Arrear) error {
	return insertArrear(ctx, ts.tx, a)
}

func (ts *txStore) UpdateArrear(ctx context.Context, a finance.Arrear) error {
	return updateArrear(ctx, ts.tx, a)
}

func (ts *txStore) ObligationsByStudent(ctx context.Context, tenantID finance.TenantID, studentID finance.StudentID, yearID finance.AcademicYearID) ([]finance.FeeObligation, error) {
	return obligationsByStudent(ctx, ts.tx, tenantID, studentID, yearID)
}

func (ts *txStore) UpsertPaymentSummary(ctx context.Context, sum finance.PaymentSummary) error {
	return upsertPaymentSummary(ctx, ts.tx, sum)
}

func (ts *txStore) UpdateObligationStatus(ctx context.Context, id finance.FeeObligationID, status finance.FeeStatus) error {
	return updateObligationStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) OutstandingByYear(ctx context.Context, tenantID finance.TenantID, yearID finance.AcademicYearID) ([]finance.StudentOutstanding, error) {
	return outstandingByYear(ctx, ts.tx, tenantID, yearID)
}

func (ts *txStore) AppendAllocation(ctx context.Context, a finance.Allocation) error {
	return appendAllocation(ctx, ts.tx, a)
}

func (ts *txStore) AllocationsByPayment(ctx context.Context, paymentID finance.PaymentID) ([]finance.Allocation, error) {
	return allocationsByPayment(ctx, ts.tx, paymentID)
}

// Compile-time check
var _ finance.TxStore = (*Store)(nil)

// =============================================================================
// STUDENT STORE
// =============================================================================

// Student represents a student record.
type Student struct {
	ID        finance.StudentID
	TenantID  finance.TenantID
	Name      string
	CreatedAt time.Time
}

// SaveStudent saves a student.
func (s *Store) SaveStudent(ctx context.Context, st Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO students (id, tenant_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query,
		st.ID, st.TenantID, st.Name,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

// SavePayment records an incoming payment. Immutable once written.
func (s *Store) SavePayment(ctx context.Context, p finance.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (id, tenant_id, student_id, academic_year_id, amount, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.StudentID, p.AcademicYearID,
		p.Amount.String(), p.ReceivedAt.Format(time.RFC3339),
	)
	if err != nil && isUniqueConstraintError(err) {
		return finance.ErrConcurrentModification
	}
	return err
}

// GetPayment retrieves a payment by ID. Returns nil when not found.
func (s *Store) GetPayment(ctx context.Context, id finance.PaymentID) (*finance.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p                  finance.Payment
		amount, receivedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, tenant_id, student_id, academic_year_id, amount, received_at FROM payments WHERE id = ?",
		id,
	).Scan(&p.ID, &p.TenantID, &p.StudentID, &p.AcademicYearID, &amount, &receivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Amount = finance.MustParseMoney(amount)
	p.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
	return &p, nil
}

// =============================================================================
// OBLIGATION STORE
// =============================================================================

// SaveObligation creates a fee obligation with its installments and an
// initial payment summary. Total amount is fixed after creation.
func (s *Store) SaveObligation(ctx context.Context, f finance.FeeObligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO fee_obligations (id, tenant_id, student_id, academic_year_id, category, total_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TenantID, f.StudentID, f.AcademicYearID, f.Category,
		f.TotalAmount.String(), finance.FeeNotStarted,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert obligation: %w", err)
	}

	for _, inst := range f.Installments {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO installments (fee_obligation_id, label, amount, due_date, order_index)
			VALUES (?, ?, ?, ?, ?)`,
			f.ID, inst.Label, inst.Amount.String(),
			inst.DueDate.Format(time.RFC3339), inst.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment: %w", err)
		}
	}

	err = upsertPaymentSummary(ctx, sqlTx, finance.PaymentSummary{
		FeeObligationID: f.ID,
		TenantID:        f.TenantID,
		ExpectedAmount:  f.TotalAmount,
		PaidAmount:      finance.Money{},
		Balance:         f.TotalAmount,
	})
	if err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
