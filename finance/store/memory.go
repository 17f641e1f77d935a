// Package store provides in-memory Store implementations for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/edufin/finance-engine/finance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.Mutex
	students    map[studentKey]bool
	arrears     map[finance.ArrearID]finance.Arrear
	obligations map[finance.FeeObligationID]finance.FeeObligation
	summaries   map[finance.FeeObligationID]finance.PaymentSummary
	allocations map[finance.PaymentID][]finance.Allocation
}

type studentKey struct {
	TenantID  finance.TenantID
	StudentID finance.StudentID
}

func NewMemory() *Memory {
	return &Memory{
		students:    make(map[studentKey]bool),
		arrears:     make(map[finance.ArrearID]finance.Arrear),
		obligations: make(map[finance.FeeObligationID]finance.FeeObligation),
		summaries:   make(map[finance.FeeObligationID]finance.PaymentSummary),
		allocations: make(map[finance.PaymentID][]finance.Allocation),
	}
}

// =============================================================================
// SEEDING - Test fixtures
// =============================================================================

func (m *Memory) AddStudent(tenantID finance.TenantID, studentID finance.StudentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[studentKey{tenantID, studentID}] = true
}

func (m *Memory) SeedObligation(f finance.FeeObligation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obligations[f.ID] = f
}

func (m *Memory) SeedArrear(a finance.Arrear) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrears[a.ID] = a
}

// Obligation returns the current state of one obligation (test assertions).
func (m *Memory) Obligation(id finance.FeeObligationID) (finance.FeeObligation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.obligations[id]
	return f, ok
}

// Arrear returns the current state of one arrear (test assertions).
func (m *Memory) Arrear(id finance.ArrearID) (finance.Arrear, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arrears[id]
	return a, ok
}

// Summary returns the payment summary for one obligation (test assertions).
func (m *Memory) Summary(id finance.FeeObligationID) (finance.PaymentSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	return s, ok
}

// =============================================================================
// STORE IMPLEMENTATION
// =============================================================================

func (m *Memory) StudentExists(_ context.Context, tenantID finance.TenantID, studentID finance.StudentID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.students[studentKey{tenantID, studentID}], nil
}

func (m *Memory) ArrearsByStudent(_ context.Context, tenantID finance.TenantID, studentID finance.StudentID) ([]finance.Arrear, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arrearsByStudentLocked(tenantID, studentID), nil
}

func (m *Memory) arrearsByStudentLocked(tenantID finance.TenantID, studentID finance.StudentID) []finance.Arrear {
	var out []finance.Arrear
	for _, a := range m.arrears {
		if a.TenantID == tenantID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	// Oldest academic-year gap first, creation order as tie-break.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FromYear != out[j].FromYear {
			return out[i].FromYear < out[j].FromYear
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) ArrearExists(_ context.Context, tenantID finance.TenantID, studentID finance.StudentID, fromYear, toYear finance.AcademicYearID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.arrears {
		if a.TenantID == tenantID && a.StudentID == studentID && a.FromYear == fromYear && a.ToYear == toYear {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) InsertArrear(_ context.Context, a finance.Arrear) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrears[a.ID] = a
	return nil
}

func (m *Memory) UpdateArrear(_ context.Context, a finance.Arrear) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.arrears[a.ID]
	if !ok {
		return finance.ErrTargetNotFound
	}
	// Only the mutable fields change.
	existing.AmountPaid = a.AmountPaid
	existing.BalanceDue = a.BalanceDue
	existing.Status = a.Status
	m.arrears[a.ID] = existing
	return nil
}

func (m *Memory) ObligationsByStudent(_ context.Context, tenantID finance.TenantID, studentID finance.StudentID, yearID finance.AcademicYearID) ([]finance.FeeObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []finance.FeeObligation
	for _, f := range m.obligations {
		if f.TenantID == tenantID && f.StudentID == studentID && f.AcademicYearID == yearID {
			out = append(out, f)
		}
	}
	// Catalog order: stable by obligation ID, maps have no order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertPaymentSummary(_ context.Context, s finance.PaymentSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.FeeObligationID] = s
	if f, ok := m.obligations[s.FeeObligationID]; ok {
		f.Paid = s.PaidAmount
		m.obligations[s.FeeObligationID] = f
	}
	return nil
}

func (m *Memory) UpdateObligationStatus(_ context.Context, id finance.FeeObligationID, status finance.FeeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.obligations[id]
	if !ok {
		return finance.ErrTargetNotFound
	}
	f.Status = status
	m.obligations[id] = f
	return nil
}

func (m *Memory) OutstandingByYear(_ context.Context, tenantID finance.TenantID, yearID finance.AcademicYearID) ([]finance.StudentOutstanding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := make(map[finance.StudentID]finance.Money)
	for _, f := range m.obligations {
		if f.TenantID == tenantID && f.AcademicYearID == yearID {
			totals[f.StudentID] = totals[f.StudentID].Add(f.Balance())
		}
	}
	for _, a := range m.arrears {
		if a.TenantID == tenantID && a.ToYear == yearID {
			totals[a.StudentID] = totals[a.StudentID].Add(a.BalanceDue)
		}
	}

	students := make([]finance.StudentID, 0, len(totals))
	for id := range totals {
		students = append(students, id)
	}
	sort.Slice(students, func(i, j int) bool { return students[i] < students[j] })

	out := make([]finance.StudentOutstanding, 0, len(students))
	for _, id := range students {
		out = append(out, finance.StudentOutstanding{StudentID: id, Balance: totals[id]})
	}
	return out, nil
}

func (m *Memory) AppendAllocation(_ context.Context, a finance.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations[a.PaymentID] = append(m.allocations[a.PaymentID], a)
	return nil
}

func (m *Memory) AllocationsByPayment(_ context.Context, paymentID finance.PaymentID) ([]finance.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.allocations[paymentID]
	out := make([]finance.Allocation, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with unit-of-work support, simulated with a
// snapshot + rollback on error.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(_ context.Context, fn func(finance.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	students    map[studentKey]bool
	arrears     map[finance.ArrearID]finance.Arrear
	obligations map[finance.FeeObligationID]finance.FeeObligation
	summaries   map[finance.FeeObligationID]finance.PaymentSummary
	allocations map[finance.PaymentID][]finance.Allocation
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	s := memorySnapshot{
		students:    make(map[studentKey]bool, len(tm.students)),
		arrears:     make(map[finance.ArrearID]finance.Arrear, len(tm.arrears)),
		obligations: make(map[finance.FeeObligationID]finance.FeeObligation, len(tm.obligations)),
		summaries:   make(map[finance.FeeObligationID]finance.PaymentSummary, len(tm.summaries)),
		allocations: make(map[finance.PaymentID][]finance.Allocation, len(tm.allocations)),
	}
	for k, v := range tm.students {
		s.students[k] = v
	}
	for k, v := range tm.arrears {
		s.arrears[k] = v
	}
	for k, v := range tm.obligations {
		s.obligations[k] = v
	}
	for k, v := range tm.summaries {
		s.summaries[k] = v
	}
	for k, v := range tm.allocations {
		s.allocations[k] = append([]finance.Allocation{}, v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.students = s.students
	tm.arrears = s.arrears
	tm.obligations = s.obligations
	tm.summaries = s.summaries
	tm.allocations = s.allocations
}
