/*
handlers.go - HTTP API handlers for the payment allocation engine

PURPOSE:
  Exposes the allocation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Payments:
    POST   /api/payments                    Capture and allocate a payment
    GET    /api/payments/{id}/allocations   Allocation trail for a payment

  Students:
    GET    /api/students/{id}/statement     Financial position for a year
    GET    /api/students/{id}/arrears       Arrears carried by a student

  Regimes:
    GET    /api/regimes                     List discount regimes
    POST   /api/regimes                     Register an ad-hoc regime

  Admin:
    POST   /api/admin/students              Register a student
    POST   /api/admin/obligations           Create a fee obligation
    POST   /api/admin/arrears/generate      Year-close arrear generation

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (idempotency, concurrent modification)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edufin/finance-engine/finance"
	"github.com/edufin/finance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Engine  *finance.Engine
	Regimes *finance.RegimeCatalog
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:   store,
		Engine:  finance.NewEngine(store),
		Regimes: finance.NewRegimeCatalog(),
	}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CapturePayment records an incoming payment and runs the allocation
// waterfall in one call.
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	var req CapturePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" || req.StudentID == "" || req.AcademicYearID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, student_id and academic_year_id are required", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a positive decimal string)", err)
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != "" {
		receivedAt, err = time.Parse(time.RFC3339, req.ReceivedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid received_at (use RFC3339)", err)
			return
		}
	}

	payment := finance.Payment{
		ID:             finance.PaymentID(req.ID),
		TenantID:       finance.TenantID(req.TenantID),
		StudentID:      finance.StudentID(req.StudentID),
		AcademicYearID: finance.AcademicYearID(req.AcademicYearID),
		Amount:         finance.Money{Value: amount},
		ReceivedAt:     receivedAt,
	}
	if payment.ID == "" {
		payment.ID = finance.PaymentID(uuid.NewString())
	}

	ctx := r.Context()
	result, err := h.Engine.AllocatePayment(ctx, payment)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	// Allocation succeeded; persist the payment record for the audit trail.
	if err := h.Store.SavePayment(ctx, payment); err != nil {
		writeError(w, http.StatusConflict, "Payment already captured", err)
		return
	}

	allocated := finance.Money{}
	for _, a := range result.Allocations {
		allocated = allocated.Add(a.Amount)
	}

	writeJSON(w, http.StatusCreated, CapturePaymentResponse{
		PaymentID:   string(payment.ID),
		Amount:      payment.Amount.String(),
		Allocated:   allocated.String(),
		Remaining:   result.Remaining.String(),
		Allocations: toAllocationDTOs(result.Allocations),
		Receipt:     h.receiptLines(r, payment, result.Allocations),
	})
}

// receiptLines renders allocations as printable receipt lines, resolving
// target IDs to human-readable descriptions.
func (h *Handler) receiptLines(r *http.Request, p finance.Payment, allocations []finance.Allocation) []ReceiptLineDTO {
	ctx := r.Context()
	descriptions := make(map[string]string)

	if arrears, err := h.Store.ArrearsByStudent(ctx, p.TenantID, p.StudentID); err == nil {
		for _, a := range arrears {
			descriptions[string(finance.TargetArrear)+":"+string(a.ID)] =
				fmt.Sprintf("Arrears %s to %s", a.FromYear, a.ToYear)
		}
	}
	if obligations, err := h.Store.ObligationsByStudent(ctx, p.TenantID, p.StudentID, p.AcademicYearID); err == nil {
		for _, f := range obligations {
			descriptions[string(finance.TargetStudentFee)+":"+string(f.ID)] =
				fmt.Sprintf("%s %s", f.Category, f.AcademicYearID)
		}
	}

	lines := make([]ReceiptLineDTO, len(allocations))
	for i, a := range allocations {
		key := string(a.Target.Kind()) + ":" + a.Target.TargetID()
		desc, ok := descriptions[key]
		if !ok {
			desc = a.Target.TargetID()
		}
		lines[i] = ReceiptLineDTO{
			Order:       a.Order,
			Description: desc,
			Amount:      a.Amount.String(),
		}
	}
	return lines
}

// GetPaymentAllocations returns the allocation trail for one payment.
func (h *Handler) GetPaymentAllocations(w http.ResponseWriter, r *http.Request) {
	paymentID := finance.PaymentID(chi.URLParam(r, "id"))

	payment, err := h.Store.GetPayment(r.Context(), paymentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}

	allocations, err := h.Store.AllocationsByPayment(r.Context(), paymentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get allocations", err)
		return
	}

	writeJSON(w, http.StatusOK, toAllocationDTOs(allocations))
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// GetStatement returns a student's financial position for one academic year.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	studentID := finance.StudentID(chi.URLParam(r, "id"))
	tenantID := finance.TenantID(r.URL.Query().Get("tenant_id"))
	yearID := finance.AcademicYearID(r.URL.Query().Get("academic_year_id"))
	if tenantID == "" || yearID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and academic_year_id query parameters are required", nil)
		return
	}

	ctx := r.Context()
	exists, err := h.Store.StudentExists(ctx, tenantID, studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check student", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}

	obligations, err := h.Store.ObligationsByStudent(ctx, tenantID, studentID, yearID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get obligations", err)
		return
	}
	arrears, err := h.Store.ArrearsByStudent(ctx, tenantID, studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get arrears", err)
		return
	}

	statement := StatementDTO{
		StudentID:    string(studentID),
		AcademicYear: string(yearID),
		Obligations:  make([]ObligationDTO, 0, len(obligations)),
		Arrears:      toArrearDTOs(arrears),
	}

	totalDue, totalPaid, totalBalance := finance.Money{}, finance.Money{}, finance.Money{}
	for _, f := range obligations {
		statement.Obligations = append(statement.Obligations, toObligationDTO(f))
		totalDue = totalDue.Add(f.TotalAmount)
		totalPaid = totalPaid.Add(f.Paid)
		totalBalance = totalBalance.Add(f.Balance())
	}
	for _, a := range arrears {
		totalDue = totalDue.Add(a.AmountDue)
		totalPaid = totalPaid.Add(a.AmountPaid)
		totalBalance = totalBalance.Add(a.BalanceDue)
	}
	statement.TotalDue = totalDue.String()
	statement.TotalPaid = totalPaid.String()
	statement.TotalBalance = totalBalance.String()

	writeJSON(w, http.StatusOK, statement)
}

// GetStudentArrears returns the arrears carried by a student, oldest first.
func (h *Handler) GetStudentArrears(w http.ResponseWriter, r *http.Request) {
	studentID := finance.StudentID(chi.URLParam(r, "id"))
	tenantID := finance.TenantID(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter is required", nil)
		return
	}

	arrears, err := h.Store.ArrearsByStudent(r.Context(), tenantID, studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get arrears", err)
		return
	}

	writeJSON(w, http.StatusOK, toArrearDTOs(arrears))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateStudent registers a student with a tenant.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "id and tenant_id are required", nil)
		return
	}

	student := sqlite.Student{
		ID:       finance.StudentID(req.ID),
		TenantID: finance.TenantID(req.TenantID),
		Name:     req.Name,
	}
	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create student", err)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// CreateObligation creates a fee obligation. The regime's discount rules
// reduce the gross amount before it is stored; the stored total is final.
func (h *Handler) CreateObligation(w http.ResponseWriter, r *http.Request) {
	var req CreateObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" || req.StudentID == "" || req.AcademicYearID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, student_id and academic_year_id are required", nil)
		return
	}

	gross, err := decimal.NewFromString(req.GrossAmount)
	if err != nil || !gross.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid gross_amount (use a positive decimal string)", err)
		return
	}

	category := finance.ParseFeeCategory(req.Category)
	var regime *finance.Regime
	if req.RegimeCode != "" {
		regime = h.Regimes.Lookup(req.RegimeCode)
		if regime == nil {
			writeError(w, http.StatusBadRequest, "Unknown regime_code", nil)
			return
		}
	}
	net := finance.ResolveNetAmount(regime, category, finance.Money{Value: gross})

	obligation := finance.FeeObligation{
		ID:             finance.FeeObligationID(req.ID),
		TenantID:       finance.TenantID(req.TenantID),
		StudentID:      finance.StudentID(req.StudentID),
		AcademicYearID: finance.AcademicYearID(req.AcademicYearID),
		Category:       category,
		TotalAmount:    net,
		Status:         finance.FeeNotStarted,
	}
	if obligation.ID == "" {
		obligation.ID = finance.FeeObligationID(uuid.NewString())
	}

	for _, inst := range req.Installments {
		amount, err := decimal.NewFromString(inst.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid installment amount", err)
			return
		}
		dueDate, err := time.Parse("2006-01-02", inst.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid installment due_date (use YYYY-MM-DD)", err)
			return
		}
		obligation.Installments = append(obligation.Installments, finance.Installment{
			Label:      inst.Label,
			Amount:     finance.Money{Value: amount},
			DueDate:    dueDate,
			OrderIndex: inst.OrderIndex,
		})
	}

	if err := h.Store.SaveObligation(r.Context(), obligation); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create obligation", err)
		return
	}

	writeJSON(w, http.StatusCreated, toObligationDTO(obligation))
}

// GenerateArrears triggers the year-close arrear generation job.
// Idempotent: re-running returns only newly created arrears.
func (h *Handler) GenerateArrears(w http.ResponseWriter, r *http.Request) {
	var req GenerateArrearsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" || req.FromYear == "" || req.ToYear == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, from_year and to_year are required", nil)
		return
	}
	if req.FromYear == req.ToYear {
		writeError(w, http.StatusBadRequest, "from_year and to_year must differ", nil)
		return
	}

	created, err := h.Engine.GenerateArrears(r.Context(),
		finance.TenantID(req.TenantID),
		finance.AcademicYearID(req.FromYear),
		finance.AcademicYearID(req.ToYear),
	)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateArrearsResponse{
		Created: toArrearDTOs(created),
		Count:   len(created),
	})
}

// =============================================================================
// REGIME HANDLERS
// =============================================================================

// ListRegimes returns every known discount regime.
func (h *Handler) ListRegimes(w http.ResponseWriter, r *http.Request) {
	regimes := h.Regimes.List()
	dtos := make([]RegimeDTO, len(regimes))
	for i, regime := range regimes {
		dtos[i] = toRegimeDTO(regime)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterRegime registers an ad-hoc regime (e.g. a negotiated reduction).
func (h *Handler) RegisterRegime(w http.ResponseWriter, r *http.Request) {
	var dto RegimeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required", nil)
		return
	}

	regime := finance.Regime{Code: dto.Code, Name: dto.Name}
	for _, rule := range dto.Rules {
		value, err := decimal.NewFromString(rule.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rule value", err)
			return
		}
		kind := finance.DiscountKind(rule.Kind)
		if kind != finance.DiscountFixed && kind != finance.DiscountPercent {
			writeError(w, http.StatusBadRequest, "Invalid rule kind (FIXED or PERCENT)", nil)
			return
		}
		regime.Rules = append(regime.Rules, finance.DiscountRule{
			Category: finance.ParseFeeCategory(rule.Category),
			Kind:     kind,
			Value:    value,
		})
	}

	h.Regimes.Register(regime)
	writeJSON(w, http.StatusCreated, toRegimeDTO(regime))
}

// =============================================================================
// HELPERS
// =============================================================================

// writeEngineError maps engine errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, finance.ErrAlreadyAllocated):
		writeError(w, http.StatusConflict, "Payment already allocated", err)
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case finance.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case finance.IsRetryable(err):
		writeError(w, http.StatusConflict, "Concurrent modification, retry", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
