/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  All money fields are JSON strings holding decimal values ("15000",
  "2500.50"). Floats never appear on the wire; precision survives the
  round-trip.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/edufin/finance-engine/finance"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CapturePaymentRequest records a cash payment and allocates it.
type CapturePaymentRequest struct {
	ID             string `json:"id,omitempty"` // generated when empty
	TenantID       string `json:"tenant_id"`
	StudentID      string `json:"student_id"`
	AcademicYearID string `json:"academic_year_id"`
	Amount         string `json:"amount"`
	ReceivedAt     string `json:"received_at,omitempty"` // RFC3339, defaults to now
}

// AllocationDTO represents one allocation row in API responses.
type AllocationDTO struct {
	ID         string `json:"id"`
	PaymentID  string `json:"payment_id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Amount     string `json:"amount"`
	Order      int    `json:"order"`
	CreatedAt  string `json:"created_at"`
}

// ReceiptLineDTO is one printable line of a payment receipt.
type ReceiptLineDTO struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// CapturePaymentResponse is returned after a payment is captured and
// allocated.
type CapturePaymentResponse struct {
	PaymentID   string           `json:"payment_id"`
	Amount      string           `json:"amount"`
	Allocated   string           `json:"allocated"`
	Remaining   string           `json:"remaining"`
	Allocations []AllocationDTO  `json:"allocations"`
	Receipt     []ReceiptLineDTO `json:"receipt"`
}

// CreateStudentRequest registers a student with a tenant.
type CreateStudentRequest struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// InstallmentDTO is an installment inside an obligation.
type InstallmentDTO struct {
	Label      string `json:"label"`
	Amount     string `json:"amount"`
	DueDate    string `json:"due_date"` // YYYY-MM-DD
	OrderIndex int    `json:"order_index"`
}

// CreateObligationRequest creates a fee obligation for a student. The
// gross amount is reduced by the regime's discount rules before storage.
type CreateObligationRequest struct {
	ID             string           `json:"id,omitempty"` // generated when empty
	TenantID       string           `json:"tenant_id"`
	StudentID      string           `json:"student_id"`
	AcademicYearID string           `json:"academic_year_id"`
	Category       string           `json:"category"`
	GrossAmount    string           `json:"gross_amount"`
	RegimeCode     string           `json:"regime_code,omitempty"`
	Installments   []InstallmentDTO `json:"installments,omitempty"`
}

// ObligationDTO represents a fee obligation in API responses.
type ObligationDTO struct {
	ID             string           `json:"id"`
	Category       string           `json:"category"`
	TotalAmount    string           `json:"total_amount"`
	Paid           string           `json:"paid"`
	Balance        string           `json:"balance"`
	Status         string           `json:"status"`
	Installments   []InstallmentDTO `json:"installments,omitempty"`
}

// ArrearDTO represents an arrear in API responses.
type ArrearDTO struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	FromYear   string `json:"from_year"`
	ToYear     string `json:"to_year"`
	AmountDue  string `json:"amount_due"`
	AmountPaid string `json:"amount_paid"`
	BalanceDue string `json:"balance_due"`
	Status     string `json:"status"`
}

// StatementDTO is a student's financial position for one academic year.
type StatementDTO struct {
	StudentID    string          `json:"student_id"`
	AcademicYear string          `json:"academic_year_id"`
	Obligations  []ObligationDTO `json:"obligations"`
	Arrears      []ArrearDTO     `json:"arrears"`
	TotalDue     string          `json:"total_due"`
	TotalPaid    string          `json:"total_paid"`
	TotalBalance string          `json:"total_balance"`
}

// GenerateArrearsRequest triggers the year-close arrear generation job.
type GenerateArrearsRequest struct {
	TenantID string `json:"tenant_id"`
	FromYear string `json:"from_year"`
	ToYear   string `json:"to_year"`
}

// GenerateArrearsResponse reports the arrears created by one run.
type GenerateArrearsResponse struct {
	Created []ArrearDTO `json:"created"`
	Count   int         `json:"count"`
}

// DiscountRuleDTO is one rule of a regime.
type DiscountRuleDTO struct {
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
}

// RegimeDTO represents a discount regime.
type RegimeDTO struct {
	Code  string            `json:"code"`
	Name  string            `json:"name"`
	Rules []DiscountRuleDTO `json:"rules,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAllocationDTO(a finance.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:         a.ID,
		PaymentID:  string(a.PaymentID),
		TargetType: string(a.Target.Kind()),
		TargetID:   a.Target.TargetID(),
		Amount:     a.Amount.String(),
		Order:      a.Order,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

func toAllocationDTOs(allocations []finance.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(allocations))
	for i, a := range allocations {
		dtos[i] = toAllocationDTO(a)
	}
	return dtos
}

func toArrearDTO(a finance.Arrear) ArrearDTO {
	return ArrearDTO{
		ID:         string(a.ID),
		StudentID:  string(a.StudentID),
		FromYear:   string(a.FromYear),
		ToYear:     string(a.ToYear),
		AmountDue:  a.AmountDue.String(),
		AmountPaid: a.AmountPaid.String(),
		BalanceDue: a.BalanceDue.String(),
		Status:     string(a.Status),
	}
}

func toArrearDTOs(arrears []finance.Arrear) []ArrearDTO {
	dtos := make([]ArrearDTO, len(arrears))
	for i, a := range arrears {
		dtos[i] = toArrearDTO(a)
	}
	return dtos
}

func toObligationDTO(f finance.FeeObligation) ObligationDTO {
	dto := ObligationDTO{
		ID:          string(f.ID),
		Category:    string(f.Category),
		TotalAmount: f.TotalAmount.String(),
		Paid:        f.Paid.String(),
		Balance:     f.Balance().String(),
		Status:      string(f.Status),
	}
	for _, inst := range f.Installments {
		dto.Installments = append(dto.Installments, InstallmentDTO{
			Label:      inst.Label,
			Amount:     inst.Amount.String(),
			DueDate:    inst.DueDate.Format("2006-01-02"),
			OrderIndex: inst.OrderIndex,
		})
	}
	return dto
}

func toRegimeDTO(r finance.Regime) RegimeDTO {
	dto := RegimeDTO{Code: r.Code, Name: r.Name}
	for _, rule := range r.Rules {
		dto.Rules = append(dto.Rules, DiscountRuleDTO{
			Category: string(rule.Category),
			Kind:     string(rule.Kind),
			Value:    rule.Value.String(),
		})
	}
	return dto
}
