package payment

import (
	"errors"
	"strings"
	"time"
)

// Method is how a customer pays at the door (or online ahead of delivery).
type Method string

const (
	MethodCash     Method = "CASH"
	MethodCard     Method = "CARD"
	MethodTransfer Method = "TRANSFER"
	MethodOnline   Method = "ONLINE"
)

var ErrInvalidMethod = errors.New("invalid payment method")

// ParseMethod normalizes and validates a payment method string.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodOnline:
		return m, nil
	default:
		return "", ErrInvalidMethod
	}
}

// String returns the string representation of the Method.
func (m Method) String() string { return string(m) }

// Status is the verification state of a payment row.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
)

var ErrInvalidStatus = errors.New("invalid payment status")

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// Payment is the domain entity corresponding to the `payments` table.
// A payment belongs to exactly one stop.
type Payment struct {
	ID            string
	StopID        string
	Amount        float64
	Method        Method
	Status        Status
	CustomerRUT   *string
	TransactionID *string
	BankReference *string
	VerifiedAt    *time.Time
	VerifiedBy    *string
	CreatedAt     time.Time
}

var (
	ErrStopIDRequired  = errors.New("payment stop id is required")
	ErrNegativeAmount  = errors.New("payment amount cannot be negative")
	ErrAlreadyVerified = errors.New("payment already verified")
)

// NewPayment constructs a pending payment for a stop.
func NewPayment(stopID string, amount float64, method Method) (*Payment, error) {
	if stopID = strings.TrimSpace(stopID); stopID == "" {
		return nil, ErrStopIDRequired
	}
	if amount < 0 {
		return nil, ErrNegativeAmount
	}
	return &Payment{
		StopID:    stopID,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Verify marks the payment VERIFIED by the given verifier.
func (p *Payment) Verify(by string, transactionID, bankReference *string) error {
	if p.Status == StatusVerified {
		return ErrAlreadyVerified
	}
	now := time.Now().UTC()
	p.Status = StatusVerified
	p.VerifiedAt = &now
	if by = strings.TrimSpace(by); by != "" {
		p.VerifiedBy = &by
	}
	if transactionID != nil {
		p.TransactionID = transactionID
	}
	if bankReference != nil {
		p.BankReference = bankReference
	}
	return nil
}

// Reject marks the payment REJECTED.
func (p *Payment) Reject(by string) error {
	if p.Status == StatusVerified {
		return ErrAlreadyVerified
	}
	now := time.Now().UTC()
	p.Status = StatusRejected
	p.VerifiedAt = &now
	if by = strings.TrimSpace(by); by != "" {
		p.VerifiedBy = &by
	}
	return nil
}
