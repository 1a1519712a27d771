package invoicing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
)

// Error codes carried by the typed errors below
const (
	CodeValidation     = "VALIDATION_FAILED"
	CodeNotFound       = "NOT_FOUND"
	CodeTerminalState  = "TERMINAL_STATE"
	CodeExceedsBalance = "EXCEEDS_BALANCE"
	CodeConflict       = "DUPLICATE_REFERENCE"
	CodePartialFailure = "PARTIAL_FAILURE"
	CodeIntegrity      = "INTEGRITY_VIOLATION"
	CodeNotification   = "NOTIFICATION_FAILED"
)

// Sentinels for errors.Is; they match any typed error with the same code.
var (
	ErrValidation     = shared.NewDomainError(CodeValidation, "validation failed")
	ErrNotFound       = shared.NewDomainError(CodeNotFound, "not found")
	ErrTerminalState  = shared.NewDomainError(CodeTerminalState, "invoice is in a terminal state")
	ErrExceedsBalance = shared.NewDomainError(CodeExceedsBalance, "amount exceeds balance due")
	ErrConflict       = shared.NewDomainError(CodeConflict, "external reference already recorded")
	ErrPartialFailure = shared.NewDomainError(CodePartialFailure, "payment recorded but not allocated")
	ErrIntegrity      = shared.NewDomainError(CodeIntegrity, "receipt hash mismatch")
	ErrNotification   = shared.NewDomainError(CodeNotification, "notification failed")
)

// ValidationError rejects malformed input before anything is written
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return shared.NewDomainError(CodeValidation, e.Error())
}

// NotFoundError covers missing rows and rows owned by another tenant
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return shared.NewDomainError(CodeNotFound, e.Error())
}

// TerminalStateError rejects an allocation against a paid or cancelled invoice
type TerminalStateError struct {
	InvoiceID uuid.UUID
	Status    InvoiceStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("invoice %s is %s and cannot accept payments", e.InvoiceID, e.Status)
}

func (e *TerminalStateError) Unwrap() error {
	return shared.NewDomainError(CodeTerminalState, e.Error())
}

// ExceedsBalanceError carries the current balance so the caller can retry
// with a correct amount.
type ExceedsBalanceError struct {
	InvoiceID  uuid.UUID
	Requested  int64
	BalanceDue int64
	Currency   string
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("amount %d exceeds balance due %d %s on invoice %s", e.Requested, e.BalanceDue, e.Currency, e.InvoiceID)
}

func (e *ExceedsBalanceError) Unwrap() error {
	return shared.NewDomainError(CodeExceedsBalance, e.Error())
}

// ConflictError is raised by storage when a unique key is already present:
// an external reference, or a second allocation or receipt for one payment.
// Callers on the gateway path turn it into "already processed".
type ConflictError struct {
	ExternalReference string
	// Resource names the table when the clash is not on the external reference
	Resource  string
	PaymentID uuid.UUID
	Cause     error
}

func (e *ConflictError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s for payment %s already recorded", e.Resource, e.PaymentID)
	}
	return fmt.Sprintf("external reference %q already recorded", e.ExternalReference)
}

func (e *ConflictError) Unwrap() []error {
	errs := []error{shared.NewDomainError(CodeConflict, e.Error())}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// PartialFailureError means the payment row is durable but was not allocated.
// It is always returned alongside the payment and never swallowed.
type PartialFailureError struct {
	PaymentID uuid.UUID
	InvoiceID uuid.UUID
	Stage     string
	Cause     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("payment %s recorded but %s failed for invoice %s: %v", e.PaymentID, e.Stage, e.InvoiceID, e.Cause)
}

func (e *PartialFailureError) Unwrap() []error {
	errs := []error{shared.NewDomainError(CodePartialFailure, e.Error())}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// IntegrityError reports a stored receipt whose hash no longer matches its content
type IntegrityError struct {
	ReceiptID    uuid.UUID
	StoredHash   string
	ComputedHash string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("receipt %s hash mismatch: stored %s, computed %s", e.ReceiptID, e.StoredHash, e.ComputedHash)
}

func (e *IntegrityError) Unwrap() error {
	return shared.NewDomainError(CodeIntegrity, e.Error())
}

// NotificationError is the non-financial failure class. It is logged and
// never propagated into the result of a financial operation.
type NotificationError struct {
	Channel string
	Cause   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s failed: %v", e.Channel, e.Cause)
}

func (e *NotificationError) Unwrap() []error {
	return []error{shared.NewDomainError(CodeNotification, e.Error()), e.Cause}
}

// IsFinancialError reports whether err must propagate to the caller.
// Notification failures are the only non-financial class.
func IsFinancialError(err error) bool {
	if err == nil {
		return false
	}
	var ne *NotificationError
	return !errors.As(err, &ne)
}
