package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrOverpayment         = NewDomainError("OVERPAYMENT", "Payment amount exceeds the outstanding balance")
	ErrExcessRefund        = NewDomainError("EXCESS_REFUND", "Refund amount exceeds the amount actually paid")
	ErrInconsistentLedger  = NewDomainError("INCONSISTENT_LEDGER", "Ledger totals do not agree with persisted invoice state")
	ErrDepositOnFile       = NewDomainError("DEPOSIT_ON_FILE", "Guest has an unapplied deposit that must be applied before taking a regular payment")
)
