package utils

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindConflict           ErrorKind = "conflict"
	KindNotFound           ErrorKind = "not_found"
	KindInvalidState       ErrorKind = "invalid_state"
	KindDomainVerification ErrorKind = "domain_verification"
	KindPaymentValidation  ErrorKind = "payment_validation"
	KindExternalService    ErrorKind = "external_service"
	KindUnknown            ErrorKind = "unknown"
)

// DomainError is the stable error surface exposed to callers. Routes map
// Kind to an HTTP status and never see the wrapped cause.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func ValidationError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidStateError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func DomainVerificationError(domain string) *DomainError {
	return &DomainError{Kind: KindDomainVerification, Message: fmt.Sprintf("could not verify ownership of domain %q", domain)}
}

func PaymentValidationError(transactionReference string) *DomainError {
	return &DomainError{Kind: KindPaymentValidation, Message: fmt.Sprintf("payment validation failed for transaction %q", transactionReference)}
}

// ExternalServiceError always carries the underlying cause.
func ExternalServiceError(cause error, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindExternalService, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func KindOf(err error) ErrorKind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindUnknown
}

// ExpectedKind reports whether the kind describes a caller mistake rather
// than an infrastructure failure. Expected errors are neither retried nor
// captured.
func ExpectedKind(kind ErrorKind) bool {
	switch kind {
	case KindValidation, KindConflict, KindNotFound, KindInvalidState,
		KindDomainVerification, KindPaymentValidation:
		return true
	}
	return false
}
