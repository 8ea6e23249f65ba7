package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes. Clients switch on these; never rename.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeInsufficientBalance  = "BILLING_INSUFFICIENT_BALANCE"
	CodeInvalidAmount        = "BILLING_INVALID_AMOUNT"
	CodeDuplicateTransaction = "BILLING_DUPLICATE_TRANSACTION"
	CodeCreditNotFound       = "BILLING_CREDIT_NOT_FOUND"
	CodeExternalService      = "EXTERNAL_SERVICE_ERROR"
	CodeInternal             = "INTERNAL_SERVER_ERROR"
)

// AppError is the one error shape that crosses the handler boundary.
// Everything else is wrapped into one of these before it reaches a client.
type AppError struct {
	Code    string
	Message string
	Details map[string]interface{}
	Status  int
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches one detail field and returns the same error for chaining.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// AsAppError unwraps err to an *AppError, or wraps it as INTERNAL_SERVER_ERROR.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Cause:   err,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// NewUnauthorizedError is deliberately opaque. The real reason goes to the
// log, never to the client.
func NewUnauthorizedError() *AppError {
	return &AppError{Code: CodeUnauthorized, Message: "authentication required", Status: http.StatusUnauthorized}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Status: http.StatusConflict}
}

// NewInsufficientBalanceError reports how many tokens the caller is short.
func NewInsufficientBalanceError(modelID string, required, available int64) *AppError {
	e := &AppError{
		Code:    CodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient token balance for %s: need %d, have %d", modelID, required, available),
		Status:  http.StatusBadRequest,
	}
	return e.WithDetail("model_id", modelID).
		WithDetail("required_tokens", required).
		WithDetail("available_tokens", available).
		WithDetail("shortfall", required-available)
}

// NewInsufficientCreditsError reports a credit (yen) shortage during
// allocation.
func NewInsufficientCreditsError(required, available int64) *AppError {
	e := &AppError{
		Code:    CodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient credits: need %d, have %d", required, available),
		Status:  http.StatusBadRequest,
	}
	return e.WithDetail("required_credits", required).
		WithDetail("available_credits", available).
		WithDetail("shortfall", required-available)
}

func NewInvalidAmountError(message string) *AppError {
	return &AppError{Code: CodeInvalidAmount, Message: message, Status: http.StatusBadRequest}
}

func NewDuplicateTransactionError(iapTransactionID string) *AppError {
	e := &AppError{
		Code:    CodeDuplicateTransaction,
		Message: "purchase already processed",
		Status:  http.StatusConflict,
	}
	return e.WithDetail("iap_transaction_id", iapTransactionID)
}

func NewCreditNotFoundError(userID string) *AppError {
	e := &AppError{
		Code:    CodeCreditNotFound,
		Message: "no credit record for user",
		Status:  http.StatusNotFound,
	}
	return e.WithDetail("user_id", userID)
}

// NewExternalServiceError covers Google OAuth, CSE, embedding and LLM
// provider failures. service names the collaborator for the log.
func NewExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s is unavailable", service),
		Status:  http.StatusBadGateway,
		Cause:   cause,
	}
}

func NewInternalError(cause error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}
