package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error tag surfaced to clients.
type Code string

const (
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeAccessDenied           Code = "ACCESS_DENIED"
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeRecipientNotRegistered Code = "RECIPIENT_NOT_REGISTERED"
	CodeDirectoryUnavailable   Code = "DIRECTORY_UNAVAILABLE"
	CodeStoreUnavailable       Code = "STORE_UNAVAILABLE"
	CodeConflict               Code = "CONFLICT"
	CodeInternal               Code = "INTERNAL"
)

// AppError carries a code for the wire plus a human-readable message.
// RecipientID is set only for RECIPIENT_NOT_REGISTERED.
type AppError struct {
	Code        Code
	Message     string
	RecipientID int64
	Err         error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewError(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

func Unauthenticated(msg string) *AppError { return NewError(CodeUnauthenticated, msg) }
func AccessDenied(msg string) *AppError    { return NewError(CodeAccessDenied, msg) }
func Validation(msg string) *AppError      { return NewError(CodeValidation, msg) }
func NotFound(msg string) *AppError        { return NewError(CodeNotFound, msg) }
func Conflict(msg string) *AppError        { return NewError(CodeConflict, msg) }
func Internal(msg string) *AppError        { return NewError(CodeInternal, msg) }

// RecipientNotRegistered is a product-level guard, not a transport error:
// the target exists in the directory but has not finished onboarding. The
// client presents it as guidance rather than a failure toast.
func RecipientNotRegistered(recipientID int64) *AppError {
	return &AppError{
		Code:        CodeRecipientNotRegistered,
		Message:     "this user has not finished setting up their account yet",
		RecipientID: recipientID,
	}
}

func DirectoryUnavailable(cause error) *AppError {
	return WrapError(CodeDirectoryUnavailable, "user directory is unavailable", cause)
}

func StoreUnavailable(cause error) *AppError {
	return WrapError(CodeStoreUnavailable, "backing store is unavailable", cause)
}

// CodeOf extracts the code from any error in the chain, defaulting to
// INTERNAL for plain errors.
func CodeOf(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeInternal
}
