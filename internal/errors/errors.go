// Package errors provides custom error types for ledger errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidOrder        = errors.New("invalid order")
	ErrNoQuote             = errors.New("no quote available")
	ErrNotQualified        = errors.New("user not qualified to trade")
	ErrNotOpen             = errors.New("trade is not open")
	ErrNotClosed           = errors.New("trade is not closed")
	ErrNotFound            = errors.New("not found")
	ErrAnalyticsIncomplete = errors.New("analytics incomplete: insufficient tick coverage")
	ErrInvalidTransition   = errors.New("invalid session transition")
	ErrConflict            = errors.New("concurrent modification")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDatabaseError       = errors.New("database error")
)

// TradeError represents an error related to a trade operation.
type TradeError struct {
	TradeID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade error [%s] %s %s: %s: %v", e.TradeID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade error [%s] %s %s: %s", e.TradeID, e.Action, e.Symbol, e.Reason)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(tradeID, symbol, action, reason string, err error) *TradeError {
	return &TradeError{
		TradeID: tradeID,
		Symbol:  symbol,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// SessionError represents an error related to a session operation.
type SessionError struct {
	SessionID string
	Action    string
	Status    string
	Err       error
}

func (e *SessionError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("session error [%s] %s (status %s): %v", e.SessionID, e.Action, e.Status, e.Err)
	}
	return fmt.Sprintf("session error [%s] %s: %v", e.SessionID, e.Action, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(sessionID, action, status string, err error) *SessionError {
	return &SessionError{
		SessionID: sessionID,
		Action:    action,
		Status:    status,
		Err:       err,
	}
}

// ValidationError represents a validation error. It matches ErrInvalidOrder.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
