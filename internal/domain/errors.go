package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotAuthenticated  = errors.New("api credentials not derived")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrSigningFailed     = errors.New("signing failed")
	ErrLockHeld          = errors.New("lock already held")
	ErrTradingDisabled   = errors.New("trading disabled")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderRejected     = errors.New("order rejected")
)

// ValidationError reports an input that was rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers match validation failures with errors.Is(err, ErrInvalidOrder).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidOrder
}

// InsufficientFundsError is returned when the available balance cannot cover an order.
type InsufficientFundsError struct {
	Available float64
	Required  float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %.2f, required %.2f", e.Available, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// OrderRejectedError carries the exchange's reason for refusing an order.
type OrderRejectedError struct {
	StatusCode int
	Message    string
}

func (e *OrderRejectedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("order rejected (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "order rejected: " + e.Message
}

func (e *OrderRejectedError) Is(target error) bool {
	return target == ErrOrderRejected
}
