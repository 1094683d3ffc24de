package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates insufficient permissions
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrPaused indicates the engine is halted by the global pause flag
	ErrPaused = errors.New("engine paused")
)

// Price aggregation errors

var (
	// ErrInvalidPrice indicates a zero or negative quote price
	ErrInvalidPrice = errors.New("invalid price")

	// ErrUnknownAsset indicates the asset id is not registered
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrInsufficientSources indicates too few fresh independent quotes
	ErrInsufficientSources = errors.New("insufficient price sources")

	// ErrStaleData indicates all quotes are older than the freshness window
	ErrStaleData = errors.New("stale price data")

	// ErrRateLimited indicates a quote source exceeded its write rate
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Fund ledger errors

var (
	// ErrUnbalancedRatios indicates component ratios do not sum to 10000 bps
	ErrUnbalancedRatios = errors.New("component ratios do not sum to 10000 bps")

	// ErrUnauthorizedToken indicates a token is not on the allowlist
	ErrUnauthorizedToken = errors.New("token not authorized")

	// ErrFundInactive indicates the fund has been deactivated
	ErrFundInactive = errors.New("fund inactive")

	// ErrComponentMismatch indicates tokens do not match the fund's component set
	ErrComponentMismatch = errors.New("component mismatch")

	// ErrNothingToRedeem indicates redemption against zero share supply
	ErrNothingToRedeem = errors.New("nothing to redeem")

	// ErrInsufficientShares indicates the holder balance is too small
	ErrInsufficientShares = errors.New("insufficient share balance")

	// ErrRedemptionTooSmall indicates the redemption is below the minimum floor
	ErrRedemptionTooSmall = errors.New("redemption below minimum size")
)

// Cross-chain router errors

var (
	// ErrUnknownChain indicates the destination chain is not configured
	ErrUnknownChain = errors.New("unknown destination chain")

	// ErrInsufficientFee indicates the attached fee is below the estimate
	ErrInsufficientFee = errors.New("insufficient message fee")

	// ErrOutOfOrderMessage indicates a nonce gap or replayed nonce
	ErrOutOfOrderMessage = errors.New("out of order message")

	// ErrStaleMessage indicates the message is older than the freshness window
	ErrStaleMessage = errors.New("stale message")

	// ErrDuplicateMessage indicates a message hash was already recorded
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrUnknownIntent indicates the payload intent type is not recognized
	ErrUnknownIntent = errors.New("unknown intent type")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
