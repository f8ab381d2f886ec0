package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("sweet not found")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrForbidden          = errors.New("role not authorized for operation")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError lists every field constraint a record violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// InsufficientStockError is returned when a purchase asks for more than the
// record holds. Available is the quantity observed by the failed attempt.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}
