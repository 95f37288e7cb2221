package assign

import (
	"fmt"
	"time"
)

// ValidationError marks malformed order/courier input. Nothing is
// committed when one is returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// SolverTimeoutError is returned when a cycle exceeds its time budget.
// The attempt is discarded; no partial commit happens.
type SolverTimeoutError struct {
	Budget time.Duration
}

func (e *SolverTimeoutError) Error() string {
	return fmt.Sprintf("solver timed out after %s", e.Budget)
}

// StateConflictError marks a caller snapshot that disagrees with the
// engine about which order a courier currently holds. The cycle is
// rejected before solving; nothing is committed.
type StateConflictError struct {
	OrderID   string
	CourierID string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("courier %s already committed in a concurrent cycle (order %s)", e.CourierID, e.OrderID)
}
