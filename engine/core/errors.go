package core

import (
	"errors"
	"fmt"
)

var (
	ErrNilDestructor         = errors.New("destructor is nil")
	ErrNilOwner              = errors.New("owner is nil")
	ErrDuplicateRegistration = errors.New("owner already holds a live token for this destructor kind")
	ErrDoubleDispose         = errors.New("token disposed more than once")
	ErrUnknownQueueRole      = errors.New("no queue bound to role")
	ErrContextClosed         = errors.New("context is closed")
	ErrWorkerStopped         = errors.New("disposal worker stopped")
	ErrJoinTimeout           = errors.New("disposal worker did not stop in time")
)

// InvariantError is the panic value for programming errors: double
// registration, double dispose, unknown queue roles and use after close.
// Callers are not expected to recover from it.
type InvariantError struct {
	Op  string
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// Invariant panics with an InvariantError.
func Invariant(op string, err error) {
	panic(&InvariantError{Op: op, Err: err})
}
