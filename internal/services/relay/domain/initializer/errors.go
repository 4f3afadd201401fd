package initializer

import "errors"

var (
	// ErrSessionChangeAfterFinalize indicates a session change announced
	// after Finalize ran for the current block. Nothing would apply it.
	ErrSessionChangeAfterFinalize = errors.New("session change announced after finalize")
	// ErrStoreRequired indicates a missing initializer store.
	ErrStoreRequired = errors.New("initializer store is required")
	// ErrSubsystemRequired indicates a missing entry in the subsystem table.
	ErrSubsystemRequired = errors.New("subsystem is required")
)

// fatalError marks an error after which the block must not be committed:
// the orchestrator's ordering or buffering guarantees no longer hold.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal returns true from IsFatal checks.
func (e *fatalError) Fatal() bool { return true }

func wrapFatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or any error in its chain, requires aborting
// the enclosing block.
func IsFatal(err error) bool {
	var target interface{ Fatal() bool }
	if errors.As(err, &target) {
		return target.Fatal()
	}
	return false
}
