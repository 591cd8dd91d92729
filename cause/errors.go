package cause

import "fmt"

// CircularDependencyError reports that a node was read while it was already
// recomputing: the graph contains a cycle through it.
type CircularDependencyError struct {
	Kind string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("cause: circular dependency in %s", e.Kind)
}

// InvalidSignalValueError reports a write rejected by a signal's guard. The
// prior value is left untouched.
type InvalidSignalValueError struct {
	Value  any
	Reason error
}

func (e *InvalidSignalValueError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("cause: invalid signal value %v: %v", e.Value, e.Reason)
	}
	return fmt.Sprintf("cause: invalid signal value %v", e.Value)
}

func (e *InvalidSignalValueError) Unwrap() error { return e.Reason }

// NullishSignalValueError reports a zero value rejected by the NonZero guard.
type NullishSignalValueError struct{}

func (e *NullishSignalValueError) Error() string {
	return "cause: nullish signal value"
}

// UnsetSignalValueError reports a read of a node whose value has never
// successfully resolved.
type UnsetSignalValueError struct {
	Kind string
}

func (e *UnsetSignalValueError) Error() string {
	return fmt.Sprintf("cause: %s value has not been set", e.Kind)
}

// NonZero returns a guard that rejects the zero value of T.
func NonZero[T comparable]() func(T) error {
	return func(v T) error {
		var zero T
		if v == zero {
			return &NullishSignalValueError{}
		}
		return nil
	}
}
