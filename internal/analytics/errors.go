package analytics

import "fmt"

// ValidationError reports input the caller can fix.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StorageError reports that an event could not be written.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AggregationError reports that a summary could not be computed.
// No partial result accompanies it.
type AggregationError struct {
	View string
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.View, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
