package usi

import "fmt"

// NotFoundError is returned when a named team or submission does not exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// NotReadyError is returned when an operation needs validation of every
// sample to be complete first. Counts holds the per-status tally observed.
type NotReadyError struct {
	Reason string
	Counts map[string]int
}

func (e *NotReadyError) Error() string {
	if len(e.Counts) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s (validation statuses: %v)", e.Reason, e.Counts)
}

// ValidationFailedError is returned when finalization is refused because
// samples have validation errors.
type ValidationFailedError struct {
	WithErrors int
	Total      int
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("submission has validation errors in %d of %d samples", e.WithErrors, e.Total)
}
