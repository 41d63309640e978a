package analyzer

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroTriggers is returned when an efficiency or rate denominator is zero.
	ErrZeroTriggers = errors.New("no validated triggers")
	// ErrFitNonConvergence is wrapped by every FitError.
	ErrFitNonConvergence = errors.New("fit did not converge")
	// ErrInvalidGeometry flags an inconsistent detector table.
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// ErrInputMissing represents a raw or monitoring file that does not exist.
type ErrInputMissing struct {
	Filename string
	Err      error
}

func (e *ErrInputMissing) Error() string {
	return fmt.Sprintf("input file %q missing: %v", e.Filename, e.Err)
}

func (e *ErrInputMissing) Unwrap() error {
	return e.Err
}

// FitError represents a least-squares fit that failed to converge.
type FitError struct {
	Fit string
	Err error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("%s fit did not converge: %v", e.Fit, e.Err)
}

func (e *FitError) Unwrap() []error {
	return []error{ErrFitNonConvergence, e.Err}
}

// PointError attaches the HV point to a failure of the per-point pipeline.
type PointError struct {
	ScanID  int
	HVPoint int
	Err     error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("scan %d HV point %d: %v", e.ScanID, e.HVPoint, e.Err)
}

func (e *PointError) Unwrap() error {
	return e.Err
}
