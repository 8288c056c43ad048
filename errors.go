package convkit

import (
	"errors"
	"fmt"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/schema"
)

// Store errors
var (
	ErrNotExist     = errors.New("file does not exist")
	ErrNotAllowed   = errors.New("operation not allowed")
	ErrPermission   = errors.New("permission denied")
	ErrInvalidName  = errors.New("invalid name")
	ErrSinkClosed   = errors.New("sink already committed or aborted")
	ErrUnknownStore = errors.New("unknown store")
	ErrNoSecret     = errors.New("no secret for key id")
)

// Conversion setup errors
var (
	ErrUnknownCharset = errors.New("unknown charset")
	ErrUnknownSchema  = errors.New("unknown schema")
)

// PathError records a store failure and the operation and path that caused
// it. It belongs to the i/o class of the error taxonomy.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

func (e *PathError) Is(target error) bool { return target == errs.ErrIO }

// ValidationFailedError aborts a strict conversion. Report holds the
// violations found before the conversion stopped.
type ValidationFailedError struct {
	Report *schema.Report
}

func (e *ValidationFailedError) Error() string {
	if e.Report == nil {
		return "validation failed"
	}
	return "validation failed: " + e.Report.Summary()
}

func (e *ValidationFailedError) Is(target error) bool { return target == errs.ErrValidationFailed }

// IsNotExist reports whether an error indicates that a file does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsValidationFailed reports whether err aborted a strict conversion.
func IsValidationFailed(err error) bool {
	return errors.Is(err, errs.ErrValidationFailed)
}

// ReportOf returns the validation report carried by err, if any.
func ReportOf(err error) (*schema.Report, bool) {
	var vf *ValidationFailedError
	if errors.As(err, &vf) && vf.Report != nil {
		return vf.Report, true
	}
	return nil, false
}
