package schema

import (
	"fmt"
	"strings"
)

// Code classifies a violation.
type Code string

const (
	CodeType             Code = "type"
	CodeRequired         Code = "required"
	CodeAdditional       Code = "additional"
	CodeMinimum          Code = "minimum"
	CodeMaximum          Code = "maximum"
	CodeExclusiveMinimum Code = "exclusiveMinimum"
	CodeExclusiveMaximum Code = "exclusiveMaximum"
	CodeMinLength        Code = "minLength"
	CodeMaxLength        Code = "maxLength"
	CodePattern          Code = "pattern"
	CodeEnum             Code = "enum"
	CodeMinItems         Code = "minItems"
	CodeMaxItems         Code = "maxItems"
	CodeColumn           Code = "column"
)

// Violation is one schema failure.
type Violation struct {
	// Path locates the offending node in dot and bracket notation, "$" for
	// the root. Table cells are addressed as [row].column.
	Path    string
	Code    Code
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Path, v.Message, v.Code)
}

// Report collects the violations of one validation pass.
type Report struct {
	Violations []Violation

	// Truncated is set when validation stopped at the FailFast or
	// MaxViolations limit; more violations may exist.
	Truncated bool
}

// Valid reports whether no violation was found.
func (r *Report) Valid() bool {
	return r == nil || len(r.Violations) == 0
}

// Filter returns the violations with the given code.
func (r *Report) Filter(code Code) []Violation {
	if r == nil {
		return nil
	}
	var out []Violation
	for _, v := range r.Violations {
		if v.Code == code {
			out = append(out, v)
		}
	}
	return out
}

// Summary returns a one-line description of the report.
func (r *Report) Summary() string {
	if r.Valid() {
		return "✓ valid"
	}
	more := ""
	if r.Truncated {
		more = " (truncated)"
	}
	first := r.Violations[0]
	if len(r.Violations) == 1 {
		return fmt.Sprintf("✗ 1 violation%s: %s", more, first)
	}
	return fmt.Sprintf("✗ %d violations%s, first: %s", len(r.Violations), more, first)
}

func (r *Report) String() string {
	if r.Valid() {
		return r.Summary()
	}
	lines := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

// Option configures a validation pass.
type Option func(*options)

type options struct {
	failFast      bool
	maxViolations int
}

// FailFast stops validation at the first violation.
func FailFast() Option {
	return func(o *options) { o.failFast = true }
}

// MaxViolations stops validation once n violations are recorded. Zero means
// no limit.
func MaxViolations(n int) Option {
	return func(o *options) { o.maxViolations = n }
}
