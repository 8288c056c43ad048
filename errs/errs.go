// Package errs defines the error taxonomy shared by every convkit package.
//
// Each failure class has a concrete struct type carrying the context needed to act on
// it (byte offset, document path, algorithm) and a sentinel that the type matches
// through errors.Is:
//
//	var perr *errs.ParseError
//	if errors.As(err, &perr) {
//	    log.Printf("bad %s at line %d", perr.Format, perr.Line)
//	}
//	if errors.Is(err, errs.ErrCrypto) {
//	    // wrong password or corrupt ciphertext
//	}
//
// None of these errors are transient; convkit never retries internally.
package errs

import (
	"errors"
	"fmt"
)

// Kind names a class of failure.
type Kind string

const (
	KindParse            Kind = "parse"
	KindStructure        Kind = "structure"
	KindShapeMismatch    Kind = "shape_mismatch"
	KindDepthExceeded    Kind = "depth_exceeded"
	KindValidationFailed Kind = "validation_failed"
	KindCrypto           Kind = "crypto"
	KindCompression      Kind = "compression"
	KindIO               Kind = "io"
	KindSerialize        Kind = "serialize"
	KindUnknown          Kind = "unknown"
)

// Sentinels matched by the concrete error types.
var (
	ErrParse            = errors.New("parse error")
	ErrStructure        = errors.New("structure error")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrDepthExceeded    = errors.New("depth exceeded")
	ErrValidationFailed = errors.New("validation failed")
	ErrCrypto           = errors.New("crypto error")
	ErrCompression      = errors.New("compression error")
	ErrIO               = errors.New("i/o error")
	ErrSerialize        = errors.New("serialize error")
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrValidationFailed, KindValidationFailed},
	{ErrCrypto, KindCrypto},
	{ErrCompression, KindCompression},
	{ErrDepthExceeded, KindDepthExceeded},
	{ErrShapeMismatch, KindShapeMismatch},
	{ErrStructure, KindStructure},
	{ErrParse, KindParse},
	{ErrSerialize, KindSerialize},
	{ErrIO, KindIO},
}

// KindOf reports the taxonomy class of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// ParseError reports malformed input for the declared format.
type ParseError struct {
	Format string
	// Offset is the byte offset into the (decoded) input, -1 when unknown.
	Offset int64
	// Line and Column are 1-based, 0 when unknown.
	Line   int
	Column int
	// Path locates the offending node when the input was syntactically valid
	// but semantically malformed (duplicate key, unsupported tag).
	Path string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	loc := ""
	switch {
	case e.Line > 0 && e.Column > 0:
		loc = fmt.Sprintf(" at line %d, column %d", e.Line, e.Column)
	case e.Line > 0:
		loc = fmt.Sprintf(" at line %d", e.Line)
	case e.Offset >= 0 && e.Path == "":
		loc = fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Path != "" {
		loc += fmt.Sprintf(" (path %s)", e.Path)
	}
	return fmt.Sprintf("%s parse error%s: %s", e.Format, loc, msg)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// StructureError reports a violated document-model invariant.
type StructureError struct {
	Path string
	Msg  string
}

func (e *StructureError) Error() string {
	if e.Path == "" {
		return "structure error: " + e.Msg
	}
	return fmt.Sprintf("structure error at %s: %s", e.Path, e.Msg)
}

func (e *StructureError) Is(target error) bool { return target == ErrStructure }

// Structuref builds a StructureError.
func Structuref(path, format string, args ...any) *StructureError {
	return &StructureError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// ShapeMismatchError reports a document whose shape the target format cannot hold.
type ShapeMismatchError struct {
	Format string
	Shape  string
	Path   string
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	s := fmt.Sprintf("shape mismatch: %s writer cannot encode %s", e.Format, e.Shape)
	if e.Path != "" {
		s += " at " + e.Path
	}
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// DepthExceededError reports nesting deeper than the configured limit.
type DepthExceededError struct {
	Format string
	Limit  int
	Path   string
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("%s nesting exceeds depth limit %d at %s", e.Format, e.Limit, e.Path)
}

func (e *DepthExceededError) Is(target error) bool { return target == ErrDepthExceeded }

// CryptoError reports a decryption or encryption failure: wrong key, corrupt or
// truncated ciphertext, or an unsupported header.
type CryptoError struct {
	Op        string
	Algorithm string
	Err       error
}

func (e *CryptoError) Error() string {
	if e.Algorithm != "" {
		return fmt.Sprintf("crypto %s (%s): %v", e.Op, e.Algorithm, e.Err)
	}
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error        { return e.Err }
func (e *CryptoError) Is(target error) bool { return target == ErrCrypto }

// CompressionError reports a corrupt or truncated archive.
type CompressionError struct {
	Op        string
	Algorithm string
	Err       error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Algorithm, e.Op, e.Err)
}

func (e *CompressionError) Unwrap() error        { return e.Err }
func (e *CompressionError) Is(target error) bool { return target == ErrCompression }

// IOError reports a failure of the underlying stream.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error        { return e.Err }
func (e *IOError) Is(target error) bool { return target == ErrIO }

// SerializeError reports a document a writer could not encode for reasons other
// than its shape (invalid XML name, non-finite float in JSON).
type SerializeError struct {
	Format string
	Path   string
	Msg    string
	Err    error
}

func (e *SerializeError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("%s serialize error at %s: %s", e.Format, e.Path, msg)
	}
	return fmt.Sprintf("%s serialize error: %s", e.Format, msg)
}

func (e *SerializeError) Unwrap() error        { return e.Err }
func (e *SerializeError) Is(target error) bool { return target == ErrSerialize }

// IsParse reports whether err is a ParseError.
func IsParse(err error) bool { return errors.Is(err, ErrParse) }

// IsCrypto reports whether err is a CryptoError.
func IsCrypto(err error) bool { return errors.Is(err, ErrCrypto) }

// IsCompression reports whether err is a CompressionError.
func IsCompression(err error) bool { return errors.Is(err, ErrCompression) }

// IsShapeMismatch reports whether err is a ShapeMismatchError.
func IsShapeMismatch(err error) bool { return errors.Is(err, ErrShapeMismatch) }
