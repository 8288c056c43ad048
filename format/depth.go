package format

import (
	"context"
	"errors"

	"github.com/gobeaver/convkit/errs"
)

// CheckDepth fails with DepthExceededError when depth is beyond limit. Readers
// call it on entering every container; the root container is depth 1.
func CheckDepth(formatName string, depth, limit int, path string) error {
	if depth > limit {
		if path == "" {
			path = "$"
		}
		return &errs.DepthExceededError{Format: formatName, Limit: limit, Path: path}
	}
	return nil
}

// SourceError classifies a failure of the stream a reader consumes. Errors that
// already belong to the taxonomy (a failed decryption or decompression stage) and
// context errors pass through; anything else becomes an IOError.
func SourceError(formatName string, err error) error {
	if errs.KindOf(err) != errs.KindUnknown || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &errs.IOError{Op: "read " + formatName, Err: err}
}

// ParseErrorAt builds a ParseError at a byte offset.
func ParseErrorAt(formatName string, offset int64, msg string, err error) *errs.ParseError {
	return &errs.ParseError{Format: formatName, Offset: offset, Msg: msg, Err: err}
}

// ParseErrorAtLine builds a ParseError at a line and column. The offset is
// unknown.
func ParseErrorAtLine(formatName string, line, column int, msg string, err error) *errs.ParseError {
	return &errs.ParseError{Format: formatName, Offset: -1, Line: line, Column: column, Msg: msg, Err: err}
}

// ParseErrorAtPath builds a ParseError for a well-formed input whose content at
// path cannot be represented.
func ParseErrorAtPath(formatName, path, msg string) *errs.ParseError {
	return &errs.ParseError{Format: formatName, Offset: -1, Path: path, Msg: msg}
}
