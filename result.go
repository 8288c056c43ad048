package convkit

import (
	"fmt"
	"math"
	"time"

	"github.com/gobeaver/convkit/schema"
)

// Result describes a committed conversion.
type Result struct {
	// ID identifies the conversion in logs.
	ID string

	From string
	To   string

	// Report holds the validation violations when a schema was set and the
	// conversion was not strict, or was strict and found none.
	Report *schema.Report

	// Rows is the number of records written: table rows, sequence items, or
	// one for any other non-null document.
	Rows int64

	// BytesRead counts the raw input bytes, before decryption and
	// decompression. BytesWritten counts the bytes handed to the sink.
	BytesRead    int64
	BytesWritten int64

	Elapsed time.Duration

	// Stages times the steps of the conversion in order. "write" includes the
	// reading and validation of streamed rows.
	Stages []StageTiming

	// Checksums holds the requested hex digests of the bytes handed to the
	// sink.
	Checksums map[ChecksumAlgorithm]string
}

// StageTiming is how long one step of a conversion took.
type StageTiming struct {
	Name string
	Took time.Duration
}

// Stage returns the time spent in the named step.
func (r *Result) Stage(name string) (time.Duration, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s.Took, true
		}
	}
	return 0, false
}

// Valid reports whether the document passed validation or was not validated.
func (r *Result) Valid() bool {
	return r.Report == nil || r.Report.Valid()
}

// Summary returns a human-readable summary of the conversion
func (r *Result) Summary() string {
	mark := "✓"
	if !r.Valid() {
		mark = "✗"
	}
	s := fmt.Sprintf("%s %s -> %s: %d rows, %s read, %s written in %v",
		mark, r.From, r.To, r.Rows,
		formatSize(r.BytesRead), formatSize(r.BytesWritten),
		r.Elapsed.Round(time.Microsecond),
	)
	if !r.Valid() {
		s += "; " + r.Report.Summary()
	}
	return s
}

func (r *Result) addStage(name string, start time.Time) {
	r.Stages = append(r.Stages, StageTiming{Name: name, Took: time.Since(start)})
}

const (
	kb = 1024
	mb = 1024 * kb
	gb = 1024 * mb
)

func formatSize(size int64) string {
	unit, div := "", float64(1)
	switch {
	case size < kb:
		return fmt.Sprintf("%d B", size)
	case size < mb:
		unit, div = "KB", kb
	case size < gb:
		unit, div = "MB", mb
	default:
		unit, div = "GB", gb
	}
	// Round to 1 decimal place
	rounded := math.Round(float64(size)/div*10) / 10
	if rounded == math.Trunc(rounded) {
		return fmt.Sprintf("%.0f %s", rounded, unit)
	}
	return fmt.Sprintf("%.1f %s", rounded, unit)
}
