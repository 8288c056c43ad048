package ir

import (
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gobeaver/convkit/errs"
)

// checkLiteral verifies that value is a legal literal for hint.
func checkLiteral(value string, hint Hint) error {
	switch hint {
	case HintNull:
		if value != "" {
			return errors.New("null scalar must have an empty literal")
		}
	case HintString:
	case HintInteger:
		if !IsIntegerLiteral(value) {
			return errors.New("not an integer literal")
		}
	case HintFloat:
		if _, err := strconv.ParseFloat(value, 64); err != nil && !errors.Is(err, strconv.ErrRange) {
			return errors.New("not a float literal")
		}
	case HintBoolean:
		if value != "true" && value != "false" {
			return errors.New("boolean literal must be true or false")
		}
	case HintDate:
		if !IsDateLiteral(value) {
			return errors.New("not an RFC 3339 date or date-time")
		}
	case HintBinary:
		if _, err := base64.StdEncoding.DecodeString(value); err != nil {
			return errors.New("binary literal is not standard base64")
		}
	default:
		return errors.New("unknown hint")
	}
	return nil
}

// NewScalar builds a Scalar, verifying that value is consistent with hint.
func NewScalar(value string, hint Hint) (Node, error) {
	if err := checkLiteral(value, hint); err != nil {
		return Node{}, errs.Structuref("", "scalar %q with hint %s: %v", value, hint, err)
	}
	return Node{kind: ScalarKind, value: value, hint: hint}, nil
}

// MustScalar is NewScalar that panics on error. For literals known to be valid.
func MustScalar(value string, hint Hint) Node {
	n, err := NewScalar(value, hint)
	if err != nil {
		panic(err)
	}
	return n
}

// Null returns the null scalar.
func Null() Node { return Node{} }

// String returns a string scalar.
func String(s string) Node { return Node{kind: ScalarKind, value: s, hint: HintString} }

// Int returns an integer scalar.
func Int(i int64) Node {
	return Node{kind: ScalarKind, value: strconv.FormatInt(i, 10), hint: HintInteger}
}

// Float returns a float scalar rendered with FormatFloat.
func Float(f float64) Node {
	return Node{kind: ScalarKind, value: FormatFloat(f), hint: HintFloat}
}

// Bool returns a boolean scalar.
func Bool(b bool) Node {
	return Node{kind: ScalarKind, value: strconv.FormatBool(b), hint: HintBoolean}
}

// Date returns a date scalar in RFC 3339 form.
func Date(t time.Time) Node {
	return Node{kind: ScalarKind, value: t.Format(time.RFC3339Nano), hint: HintDate}
}

// Binary returns a binary scalar holding the base64 encoding of b.
func Binary(b []byte) Node {
	return Node{kind: ScalarKind, value: base64.StdEncoding.EncodeToString(b), hint: HintBinary}
}

// IsIntegerLiteral reports whether s matches -?\d+.
func IsIntegerLiteral(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	return s != "" && allDigits(s)
}

// IsFloatLiteral reports whether s matches -?\d+\.\d+([eE][-+]?\d+)?.
func IsFloatLiteral(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	intPart, rest, ok := strings.Cut(s, ".")
	if !ok || intPart == "" || !allDigits(intPart) {
		return false
	}
	frac, exp, hasExp := strings.Cut(strings.Replace(rest, "E", "e", 1), "e")
	if frac == "" || !allDigits(frac) {
		return false
	}
	if !hasExp {
		return true
	}
	if exp != "" && (exp[0] == '+' || exp[0] == '-') {
		exp = exp[1:]
	}
	return exp != "" && allDigits(exp)
}

// IsDateLiteral reports whether s is an RFC 3339 date-time or a YYYY-MM-DD date.
func IsDateLiteral(s string) bool {
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return true
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Infer applies the shared inference policy to untyped text. It never fails and
// never yields null, date or binary.
func Infer(s string) Node {
	switch {
	case IsIntegerLiteral(s):
		return Node{kind: ScalarKind, value: s, hint: HintInteger}
	case IsFloatLiteral(s):
		return Node{kind: ScalarKind, value: s, hint: HintFloat}
	case strings.EqualFold(s, "true"):
		return Bool(true)
	case strings.EqualFold(s, "false"):
		return Bool(false)
	default:
		return String(s)
	}
}

// InferNullable is Infer except that the empty string is null. Tabular readers
// use it so that empty cells round-trip as nulls.
func InferNullable(s string) Node {
	if s == "" {
		return Null()
	}
	return Infer(s)
}

// Inferable reports whether Infer(n.Value()) restores n exactly, meaning an untyped
// writer need not record n's hint.
func Inferable(n Node) bool {
	if n.kind != ScalarKind {
		return false
	}
	inf := Infer(n.value)
	return inf.hint == n.hint && inf.value == n.value
}

// FormatFloat renders f so that the result matches the float inference pattern.
// Non-finite values render as +Inf, -Inf and NaN.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) <= 24 {
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s = strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	return mant + "e" + exp
}

// CanonicalFloat returns lit unchanged when it already matches the float
// inference pattern, otherwise its FormatFloat rendering.
func CanonicalFloat(lit string) (string, error) {
	if IsFloatLiteral(lit) {
		return lit, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return "", err
	}
	return FormatFloat(f), nil
}

// IsFinite reports whether a float literal denotes a finite value.
func IsFinite(lit string) bool {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
