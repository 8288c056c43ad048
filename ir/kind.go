package ir

import "fmt"

// Kind is the shape of a Node.
type Kind int

const (
	ScalarKind Kind = iota
	SequenceKind
	MappingKind
	TableKind
)

func (k Kind) String() string {
	switch k {
	case ScalarKind:
		return "scalar"
	case SequenceKind:
		return "sequence"
	case MappingKind:
		return "mapping"
	case TableKind:
		return "table"
	default:
		return "<unknown kind>"
	}
}

// Hint guides re-typing of a scalar's literal on write.
type Hint int

const (
	HintNull Hint = iota
	HintString
	HintInteger
	HintFloat
	HintBoolean
	HintDate
	HintBinary
)

var hintNames = map[Hint]string{
	HintNull:    "null",
	HintString:  "string",
	HintInteger: "integer",
	HintFloat:   "float",
	HintBoolean: "boolean",
	HintDate:    "date",
	HintBinary:  "binary",
}

func (h Hint) String() string {
	if s, ok := hintNames[h]; ok {
		return s
	}
	return "<unknown hint>"
}

func (h Hint) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hint) UnmarshalText(d []byte) error {
	hh, err := ParseHint(string(d))
	if err != nil {
		return err
	}
	*h = hh
	return nil
}

// ParseHint maps a hint name back to its Hint.
func ParseHint(s string) (Hint, error) {
	for h, name := range hintNames {
		if name == s {
			return h, nil
		}
	}
	return HintNull, fmt.Errorf("unrecognized hint %q", s)
}

// Hints lists every hint.
func Hints() []Hint {
	return []Hint{HintNull, HintString, HintInteger, HintFloat, HintBoolean, HintDate, HintBinary}
}
