package format

import "errors"

// ErrUnknownFormat is returned by Lookup for an unregistered name.
var ErrUnknownFormat = errors.New("unknown format")

// DefaultMaxDepth bounds nesting in hierarchical readers.
const DefaultMaxDepth = 500

// ReadOptions configures a Reader. Zero values select the defaults.
type ReadOptions struct {
	// MaxDepth bounds nesting for JSON, YAML and XML. Default DefaultMaxDepth.
	MaxDepth int

	// Delimiter is the CSV field separator. Default ','.
	Delimiter rune

	// Comment starts a CSV comment line when non-zero.
	Comment rune

	// LazyQuotes relaxes CSV quote handling.
	LazyQuotes bool

	// NoHeader treats the first CSV or sheet row as data; columns are named
	// column_1..column_n.
	NoHeader bool

	// RawStrings disables type inference for tabular and XML text; every
	// non-empty cell stays a string.
	RawStrings bool

	// Sheet selects the spreadsheet sheet. Default the first sheet.
	Sheet string

	// RecordPath is an XPath expression selecting XML record elements; the
	// document root becomes a Sequence of the matches.
	RecordPath string

	// KeepRoot keeps the XML root element as the single key of the root Mapping.
	KeepRoot bool
}

// Depth returns the effective depth limit.
func (o ReadOptions) Depth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// InferTypes reports whether untyped text should be inferred.
func (o ReadOptions) InferTypes() bool { return !o.RawStrings }

// Comma returns the effective CSV delimiter.
func (o ReadOptions) Comma() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// WriteOptions configures a Writer. Zero values select the defaults.
type WriteOptions struct {
	// Flatten lets tabular writers accept nested documents by flattening each
	// record with Flattener.
	Flatten bool

	// Flattener replaces the default dotted-path flattener.
	Flattener Flattener

	// Pretty enables indented JSON, XML and YAML output.
	Pretty bool

	// Indent is the indentation width for pretty output. Default 2.
	Indent int

	// Delimiter is the CSV field separator. Default ','.
	Delimiter rune

	// NoHeader omits the CSV header row.
	NoHeader bool

	// UseCRLF ends CSV lines with \r\n.
	UseCRLF bool

	// RootElement names the XML root element. Default "root".
	RootElement string

	// ItemElement names XML sequence item elements. Default "item".
	ItemElement string

	// Sheet names the spreadsheet sheet written. Default "Sheet1".
	Sheet string
}

// IndentWidth returns the effective indentation width.
func (o WriteOptions) IndentWidth() int {
	if o.Indent <= 0 {
		return 2
	}
	return o.Indent
}

// Comma returns the effective CSV delimiter.
func (o WriteOptions) Comma() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Root returns the effective XML root element name.
func (o WriteOptions) Root() string {
	if o.RootElement == "" {
		return "root"
	}
	return o.RootElement
}

// Item returns the effective XML item element name.
func (o WriteOptions) Item() string {
	if o.ItemElement == "" {
		return "item"
	}
	return o.ItemElement
}

// SheetName returns the effective sheet name.
func (o WriteOptions) SheetName() string {
	if o.Sheet == "" {
		return "Sheet1"
	}
	return o.Sheet
}

// GetFlattener returns the configured flattener or the dotted default.
func (o WriteOptions) GetFlattener() Flattener {
	if o.Flattener == nil {
		return DottedFlattener{}
	}
	return o.Flattener
}
