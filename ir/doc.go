// Package ir is the format-agnostic document model every convkit adapter reads
// into and writes from.
//
// A [Node] is a closed tagged union over four shapes:
//
//   - Scalar: a leaf holding its byte-exact literal text and a [Hint]
//     (string, integer, float, boolean, null, date, binary)
//   - Sequence: an ordered list of nodes
//   - Mapping: an ordered list of unique-key entries
//   - Table: named columns plus rows of scalars, optionally streamed
//
// Constructors enforce the invariants (unique mapping keys, rows as wide as the
// column list, hints consistent with literals) and fail with *errs.StructureError,
// so a Node that exists is well formed. Nodes are immutable: accessors hand out
// copies and no function in this package mutates a node after construction.
//
// # Streaming tables
//
// Tabular readers produce tables whose rows are pulled lazily through a
// [RowIterator]. Such a table is single pass: the first call to [Table.Rows]
// hands out the iterator, later calls fail with [ErrConsumed]. Closing the
// iterator releases the underlying source.
//
// # Type inference
//
// Untyped sources (CSV, spreadsheets, XML text) recover hints through one shared
// policy, [Infer]: integer if the text matches -?\d+, float if it matches
// -?\d+\.\d+([eE][-+]?\d+)?, boolean for true/false in any case, string otherwise.
// Writers render floats through [FormatFloat] so that a float always re-infers as
// a float.
package ir
