// Package schema validates convkit documents against declarative schemas.
//
// A schema is itself a document, usually JSON or YAML, with a JSON-Schema-like
// vocabulary:
//
//	type: object
//	required: [name, age]
//	properties:
//	  name: {type: string, minLength: 1}
//	  age:  {type: integer, minimum: 0}
//
// Supported keywords are type, properties, required, additionalProperties,
// items, minItems, maxItems, minimum, maximum, exclusiveMinimum,
// exclusiveMaximum, minLength, maxLength, pattern, enum and requiredColumns.
// Unknown keywords such as title or description are ignored.
//
// Validation never stops at the first violation unless asked to with FailFast
// or MaxViolations. Tables are validated row by row, so a streaming table is
// checked as it is read; RowValidator exposes the same checks to callers that
// pull the rows themselves.
//
// Compiled schemas are immutable and safe for concurrent use.
package schema
