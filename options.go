package convkit

import (
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/schema"
	"github.com/gobeaver/convkit/transform"
)

// ConvertOption configures one conversion.
type ConvertOption func(*Options)

// Options contains everything a conversion can be configured with. Zero
// values select the defaults: no validation, no compression, no encryption,
// UTF-8 text and no row limit.
type Options struct {
	// Schema validates the document after reading.
	Schema *schema.Schema

	// SchemaName looks the schema up in the schema registry when Schema is nil.
	SchemaName string

	// Strict aborts the conversion with a ValidationFailedError on the first
	// reported violation. Without it the report is attached to the Result.
	Strict bool

	// Validation tunes the validator (fail fast, violation limit).
	Validation []schema.Option

	// Compression names the codec applied to the output, e.g. "gzip".
	Compression string

	// InputCompression names the codec the input is wrapped in. Empty detects
	// it from the leading bytes; "none" disables detection.
	InputCompression string

	// Encryption seals the output.
	Encryption *EncryptionOptions

	// Decryption opens encrypted input. Input that looks encrypted fails with
	// a CryptoError when it is not set.
	Decryption *EncryptionOptions

	// Read and Write are passed to the format adapters.
	Read  format.ReadOptions
	Write format.WriteOptions

	// Checksums lists the digests computed over the bytes handed to the sink.
	Checksums []ChecksumAlgorithm

	// Charset decodes text input to UTF-8; OutputCharset encodes text output.
	// Names are WHATWG labels such as "windows-1252" or "shift_jis".
	Charset       string
	OutputCharset string

	// MaxRows keeps the first MaxRows records of a table or sequence.
	MaxRows int

	// ColumnMapping renames table columns and record keys.
	ColumnMapping map[string]string
}

// EncryptionOptions holds key material, or the id a SecretProvider resolves
// to key material, plus the stage settings.
type EncryptionOptions struct {
	// Secret is a raw 32-byte key or a password.
	Secret []byte

	// KeyID is resolved through the converter's SecretProvider when Secret is
	// empty.
	KeyID string

	// Stage configures the cipher, key derivation and chunk size.
	Stage []transform.EncryptionOption
}

// WithSchema validates the document against s.
func WithSchema(s *schema.Schema) ConvertOption {
	return func(o *Options) {
		o.Schema = s
	}
}

// WithSchemaName validates the document against a registered schema.
func WithSchemaName(name string) ConvertOption {
	return func(o *Options) {
		o.Schema = nil
		o.SchemaName = name
	}
}

// WithStrict makes violations abort the conversion.
func WithStrict(strict bool) ConvertOption {
	return func(o *Options) {
		o.Strict = strict
	}
}

// WithValidation sets validator options such as schema.FailFast.
func WithValidation(opts ...schema.Option) ConvertOption {
	return func(o *Options) {
		o.Validation = opts
	}
}

// WithCompression compresses the output with the named codec. The empty name
// disables compression.
func WithCompression(name string) ConvertOption {
	return func(o *Options) {
		o.Compression = name
	}
}

// WithInputCompression declares the codec wrapping the input.
func WithInputCompression(name string) ConvertOption {
	return func(o *Options) {
		o.InputCompression = name
	}
}

// WithEncryption encrypts the output with secret, a raw 32-byte key or a
// password. Passwords need a key derivation, e.g.
// transform.WithKDF(transform.KDFArgon2id).
func WithEncryption(secret []byte, opts ...transform.EncryptionOption) ConvertOption {
	return func(o *Options) {
		o.Encryption = &EncryptionOptions{Secret: secret, Stage: opts}
	}
}

// WithEncryptionKeyID encrypts the output with the secret registered under
// keyID.
func WithEncryptionKeyID(keyID string, opts ...transform.EncryptionOption) ConvertOption {
	return func(o *Options) {
		o.Encryption = &EncryptionOptions{KeyID: keyID, Stage: opts}
	}
}

// WithDecryption decrypts encrypted input with secret.
func WithDecryption(secret []byte) ConvertOption {
	return func(o *Options) {
		o.Decryption = &EncryptionOptions{Secret: secret}
	}
}

// WithDecryptionKeyID decrypts encrypted input with the secret registered
// under keyID.
func WithDecryptionKeyID(keyID string) ConvertOption {
	return func(o *Options) {
		o.Decryption = &EncryptionOptions{KeyID: keyID}
	}
}

// WithReadOptions sets the reader options.
func WithReadOptions(opts format.ReadOptions) ConvertOption {
	return func(o *Options) {
		o.Read = opts
	}
}

// WithWriteOptions sets the writer options.
func WithWriteOptions(opts format.WriteOptions) ConvertOption {
	return func(o *Options) {
		o.Write = opts
	}
}

// WithFlatten lets tabular writers accept nested documents.
func WithFlatten(flatten bool) ConvertOption {
	return func(o *Options) {
		o.Write.Flatten = flatten
	}
}

// WithChecksums computes the given digests of the output.
func WithChecksums(algorithms ...ChecksumAlgorithm) ConvertOption {
	return func(o *Options) {
		o.Checksums = algorithms
	}
}

// WithCharset decodes the input from the named character set.
func WithCharset(name string) ConvertOption {
	return func(o *Options) {
		o.Charset = name
	}
}

// WithOutputCharset encodes the output in the named character set.
func WithOutputCharset(name string) ConvertOption {
	return func(o *Options) {
		o.OutputCharset = name
	}
}

// WithMaxRows keeps at most n records. n <= 0 keeps all of them.
func WithMaxRows(n int) ConvertOption {
	return func(o *Options) {
		o.MaxRows = n
	}
}

// WithColumnMapping renames columns and record keys, old name to new name.
func WithColumnMapping(mapping map[string]string) ConvertOption {
	return func(o *Options) {
		o.ColumnMapping = mapping
	}
}
