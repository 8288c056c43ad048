package convkit

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gobeaver/beaver-kit/config"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/schema"
	"github.com/gobeaver/convkit/transform"
)

// Global instance
var (
	defaultConverter *Converter
	defaultOnce      sync.Once
	defaultErr       error
)

// Builder provides a way to create Converter instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Init initializes the global Converter using the builder's prefix
func (b *Builder) Init() error {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return err
	}
	return Init(cfg)
}

// New creates a new Converter using the builder's prefix
func (b *Builder) New(opts ...ConverterOption) (*Converter, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Init initializes the global Converter
func Init(configs ...*Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultConverter, defaultErr = New(cfg)
	})

	return defaultErr
}

// New creates a Converter whose conversions default to the settings in cfg.
// The logger writes text to stderr at cfg's level unless opts replace it.
func New(cfg *Config, opts ...ConverterOption) (*Converter, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	defaults, err := defaultOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	base := []ConverterOption{
		WithLogger(logger),
		WithDefaults(defaults...),
		WithConcurrency(cfg.Concurrency),
	}
	return NewConverter(append(base, opts...)...), nil
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg.Store == "" {
		return errors.New("store is required")
	}
	if cfg.Store == "local" && cfg.LocalBasePath == "" {
		return errors.New("local base path is required for local store")
	}
	if cfg.Store == "s3" && cfg.S3Bucket == "" {
		return errors.New("bucket is required for s3 store")
	}
	if cfg.Store == "gcs" && cfg.GCSBucket == "" {
		return errors.New("bucket is required for gcs store")
	}
	if cfg.Store == "azure" && cfg.AzureContainerName == "" {
		return errors.New("container name is required for azure store")
	}
	if cfg.Store == "sftp" && cfg.SFTPHost == "" {
		return errors.New("host is required for sftp store")
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative (got %d)", cfg.PollInterval)
	}
	if cfg.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative (got %d)", cfg.MaxDepth)
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative (got %d)", cfg.Concurrency)
	}
	if cfg.Compression != "" && !strings.EqualFold(cfg.Compression, "none") {
		if _, err := transform.Lookup(cfg.Compression); err != nil {
			return err
		}
	}
	if cfg.Charset != "" {
		if _, err := lookupCharset(cfg.Charset); err != nil {
			return err
		}
	}
	if cfg.Schema != "" {
		if _, ok := schema.Lookup(cfg.Schema); !ok {
			return fmt.Errorf("%w %q", ErrUnknownSchema, cfg.Schema)
		}
	}
	if cfg.Encrypt && cfg.EncryptionKey == "" && cfg.EncryptionKeyID == "" {
		return errors.New("encryption needs a key or a key id")
	}
	return nil
}

// defaultOptions maps config to the options every conversion starts from
func defaultOptions(cfg *Config) ([]ConvertOption, error) {
	options := []ConvertOption{
		WithReadOptions(format.ReadOptions{MaxDepth: cfg.MaxDepth, RawStrings: cfg.RawStrings}),
		WithWriteOptions(format.WriteOptions{Pretty: cfg.Pretty, Flatten: cfg.Flatten}),
		WithStrict(cfg.Strict),
	}

	if cfg.Schema != "" {
		options = append(options, WithSchemaName(cfg.Schema))
	}
	if cfg.Compression != "" {
		options = append(options, WithCompression(cfg.Compression))
	}
	if cfg.Charset != "" {
		options = append(options, WithCharset(cfg.Charset))
	}

	if cfg.Checksums != "" {
		algorithms, err := ParseChecksums(cfg.Checksums)
		if err != nil {
			return nil, err
		}
		options = append(options, WithChecksums(algorithms...))
	}

	encryption, err := encryptionOptions(cfg)
	if err != nil {
		return nil, err
	}
	return append(options, encryption...), nil
}

// encryptionOptions turns the encryption settings into options. A configured
// key always enables decryption; Encrypt also seals the output.
func encryptionOptions(cfg *Config) ([]ConvertOption, error) {
	if cfg.EncryptionKey == "" && cfg.EncryptionKeyID == "" {
		return nil, nil
	}

	c, err := transform.ParseCipher(cfg.EncryptionCipher)
	if err != nil {
		return nil, err
	}
	kdf, err := transform.ParseKDF(cfg.EncryptionKDF)
	if err != nil {
		return nil, err
	}
	stage := []transform.EncryptionOption{transform.WithCipher(c), transform.WithKDF(kdf)}
	if cfg.ChunkSize > 0 {
		stage = append(stage, transform.WithChunkSize(cfg.ChunkSize))
	}

	if cfg.EncryptionKey == "" {
		options := []ConvertOption{WithDecryptionKeyID(cfg.EncryptionKeyID)}
		if cfg.Encrypt {
			options = append(options, WithEncryptionKeyID(cfg.EncryptionKeyID, stage...))
		}
		return options, nil
	}

	key, err := DecodeSecret(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if kdf == transform.KDFRaw && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (got %d bytes)", len(key))
	}
	options := []ConvertOption{WithDecryption(key)}
	if cfg.Encrypt {
		options = append(options, WithEncryption(key, stage...))
	}
	return options, nil
}

// Default returns the global instance, initializing if needed with error handling
func Default() (*Converter, error) {
	if defaultConverter == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return defaultConverter, nil
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultConverter = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}
