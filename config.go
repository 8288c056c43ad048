package convkit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobeaver/beaver-kit/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Store to convert files in (local, memory, s3, gcs, azure, sftp)
	Store string `env:"CONVKIT_STORE,default:local" koanf:"store"`

	// Local store configuration
	LocalBasePath string `env:"CONVKIT_LOCAL_BASE_PATH,default:./data" koanf:"local_base_path"`

	// S3 store configuration
	S3Region          string `env:"CONVKIT_S3_REGION,default:us-east-1" koanf:"s3_region"`
	S3Bucket          string `env:"CONVKIT_S3_BUCKET" koanf:"s3_bucket"`
	S3Prefix          string `env:"CONVKIT_S3_PREFIX" koanf:"s3_prefix"`
	S3Endpoint        string `env:"CONVKIT_S3_ENDPOINT" koanf:"s3_endpoint"`
	S3AccessKeyID     string `env:"CONVKIT_S3_ACCESS_KEY_ID" koanf:"s3_access_key_id"`
	S3SecretAccessKey string `env:"CONVKIT_S3_SECRET_ACCESS_KEY" koanf:"s3_secret_access_key"`
	S3ForcePathStyle  bool   `env:"CONVKIT_S3_FORCE_PATH_STYLE,default:false" koanf:"s3_force_path_style"`

	// GCS store configuration; credentials come from GOOGLE_APPLICATION_CREDENTIALS
	GCSBucket string `env:"CONVKIT_GCS_BUCKET" koanf:"gcs_bucket"`
	GCSPrefix string `env:"CONVKIT_GCS_PREFIX" koanf:"gcs_prefix"`

	// Azure Blob Storage store configuration
	AzureAccountName   string `env:"CONVKIT_AZURE_ACCOUNT_NAME" koanf:"azure_account_name"`
	AzureAccountKey    string `env:"CONVKIT_AZURE_ACCOUNT_KEY" koanf:"azure_account_key"`
	AzureContainerName string `env:"CONVKIT_AZURE_CONTAINER_NAME" koanf:"azure_container_name"`
	AzurePrefix        string `env:"CONVKIT_AZURE_PREFIX" koanf:"azure_prefix"`
	AzureEndpoint      string `env:"CONVKIT_AZURE_ENDPOINT" koanf:"azure_endpoint"` // Optional custom endpoint

	// SFTP store configuration
	SFTPHost       string `env:"CONVKIT_SFTP_HOST" koanf:"sftp_host"`
	SFTPPort       int    `env:"CONVKIT_SFTP_PORT,default:22" koanf:"sftp_port"`
	SFTPUsername   string `env:"CONVKIT_SFTP_USERNAME" koanf:"sftp_username"`
	SFTPPassword   string `env:"CONVKIT_SFTP_PASSWORD" koanf:"sftp_password"`
	SFTPPrivateKey string `env:"CONVKIT_SFTP_PRIVATE_KEY" koanf:"sftp_private_key"` // Path to private key file
	SFTPKnownHosts string `env:"CONVKIT_SFTP_KNOWN_HOSTS" koanf:"sftp_known_hosts"` // Path to known_hosts file
	SFTPBasePath   string `env:"CONVKIT_SFTP_BASE_PATH" koanf:"sftp_base_path"`

	// Seconds between listings of stores without native change events
	PollInterval int `env:"CONVKIT_POLL_INTERVAL,default:30" koanf:"poll_interval"`

	// Reader limits
	MaxDepth   int  `env:"CONVKIT_MAX_DEPTH,default:500" koanf:"max_depth"`
	RawStrings bool `env:"CONVKIT_RAW_STRINGS,default:false" koanf:"raw_strings"`

	// Writer defaults
	Pretty  bool   `env:"CONVKIT_PRETTY,default:false" koanf:"pretty"`
	Flatten bool   `env:"CONVKIT_FLATTEN,default:false" koanf:"flatten"`
	Charset string `env:"CONVKIT_CHARSET" koanf:"charset"` // input charset, UTF-8 when empty

	// Validation
	Schema string `env:"CONVKIT_SCHEMA" koanf:"schema"` // registered schema name
	Strict bool   `env:"CONVKIT_STRICT,default:false" koanf:"strict"`

	// Output compression codec (gzip, zstd, xz, zip, none)
	Compression string `env:"CONVKIT_COMPRESSION" koanf:"compression"`

	// Encryption settings
	Encrypt          bool   `env:"CONVKIT_ENCRYPT,default:false" koanf:"encrypt"`
	EncryptionCipher string `env:"CONVKIT_ENCRYPTION_CIPHER,default:aes-256-gcm" koanf:"encryption_cipher"`
	EncryptionKDF    string `env:"CONVKIT_ENCRYPTION_KDF,default:raw" koanf:"encryption_kdf"`
	EncryptionKeyID  string `env:"CONVKIT_ENCRYPTION_KEY_ID" koanf:"encryption_key_id"`
	EncryptionKey    string `env:"CONVKIT_ENCRYPTION_KEY" koanf:"encryption_key"` // "base64:..." or a password
	ChunkSize        int    `env:"CONVKIT_CHUNK_SIZE,default:65536" koanf:"chunk_size"`

	// Checksums computed over every output, comma-separated or "all"
	Checksums string `env:"CONVKIT_CHECKSUMS,default:sha256" koanf:"checksums"`

	// Batch conversion
	Concurrency int `env:"CONVKIT_CONCURRENCY,default:4" koanf:"concurrency"`

	// Logging
	LogLevel string `env:"CONVKIT_LOG_LEVEL,default:info" koanf:"log_level"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile returns config loaded from the environment and then
// overridden by the keys present in the YAML file at path.
//
//	store: local
//	local_base_path: /srv/exports
//	compression: zstd
//	checksums: sha256,xxhash
func LoadConfigFile(path string) (*Config, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Level returns the configured log level, info when it is empty or unknown.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
