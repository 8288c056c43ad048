package convkit

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func defaultConfig() Config {
	return Config{
		Store:            "local",
		LocalBasePath:    "./data",
		S3Region:         "us-east-1",
		SFTPPort:         22,
		PollInterval:     30,
		MaxDepth:         500,
		EncryptionCipher: "aes-256-gcm",
		EncryptionKDF:    "raw",
		ChunkSize:        65536,
		Checksums:        "sha256",
		Concurrency:      4,
		LogLevel:         "info",
	}
}

func TestGetConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(*Config)
	}{
		{
			name:    "default values",
			envVars: map[string]string{},
			want:    func(*Config) {},
		},
		{
			name: "memory store",
			envVars: map[string]string{
				"BEAVER_CONVKIT_STORE": "memory",
			},
			want: func(c *Config) {
				c.Store = "memory"
			},
		},
		{
			name: "s3 store",
			envVars: map[string]string{
				"BEAVER_CONVKIT_STORE":                "s3",
				"BEAVER_CONVKIT_S3_REGION":            "eu-west-1",
				"BEAVER_CONVKIT_S3_BUCKET":            "exports",
				"BEAVER_CONVKIT_S3_PREFIX":            "daily",
				"BEAVER_CONVKIT_S3_ENDPOINT":          "http://localhost:9000",
				"BEAVER_CONVKIT_S3_FORCE_PATH_STYLE":  "true",
				"BEAVER_CONVKIT_S3_ACCESS_KEY_ID":     "minio",
				"BEAVER_CONVKIT_S3_SECRET_ACCESS_KEY": "minio123",
				"BEAVER_CONVKIT_POLL_INTERVAL":        "5",
			},
			want: func(c *Config) {
				c.Store = "s3"
				c.S3Region = "eu-west-1"
				c.S3Bucket = "exports"
				c.S3Prefix = "daily"
				c.S3Endpoint = "http://localhost:9000"
				c.S3ForcePathStyle = true
				c.S3AccessKeyID = "minio"
				c.S3SecretAccessKey = "minio123"
				c.PollInterval = 5
			},
		},
		{
			name: "gcs store",
			envVars: map[string]string{
				"BEAVER_CONVKIT_STORE":      "gcs",
				"BEAVER_CONVKIT_GCS_BUCKET": "exports",
				"BEAVER_CONVKIT_GCS_PREFIX": "nightly/",
			},
			want: func(c *Config) {
				c.Store = "gcs"
				c.GCSBucket = "exports"
				c.GCSPrefix = "nightly/"
			},
		},
		{
			name: "azure store",
			envVars: map[string]string{
				"BEAVER_CONVKIT_STORE":                "azure",
				"BEAVER_CONVKIT_AZURE_ACCOUNT_NAME":   "acme",
				"BEAVER_CONVKIT_AZURE_ACCOUNT_KEY":    "a2V5",
				"BEAVER_CONVKIT_AZURE_CONTAINER_NAME": "exports",
				"BEAVER_CONVKIT_AZURE_ENDPOINT":       "http://127.0.0.1:10000/acme",
			},
			want: func(c *Config) {
				c.Store = "azure"
				c.AzureAccountName = "acme"
				c.AzureAccountKey = "a2V5"
				c.AzureContainerName = "exports"
				c.AzureEndpoint = "http://127.0.0.1:10000/acme"
			},
		},
		{
			name: "sftp store",
			envVars: map[string]string{
				"BEAVER_CONVKIT_STORE":            "sftp",
				"BEAVER_CONVKIT_SFTP_HOST":        "files.example.com",
				"BEAVER_CONVKIT_SFTP_PORT":        "2222",
				"BEAVER_CONVKIT_SFTP_USERNAME":    "etl",
				"BEAVER_CONVKIT_SFTP_PRIVATE_KEY": "/keys/id_ed25519",
				"BEAVER_CONVKIT_SFTP_KNOWN_HOSTS": "/keys/known_hosts",
				"BEAVER_CONVKIT_SFTP_BASE_PATH":   "/upload",
			},
			want: func(c *Config) {
				c.Store = "sftp"
				c.SFTPHost = "files.example.com"
				c.SFTPPort = 2222
				c.SFTPUsername = "etl"
				c.SFTPPrivateKey = "/keys/id_ed25519"
				c.SFTPKnownHosts = "/keys/known_hosts"
				c.SFTPBasePath = "/upload"
			},
		},
		{
			name: "reader and writer options",
			envVars: map[string]string{
				"BEAVER_CONVKIT_LOCAL_BASE_PATH": "/srv/exports",
				"BEAVER_CONVKIT_MAX_DEPTH":       "64",
				"BEAVER_CONVKIT_RAW_STRINGS":     "true",
				"BEAVER_CONVKIT_PRETTY":          "true",
				"BEAVER_CONVKIT_FLATTEN":         "true",
				"BEAVER_CONVKIT_CHARSET":         "windows-1252",
				"BEAVER_CONVKIT_COMPRESSION":     "zstd",
			},
			want: func(c *Config) {
				c.LocalBasePath = "/srv/exports"
				c.MaxDepth = 64
				c.RawStrings = true
				c.Pretty = true
				c.Flatten = true
				c.Charset = "windows-1252"
				c.Compression = "zstd"
			},
		},
		{
			name: "validation",
			envVars: map[string]string{
				"BEAVER_CONVKIT_SCHEMA": "orders",
				"BEAVER_CONVKIT_STRICT": "true",
			},
			want: func(c *Config) {
				c.Schema = "orders"
				c.Strict = true
			},
		},
		{
			name: "encryption configuration",
			envVars: map[string]string{
				"BEAVER_CONVKIT_ENCRYPT":           "true",
				"BEAVER_CONVKIT_ENCRYPTION_CIPHER": "chacha20-poly1305",
				"BEAVER_CONVKIT_ENCRYPTION_KDF":    "argon2id",
				"BEAVER_CONVKIT_ENCRYPTION_KEY":    "correct horse",
				"BEAVER_CONVKIT_CHUNK_SIZE":        "4096",
			},
			want: func(c *Config) {
				c.Encrypt = true
				c.EncryptionCipher = "chacha20-poly1305"
				c.EncryptionKDF = "argon2id"
				c.EncryptionKey = "correct horse"
				c.ChunkSize = 4096
			},
		},
		{
			name: "batch and logging",
			envVars: map[string]string{
				"BEAVER_CONVKIT_CHECKSUMS":   "sha256,xxhash",
				"BEAVER_CONVKIT_CONCURRENCY": "16",
				"BEAVER_CONVKIT_LOG_LEVEL":   "debug",
			},
			want: func(c *Config) {
				c.Checksums = "sha256,xxhash"
				c.Concurrency = 16
				c.LogLevel = "debug"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := GetConfig()
			if err != nil {
				t.Fatalf("GetConfig() error = %v", err)
			}

			want := defaultConfig()
			tt.want(&want)
			if diff := cmp.Diff(want, *cfg); diff != "" {
				t.Errorf("GetConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convkit.yaml")
	data := []byte(`store: memory
compression: gzip
checksums: sha256,blake3
strict: true
concurrency: 2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BEAVER_CONVKIT_COMPRESSION", "zstd")
	t.Setenv("BEAVER_CONVKIT_PRETTY", "true")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}

	want := defaultConfig()
	want.Store = "memory"
	want.Compression = "gzip" // the file wins over the environment
	want.Checksums = "sha256,blake3"
	want.Strict = true
	want.Concurrency = 2
	want.Pretty = true
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("LoadConfigFile() mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestConfigLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.Level(); got != tt.want {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
		})
	}
}
