package convkit

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// SecretProvider resolves encryption key ids to key material: a raw 32-byte
// key or a password.
type SecretProvider interface {
	Secret(ctx context.Context, keyID string) ([]byte, error)
}

// SecretFunc adapts a function to SecretProvider.
type SecretFunc func(ctx context.Context, keyID string) ([]byte, error)

func (f SecretFunc) Secret(ctx context.Context, keyID string) ([]byte, error) { return f(ctx, keyID) }

// StaticSecrets serves secrets from memory.
type StaticSecrets map[string][]byte

func (s StaticSecrets) Secret(_ context.Context, keyID string) ([]byte, error) {
	secret, ok := s[keyID]
	if !ok || len(secret) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoSecret, keyID)
	}
	return bytes.Clone(secret), nil
}

// EnvSecrets maps key ids to the environment variables holding them. Only
// the listed variables are read. A value prefixed with "base64:" is decoded;
// any other value is used as is.
//
//	secrets := convkit.EnvSecrets{"exports": "EXPORTS_KEY"}
type EnvSecrets map[string]string

func (s EnvSecrets) Secret(_ context.Context, keyID string) ([]byte, error) {
	name, ok := s[keyID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSecret, keyID)
	}
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil, fmt.Errorf("%w %q: %s is not set", ErrNoSecret, keyID, name)
	}
	return DecodeSecret(value)
}

// DecodeSecret decodes a configured secret: "base64:" values are standard
// base64, anything else is taken literally.
func DecodeSecret(value string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(value, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 secret: %w", err)
		}
		return b, nil
	}
	return []byte(value), nil
}

var (
	_ SecretProvider = StaticSecrets(nil)
	_ SecretProvider = EnvSecrets(nil)
	_ SecretProvider = SecretFunc(nil)
)
