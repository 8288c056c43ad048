package transform

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gobeaver/convkit/errs"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func encryptionStage(t *testing.T, secret []byte, opts ...EncryptionOption) Stage {
	t.Helper()
	s, err := Encryption(secret, opts...)
	if err != nil {
		t.Fatalf("Encryption: %v", err)
	}
	return s
}

func TestEncryptionRoundTrip(t *testing.T) {
	configs := []struct {
		name   string
		secret []byte
		opts   []EncryptionOption
	}{
		{"aes raw", testKey, nil},
		{"chacha raw", testKey, []EncryptionOption{WithCipher(ChaCha20Poly1305)}},
		{"pbkdf2", []byte("pw"), []EncryptionOption{WithPBKDF2Iterations(1000)}},
		{"scrypt", []byte("pw"), []EncryptionOption{WithScrypt(4, 8, 1)}},
		{"argon2id", []byte("pw"), []EncryptionOption{WithArgon2id(1, 64, 1), WithCipher(ChaCha20Poly1305)}},
	}
	sizes := []int{0, 1, MinChunkSize - 1, MinChunkSize, MinChunkSize + 1, 3 * MinChunkSize, 1000}
	for _, cfg := range configs {
		p := mustPipeline(t, encryptionStage(t, cfg.secret, append(cfg.opts, WithChunkSize(MinChunkSize))...))
		for _, size := range sizes {
			data := bytes.Repeat([]byte{'z'}, size)
			encoded := encode(t, p, data)
			decoded, err := decode(p, encoded)
			if err != nil {
				t.Fatalf("%s/%d: %v", cfg.name, size, err)
			}
			if !bytes.Equal(decoded, data) {
				t.Errorf("%s/%d: round trip mismatch", cfg.name, size)
			}
		}
	}
}

func TestEncryptionDefaultChunkSize(t *testing.T) {
	p := mustPipeline(t, encryptionStage(t, testKey))
	data := payloads()["random"]
	decoded, err := decode(p, encode(t, p, data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("round trip mismatch")
	}
}

func TestEncryptionUsesFreshNonces(t *testing.T) {
	p := mustPipeline(t, encryptionStage(t, testKey))
	a := encode(t, p, []byte("same"))
	b := encode(t, p, []byte("same"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same data are identical")
	}
}

// Layout with a raw key and 64-byte chunks: a 20-byte header, then sealed
// chunks of 80 bytes; 200 bytes of input end with an 8-byte chunk sealed into 24.
const (
	headerLen   = 20
	sealedChunk = MinChunkSize + tagSize
)

func TestEncryptionDetectsTampering(t *testing.T) {
	p := mustPipeline(t, encryptionStage(t, testKey, WithChunkSize(MinChunkSize), withRand(bytes.NewReader(make([]byte, 64)))))
	data := bytes.Repeat([]byte("0123456789"), 20)
	encoded := encode(t, p, data)
	if len(encoded) != headerLen+3*sealedChunk+8+tagSize {
		t.Fatalf("unexpected layout: %d bytes", len(encoded))
	}

	mutate := func(f func(b []byte) []byte) []byte {
		return f(bytes.Clone(encoded))
	}
	cases := map[string][]byte{
		"wrong key":           nil,
		"truncated mid chunk": encoded[:len(encoded)-5],
		"final chunk dropped": encoded[:len(encoded)-(8+tagSize)],
		"header only":         encoded[:headerLen],
		"short header":        encoded[:10],
		"chunks swapped": mutate(func(b []byte) []byte {
			first := bytes.Clone(b[headerLen : headerLen+sealedChunk])
			copy(b[headerLen:], b[headerLen+sealedChunk:headerLen+2*sealedChunk])
			copy(b[headerLen+sealedChunk:], first)
			return b
		}),
		"flipped ciphertext":   mutate(func(b []byte) []byte { b[headerLen+3] ^= 1; return b }),
		"flipped nonce prefix": mutate(func(b []byte) []byte { b[headerLen-1] ^= 1; return b }),
		"trailing data":        append(bytes.Clone(encoded), 0),
		"not encrypted":        []byte("id,name\n1,Al\n"),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			dec := p
			if name == "wrong key" {
				input = encoded
				dec = mustPipeline(t, encryptionStage(t, bytes.Repeat([]byte{0x43}, 32)))
			}
			_, err := decode(dec, input)
			if !errors.Is(err, errs.ErrCrypto) {
				t.Errorf("err = %v, want CryptoError", err)
			}
		})
	}
}

func TestEncryptionWrongPassword(t *testing.T) {
	enc := mustPipeline(t, encryptionStage(t, []byte("right"), WithPBKDF2Iterations(1000)))
	dec := mustPipeline(t, encryptionStage(t, []byte("wrong"), WithPBKDF2Iterations(1000)))
	_, err := decode(dec, encode(t, enc, []byte("secret rows")))
	var cerr *errs.CryptoError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CryptoError", err)
	}
	if cerr.Algorithm != "aes-256-gcm" {
		t.Errorf("Algorithm = %q", cerr.Algorithm)
	}
}

func TestDecryptionReadsHeader(t *testing.T) {
	tests := []struct {
		name   string
		secret []byte
		opts   []EncryptionOption
	}{
		{"raw key", testKey, []EncryptionOption{WithCipher(ChaCha20Poly1305)}},
		{"password", []byte("pw"), []EncryptionOption{WithScrypt(4, 8, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := mustPipeline(t, encryptionStage(t, tt.secret, tt.opts...))
			st, err := Decryption(tt.secret)
			if err != nil {
				t.Fatal(err)
			}
			decoded, err := decode(mustPipeline(t, st), encode(t, enc, []byte("rows")))
			if err != nil {
				t.Fatal(err)
			}
			if string(decoded) != "rows" {
				t.Errorf("decoded %q", decoded)
			}
		})
	}
}

func TestEncryptionConfigErrors(t *testing.T) {
	tests := map[string]struct {
		secret []byte
		opts   []EncryptionOption
	}{
		"short raw key":   {[]byte("short"), nil},
		"empty secret":    {nil, []EncryptionOption{WithKDF(KDFPBKDF2)}},
		"tiny chunks":     {testKey, []EncryptionOption{WithChunkSize(8)}},
		"unknown cipher":  {testKey, []EncryptionOption{WithCipher(9)}},
		"zero iterations": {[]byte("pw"), []EncryptionOption{WithPBKDF2Iterations(0)}},
		"huge argon2":     {[]byte("pw"), []EncryptionOption{WithArgon2id(1, 1<<30, 1)}},
	}
	for name, tt := range tests {
		if _, err := Encryption(tt.secret, tt.opts...); !errors.Is(err, errs.ErrCrypto) {
			t.Errorf("%s: err = %v, want CryptoError", name, err)
		}
	}
}

func TestParseNames(t *testing.T) {
	if c, err := ParseCipher("ChaCha20-Poly1305"); err != nil || c != ChaCha20Poly1305 {
		t.Errorf("ParseCipher = %v, %v", c, err)
	}
	if k, err := ParseKDF("argon2id"); err != nil || k != KDFArgon2id {
		t.Errorf("ParseKDF = %v, %v", k, err)
	}
	if _, err := ParseCipher("rot13"); err == nil {
		t.Error("ParseCipher accepted rot13")
	}
}
