package transform

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/gobeaver/convkit/errs"
)

// EncryptedMagic starts every encrypted stream.
const EncryptedMagic = "CVKE"

const (
	formatVersion   = 1
	keySize         = 32
	saltSize        = 16
	noncePrefixSize = 7
	tagSize         = 16
	maxSaltSize     = 64

	// MinChunkSize and MaxChunkSize bound the chunk size accepted on both sides.
	MinChunkSize = 64
	MaxChunkSize = 16 << 20
)

// Default key-derivation costs.
const (
	DefaultPBKDF2Iterations = 600_000
	DefaultScryptLogN       = 15
	DefaultScryptR          = 8
	DefaultScryptP          = 1
	DefaultArgon2Time       = 3
	DefaultArgon2Memory     = 64 << 10 // KiB
	DefaultArgon2Threads    = 4
)

// Cipher identifies the AEAD used for chunks.
type Cipher byte

const (
	AES256GCM        Cipher = 1
	ChaCha20Poly1305 Cipher = 2
)

var cipherNames = map[Cipher]string{
	AES256GCM:        "aes-256-gcm",
	ChaCha20Poly1305: "chacha20-poly1305",
}

func (c Cipher) String() string {
	if s, ok := cipherNames[c]; ok {
		return s
	}
	return fmt.Sprintf("cipher(%d)", byte(c))
}

// ParseCipher parses a cipher name such as "aes-256-gcm".
func ParseCipher(s string) (Cipher, error) {
	for c, name := range cipherNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("transform: unknown cipher %q", s)
}

// KDF identifies how the chunk key is obtained from the secret.
type KDF byte

const (
	// KDFRaw uses the secret itself, which must be 32 bytes.
	KDFRaw KDF = iota
	KDFPBKDF2
	KDFScrypt
	KDFArgon2id
)

var kdfNames = map[KDF]string{
	KDFRaw:      "raw",
	KDFPBKDF2:   "pbkdf2",
	KDFScrypt:   "scrypt",
	KDFArgon2id: "argon2id",
}

// paramSize is the encoded size of each KDF's cost parameters.
var paramSize = map[KDF]int{
	KDFRaw:      0,
	KDFPBKDF2:   4,
	KDFScrypt:   9,
	KDFArgon2id: 9,
}

func (k KDF) String() string {
	if s, ok := kdfNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kdf(%d)", byte(k))
}

// ParseKDF parses a key-derivation name such as "argon2id".
func ParseKDF(s string) (KDF, error) {
	for k, name := range kdfNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("transform: unknown key derivation %q", s)
}

// EncryptionOption configures the encryption stage.
type EncryptionOption func(*encryptionConfig)

type encryptionConfig struct {
	cipher    Cipher
	kdf       KDF
	chunkSize int
	pbkdf2    uint32
	scryptN   uint8
	scryptR   uint32
	scryptP   uint32
	argonT    uint32
	argonM    uint32
	argonP    uint8
	rand      io.Reader
}

// WithCipher selects the AEAD. The default is AES-256-GCM.
func WithCipher(c Cipher) EncryptionOption {
	return func(cfg *encryptionConfig) { cfg.cipher = c }
}

// WithKDF selects the key derivation. The default is KDFRaw.
func WithKDF(k KDF) EncryptionOption {
	return func(cfg *encryptionConfig) { cfg.kdf = k }
}

// WithChunkSize sets the plaintext chunk size.
func WithChunkSize(n int) EncryptionOption {
	return func(cfg *encryptionConfig) { cfg.chunkSize = n }
}

// WithPBKDF2Iterations sets the PBKDF2-SHA256 iteration count.
func WithPBKDF2Iterations(n int) EncryptionOption {
	return func(cfg *encryptionConfig) {
		cfg.kdf = KDFPBKDF2
		if n < 0 {
			n = 0
		}
		cfg.pbkdf2 = uint32(n)
	}
}

// WithScrypt sets the scrypt cost: N = 2^logN.
func WithScrypt(logN uint8, r, p uint32) EncryptionOption {
	return func(cfg *encryptionConfig) {
		cfg.kdf = KDFScrypt
		cfg.scryptN, cfg.scryptR, cfg.scryptP = logN, r, p
	}
}

// WithArgon2id sets the Argon2id cost; memory is in KiB.
func WithArgon2id(time, memory uint32, threads uint8) EncryptionOption {
	return func(cfg *encryptionConfig) {
		cfg.kdf = KDFArgon2id
		cfg.argonT, cfg.argonM, cfg.argonP = time, memory, threads
	}
}

// header is the plaintext prefix of an encrypted stream. Its encoding is the
// additional data of every chunk.
//
//	magic "CVKE" | version | cipher | kdf | chunk size (u32) |
//	salt length | salt | params length | params | nonce prefix (7)
type header struct {
	cipher    Cipher
	kdf       KDF
	chunkSize uint32
	salt      []byte
	params    []byte
	prefix    [noncePrefixSize]byte
}

func (h *header) marshal() []byte {
	b := make([]byte, 0, 16+len(h.salt)+len(h.params)+noncePrefixSize)
	b = append(b, EncryptedMagic...)
	b = append(b, formatVersion, byte(h.cipher), byte(h.kdf))
	b = binary.BigEndian.AppendUint32(b, h.chunkSize)
	b = append(b, byte(len(h.salt)))
	b = append(b, h.salt...)
	b = append(b, byte(len(h.params)))
	b = append(b, h.params...)
	b = append(b, h.prefix[:]...)
	return b
}

func (cfg *encryptionConfig) params() []byte {
	switch cfg.kdf {
	case KDFPBKDF2:
		return binary.BigEndian.AppendUint32(nil, cfg.pbkdf2)
	case KDFScrypt:
		b := []byte{cfg.scryptN}
		b = binary.BigEndian.AppendUint32(b, cfg.scryptR)
		return binary.BigEndian.AppendUint32(b, cfg.scryptP)
	case KDFArgon2id:
		b := binary.BigEndian.AppendUint32(nil, cfg.argonT)
		b = binary.BigEndian.AppendUint32(b, cfg.argonM)
		return append(b, cfg.argonP)
	}
	return nil
}

// Encryption returns the encryption stage for secret. The decoder reads the
// cipher, key derivation and costs from the stream header, so only the
// secret has to match.
func Encryption(secret []byte, opts ...EncryptionOption) (Stage, error) {
	cfg := encryptionConfig{
		cipher:    AES256GCM,
		kdf:       KDFRaw,
		chunkSize: DefaultChunkSize,
		pbkdf2:    DefaultPBKDF2Iterations,
		scryptN:   DefaultScryptLogN,
		scryptR:   DefaultScryptR,
		scryptP:   DefaultScryptP,
		argonT:    DefaultArgon2Time,
		argonM:    DefaultArgon2Memory,
		argonP:    DefaultArgon2Threads,
		rand:      rand.Reader,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, ok := cipherNames[cfg.cipher]; !ok {
		return Stage{}, cryptoErr("configure", cfg.cipher, fmt.Errorf("unknown cipher %d", cfg.cipher))
	}
	if cfg.chunkSize < MinChunkSize || cfg.chunkSize > MaxChunkSize {
		return Stage{}, cryptoErr("configure", cfg.cipher, fmt.Errorf("chunk size %d outside [%d, %d]", cfg.chunkSize, MinChunkSize, MaxChunkSize))
	}
	if len(secret) == 0 {
		return Stage{}, cryptoErr("configure", cfg.cipher, errors.New("empty secret"))
	}
	if err := checkParams(cfg.kdf, cfg.params()); err != nil {
		return Stage{}, cryptoErr("configure", cfg.cipher, err)
	}
	if cfg.kdf == KDFRaw && len(secret) != keySize {
		return Stage{}, cryptoErr("configure", cfg.cipher, fmt.Errorf("raw key must be %d bytes, got %d", keySize, len(secret)))
	}
	secret = bytes.Clone(secret)

	return Stage{
		Name: "encryption",
		Kind: KindEncryption,
		Encoder: func(w io.Writer) (io.WriteCloser, error) {
			return newSealWriter(w, secret, &cfg)
		},
		Decoder: func(r io.Reader) (io.ReadCloser, error) {
			return newOpenReader(r, secret)
		},
	}, nil
}

// Decryption returns a stage for opening encrypted streams when only the
// secret is known. The cipher and key derivation come from the stream header.
// Its encoder treats a 32-byte secret as a raw key and anything else as a
// PBKDF2 password.
func Decryption(secret []byte) (Stage, error) {
	kdf := KDFPBKDF2
	if len(secret) == keySize {
		kdf = KDFRaw
	}
	return Encryption(secret, WithKDF(kdf))
}

// checkParams bounds KDF costs so that a hostile header cannot demand
// unbounded time or memory.
func checkParams(kdf KDF, p []byte) error {
	want, ok := paramSize[kdf]
	if !ok {
		return fmt.Errorf("unknown key derivation %d", kdf)
	}
	if len(p) != want {
		return fmt.Errorf("%s parameters are %d bytes, want %d", kdf, len(p), want)
	}
	switch kdf {
	case KDFPBKDF2:
		if n := binary.BigEndian.Uint32(p); n < 1 || n > 10_000_000 {
			return fmt.Errorf("pbkdf2 iterations %d out of range", n)
		}
	case KDFScrypt:
		logN, r, pp := p[0], binary.BigEndian.Uint32(p[1:5]), binary.BigEndian.Uint32(p[5:9])
		if logN < 1 || logN > 22 || r < 1 || r > 32 || pp < 1 || pp > 16 {
			return fmt.Errorf("scrypt cost logN=%d r=%d p=%d out of range", logN, r, pp)
		}
	case KDFArgon2id:
		t, m, threads := binary.BigEndian.Uint32(p[0:4]), binary.BigEndian.Uint32(p[4:8]), p[8]
		if t < 1 || t > 16 || m < 8 || m > 1<<20 || threads < 1 || threads > 64 {
			return fmt.Errorf("argon2id cost t=%d m=%d p=%d out of range", t, m, threads)
		}
	}
	return nil
}

func deriveKey(kdf KDF, secret, salt, p []byte) ([]byte, error) {
	switch kdf {
	case KDFRaw:
		if len(secret) != keySize {
			return nil, fmt.Errorf("raw key must be %d bytes, got %d", keySize, len(secret))
		}
		return secret, nil
	case KDFPBKDF2:
		return pbkdf2.Key(secret, salt, int(binary.BigEndian.Uint32(p)), keySize, sha256.New), nil
	case KDFScrypt:
		n := 1 << p[0]
		return scrypt.Key(secret, salt, n, int(binary.BigEndian.Uint32(p[1:5])), int(binary.BigEndian.Uint32(p[5:9])), keySize)
	case KDFArgon2id:
		return argon2.IDKey(secret, salt, binary.BigEndian.Uint32(p[0:4]), binary.BigEndian.Uint32(p[4:8]), p[8], keySize), nil
	}
	return nil, fmt.Errorf("unknown key derivation %d", kdf)
}

func newAEAD(c Cipher, key []byte) (cipher.AEAD, error) {
	switch c {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	}
	return nil, fmt.Errorf("unknown cipher %d", c)
}

// nonce is prefix || counter || last flag.
func nonce(prefix [noncePrefixSize]byte, counter uint32, last bool) []byte {
	n := make([]byte, 0, noncePrefixSize+5)
	n = append(n, prefix[:]...)
	n = binary.BigEndian.AppendUint32(n, counter)
	if last {
		return append(n, 1)
	}
	return append(n, 0)
}

func cryptoErr(op string, c Cipher, err error) error {
	algorithm := ""
	if c != 0 {
		algorithm = c.String()
	}
	return &errs.CryptoError{Op: op, Algorithm: algorithm, Err: err}
}

type sealWriter struct {
	w         io.Writer
	aead      cipher.AEAD
	cipher    Cipher
	ad        []byte
	prefix    [noncePrefixSize]byte
	chunkSize int
	buf       []byte
	out       []byte
	counter   uint32
	closed    bool
	err       error
}

func newSealWriter(w io.Writer, secret []byte, cfg *encryptionConfig) (*sealWriter, error) {
	h := &header{
		cipher:    cfg.cipher,
		kdf:       cfg.kdf,
		chunkSize: uint32(cfg.chunkSize),
		params:    cfg.params(),
	}
	if cfg.kdf != KDFRaw {
		h.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(cfg.rand, h.salt); err != nil {
			return nil, cryptoErr("encrypt", cfg.cipher, err)
		}
	}
	if _, err := io.ReadFull(cfg.rand, h.prefix[:]); err != nil {
		return nil, cryptoErr("encrypt", cfg.cipher, err)
	}
	key, err := deriveKey(h.kdf, secret, h.salt, h.params)
	if err != nil {
		return nil, cryptoErr("encrypt", cfg.cipher, err)
	}
	aead, err := newAEAD(h.cipher, key)
	if err != nil {
		return nil, cryptoErr("encrypt", cfg.cipher, err)
	}
	ad := h.marshal()
	if _, err := w.Write(ad); err != nil {
		return nil, err
	}
	return &sealWriter{
		w:         w,
		aead:      aead,
		cipher:    h.cipher,
		ad:        ad,
		prefix:    h.prefix,
		chunkSize: cfg.chunkSize,
		buf:       make([]byte, 0, cfg.chunkSize),
	}, nil
}

func (s *sealWriter) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.closed {
		return 0, cryptoErr("encrypt", s.cipher, errors.New("write after close"))
	}
	written := 0
	for len(p) > 0 {
		// A full buffer is sealed only once more data arrives, so that Close
		// always has a chunk to mark as last.
		if len(s.buf) == s.chunkSize {
			if err := s.seal(false); err != nil {
				s.err = err
				return written, err
			}
		}
		k := copy(s.buf[len(s.buf):s.chunkSize], p)
		s.buf = s.buf[:len(s.buf)+k]
		p = p[k:]
		written += k
	}
	return written, nil
}

func (s *sealWriter) seal(last bool) error {
	if !last && s.counter == math.MaxUint32 {
		return cryptoErr("encrypt", s.cipher, errors.New("stream exceeds the chunk counter"))
	}
	s.out = s.aead.Seal(s.out[:0], nonce(s.prefix, s.counter, last), s.buf, s.ad)
	if _, err := s.w.Write(s.out); err != nil {
		return err
	}
	s.counter++
	s.buf = s.buf[:0]
	return nil
}

// Close seals the final chunk. It does not close the underlying writer.
func (s *sealWriter) Close() error {
	if s.closed {
		return s.err
	}
	s.closed = true
	if s.err != nil {
		return s.err
	}
	s.err = s.seal(true)
	return s.err
}

type openReader struct {
	r       *bufio.Reader
	aead    cipher.AEAD
	cipher  Cipher
	ad      []byte
	prefix  [noncePrefixSize]byte
	in      []byte
	plain   []byte
	pos     int
	counter uint32
	done    bool
	err     error
}

var (
	errAuth      = errors.New("message authentication failed: wrong key or corrupted data")
	errTruncated = errors.New("stream is truncated")
)

func newOpenReader(r io.Reader, secret []byte) (*openReader, error) {
	br := bufio.NewReader(r)
	h, ad, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(h.kdf, secret, h.salt, h.params)
	if err != nil {
		return nil, cryptoErr("decrypt", h.cipher, err)
	}
	aead, err := newAEAD(h.cipher, key)
	if err != nil {
		return nil, cryptoErr("decrypt", h.cipher, err)
	}
	return &openReader{
		r:      br,
		aead:   aead,
		cipher: h.cipher,
		ad:     ad,
		prefix: h.prefix,
		in:     make([]byte, int(h.chunkSize)+tagSize),
	}, nil
}

func readHeader(r io.Reader) (*header, []byte, error) {
	var raw []byte
	read := func(n int) ([]byte, error) {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, cryptoErr("decrypt", 0, fmt.Errorf("header: %w", errTruncated))
			}
			return nil, err
		}
		raw = append(raw, b...)
		return b, nil
	}

	fixed, err := read(len(EncryptedMagic) + 3 + 4 + 1)
	if err != nil {
		return nil, nil, err
	}
	if string(fixed[:4]) != EncryptedMagic {
		return nil, nil, cryptoErr("decrypt", 0, errors.New("not an encrypted stream"))
	}
	if fixed[4] != formatVersion {
		return nil, nil, cryptoErr("decrypt", 0, fmt.Errorf("unsupported version %d", fixed[4]))
	}
	h := &header{cipher: Cipher(fixed[5]), kdf: KDF(fixed[6]), chunkSize: binary.BigEndian.Uint32(fixed[7:11])}
	if _, ok := cipherNames[h.cipher]; !ok {
		return nil, nil, cryptoErr("decrypt", 0, fmt.Errorf("unknown cipher %d", fixed[5]))
	}
	if h.chunkSize < MinChunkSize || h.chunkSize > MaxChunkSize {
		return nil, nil, cryptoErr("decrypt", h.cipher, fmt.Errorf("chunk size %d out of range", h.chunkSize))
	}
	saltLen := int(fixed[11])
	if saltLen > maxSaltSize {
		return nil, nil, cryptoErr("decrypt", h.cipher, fmt.Errorf("salt length %d out of range", saltLen))
	}
	if h.salt, err = read(saltLen); err != nil {
		return nil, nil, err
	}
	plen, err := read(1)
	if err != nil {
		return nil, nil, err
	}
	if h.params, err = read(int(plen[0])); err != nil {
		return nil, nil, err
	}
	if err := checkParams(h.kdf, h.params); err != nil {
		return nil, nil, cryptoErr("decrypt", h.cipher, err)
	}
	prefix, err := read(noncePrefixSize)
	if err != nil {
		return nil, nil, err
	}
	copy(h.prefix[:], prefix)
	return h, raw, nil
}

func (o *openReader) Read(p []byte) (int, error) {
	for o.pos >= len(o.plain) {
		if o.err != nil {
			return 0, o.err
		}
		if o.done {
			return 0, io.EOF
		}
		if err := o.next(); err != nil {
			o.err = err
		}
	}
	n := copy(p, o.plain[o.pos:])
	o.pos += n
	return n, nil
}

func (o *openReader) next() error {
	n, err := io.ReadFull(o.r, o.in)
	last := false
	switch {
	case err == nil:
		if _, perr := o.r.Peek(1); errors.Is(perr, io.EOF) {
			last = true
		} else if perr != nil {
			return perr
		}
	case errors.Is(err, io.ErrUnexpectedEOF):
		last = true
	case errors.Is(err, io.EOF):
		return cryptoErr("decrypt", o.cipher, errTruncated)
	default:
		return err
	}
	if n < tagSize {
		return cryptoErr("decrypt", o.cipher, errTruncated)
	}
	if !last && o.counter == math.MaxUint32 {
		return cryptoErr("decrypt", o.cipher, errors.New("stream exceeds the chunk counter"))
	}
	plain, err := o.aead.Open(o.plain[:0], nonce(o.prefix, o.counter, last), o.in[:n], o.ad)
	if err != nil {
		return cryptoErr("decrypt", o.cipher, errAuth)
	}
	o.counter++
	o.plain = plain
	o.pos = 0
	o.done = last
	return nil
}

// Close releases the reader. It does not close the source.
func (o *openReader) Close() error {
	o.done = true
	o.plain = nil
	o.pos = 0
	return nil
}

// withRand replaces the source of salts and nonce prefixes.
func withRand(r io.Reader) EncryptionOption {
	return func(cfg *encryptionConfig) { cfg.rand = r }
}
