package convkit

import (
	"context"
	"crypto/md5"  //nolint:gosec // MD5 used for checksum verification, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for checksum verification, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// ErrUnsupportedChecksum is returned for an unknown checksum algorithm.
var ErrUnsupportedChecksum = errors.New("unsupported checksum algorithm")

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm (128-bit, fast but not cryptographically secure)
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA1 is the SHA-1 hash algorithm (160-bit, legacy)
	ChecksumSHA1 ChecksumAlgorithm = "sha1"
	// ChecksumSHA256 is the SHA-256 hash algorithm (256-bit, recommended)
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumSHA512 is the SHA-512 hash algorithm (512-bit)
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	// ChecksumCRC32 is the CRC32 checksum (32-bit, for integrity only)
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the xxHash algorithm (64-bit, extremely fast)
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
	// ChecksumBLAKE3 is the BLAKE3 hash (256-bit, fast and cryptographically secure)
	ChecksumBLAKE3 ChecksumAlgorithm = "blake3"
)

// ChecksumAlgorithms lists every supported algorithm.
func ChecksumAlgorithms() []ChecksumAlgorithm {
	return []ChecksumAlgorithm{
		ChecksumMD5, ChecksumSHA1, ChecksumSHA256, ChecksumSHA512,
		ChecksumCRC32, ChecksumXXHash, ChecksumBLAKE3,
	}
}

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumMD5:
		return md5.New(), nil //nolint:gosec // MD5 used for checksum verification, not security
	case ChecksumSHA1:
		return sha1.New(), nil //nolint:gosec // SHA1 used for checksum verification, not security
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	case ChecksumBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChecksum, algorithm)
	}
}

// ParseChecksums parses a comma-separated algorithm list such as
// "sha256,xxhash". Blank entries are skipped; "all" selects every algorithm.
func ParseChecksums(list string) ([]ChecksumAlgorithm, error) {
	var out []ChecksumAlgorithm
	seen := make(map[ChecksumAlgorithm]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			return ChecksumAlgorithms(), nil
		}
		algo := ChecksumAlgorithm(part)
		if _, err := NewHasher(algo); err != nil {
			return nil, err
		}
		if !seen[algo] {
			seen[algo] = true
			out = append(out, algo)
		}
	}
	return out, nil
}

// multiHasher feeds every byte written to a set of hashers.
type multiHasher struct {
	hashers map[ChecksumAlgorithm]hash.Hash
	w       io.Writer
}

func newMultiHasher(algorithms []ChecksumAlgorithm) (*multiHasher, error) {
	hashers := make(map[ChecksumAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, algo := range algorithms {
		if _, dup := hashers[algo]; dup {
			continue
		}
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		hashers[algo] = h
		writers = append(writers, h)
	}
	return &multiHasher{hashers: hashers, w: io.MultiWriter(writers...)}, nil
}

func (m *multiHasher) Write(p []byte) (int, error) { return m.w.Write(p) }

func (m *multiHasher) sums() map[ChecksumAlgorithm]string {
	if len(m.hashers) == 0 {
		return nil
	}
	results := make(map[ChecksumAlgorithm]string, len(m.hashers))
	for algo, h := range m.hashers {
		results[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return results
}

// CalculateChecksum reads from the reader and calculates the checksum using
// the specified algorithm. Returns the hex-encoded checksum string.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	sums, err := CalculateChecksums(r, []ChecksumAlgorithm{algorithm})
	if err != nil {
		return "", err
	}
	return sums[algorithm], nil
}

// CalculateChecksums reads from the reader and calculates multiple checksums
// in a single pass. Returns a map of algorithm to hex-encoded checksum.
func CalculateChecksums(r io.Reader, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("no algorithms specified")
	}
	m, err := newMultiHasher(algorithms)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(m, r); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}
	return m.sums(), nil
}

// VerifyChecksum reads a stored file and reports whether its checksum matches
// the expected hex value, for example one recorded in a Result.
func VerifyChecksum(ctx context.Context, store Store, path, expected string, algorithm ChecksumAlgorithm) (bool, error) {
	rc, err := store.Open(ctx, path)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	actual, err := CalculateChecksum(rc, algorithm)
	if err != nil {
		return false, &PathError{Op: "checksum", Path: path, Err: err}
	}
	return strings.EqualFold(actual, expected), nil
}
