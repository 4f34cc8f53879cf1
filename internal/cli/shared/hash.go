package shared

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	DigestAlgorithmBLAKE3 = "blake3"
	DigestAlgorithmSHA256 = "sha256"
	DigestAlgorithmMD5    = "md5"
)

// SHA256Hex returns lowercase hex encoded digest for content.
func SHA256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// BLAKE3Hex returns lowercase hex encoded digest for content.
func BLAKE3Hex(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// MD5Hex returns lowercase hex encoded digest for content.
func MD5Hex(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// NewHasher returns a streaming hash for algorithm.
func NewHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case DigestAlgorithmBLAKE3:
		return blake3.New(), nil
	case DigestAlgorithmSHA256:
		return sha256.New(), nil
	case DigestAlgorithmMD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// Checksum is a parsed "algorithm:hex" integrity marker.
type Checksum struct {
	Algorithm string
	Digest    string
}

func (c Checksum) IsZero() bool {
	return c.Algorithm == ""
}

func (c Checksum) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Algorithm + ":" + c.Digest
}

// ParseChecksum parses value as "algorithm:hex". An empty value yields a
// zero Checksum.
func ParseChecksum(value string) (Checksum, error) {
	raw := strings.TrimSpace(strings.ToLower(value))
	if raw == "" {
		return Checksum{}, nil
	}
	algorithm, digest, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(algorithm) == "" || strings.TrimSpace(digest) == "" {
		return Checksum{}, fmt.Errorf("invalid checksum format %q", value)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return Checksum{}, fmt.Errorf("invalid checksum hex %q", value)
	}
	h, err := NewHasher(algorithm)
	if err != nil {
		return Checksum{}, err
	}
	if len(digest) != 2*h.Size() {
		return Checksum{}, fmt.Errorf("invalid checksum %q: %s digests are %d hex characters", value, algorithm, 2*h.Size())
	}
	return Checksum{Algorithm: algorithm, Digest: digest}, nil
}
