package capability

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/koustreak/capcache/internal/errs"
)

// Key is the printable digest a configuration string is cached under.
// The configuration string itself is never stored.
type Key string

// Hasher turns configuration bytes into a Key. A nil Hasher means no
// hashing facility is available and nothing is cached.
type Hasher func(b []byte) Key

// SHA1 hashes b to a 40-character lowercase hex key.
func SHA1(b []byte) Key {
	sum := sha1.Sum(b)
	return Key(hex.EncodeToString(sum[:]))
}

// SHA256 hashes b to a 64-character lowercase hex key.
func SHA256(b []byte) Key {
	sum := sha256.Sum256(b)
	return Key(hex.EncodeToString(sum[:]))
}

// HasherFor resolves a configured algorithm name. "none" yields a nil
// Hasher, which disables caching.
func HasherFor(algorithm string) (Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "none":
		return nil, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown hash algorithm %q", algorithm)
	}
}

// HashKey derives the default (SHA-1) key for a configuration string.
func HashKey(configString string) (Key, bool) {
	return hashWith(SHA1, []byte(configString))
}

// HashKeyBytes is HashKey for already-encoded configuration text.
func HashKeyBytes(b []byte) (Key, bool) {
	return hashWith(SHA1, b)
}

func hashWith(h Hasher, b []byte) (Key, bool) {
	if h == nil {
		return "", false
	}
	return h(b), true
}

// Short returns the leading characters of the key for log lines.
func (k Key) Short() string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}
