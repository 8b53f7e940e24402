package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Checksum produces content hashes for address derivation. The hash always
// covers the logical payload bytes, never a compressed encoding.
type Checksum interface {
	Name() string
	NewHasher() HashWriter
}

// HashWriter accumulates payload bytes and yields the hex digest.
type HashWriter interface {
	Write(p []byte) (n int, err error)
	Sum() string
}

// HashHexLength is the length of a hex-encoded SHA-256 content hash.
const HashHexLength = sha256.Size * 2

// sha256Checksum implements Checksum using SHA-256.
type sha256Checksum struct{}

// NewSHA256Checksum creates the SHA-256 checksum component. SHA-256 produces
// 256-bit hashes represented as 64 hex characters.
func NewSHA256Checksum() Checksum {
	return &sha256Checksum{}
}

func (c *sha256Checksum) Name() string {
	return "sha256"
}

func (c *sha256Checksum) NewHasher() HashWriter {
	return &hashWriter{h: sha256.New()}
}

// hashWriter wraps a hash.Hash to implement HashWriter.
type hashWriter struct {
	h hash.Hash
}

func (hw *hashWriter) Write(p []byte) (n int, err error) {
	return hw.h.Write(p)
}

func (hw *hashWriter) Sum() string {
	return hex.EncodeToString(hw.h.Sum(nil))
}

// HashBytes returns the lowercase hex SHA-256 digest of payload.
func HashBytes(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
