// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// ChunkID generates a deterministic chunk ID from an entity key, chunk type
// and sequence number. Re-ingesting the same document yields the same ids,
// which keeps duplicate dispatcher deliveries idempotent.
func ChunkID(entityKey, chunkType string, seq int) string {
	return SHA256Short([]byte(fmt.Sprintf("%s:%s:%d", entityKey, chunkType, seq)), 16)
}

// DocumentID generates a deterministic document ID from a source name and
// content hash.
func DocumentID(source, contentHash string) string {
	return SHA256Short([]byte(source+":"+contentHash), 16)
}
