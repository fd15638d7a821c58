// Package photoid provides a deterministic photo ID from a library file path.
package photoid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "photo:"

// FromPath returns a stable photo ID for the given absolute path.
// Same path always yields the same ID, so re-indexing, similarity queries,
// and deletion by path all resolve to the same record.
func FromPath(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ContentHash returns the hex sha256 of the raw image bytes, used to detect
// content changes independently of file timestamps.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
