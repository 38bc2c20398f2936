// internal/content/content.go
package content

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex-encoded sha256 digest of content. It is the single
// equality proxy used for dedup and drift detection everywhere else.
func Hash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// IsValidHash checks that hash looks like a sha256 hex digest.
func IsValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
