package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserKey maps a caller-supplied user ID to a stable hex identifier that
// is safe inside storage keys regardless of what the header contained.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
