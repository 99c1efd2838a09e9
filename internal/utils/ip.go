package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashIP returns the hex SHA-256 of a client address so it can key
// per-client state without the raw address ever being stored.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
