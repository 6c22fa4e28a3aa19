package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenesisHash is the lastHash of a chain before any event is committed.
var GenesisHash = strings.Repeat("0", 64)

// Digest returns the FIPS 180-4 SHA-256 of a UTF-8 string as 64 lowercase
// hex characters. No truncation, no alternate endianness.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// IsHex64 reports whether s is a well-formed 64-char lowercase hex digest.
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
