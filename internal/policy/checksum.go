package policy

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeChecksum returns the hex-encoded SHA-256 checksum of the data
// section, as stored in the header.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateChecksum compares a computed checksum against the stored one.
// Returns ErrChecksumMismatch if they differ.
func ValidateChecksum(computed, stored string) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}
