// Package checksum computes stable fingerprints over declared migration
// content. The fingerprint is deterministic across processes and platforms;
// it is used to detect drift between registration and execution, not as a
// cryptographic signature.
package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Sum computes a deterministic fingerprint over an ordered list of fields.
// Each field is length-prefixed before hashing so that field boundaries are
// unambiguous ("ab","c" and "a","bc" produce different sums).
func Sum(fields ...string) string {
	h := sha256.New()

	var prefix [8]byte
	for _, field := range fields {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(field)))
		h.Write(prefix[:])
		h.Write([]byte(field))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// SumBytes computes the fingerprint of a raw artifact, such as a stored
// backup payload.
func SumBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Verify reports whether the recomputed fingerprint of fields matches want.
func Verify(want string, fields ...string) bool {
	return want != "" && Sum(fields...) == want
}
