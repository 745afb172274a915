package utils

import (
	cryptoRand "crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateTokenValue generates a cryptographically strong 256-bit random
// value, hex-encoded (64 characters). It is used for single-use check-in
// tokens presented as QR/NFC payloads.
func GenerateTokenValue() string {
	buf := make([]byte, 32)
	if _, err := cryptoRand.Read(buf); err != nil {
		// crypto/rand failure indicates a serious system problem (e.g.,
		// /dev/urandom unavailable). Falling back to a weaker source would
		// undermine the single-use credential guarantee, so fail loudly.
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return hex.EncodeToString(buf)
}
