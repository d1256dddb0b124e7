package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenByteLength gives 256 bits of entropy per verification token.
const TokenByteLength = 32

// RandomURLSafeToken returns n random bytes encoded as unpadded base64url.
func RandomURLSafeToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
