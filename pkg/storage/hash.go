package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns a stable digest of arbitrary text. It is used to detect
// whether cached chat history and summaries still match the current page's
// extracted text, without storing or comparing the full text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
