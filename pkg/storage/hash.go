package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SummaryHash returns a stable, content-addressed hex digest used to key
// dedup checks (e.g. a redacted text summary) without persisting the raw
// text twice.
func SummaryHash(text string) string {
	trimmed := strings.TrimSpace(text)
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}
