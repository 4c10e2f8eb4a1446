package workspace

import (
	"crypto/rand"
	"fmt"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	// maxCodeAttempts caps uniqueness retries. With 36^6 possible codes the
	// expected retry count is ~0; hitting the cap signals a degenerate code
	// space and surfaces as ErrCodeSpaceExhausted.
	maxCodeAttempts = 5
)

// NewCode draws a random 6-character code from the fixed alphabet.
// Uniqueness is the caller's concern; codes are never reused, including
// codes of deleted items.
func NewCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("draw item code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// MaxCodeAttempts exposes the retry cap to the engine store.
func MaxCodeAttempts() int { return maxCodeAttempts }
