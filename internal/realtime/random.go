package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newRandomHex returns n random bytes hex-encoded, used for session ids.
func newRandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
