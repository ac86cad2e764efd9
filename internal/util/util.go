package util

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// connectionIDEntropy is the number of random bytes in a connection id.
const connectionIDEntropy = 8

// ClampInt bounds i to [lo, hi].
func ClampInt(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

// NewConnectionID returns an identifier for one notification stream in the form
// <user_id>-<unix_millis>-<base58 random>. It is unique per open connection,
// including several tabs opened by the same user in the same millisecond.
func NewConnectionID(userID int64, now time.Time) string {
	buf := make([]byte, connectionIDEntropy)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%d-%d-%s", userID, now.UnixMilli(), base58.Encode(buf))
}
