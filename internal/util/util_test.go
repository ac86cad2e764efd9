package util

import (
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func TestClampInt(t *testing.T) {
	require.Equal(t, 1, ClampInt(-5, 1, 10))
	require.Equal(t, 10, ClampInt(50, 1, 10))
	require.Equal(t, 7, ClampInt(7, 1, 10))
}

func TestNewConnectionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	id := NewConnectionID(42, now)

	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	require.Equal(t, "42", parts[0])
	require.Equal(t, "1700000000123", parts[1])

	raw, err := base58.Decode(parts[2])
	require.NoError(t, err)
	require.Len(t, raw, connectionIDEntropy)
}

func TestNewConnectionID_unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})

	for range 1000 {
		id := NewConnectionID(1, now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate connection id %s", id)
		seen[id] = struct{}{}
	}
}
