package pwdhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h1 := HashPassword("hunter2")
	h2 := HashPassword("hunter2")
	require.Len(t, h1, hashLenV1)
	require.NotEqual(t, h1, h2) // different salts
	require.True(t, VerifyHash("hunter2", h1))
	require.True(t, VerifyHash("hunter2", h2))
	require.False(t, VerifyHash("hunter3", h1))
	require.False(t, VerifyHash("hunter2", nil))
	require.False(t, VerifyHash("hunter2", h1[:10]))
}
