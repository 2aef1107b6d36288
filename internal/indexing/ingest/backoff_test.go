package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second

	require.Equal(t, 2*time.Second, Backoff(1, base, max))
	require.Equal(t, 4*time.Second, Backoff(2, base, max))
	require.Equal(t, 8*time.Second, Backoff(3, base, max))
	require.Equal(t, 30*time.Second, Backoff(10, base, max))
	require.Equal(t, 2*time.Second, Backoff(0, base, max))
}
