package guestrt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModuleCacheMissOnEmpty(t *testing.T) {
	c, err := NewModuleCache()
	require.NoError(t, err)

	_, ok := c.Get("nonexistent")
	require.False(t, ok)
}

func TestInstanceCountReleaseNeverGoesNegative(t *testing.T) {
	c := NewInstanceCount(2, 4, nil)
	c.Release()
	require.Equal(t, 0, c.Live())
}

func TestInstanceCountAcquireTracksLiveCount(t *testing.T) {
	c := NewInstanceCount(2, 4, nil)
	require.False(t, c.Acquire())
	require.Equal(t, 1, c.Live())
	require.False(t, c.Acquire())
	require.Equal(t, 2, c.Live())
	c.Release()
	require.Equal(t, 1, c.Live())
}

func TestInstanceCountFiresOnSoftCapExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	fires := 0
	c := NewInstanceCount(2, 4, func() {
		mu.Lock()
		fires++
		mu.Unlock()
	})

	require.False(t, c.Acquire())
	require.False(t, c.Acquire()) // crosses soft cap here
	require.False(t, c.Acquire())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fires == 1
	}, time.Second, time.Millisecond)

	require.False(t, c.Acquire())
	mu.Lock()
	require.Equal(t, 1, fires)
	mu.Unlock()
}

func TestInstanceCountSignalsMustSwapAtHardCap(t *testing.T) {
	c := NewInstanceCount(1, 2, nil)
	require.False(t, c.Acquire())
	require.False(t, c.Acquire())
	require.True(t, c.Acquire())
}
