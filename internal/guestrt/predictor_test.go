package guestrt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPredictorWarmMakesReplacementAvailable(t *testing.T) {
	want := &Instance{}
	p := NewPredictor(func(ctx context.Context) (*Instance, error) {
		return want, nil
	})

	p.Warm(context.Background())

	require.Eventually(t, func() bool {
		_, ok := p.TakeReplacement()
		return ok
	}, time.Second, time.Millisecond, "replacement never became available")
}

func TestPredictorTakeReplacementClearsIt(t *testing.T) {
	p := NewPredictor(func(ctx context.Context) (*Instance, error) {
		return &Instance{}, nil
	})
	p.Warm(context.Background())

	var got *Instance
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = p.TakeReplacement()
		return ok
	}, time.Second, time.Millisecond)
	require.NotNil(t, got)

	_, ok := p.TakeReplacement()
	require.False(t, ok, "second TakeReplacement should find nothing left to take")
}

func TestPredictorWarmDoesNotDuplicateInFlightCompiles(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	p := NewPredictor(func(ctx context.Context) (*Instance, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return &Instance{}, nil
	})

	p.Warm(context.Background())
	p.Warm(context.Background())
	p.Warm(context.Background())
	close(release)

	require.Eventually(t, func() bool {
		_, ok := p.TakeReplacement()
		return ok
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestPredictorWarmSurvivesCompileFailure(t *testing.T) {
	p := NewPredictor(func(ctx context.Context) (*Instance, error) {
		return nil, errors.New("compile failed")
	})

	p.Warm(context.Background())

	require.Never(t, func() bool {
		_, ok := p.TakeReplacement()
		return ok
	}, 100*time.Millisecond, 10*time.Millisecond)
}
