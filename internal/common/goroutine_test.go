package common

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestSafeGoRecoversFromPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo(arbor.NewLogger(), "panicking-worker", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestSafeGoIncrementsSpawnCounter(t *testing.T) {
	before := GetGoroutineCount()
	done := make(chan struct{})
	SafeGo(arbor.NewLogger(), "counted-worker", func() { close(done) })

	require.Equal(t, before+1, GetGoroutineCount())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestSafeGoWithContextRunsWhileContextLive(t *testing.T) {
	done := make(chan struct{})
	SafeGoWithContext(context.Background(), arbor.NewLogger(), "live-worker", func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestSafeGoWithContextSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	SafeGoWithContext(ctx, arbor.NewLogger(), "cancelled-worker", func() {
		ran.Store(true)
	})

	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
}
