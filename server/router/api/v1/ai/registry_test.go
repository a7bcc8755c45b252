package ai

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelRegistryLifecycle(t *testing.T) {
	registry := NewCancelRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	registry.Register("c1", cancel)
	assert.True(t, registry.Active("c1"))
	assert.Equal(t, 1, registry.Len())

	assert.True(t, registry.Cancel("c1"))
	assert.Error(t, ctx.Err())
	assert.False(t, registry.Active("c1"))

	// A second cancel finds nothing.
	assert.False(t, registry.Cancel("c1"))
}

func TestCancelRegistryCancelAbsent(t *testing.T) {
	registry := NewCancelRegistry()
	assert.False(t, registry.Cancel("never-registered"))
}

func TestCancelRegistryReleaseIsIdempotent(t *testing.T) {
	registry := NewCancelRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	token := registry.Register("c1", cancel)

	registry.Release("c1", token)
	registry.Release("c1", token)
	registry.Release("c1", token)

	assert.False(t, registry.Active("c1"))
	// Release never fires the handle.
	assert.NoError(t, ctx.Err())
	cancel()
}

func TestCancelRegistryReplaceCancelsPrevious(t *testing.T) {
	registry := NewCancelRegistry()

	firstCtx, firstCancel := context.WithCancel(context.Background())
	registry.Register("c1", firstCancel)

	secondCtx, secondCancel := context.WithCancel(context.Background())
	registry.Register("c1", secondCancel)

	assert.Error(t, firstCtx.Err())
	assert.NoError(t, secondCtx.Err())
	assert.Equal(t, 1, registry.Len())
	secondCancel()
}

func TestCancelRegistryStaleReleaseKeepsSuccessor(t *testing.T) {
	registry := NewCancelRegistry()

	_, firstCancel := context.WithCancel(context.Background())
	firstToken := registry.Register("c1", firstCancel)

	secondCtx, secondCancel := context.WithCancel(context.Background())
	registry.Register("c1", secondCancel)

	// The first run finishing late must not drop the second run's
	// handle.
	registry.Release("c1", firstToken)
	assert.True(t, registry.Active("c1"))

	// The successor stays cancellable.
	assert.True(t, registry.Cancel("c1"))
	assert.Error(t, secondCtx.Err())
}

func TestCancelRegistryConcurrentAccess(t *testing.T) {
	registry := NewCancelRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, cancel := context.WithCancel(context.Background())
			token := registry.Register("shared", cancel)
			registry.Cancel("shared")
			registry.Release("shared", token)
		}()
	}
	wg.Wait()

	assert.False(t, registry.Active("shared"))
}
