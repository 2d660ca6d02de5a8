package hub_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vienlink/internal/hub"
	"vienlink/internal/model"
)

func TestMemoryHub_PublishReachesSubscribers(t *testing.T) {
	h := hub.NewMemoryHub()
	scope := hub.UserScope(uuid.New())

	ch, cancel := h.Subscribe(scope)
	defer cancel()

	require.NoError(t, h.Publish(context.Background(), scope, []byte("hello")))

	select {
	case payload := <-ch:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("expected a delivery")
	}
}

func TestMemoryHub_ScopesAreIsolated(t *testing.T) {
	h := hub.NewMemoryHub()

	ch, cancel := h.Subscribe(hub.HospitalScope(uuid.New()))
	defer cancel()

	require.NoError(t, h.Publish(context.Background(), hub.RoleScope(model.RoleSuperAdmin), []byte("x")))

	select {
	case <-ch:
		t.Fatal("message leaked across scopes")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryHub_CancelClosesChannel(t *testing.T) {
	h := hub.NewMemoryHub()
	scope := hub.UserScope(uuid.New())

	ch, cancel := h.Subscribe(scope)
	cancel()
	// Cancelling twice is safe.
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing to a scope with no subscribers is a no-op.
	assert.NoError(t, h.Publish(context.Background(), scope, []byte("x")))
}

func TestMemoryHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := hub.NewMemoryHub()
	scope := hub.UserScope(uuid.New())

	_, cancel := h.Subscribe(scope)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// More than the buffer holds; extras are dropped, never blocking.
		for i := 0; i < 100; i++ {
			_ = h.Publish(context.Background(), scope, []byte("x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
