package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"vienlink/internal/model"
)

// Scope addresses one fan-out channel: a single user, every subscriber of a
// hospital, or everyone holding a role.
type Scope string

func UserScope(id uuid.UUID) Scope     { return Scope("user:" + id.String()) }
func HospitalScope(id uuid.UUID) Scope { return Scope("hospital:" + id.String()) }
func RoleScope(role model.Role) Scope  { return Scope("role:" + string(role)) }

// Hub delivers payloads to all current subscribers of a scope, best effort.
// Subscribers that are offline miss the push; the persisted notification
// record is the canonical copy they re-fetch on reconnect.
type Hub interface {
	Publish(ctx context.Context, scope Scope, payload []byte) error
}

// MemoryHub is an in-process Hub. Subscribers receive on buffered channels; a
// subscriber that cannot keep up drops messages rather than blocking the
// publisher.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[Scope]map[chan []byte]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[Scope]map[chan []byte]struct{})}
}

// Subscribe registers a channel for a scope. The returned cancel func removes
// the subscription and closes the channel.
func (h *MemoryHub) Subscribe(scope Scope) (<-chan []byte, func()) {
	ch := make(chan []byte, 16)

	h.mu.Lock()
	if h.subs[scope] == nil {
		h.subs[scope] = make(map[chan []byte]struct{})
	}
	h.subs[scope][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[scope], ch)
			if len(h.subs[scope]) == 0 {
				delete(h.subs, scope)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *MemoryHub) Publish(ctx context.Context, scope Scope, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[scope] {
		select {
		case ch <- payload:
		default:
			// Slow subscriber; at-most-once semantics allow the drop.
		}
	}
	return nil
}

// NoOpHub discards all publishes. Used when no real-time transport is wired.
type NoOpHub struct{}

func (NoOpHub) Publish(ctx context.Context, scope Scope, payload []byte) error { return nil }
