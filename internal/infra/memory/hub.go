package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/match"
)

// Hub provides in-process room channels for single-instance deployments.
// Broadcast is non-blocking: a subscriber that falls behind loses its
// oldest pending message rather than stalling the room.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*roomChannel
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*roomChannel)}
}

// Channel returns the shared channel for a room, creating it on first use.
func (h *Hub) Channel(roomID string) match.RoomChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.rooms[roomID]; ok {
		return ch
	}
	ch := &roomChannel{subscribers: make(map[chan match.Message]struct{})}
	h.rooms[roomID] = ch
	return ch
}

type roomChannel struct {
	mu          sync.Mutex
	subscribers map[chan match.Message]struct{}
}

func (c *roomChannel) Publish(_ context.Context, msg match.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- msg
		}
	}
	return nil
}

func (c *roomChannel) Subscribe(_ context.Context) (<-chan match.Message, func(), error) {
	ch := make(chan match.Message, 16)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel, nil
}
