package web

import (
	"context"
	"sync"
	"time"
)

// StatusBroadcaster fans status snapshots out to websocket clients. It keeps
// the most recent value so new subscribers get an immediate sample. Slow
// subscribers miss samples rather than block the publisher.
type StatusBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan StatusSnapshot
	nextID   int
	last     StatusSnapshot
	haveLast bool
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{subs: make(map[int]chan StatusSnapshot)}
}

func (b *StatusBroadcaster) Subscribe(buffer int) (int, <-chan StatusSnapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan StatusSnapshot, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last, have := b.last, b.haveLast
	b.mu.Unlock()
	if have {
		ch <- last
	}
	return id, ch
}

func (b *StatusBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *StatusBroadcaster) Publish(snap StatusSnapshot) {
	if b == nil {
		return
	}
	// Sending under the read lock keeps Unsubscribe from closing a channel
	// mid-send.
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	b.mu.RUnlock()

	b.mu.Lock()
	b.last = snap
	b.haveLast = true
	b.mu.Unlock()
}

// Run publishes status.Snapshot every interval while anyone listens.
func (b *StatusBroadcaster) Run(ctx context.Context, status *Status, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if b.Subscribers() == 0 {
				continue
			}
			b.Publish(status.Snapshot(now.UTC()))
		}
	}
}
