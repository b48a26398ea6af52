package web

import (
	"sync"

	"nmea-bridge/internal/bridge"
)

// EventBroadcaster fans bridge events out to stream subscribers. Slow
// subscribers miss events instead of blocking the bridge. The latest vessel
// count is replayed to new subscribers.
type EventBroadcaster struct {
	mu        sync.RWMutex
	subs      map[int]chan bridge.Event
	nextID    int
	lastCount *bridge.Event
	dropped   uint64
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{subs: make(map[int]chan bridge.Event)}
}

func (b *EventBroadcaster) Subscribe(buffer int) (int, <-chan bridge.Event) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan bridge.Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.lastCount != nil {
		ch <- *b.lastCount
	}
	b.mu.Unlock()
	return id, ch
}

func (b *EventBroadcaster) Unsubscribe(id int) {
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

// Publish has the signature of bridge.Config.OnEvent.
func (b *EventBroadcaster) Publish(ev bridge.Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.Kind == bridge.EventVesselCount {
		e := ev
		b.lastCount = &e
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

func (b *EventBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *EventBroadcaster) Dropped() uint64 {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
