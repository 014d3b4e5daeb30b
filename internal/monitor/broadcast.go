package monitor

import (
	"sync"

	"finsight/internal/store"
)

// Broadcaster fans fired alerts out to in-process subscribers (the SSE
// alert stream, tests). Slow subscribers drop alerts rather than block the
// monitor loop.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan store.Alert]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan store.Alert]struct{})}
}

// Subscribe returns a channel of fired alerts and a cancel function.
func (b *Broadcaster) Subscribe() (<-chan store.Alert, func()) {
	ch := make(chan store.Alert, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) publish(a store.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- a:
		default:
		}
	}
}
