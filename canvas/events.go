package canvas

import "sync"

// broker fans image events out to subscribers. Each subscriber has a
// one-slot buffer; a stale pending event is replaced by the newer one.
type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan ImageEvent
}

// newBroker returns an empty fan-out.
func newBroker() *broker {
	return &broker{subs: make(map[int]chan ImageEvent)}
}

// subscribe registers a buffered listener and returns its cancel func.
func (b *broker) subscribe() (<-chan ImageEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan ImageEvent, 1)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// publish delivers ev to every listener. A listener with a full buffer
// loses its stale event in favour of ev.
func (b *broker) publish(ev ImageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeAll closes every listener channel.
func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
