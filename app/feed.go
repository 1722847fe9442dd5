package app

import "sync"

// blockFeed notifies subscribers of committed heights without ever blocking
// Commit.
type blockFeed struct {
	mu   sync.Mutex
	next int
	subs map[int]chan uint64
}

func newBlockFeed() *blockFeed {
	return &blockFeed{subs: map[int]chan uint64{}}
}

func (f *blockFeed) subscribe(buffer int) (<-chan uint64, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan uint64, buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *blockFeed) publish(height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- height:
		default:
		}
	}
}
