package store

import (
	"sync"

	"github.com/mmdatafocus/shopledger_backend/models"
)

type broker struct {
	mu     sync.Mutex
	nextId int
	subs   map[int]chan models.ChangeEvent
}

func newBroker() *broker {
	return &broker{subs: map[int]chan models.ChangeEvent{}}
}

func (b *broker) subscribe(buffer int) (<-chan models.ChangeEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.ChangeEvent, buffer)

	b.mu.Lock()
	id := b.nextId
	b.nextId++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broker) publish(events []models.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range events {
		for _, ch := range b.subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
