package events

import (
	"context"
	"sync"
)

// InMemory records published events. Used in development mode and tests.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (p *InMemory) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *InMemory) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Event{}, p.events...)
}

func (p *InMemory) Close() error {
	return nil
}
