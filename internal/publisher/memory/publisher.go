// Package memory contains an in-memory change-event publisher for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []watch.ChangeEvent
	err    error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent Publish calls return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event watch.ChangeEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded events.
func (p *Publisher) Events() []watch.ChangeEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]watch.ChangeEvent, len(p.events))
	copy(out, p.events)
	return out
}
