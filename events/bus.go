// Package events provides a synchronous, priority-ordered event bus.
//
// Listeners are registered per phase name and run inline on the goroutine that
// calls Dispatch, highest priority first. Listeners registered with the same
// priority run in registration order. A listener may stop propagation, which
// skips the remaining listeners of that dispatch only.
package events

import (
	"context"
	"sort"
	"sync"
)

// Event is anything that can be dispatched through a Bus.
type Event interface {
	StopPropagation()
	IsPropagationStopped() bool
}

// Base carries propagation state and is meant to be embedded by concrete events.
type Base struct {
	stopped bool
}

// StopPropagation prevents listeners after the current one from running.
func (b *Base) StopPropagation() {
	b.stopped = true
}

// IsPropagationStopped reports whether a listener stopped propagation.
func (b *Base) IsPropagationStopped() bool {
	return b.stopped
}

// Listener handles an event. A non-nil error aborts the dispatch.
type Listener func(ctx context.Context, e Event) error

// Dispatcher is the contract consumed by the request lifecycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, phase string, e Event) (Event, error)
	AddListener(phase string, l Listener, priority int) (remove func())
	HasListeners(phase string) bool
}

type registration struct {
	id       uint64
	priority int
	listener Listener
}

// Bus is the default Dispatcher. The zero value is not usable; call NewBus.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	nextID    uint64
}

var _ Dispatcher = (*Bus)(nil)

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]registration)}
}

// AddListener registers l for phase and returns a function that unregisters it.
func (b *Bus) AddListener(phase string, l Listener, priority int) (remove func()) {
	if l == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	regs := append(b.listeners[phase], registration{id: id, priority: priority, listener: l})
	// stable sort keeps registration order for equal priorities
	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].priority > regs[j].priority
	})
	b.listeners[phase] = regs
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(phase, id) })
	}
}

func (b *Bus) remove(phase string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[phase]
	for i, r := range regs {
		if r.id == id {
			b.listeners[phase] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// HasListeners reports whether any listener is registered for phase.
func (b *Bus) HasListeners(phase string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[phase]) > 0
}

// Dispatch runs the listeners registered for phase against e and returns e.
// It stops at the first listener error or when propagation is stopped.
func (b *Bus) Dispatch(ctx context.Context, phase string, e Event) (Event, error) {
	b.mu.RLock()
	regs := make([]registration, len(b.listeners[phase]))
	copy(regs, b.listeners[phase])
	b.mu.RUnlock()

	for _, r := range regs {
		if e.IsPropagationStopped() {
			break
		}
		if err := r.listener(ctx, e); err != nil {
			return e, err
		}
	}
	return e, nil
}
