package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler priorities. Lower runs first.
const (
	PriorityFirst  = 0
	PriorityHigh   = 10
	PriorityNormal = 50
	PriorityLow    = 90
)

// Handler handles one event
type Handler func(ctx context.Context, evt Event) error

// Publisher is the emit surface used by the pipeline
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type subscription struct {
	name     string
	priority int
	seq      int
	handler  Handler
}

// Bus is a synchronous in-process dispatcher. Handlers for a kind run in
// ascending priority order (registration order breaks ties). A failing or
// panicking handler is logged and does not stop the ones after it.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]subscription
	seq    int
	logger *slog.Logger
}

// New creates an empty bus
func New() *Bus {
	return &Bus{
		subs:   make(map[Kind][]subscription),
		logger: slog.With("component", "bus"),
	}
}

// Subscribe registers a handler for a kind
func (b *Bus) Subscribe(kind Kind, priority int, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	subs := append(b.subs[kind], subscription{name: name, priority: priority, seq: b.seq, handler: h})
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
	b.subs[kind] = subs
}

// On registers a typed handler; the kind is taken from T
func On[T Event](b *Bus, priority int, name string, fn func(ctx context.Context, evt T) error) {
	var zero T
	b.Subscribe(zero.Kind(), priority, name, func(ctx context.Context, evt Event) error {
		typed, ok := evt.(T)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, zero.Kind())
		}
		return fn(ctx, typed)
	})
}

// Handlers lists handler names for a kind in dispatch order
func (b *Bus) Handlers(kind Kind) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.subs[kind]))
	for _, s := range b.subs[kind] {
		names = append(names, s.name)
	}
	return names
}

// Publish dispatches evt to every handler of its kind
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[evt.Kind()]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("event has no handlers", "kind", evt.Kind())
		return
	}

	for _, s := range subs {
		if err := b.dispatch(ctx, s, evt); err != nil {
			b.logger.Warn("event handler failed", "kind", evt.Kind(), "handler", s.name, "error", err)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}
