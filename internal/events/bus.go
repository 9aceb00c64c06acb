package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownNamespace is returned when a system/layer pair was never registered.
var ErrUnknownNamespace = errors.New("unknown event namespace")

// Key identifies an event.
type Key struct {
	System string
	Layer  string
	Name   string
}

func (k Key) String() string { return k.System + "/" + k.Layer + "/" + k.Name }

// Event is a published occurrence. Payload type is fixed per key by convention.
type Event struct {
	Key     Key
	Payload any
}

// Handler reacts to an event.
type Handler func(ctx context.Context, e Event) error

type rank int

const (
	rankBefore rank = iota
	rankWeighted
	rankIdentity
	rankAfter
)

// Priority orders handlers of one key: Before, then Weighted ascending, then Identity, then After.
type Priority struct {
	rank   rank
	weight int
}

// Before runs ahead of every other handler.
func Before() Priority { return Priority{rank: rankBefore} }

// Weighted runs after Before handlers, lower weights first.
func Weighted(n int) Priority { return Priority{rank: rankWeighted, weight: n} }

// Identity runs after weighted handlers.
func Identity() Priority { return Priority{rank: rankIdentity} }

// After runs last.
func After() Priority { return Priority{rank: rankAfter} }

func (p Priority) less(o Priority) bool {
	if p.rank != o.rank {
		return p.rank < o.rank
	}
	return p.weight < o.weight
}

type subscription struct {
	name     string
	priority Priority
	seq      int
	handler  Handler
}

// Bus is a synchronous publish/subscribe registry.
type Bus struct {
	mu         sync.RWMutex
	namespaces map[[2]string]bool
	subs       map[Key][]subscription
	seq        int
	logger     *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		namespaces: make(map[[2]string]bool),
		subs:       make(map[Key][]subscription),
		logger:     logger,
	}
}

// Register declares a valid system/layer namespace.
func (b *Bus) Register(system, layer string) {
	b.mu.Lock()
	b.namespaces[[2]string{system, layer}] = true
	b.mu.Unlock()
}

func (b *Bus) known(k Key) bool {
	return b.namespaces[[2]string{k.System, k.Layer}]
}

// Subscribe adds a named handler for key.
func (b *Bus) Subscribe(key Key, name string, p Priority, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.known(key) {
		return fmt.Errorf("subscribe %s: %w", key, ErrUnknownNamespace)
	}
	b.seq++
	list := append(b.subs[key], subscription{name: name, priority: p, seq: b.seq, handler: h})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority.less(list[j].priority)
		}
		return list[i].seq < list[j].seq
	})
	b.subs[key] = list
	return nil
}

// Publish runs every handler of key in priority order. All handlers run;
// their errors are joined.
func (b *Bus) Publish(ctx context.Context, key Key, payload any) error {
	b.mu.RLock()
	if !b.known(key) {
		b.mu.RUnlock()
		return fmt.Errorf("publish %s: %w", key, ErrUnknownNamespace)
	}
	list := append([]subscription(nil), b.subs[key]...)
	b.mu.RUnlock()

	ev := Event{Key: key, Payload: payload}
	var errs []error
	for _, s := range list {
		if err := s.handler(ctx, ev); err != nil {
			b.logger.Warn("Event handler failed",
				zap.Stringer("event", key), zap.String("handler", s.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Handlers returns the handler names of key in run order.
func (b *Bus) Handlers(key Key) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs[key]))
	for _, s := range b.subs[key] {
		names = append(names, s.name)
	}
	return names
}
