package casper

import (
	"slices"
	"sync"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

// Event identifies a provider event stream.
type Event string

const (
	// EventConnect fires once a chain identity is first observed, with
	// ConnectInfo as its payload.
	EventConnect Event = "connect"
	// EventDisconnect fires on both recoverable and permanent disconnects,
	// with a *jsonrpc.StructuredError payload carrying 1013 or 1011.
	EventDisconnect Event = "disconnect"
	// EventAccountsChanged fires when the exposed account list changes,
	// with the new []string payload.
	EventAccountsChanged Event = "accountsChanged"
	// EventChainChanged fires when the chain id changes after
	// initialization, with the new id string payload.
	EventChainChanged Event = "chainChanged"
	// EventInitialized fires exactly once, after the initial state fetch
	// has completed, successfully or not. Payload is nil.
	EventInitialized Event = "_initialized"
)

func (e Event) String() string {
	return string(e)
}

// ConnectInfo is the payload of EventConnect.
type ConnectInfo struct {
	ChainID string `json:"chainId"`
}

// Listener receives event payloads. Listeners run synchronously on the
// emitting goroutine, so a slow listener delays delivery to later ones.
type Listener func(payload any)

// DefaultMaxListeners caps subscriptions per emitter unless overridden.
const DefaultMaxListeners = 100

// EventEmitter is a minimal publish/subscribe hub with capped subscription
// growth. It is composed into the provider rather than inherited, so it can
// be exercised on its own.
type EventEmitter struct {
	lg log.Logger

	mu           sync.Mutex
	maxListeners int
	nextID       uint64
	listeners    map[Event]map[uint64]*listenerEntry
}

type listenerEntry struct {
	fn   Listener
	once bool
}

// NewEventEmitter builds an emitter holding at most maxListeners
// subscriptions across all events. Values below one fall back to
// DefaultMaxListeners.
func NewEventEmitter(maxListeners int, lg log.Logger) *EventEmitter {
	if maxListeners <= 0 {
		maxListeners = DefaultMaxListeners
	}
	if lg == nil {
		lg = log.NoopLogger{}
	}

	return &EventEmitter{
		lg:           lg.WithName("events"),
		maxListeners: maxListeners,
		listeners:    make(map[Event]map[uint64]*listenerEntry),
	}
}

// On subscribes fn to event and returns an id usable with RemoveListener.
// Crossing the listener cap logs a leak warning but still registers, the
// cap is a diagnostic guard rather than a hard limit.
func (e *EventEmitter) On(event Event, fn Listener) uint64 {
	return e.subscribe(event, fn, false)
}

// Once subscribes fn for a single delivery, after which it is removed.
func (e *EventEmitter) Once(event Event, fn Listener) uint64 {
	return e.subscribe(event, fn, true)
}

func (e *EventEmitter) subscribe(event Event, fn Listener, once bool) uint64 {
	if fn == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.countLocked() >= e.maxListeners {
		e.lg.Warn("Possible listener leak detected", "event", event, "maxListeners", e.maxListeners)
	}

	e.nextID++
	id := e.nextID
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[uint64]*listenerEntry)
	}
	e.listeners[event][id] = &listenerEntry{fn: fn, once: once}
	return id
}

// RemoveListener drops the subscription identified by id. Unknown ids are
// ignored.
func (e *EventEmitter) RemoveListener(event Event, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entries, ok := e.listeners[event]; ok {
		delete(entries, id)
		if len(entries) == 0 {
			delete(e.listeners, event)
		}
	}
}

// Emit delivers payload to every listener of event, in subscription order,
// synchronously. Once-listeners are dropped before their callback runs, so
// they cannot fire twice even if they emit recursively.
func (e *EventEmitter) Emit(event Event, payload any) {
	e.mu.Lock()
	entries := e.listeners[event]
	ids := make([]uint64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		entry := entries[id]
		fns = append(fns, entry.fn)
		if entry.once {
			delete(entries, id)
		}
	}
	if len(entries) == 0 {
		delete(e.listeners, event)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// ListenerCount reports the number of live subscriptions for event.
func (e *EventEmitter) ListenerCount(event Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

func (e *EventEmitter) countLocked() int {
	total := 0
	for _, entries := range e.listeners {
		total += len(entries)
	}
	return total
}
