package bus

import (
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MESSAGE BUS - Pub/sub + request/response + point-to-point dispatch
// ═══════════════════════════════════════════════════════════════════════════════
//
// Three delivery idioms:
//   Send(endpoint, msg)          exactly-one registered handler
//   Request / Response           correlation-id matched callbacks
//   Publish(topic, msg)          every subscription whose pattern matches,
//                                priority-descending
//
// Topic patterns support '*' (any run) and '?' (one char). Resolved
// subscriber arrays are memoized per concrete topic and patched on every
// subscribe/unsubscribe, so steady-state publishes cost O(matching handlers).
//
// Dropped messages (unknown endpoint, unknown correlation id) are logged and
// never terminate the caller.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Handler consumes one message.
type Handler func(msg any)

// Subscription pairs a topic pattern with a handler. Identity for
// unsubscribe is (pattern, handler).
type Subscription struct {
	Topic    string
	Handler  Handler
	Priority int

	handlerID uintptr
	seq       uint64
}

// Bus is the in-process message dispatcher. All engine-side mutation happens
// on the engine goroutine; the lock exists for adapter threads that publish
// inbound events.
type Bus struct {
	mu            sync.RWMutex
	endpoints     map[string]endpointEntry
	correlations  map[string]Handler
	subscriptions []*Subscription
	topics        map[string][]*Subscription // concrete topic -> sorted matches
	subTopics     map[*Subscription][]string // reverse index into topics
	nextSeq       uint64

	sentCount uint64
	pubCount  uint64
	reqCount  uint64
	resCount  uint64
}

type endpointEntry struct {
	handler   Handler
	handlerID uintptr
}

// New creates an empty message bus.
func New() *Bus {
	return &Bus{
		endpoints:    make(map[string]endpointEntry),
		correlations: make(map[string]Handler),
		topics:       make(map[string][]*Subscription),
		subTopics:    make(map[*Subscription][]string),
	}
}

// handlerID is the handler's code pointer. Closures minted from the same
// function literal share an identity, like method values do; subscribers
// needing distinct identities use distinct functions.
func handlerID(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// Register binds the endpoint to a handler. Exactly one handler per
// endpoint: a second registration is an error.
func (b *Bus) Register(endpoint string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.endpoints[endpoint]; exists {
		return &DuplicateEndpointError{Endpoint: endpoint}
	}
	b.endpoints[endpoint] = endpointEntry{handler: handler, handlerID: handlerID(handler)}
	return nil
}

// Deregister unbinds the endpoint. The handler must be the one registered.
func (b *Bus) Deregister(endpoint string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, exists := b.endpoints[endpoint]
	if !exists {
		return &UnknownEndpointError{Endpoint: endpoint}
	}
	if entry.handlerID != handlerID(handler) {
		return &HandlerMismatchError{Endpoint: endpoint}
	}
	delete(b.endpoints, endpoint)
	return nil
}

// IsRegistered reports whether the endpoint has a handler.
func (b *Bus) IsRegistered(endpoint string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.endpoints[endpoint]
	return ok
}

// Send delivers msg to the endpoint's handler. Unknown endpoints drop the
// message with an error log.
func (b *Bus) Send(endpoint string, msg any) {
	b.mu.RLock()
	entry, ok := b.endpoints[endpoint]
	b.mu.RUnlock()
	if !ok {
		log.Error().Str("endpoint", endpoint).Msg("bus: no handler registered for endpoint")
		return
	}
	b.mu.Lock()
	b.sentCount++
	b.mu.Unlock()
	entry.handler(msg)
}

// Request forwards msg to the endpoint and records requestID -> callback for
// the eventual response. Duplicate request IDs are dropped with an error log.
func (b *Bus) Request(endpoint, requestID string, msg any, callback Handler) {
	b.mu.Lock()
	if _, dup := b.correlations[requestID]; dup {
		b.mu.Unlock()
		log.Error().Str("request_id", requestID).Msg("bus: duplicate request id")
		return
	}
	entry, ok := b.endpoints[endpoint]
	if !ok {
		b.mu.Unlock()
		log.Error().Str("endpoint", endpoint).Msg("bus: no handler registered for request endpoint")
		return
	}
	b.correlations[requestID] = callback
	b.reqCount++
	b.mu.Unlock()
	entry.handler(msg)
}

// Response pops the correlation entry and invokes the stored callback once.
// Unknown correlation IDs are dropped with an error log.
func (b *Bus) Response(correlationID string, msg any) {
	b.mu.Lock()
	callback, ok := b.correlations[correlationID]
	if ok {
		delete(b.correlations, correlationID)
		b.resCount++
	}
	b.mu.Unlock()
	if !ok {
		log.Error().Str("correlation_id", correlationID).Msg("bus: no callback for correlation id")
		return
	}
	callback(msg)
}

// DropCorrelation removes a pending request callback, for callers running
// their own timeout timers.
func (b *Bus) DropCorrelation(correlationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.correlations[correlationID]; !ok {
		return false
	}
	delete(b.correlations, correlationID)
	return true
}

// Subscribe adds a (pattern, handler) subscription at the given priority.
// Re-subscribing the same pair is a no-op.
func (b *Bus) Subscribe(topic string, handler Handler, priority int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := handlerID(handler)
	if b.findSubscription(topic, id) != nil {
		return
	}
	sub := &Subscription{
		Topic:     topic,
		Handler:   handler,
		Priority:  priority,
		handlerID: id,
		seq:       b.nextSeq,
	}
	b.nextSeq++
	b.subscriptions = append(b.subscriptions, sub)

	// Patch every memoized topic this pattern matches.
	for topicKey := range b.topics {
		if IsMatching(topicKey, topic) {
			b.topics[topicKey] = insertSorted(b.topics[topicKey], sub)
			b.subTopics[sub] = append(b.subTopics[sub], topicKey)
		}
	}
}

// Unsubscribe removes the (pattern, handler) subscription. Unknown pairs are
// a no-op.
func (b *Bus) Unsubscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.findSubscription(topic, handlerID(handler))
	if sub == nil {
		return
	}
	for i, s := range b.subscriptions {
		if s == sub {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			break
		}
	}
	for _, topicKey := range b.subTopics[sub] {
		b.topics[topicKey] = removeSub(b.topics[topicKey], sub)
	}
	delete(b.subTopics, sub)
}

// IsSubscribed reports whether (topic, handler) is currently subscribed.
func (b *Bus) IsSubscribed(topic string, handler Handler) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.findSubscription(topic, handlerID(handler)) != nil
}

// Subscriptions returns all live subscriptions.
func (b *Bus) Subscriptions() []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Subscription, len(b.subscriptions))
	copy(out, b.subscriptions)
	return out
}

// Publish delivers msg to every subscription whose pattern matches topic, in
// descending priority order (FIFO within a priority). The subscriber set is
// snapshotted first: handlers that subscribe/unsubscribe during delivery
// affect the next publish, not this one.
func (b *Bus) Publish(topic string, msg any) {
	b.mu.Lock()
	subs, memoized := b.topics[topic]
	if !memoized {
		subs = b.resolve(topic)
		b.topics[topic] = subs
	}
	snapshot := make([]*Subscription, len(subs))
	copy(snapshot, subs)
	b.pubCount++
	b.mu.Unlock()

	for _, sub := range snapshot {
		sub.Handler(msg)
	}
}

// resolve builds the sorted subscriber array for a new concrete topic and
// wires the reverse index. Caller holds the lock.
func (b *Bus) resolve(topic string) []*Subscription {
	var matched []*Subscription
	for _, sub := range b.subscriptions {
		if IsMatching(topic, sub.Topic) {
			matched = append(matched, sub)
			b.subTopics[sub] = append(b.subTopics[sub], topic)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}

func (b *Bus) findSubscription(topic string, id uintptr) *Subscription {
	for _, sub := range b.subscriptions {
		if sub.Topic == topic && sub.handlerID == id {
			return sub
		}
	}
	return nil
}

func insertSorted(subs []*Subscription, sub *Subscription) []*Subscription {
	i := sort.Search(len(subs), func(i int) bool {
		if subs[i].Priority != sub.Priority {
			return subs[i].Priority < sub.Priority
		}
		return subs[i].seq > sub.seq
	})
	subs = append(subs, nil)
	copy(subs[i+1:], subs[i:])
	subs[i] = sub
	return subs
}

func removeSub(subs []*Subscription, sub *Subscription) []*Subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
