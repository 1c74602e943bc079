// Package bus implements the message bus (spec.md §4.9): priority, typed,
// asynchronous messaging between script contexts, with optional
// request/response semantics built on a condition variable.
package bus

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lixenwraith/tasrun/errs"
	"github.com/lixenwraith/tasrun/queue"
	"github.com/lixenwraith/tasrun/serialize"
)

// Message mirrors spec.md §3's Message record.
type Message struct {
	Sender        string
	Target        string // "*" denotes broadcast
	Type          string
	Payload       serialize.Value
	Priority      int
	CorrelationID string
	IsResponse    bool
}

// Handler receives one delivered message. It is invoked with no bus or
// handler lock held, so a handler may call back into the bus
// (spec.md §4.9 "Handlers are invoked outside of any bus/handler lock").
type Handler func(msg Message)

// ContextAlive reports whether a context handle registered with Subscribe
// is still alive, implementing the weak-reference check spec.md §4.9
// requires before invoking a handler.
type ContextAlive func() bool

type subscription struct {
	handler Handler
	alive   ContextAlive
}

const (
	defaultMaxPriority    = 9
	defaultMaxMessageSize = 64 * 1024
	warnThreshold         = 32 * 1024
)

// Bus is the priority message bus.
type Bus struct {
	queue *queue.Queue[Message]

	handlersMu sync.RWMutex
	// handlers[contextName][messageType] -> subscriptions
	handlers map[string]map[string][]subscription

	responseMu sync.Mutex
	responses  map[string]Message
	responseCV *sync.Cond

	maxMessageSize int
	warnedOnce     map[string]bool
	warnedOnceMu   sync.Mutex
}

// New creates a Bus with the given maximum priority and approximate
// queue capacity (0 = unbounded).
func New(maxPriority, maxQueueSize int) *Bus {
	if maxPriority <= 0 {
		maxPriority = defaultMaxPriority
	}
	b := &Bus{
		queue:          queue.New[Message](maxPriority, maxQueueSize),
		handlers:       make(map[string]map[string][]subscription),
		responses:      make(map[string]Message),
		maxMessageSize: defaultMaxMessageSize,
		warnedOnce:     make(map[string]bool),
	}
	b.responseCV = sync.NewCond(&b.responseMu)
	return b
}

// Subscribe registers a handler for messages of the given type addressed
// to contextName (or delivered via broadcast).
func (b *Bus) Subscribe(contextName, messageType string, alive ContextAlive, h Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	if b.handlers[contextName] == nil {
		b.handlers[contextName] = make(map[string][]subscription)
	}
	b.handlers[contextName][messageType] = append(b.handlers[contextName][messageType], subscription{handler: h, alive: alive})
}

// Unsubscribe removes every handler a context registered, for context
// teardown (spec.md §4.8 destroy_context, §4.9 context-lifetime handling).
func (b *Bus) Unsubscribe(contextName string) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	delete(b.handlers, contextName)
}

// Enqueue serializes payload, rejects oversized messages, warns once past
// warn_threshold, and pushes onto the lock-free priority queue. Per
// spec.md §4.9/§4.1, DropOldest and Block degrade to DropNewest.
func (b *Bus) Enqueue(sender, target, msgType string, payload serialize.Value, priority int, policy queue.DropPolicy) error {
	data, err := serialize.ToJSON(payload)
	if err != nil {
		return err
	}
	if len(data) > b.maxMessageSize {
		return errs.New(errs.MessageTooLarge, "Enqueue", "payload exceeds max_message_size")
	}
	if len(data) > warnThreshold {
		b.warnOnce(sender+":"+msgType, "payload exceeds warn_threshold")
	}

	_, degraded := queue.EffectivePolicy(policy)
	if degraded {
		b.warnOnce("policy:"+target, "DropOldest/Block degraded to DropNewest under the lock-free queue")
	}

	msg := Message{Sender: sender, Target: target, Type: msgType, Payload: payload, Priority: priority}
	if !b.queue.Enqueue(msg, priority) {
		return errs.New(errs.QueueFull, "Enqueue", "message bus queue at capacity")
	}
	return nil
}

func (b *Bus) warnOnce(key, msg string) {
	b.warnedOnceMu.Lock()
	defer b.warnedOnceMu.Unlock()
	if b.warnedOnce[key] {
		return
	}
	b.warnedOnce[key] = true
	log.Printf("bus: %s: %s", key, msg)
}

// Drain delivers every currently-queued message, called once per tick by
// the context manager's tick step 2 (spec.md §4.8).
func (b *Bus) Drain() {
	for {
		msg, ok := b.queue.Dequeue()
		if !ok {
			return
		}
		b.deliver(msg)
	}
}

func (b *Bus) deliver(msg Message) {
	if msg.IsResponse {
		b.responseMu.Lock()
		b.responses[msg.CorrelationID] = msg
		b.responseCV.Broadcast()
		b.responseMu.Unlock()
		return
	}

	var targets []subscription
	b.handlersMu.RLock()
	if msg.Target == "*" {
		for ctxName, byType := range b.handlers {
			if ctxName == msg.Sender {
				continue // broadcast never delivers to the sender
			}
			targets = append(targets, byType[msg.Type]...)
		}
	} else {
		if byType, ok := b.handlers[msg.Target]; ok {
			targets = append(targets, byType[msg.Type]...)
		}
	}
	b.handlersMu.RUnlock()

	for _, sub := range targets {
		if sub.alive != nil && !sub.alive() {
			continue
		}
		sub.handler(msg)
	}
}

// SendRequest allocates a correlation ID, enqueues a high-priority
// message, and blocks on a condition variable until the matching
// response arrives or timeout elapses. The deadline is re-checked before
// and after each wakeup to tolerate spurious wakeups. Timeouts return a
// Nil value without error (spec.md §4.9).
func (b *Bus) SendRequest(sender, target, msgType string, payload serialize.Value, timeout time.Duration) (serialize.Value, error) {
	correlationID := uuid.NewString()
	msg := Message{
		Sender: sender, Target: target, Type: msgType, Payload: payload,
		Priority: b.highPriority(), CorrelationID: correlationID,
	}
	if !b.queue.Enqueue(msg, msg.Priority) {
		return serialize.Nil(), errs.New(errs.QueueFull, "SendRequest", "message bus queue at capacity")
	}

	deadline := time.Now().Add(timeout)
	b.responseMu.Lock()
	defer b.responseMu.Unlock()
	for {
		if resp, ok := b.responses[correlationID]; ok {
			delete(b.responses, correlationID)
			return resp.Payload, nil
		}
		if time.Now().After(deadline) {
			return serialize.Nil(), nil
		}
		waitUntil(b.responseCV, deadline)
		if resp, ok := b.responses[correlationID]; ok {
			delete(b.responses, correlationID)
			return resp.Payload, nil
		}
		if time.Now().After(deadline) {
			return serialize.Nil(), nil
		}
	}
}

// SendResponse sends a high-priority response message for correlationID.
func (b *Bus) SendResponse(sender, target, correlationID string, payload serialize.Value) error {
	msg := Message{
		Sender: sender, Target: target, Type: "__response", Payload: payload,
		Priority: b.highPriority(), CorrelationID: correlationID, IsResponse: true,
	}
	if !b.queue.Enqueue(msg, msg.Priority) {
		return errs.New(errs.QueueFull, "SendResponse", "message bus queue at capacity")
	}
	return nil
}

func (b *Bus) highPriority() int {
	return defaultMaxPriority
}
