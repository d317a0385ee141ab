// Package broker implements the kernel's topic-based message broker:
// per-topic priority queues with acknowledgement, filtered fan-out
// subscriptions, and an optional durable-persistence hook. Grounded on the
// teacher's control_plane/scheduler/queue.go heap-plus-mutex shape (reused
// here as msgHeap, keyed the same (priority, sequence) way) and its
// control_plane/ws_hub.go register/unregister channel pattern for fan-out
// delivery semantics.
package broker

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nameearly/agentkernel/kernel"
)

// DefaultMaxRetries is the retry budget stamped onto a message at publish
// time absent a more specific policy.
const DefaultMaxRetries = 3

// WildcardTopic subscriptions receive every published message regardless
// of its topic.
const WildcardTopic = "*"

// Filter optionally narrows a subscription to messages it returns true
// for. A nil filter matches everything.
type Filter func(Message) bool

// Callback is invoked once per delivered message, outside the broker's
// lock, with a panic-recover boundary around it.
type Callback func(Message)

// Store persists messages so an unacknowledged backlog survives a
// restart. Persistence failures are logged by the broker; they never fail
// Publish or Acknowledge.
type Store interface {
	Save(Message) error
	Remove(id string) error
	LoadAll() ([]Message, error)
}

type subscription struct {
	handle       string
	topic        string
	subscriberID string
	callback     Callback
	filter       Filter
}

// Broker is a process-wide, topic-keyed priority message broker.
type Broker struct {
	mu         sync.Mutex
	topics     map[string]*msgHeap
	nextSeq    int64
	subs       map[string]*subscription
	byTopic    map[string]map[string]struct{} // topic -> set of subscription handles
	pendingAck map[string]*Message
	notify     chan struct{}

	store Store
}

// New creates an empty broker. Pass a non-nil Store to enable persistence;
// New replays any unacknowledged messages the store already holds back
// into their topic queues.
func New(store Store) *Broker {
	b := &Broker{
		topics:     make(map[string]*msgHeap),
		subs:       make(map[string]*subscription),
		byTopic:    make(map[string]map[string]struct{}),
		pendingAck: make(map[string]*Message),
		notify:     make(chan struct{}),
		store:      store,
	}
	if store != nil {
		b.replay()
	}
	return b
}

func (b *Broker) replay() {
	messages, err := b.store.LoadAll()
	if err != nil {
		log.Printf("broker: replay failed: %v", err)
		return
	}
	for _, m := range messages {
		msg := m
		msg.Status = Pending
		// seq isn't persisted (it's an internal tie-breaker); replayed
		// messages get fresh sequence numbers in file-read order.
		b.enqueueLocked(&msg, true)
	}
}

func (b *Broker) topicQueue(topic string) *msgHeap {
	h, ok := b.topics[topic]
	if !ok {
		h = newMsgHeap()
		b.topics[topic] = h
	}
	return h
}

// enqueueLocked pushes msg into its topic queue. assignSeq controls whether
// a fresh sequence number is assigned; Publish and replay both pass true,
// since seq is never persisted.
func (b *Broker) enqueueLocked(msg *Message, assignSeq bool) {
	if assignSeq {
		msg.seq = b.nextSeq
		b.nextSeq++
	}
	heap.Push(b.topicQueue(msg.Topic), msg)
}

func (b *Broker) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Publish enqueues payload onto topic with status Pending and returns its
// message-id. A configured Store failure is logged but never fails
// Publish.
func (b *Broker) Publish(topic string, payload []byte, priority int, publisherID string, metadata map[string]string) string {
	msg := &Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     payload,
		Priority:    priority,
		PublisherID: publisherID,
		Metadata:    metadata,
		Status:      Pending,
		CreatedAt:   time.Now(),
		MaxRetries:  DefaultMaxRetries,
	}

	b.mu.Lock()
	b.enqueueLocked(msg, true)
	b.wakeLocked()
	store := b.store
	b.mu.Unlock()

	if store != nil {
		if err := store.Save(*msg); err != nil {
			log.Printf("broker: persist publish %s failed: %v", msg.ID, err)
		}
	}
	return msg.ID
}

// Subscribe registers callback for topic (or WildcardTopic for every
// topic), optionally narrowed by filter, returning a handle for
// Unsubscribe.
func (b *Broker) Subscribe(topic, subscriberID string, callback Callback, filter Filter) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := uuid.NewString()
	b.subs[handle] = &subscription{
		handle:       handle,
		topic:        topic,
		subscriberID: subscriberID,
		callback:     callback,
		filter:       filter,
	}
	if b.byTopic[topic] == nil {
		b.byTopic[topic] = make(map[string]struct{})
	}
	b.byTopic[topic][handle] = struct{}{}
	return handle
}

// Unsubscribe removes a subscription by handle.
func (b *Broker) Unsubscribe(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[handle]
	if !ok {
		return false
	}
	delete(b.subs, handle)
	delete(b.byTopic[sub.topic], handle)
	return true
}

// matchingSubsLocked collects subscriptions on topic and on WildcardTopic
// whose filter (if any) accepts msg. Must be called with b.mu held; it
// only reads, so it is safe to call before releasing the lock.
func (b *Broker) matchingSubsLocked(msg Message) []*subscription {
	topics := []string{msg.Topic}
	if msg.Topic != WildcardTopic {
		topics = append(topics, WildcardTopic)
	}

	var matched []*subscription
	for _, topic := range topics {
		for handle := range b.byTopic[topic] {
			sub := b.subs[handle]
			if sub == nil {
				continue
			}
			if sub.filter != nil && !sub.filter(msg) {
				continue
			}
			matched = append(matched, sub)
		}
	}
	return matched
}

func deliver(subs []*subscription, msg Message) {
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("broker: subscriber %s callback panicked: %v", sub.subscriberID, r)
				}
			}()
			sub.callback(msg)
		}()
	}
}

// Receive dequeues the highest-priority message on topic, transitions it
// to Processing, records it in the pending-ack table, delivers it to every
// matching subscription, and only then returns it to the caller.
// timeout == 0 makes the attempt non-blocking (a single try); timeout < 0
// waits forever for a message to arrive. ctx cancellation always takes
// precedence, returning kernel.ErrCancelled; a timed-out poll returns
// kernel.ErrTimeout.
func (b *Broker) Receive(ctx context.Context, topic, subscriberID string, timeout time.Duration) (Message, error) {
	hasDeadline := timeout >= 0
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return Message{}, kernel.ErrCancelled
		default:
		}

		b.mu.Lock()
		h := b.topics[topic]
		if h != nil && h.Len() > 0 {
			msg := heap.Pop(h).(*Message)
			msg.Status = Processing
			msg.SubscriberID = subscriberID
			b.pendingAck[msg.ID] = msg
			subs := b.matchingSubsLocked(*msg)
			b.mu.Unlock()

			deliver(subs, *msg)
			return *msg, nil
		}
		wait := b.notify
		b.mu.Unlock()

		now := time.Now()
		if timeout == 0 || (hasDeadline && !now.Before(deadline)) {
			return Message{}, kernel.ErrTimeout
		}

		waitFor := time.Duration(-1)
		if hasDeadline {
			waitFor = time.Until(deadline)
		}
		select {
		case <-ctx.Done():
			return Message{}, kernel.ErrCancelled
		case <-wait:
		case <-timeoutChan(waitFor):
		}
	}
}

// timeoutChan returns a channel firing after d, or a nil (never-firing)
// channel when d < 0, letting Receive's select block only on ctx/publish
// when waiting forever.
func timeoutChan(d time.Duration) <-chan time.Time {
	if d < 0 {
		return nil
	}
	return time.After(d)
}

// Acknowledge marks a Processing message Acknowledged, removes it from the
// pending-ack table, and removes any persisted copy.
func (b *Broker) Acknowledge(messageID string) bool {
	b.mu.Lock()
	msg, ok := b.pendingAck[messageID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.pendingAck, messageID)
	msg.Status = Acknowledged
	store := b.store
	b.mu.Unlock()

	if store != nil {
		if err := store.Remove(messageID); err != nil {
			log.Printf("broker: persist remove %s failed: %v", messageID, err)
		}
	}
	return true
}

// GetQueueSize returns the pending depth of topic's queue.
func (b *Broker) GetQueueSize(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.topics[topic]
	if !ok {
		return 0
	}
	return h.Len()
}

// GetTopics returns the names of every topic that has ever had a message
// published (including now-empty ones).
func (b *Broker) GetTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.topics))
	for name := range b.topics {
		out = append(out, name)
	}
	return out
}

// ClearTopic discards every pending message on topic.
func (b *Broker) ClearTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[topic]; ok {
		b.topics[topic] = newMsgHeap()
	}
}
