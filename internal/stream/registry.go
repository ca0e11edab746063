package stream

import (
	"encoding/json"
	"sync"

	"feedcore/internal/model"
	"feedcore/internal/model/enum"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var ErrNoUpstream = errors.New("stream: no upstream registered for exchange")

// Upstream is the per-exchange feed handle the registry opens and closes
// topics on. *feed.Connector satisfies it.
type Upstream interface {
	Subscribe(topic model.Topic) error
	Unsubscribe(topic model.Topic) error
}

// Registry ref-counts topic interest across consumers. The first
// subscriber of a topic opens it upstream, the last one closes it and
// discards the replay ring. Both transitions happen exactly once.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[enum.Exchange]Upstream
	entries   map[string]*topicEntry
	ringSize  int
}

type topicEntry struct {
	mu      sync.Mutex
	topic   model.Topic
	ring    *replayRing
	members map[*Consumer]struct{}
}

// NewRegistry creates a registry whose topic rings hold ringSize
// envelopes each.
func NewRegistry(ringSize int) *Registry {
	if ringSize <= 0 {
		ringSize = 1
	}
	return &Registry{
		upstreams: make(map[enum.Exchange]Upstream),
		entries:   make(map[string]*topicEntry),
		ringSize:  ringSize,
	}
}

// RegisterUpstream binds the feed handle for one exchange. Call before
// serving subscriptions.
func (r *Registry) RegisterUpstream(exchange enum.Exchange, upstream Upstream) {
	r.mu.Lock()
	r.upstreams[exchange] = upstream
	r.mu.Unlock()
}

// Subscribe registers consumer interest in topic. Duplicate calls for
// the same pair are no-ops. The 0->1 transition opens the topic
// upstream before any state is recorded, so a refused upstream leaves
// the registry unchanged.
func (r *Registry) Subscribe(consumer *Consumer, topic model.Topic) error {
	if consumer == nil {
		return errors.New("stream: nil consumer")
	}
	key := topic.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[key]; ok {
		entry.mu.Lock()
		entry.members[consumer] = struct{}{}
		entry.mu.Unlock()
		return nil
	}

	upstream, ok := r.upstreams[topic.Exchange]
	if !ok {
		return errors.Wrap(ErrNoUpstream, topic.Exchange.String())
	}
	if err := upstream.Subscribe(topic); err != nil {
		return errors.Wrap(err, "open upstream topic")
	}
	entry := &topicEntry{
		topic:   topic,
		ring:    newReplayRing(r.ringSize),
		members: map[*Consumer]struct{}{consumer: {}},
	}
	r.entries[key] = entry
	logs.Infof("stream: topic %s opened", key)
	return nil
}

// Unsubscribe drops consumer interest in topic. Unknown pairs are
// no-ops. The 1->0 transition closes the topic upstream and discards
// its ring.
func (r *Registry) Unsubscribe(consumer *Consumer, topic model.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(consumer, topic.Key())
}

// DropConsumer removes the consumer from every topic and closes its
// queue. Used when a downstream connection goes away.
func (r *Registry) DropConsumer(consumer *Consumer) {
	if consumer == nil {
		return
	}
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for key, entry := range r.entries {
		entry.mu.Lock()
		_, member := entry.members[consumer]
		entry.mu.Unlock()
		if member {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		if err := r.unsubscribeLocked(consumer, key); err != nil {
			logs.Warnf("stream: close topic %s: %v", key, err)
		}
	}
	r.mu.Unlock()
	consumer.Close()
}

func (r *Registry) unsubscribeLocked(consumer *Consumer, key string) error {
	entry, ok := r.entries[key]
	if !ok {
		return nil
	}
	entry.mu.Lock()
	if _, member := entry.members[consumer]; !member {
		entry.mu.Unlock()
		return nil
	}
	delete(entry.members, consumer)
	empty := len(entry.members) == 0
	entry.mu.Unlock()

	if !empty {
		return nil
	}
	delete(r.entries, key)
	logs.Infof("stream: topic %s closed", key)
	upstream, ok := r.upstreams[entry.topic.Exchange]
	if !ok {
		return nil
	}
	if err := upstream.Unsubscribe(entry.topic); err != nil {
		return errors.Wrap(err, "close upstream topic")
	}
	return nil
}

// Publish records payload in the topic ring and fans it out to every
// subscribed consumer. Topics without subscribers discard the message.
// Enqueueing never blocks the caller, overflow follows each consumer's
// policy.
func (r *Registry) Publish(topic model.Topic, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	env := Envelope{Type: "tick", Stream: topic.Key(), Payload: raw}

	r.mu.RLock()
	entry, ok := r.entries[topic.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	entry.ring.Append(env)
	for consumer := range entry.members {
		consumer.enqueue(env)
	}
	entry.mu.Unlock()
	return nil
}

// History returns the buffered envelopes for topic, oldest first.
func (r *Registry) History(topic model.Topic) []Envelope {
	r.mu.RLock()
	entry, ok := r.entries[topic.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ring.Snapshot()
}

// Topics lists the currently open topic keys.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}
