// Package eventbus implements the encodemgr.EventEmitter collaborator as a
// simple fan-out publisher, letting an admin HTTP surface stream encode
// lifecycle events (e.g. over Server-Sent Events) without coupling it to
// the Encode Manager directly.
package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/edirooss/encode-manager/internal/encodemgr"
)

// Kind names the three encode events the manager can emit (§4.6, §4.7).
type Kind string

const (
	KindAddEncode    Kind = "add_encode"
	KindFinishEncode Kind = "finish_encode"
	KindErrorEncode  Kind = "error_encode"
)

// Event is one published notification. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind   Kind
	JobID  encodemgr.JobID
	Finish encodemgr.FinishRecord
}

// subscriberBuffer bounds how far a slow subscriber can fall behind before
// its events are dropped rather than blocking the publisher (this is a
// notification fan-out, not the gate's synchronization path, so dropping
// for a slow reader is the right failure mode, not backpressure).
const subscriberBuffer = 32

// Bus is a broadcast publisher: every Publish reaches every live
// subscriber channel, unlike the gate's per-waiter signaling (§9 design
// notes warn against broadcast-and-filter specifically for a mutual
// exclusion primitive; a pub/sub fan-out has no such hazard).
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New constructs an empty Bus.
func New(log *zap.Logger) *Bus {
	return &Bus{log: log.Named("eventbus"), subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel and an id for
// Unsubscribe.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropping event for slow subscriber", zap.Int("subscriberId", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

func (b *Bus) EmitAddEncode(id encodemgr.JobID) {
	b.publish(Event{Kind: KindAddEncode, JobID: id})
}

func (b *Bus) EmitFinishEncode(rec encodemgr.FinishRecord) {
	b.publish(Event{Kind: KindFinishEncode, Finish: rec})
}

func (b *Bus) EmitErrorEncode() {
	b.publish(Event{Kind: KindErrorEncode})
}
