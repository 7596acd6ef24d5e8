// Package broadcast fans events out to connected clients.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// Sink is one connection's outbound queue. Send must not block; it reports false when
// the frame could not be queued (buffer full or connection closing). A sink that refuses
// a frame is detached and closed, so its stream never has gaps.
type Sink interface {
	ID() string
	Send(frame []byte) bool
	Close()
}

// Router delivers events to every attached sink, best effort and without retries.
type Router struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	log   *zap.Logger
}

// NewRouter returns a router with no sinks.
func NewRouter(log *zap.Logger) *Router {
	return &Router{
		sinks: make(map[string]Sink),
		log:   log.Named("broadcast"),
	}
}

// Attach adds sink to the broadcast set.
func (r *Router) Attach(sink Sink) {
	r.mu.Lock()
	r.sinks[sink.ID()] = sink
	r.mu.Unlock()
}

// Detach removes sink from the broadcast set.
func (r *Router) Detach(sink Sink) {
	r.mu.Lock()
	delete(r.sinks, sink.ID())
	r.mu.Unlock()
}

// Count returns the number of attached sinks.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Announce encodes the event once and queues it on every attached sink. It returns how
// many sinks accepted the frame; a sink that refuses is dropped without affecting the others.
func (r *Router) Announce(event string, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		r.log.Error("drop broadcast", zap.String("event", event), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, sink := range r.snapshot() {
		if sink.Send(frame) {
			delivered++
			continue
		}
		r.drop(sink, event)
	}

	r.log.Debug("broadcast", zap.String("event", event), zap.Int("delivered", delivered))
	return delivered
}

// Unicast queues the event on sink alone.
func (r *Router) Unicast(sink Sink, event string, payload any) bool {
	frame, err := Encode(event, payload)
	if err != nil {
		r.log.Error("drop unicast", zap.String("event", event), zap.Error(err))
		return false
	}
	if !sink.Send(frame) {
		r.drop(sink, event)
		return false
	}
	return true
}

// drop detaches and closes a sink that could not take a frame.
func (r *Router) drop(sink Sink, event string) {
	r.Detach(sink)
	sink.Close()
	r.log.Warn("dropped slow sink", zap.String("event", event), zap.String("conn", sink.ID()))
}

// ClearAll tells every client that the history was purged.
func (r *Router) ClearAll() int {
	return r.Announce(chat.EventChatCleared, nil)
}

// snapshot copies the sink set under the read lock so sends happen without it.
func (r *Router) snapshot() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]Sink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		sinks = append(sinks, sink)
	}
	return sinks
}
