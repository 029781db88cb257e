package events

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Sink persists or forwards emitted events.
type Sink interface {
	Write(e Event) error
}

type sinkState struct {
	name        string
	sink        Sink
	errorLogged bool
}

// Options configures an Emitter.
type Options struct {
	// BufferSize is the number of recent events kept in memory. Defaults to 256.
	BufferSize int
	// Output receives one JSON line per event when set.
	Output io.Writer
	// Fields are merged into every event, below the per-event fields.
	Fields map[string]interface{}
}

// Emitter validates, buffers, broadcasts and persists process events.
type Emitter struct {
	buffer      *RingBuffer
	broadcaster *Broadcaster
	base        map[string]interface{}
	total       atomic.Int64

	outMu sync.Mutex
	out   io.Writer

	mu    sync.RWMutex
	sinks []*sinkState
}

func NewEmitter(opts Options) *Emitter {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	base := make(map[string]interface{}, len(opts.Fields))
	for k, v := range opts.Fields {
		base[k] = v
	}
	return &Emitter{
		buffer:      NewRingBuffer(opts.BufferSize),
		broadcaster: NewBroadcaster(),
		base:        base,
		out:         opts.Output,
	}
}

// AddSink registers a sink under name. Sinks receive every later event.
func (em *Emitter) AddSink(name string, s Sink) {
	em.mu.Lock()
	em.sinks = append(em.sinks, &sinkState{name: name, sink: s})
	em.mu.Unlock()
}

// Emit records an event and returns its JSON encoding. Unknown event names are rejected.
func (em *Emitter) Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	merged := fields
	if len(em.base) > 0 {
		merged = make(map[string]interface{}, len(em.base)+len(fields))
		for k, v := range em.base {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    merged,
	}

	em.record(e)
	em.persist(e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	if em.out != nil {
		em.outMu.Lock()
		_, _ = em.out.Write(append(b, '\n'))
		em.outMu.Unlock()
	}
	return b, nil
}

func (em *Emitter) record(e Event) {
	em.total.Add(1)
	em.buffer.Add(e)
	em.broadcaster.Broadcast(e)
}

// persist hands e to every sink. The first failure of a sink is recorded once as a
// system.error event that bypasses the sinks, so a failing sink cannot recurse.
func (em *Emitter) persist(e Event) {
	em.mu.RLock()
	sinks := append([]*sinkState(nil), em.sinks...)
	em.mu.RUnlock()

	for _, s := range sinks {
		err := s.sink.Write(e)
		if err == nil {
			continue
		}

		em.mu.Lock()
		first := !s.errorLogged
		s.errorLogged = true
		em.mu.Unlock()

		if first {
			em.record(Event{
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				Level:     "error",
				Name:      "system.error",
				Message:   s.name + " append failed",
				Fields: map[string]interface{}{
					"sink":  s.name,
					"error": err.Error(),
				},
			})
		}
	}
}

// SinkHealthy reports whether the named sink has not failed since it was added.
func (em *Emitter) SinkHealthy(name string) bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	for _, s := range em.sinks {
		if s.name == name {
			return !s.errorLogged
		}
	}
	return false
}

// Snapshot returns the buffered events, oldest first.
func (em *Emitter) Snapshot() []Event {
	return em.buffer.Snapshot()
}

// RecentEvents returns the last n events from the ring buffer.
// If n is greater than available events, returns all available.
func (em *Emitter) RecentEvents(n int) []Event {
	all := em.buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// TotalCount returns the number of events recorded since the emitter was created.
func (em *Emitter) TotalCount() int64 {
	return em.total.Load()
}

func (em *Emitter) Subscribe() Subscriber { return em.broadcaster.Subscribe() }

func (em *Emitter) Unsubscribe(sub Subscriber) { em.broadcaster.Unsubscribe(sub) }

func (em *Emitter) SubscriberCount() int { return em.broadcaster.Count() }

// CloseAllSubscribers ends every live stream. Used at shutdown.
func (em *Emitter) CloseAllSubscribers() { em.broadcaster.CloseAll() }

// Clear resets the event buffer. Used for testing.
func (em *Emitter) Clear() {
	em.buffer.Clear()
}
