package mqtt

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/AaronLay10/orle/internal/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotConnected is returned by Publisher.Write while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// lifecycleEvents are published by default. Per-message job logging stays local.
var lifecycleEvents = map[string]bool{
	"process.started": true,
	"process.stopped": true,
	"job.acquired":    true,
	"job.completed":   true,
	"job.failed":      true,
	"job.archived":    true,
	"solver.started":  true,
	"solver.finished": true,
	"world.ready":     true,
	"world.failed":    true,
	"system.error":    true,
}

// EventTopic returns orle/<world>/events/<name>.
func EventTopic(worldID int, name string) string {
	return fmt.Sprintf("orle/%d/events/%s", worldID, name)
}

// Publisher forwards events to the broker. It satisfies events.Sink.
type Publisher struct {
	broker  Broker
	worldID int
	// All publishes every event instead of lifecycle events only.
	All bool
}

func NewPublisher(b Broker, worldID int) *Publisher {
	return &Publisher{broker: b, worldID: worldID}
}

// Publishes reports whether events named name are forwarded.
func (p *Publisher) Publishes(name string) bool {
	return p.All || lifecycleEvents[name]
}

// Write publishes e as JSON on its event topic.
func (p *Publisher) Write(e events.Event) error {
	if !p.Publishes(e.Name) {
		return nil
	}
	if !p.broker.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.broker.Publish(EventTopic(p.worldID, e.Name), payload)
}
