package mqtt

import (
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// WakeTopic returns orle/<world>/wake. Any message on it makes idle workers search
// the job queue immediately; the payload is ignored.
func WakeTopic(worldID int) string {
	return fmt.Sprintf("orle/%d/wake", worldID)
}

// WakeSubscriber turns messages on a world's wake topic into coalesced signals.
type WakeSubscriber struct {
	broker Broker
	topic  string
	c      chan struct{}

	mu         sync.Mutex
	subscribed bool
}

func NewWakeSubscriber(b Broker, worldID int) *WakeSubscriber {
	return &WakeSubscriber{
		broker: b,
		topic:  WakeTopic(worldID),
		c:      make(chan struct{}, 1),
	}
}

// C receives a value after one or more wake messages.
func (w *WakeSubscriber) C() <-chan struct{} {
	return w.c
}

// Subscribe subscribes to the wake topic if not already subscribed.
func (w *WakeSubscriber) Subscribe() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subscribed {
		return nil
	}
	if err := w.broker.Subscribe(w.topic, w.handle); err != nil {
		return err
	}
	w.subscribed = true
	return nil
}

// Resubscribe forgets the current subscription and subscribes again. Call it after
// a reconnect, when the broker session no longer holds the subscription.
func (w *WakeSubscriber) Resubscribe() error {
	w.mu.Lock()
	w.subscribed = false
	w.mu.Unlock()
	return w.Subscribe()
}

// IsSubscribed returns true once the wake topic is subscribed.
func (w *WakeSubscriber) IsSubscribed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.subscribed
}

func (w *WakeSubscriber) handle(_ paho.Client, _ paho.Message) {
	select {
	case w.c <- struct{}{}:
	default:
	}
}
