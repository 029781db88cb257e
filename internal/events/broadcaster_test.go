package events

import (
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	em := NewEmitter(Options{})

	sub1 := em.Subscribe()
	if em.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after first subscribe, got %d", em.SubscriberCount())
	}

	sub2 := em.Subscribe()
	if em.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers after second subscribe, got %d", em.SubscriberCount())
	}

	em.Unsubscribe(sub1)
	if em.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", em.SubscriberCount())
	}

	em.Unsubscribe(sub2)
	em.Unsubscribe(sub2)
	if em.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after all unsubscribed, got %d", em.SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	em := NewEmitter(Options{})
	sub := em.Subscribe()
	defer em.Unsubscribe(sub)

	if _, err := em.Emit("info", "job.acquired", "test", map[string]interface{}{"job": "cyl.0.yml"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case e := <-sub:
		if e.Name != "job.acquired" {
			t.Errorf("expected event name 'job.acquired', got '%s'", e.Name)
		}
		if e.Fields["job"] != "cyl.0.yml" {
			t.Errorf("expected job 'cyl.0.yml', got '%v'", e.Fields["job"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestRecentEvents(t *testing.T) {
	em := NewEmitter(Options{BufferSize: 8})

	for i := 0; i < 10; i++ {
		em.Emit("info", "job.info", "", map[string]interface{}{"i": i})
	}

	recent := em.RecentEvents(5)
	if len(recent) != 5 {
		t.Errorf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	// the buffer only holds 8
	all := em.RecentEvents(100)
	if len(all) != 8 {
		t.Errorf("expected 8 events when requesting 100, got %d", len(all))
	}
	if all[0].Fields["i"] != 2 {
		t.Errorf("expected oldest buffered event i=2, got %v", all[0].Fields["i"])
	}
	if em.TotalCount() != 10 {
		t.Errorf("expected total count 10, got %d", em.TotalCount())
	}

	em.Clear()
	if len(em.Snapshot()) != 0 {
		t.Error("expected empty buffer after Clear")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	em := NewEmitter(Options{})
	sub := em.Subscribe()
	em.Unsubscribe(sub)

	_, ok := <-sub
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	em := NewEmitter(Options{})
	sub1 := em.Subscribe()
	sub2 := em.Subscribe()
	sub3 := em.Subscribe()

	if em.SubscriberCount() != 3 {
		t.Errorf("expected 3 subscribers, got %d", em.SubscriberCount())
	}

	em.CloseAllSubscribers()

	_, ok1 := <-sub1
	_, ok2 := <-sub2
	_, ok3 := <-sub3
	if ok1 || ok2 || ok3 {
		t.Error("expected all channels to be closed")
	}
	if em.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", em.SubscriberCount())
	}
}
