package mqtt

import (
	"sync"
	"time"
)

// Emitter receives connectivity events. *events.Emitter satisfies it.
type Emitter interface {
	Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error)
}

// Monitor watches broker connectivity and emits sink.connected and sink.error on
// every transition.
type Monitor struct {
	broker Broker
	em     Emitter

	mu        sync.RWMutex
	connected bool
	changedAt time.Time
	known     bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMonitor(b Broker, em Emitter) *Monitor {
	return &Monitor{
		broker: b,
		em:     em,
		stopCh: make(chan struct{}),
	}
}

// Start begins the background check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.check()
	m.wg.Add(1)
	go m.loop(checkInterval)
}

// Stop stops the background check loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	now := m.broker.IsConnected()

	m.mu.Lock()
	changed := !m.known || now != m.connected
	var down time.Duration
	if changed && m.known {
		down = time.Since(m.changedAt)
	}
	if changed {
		m.connected = now
		m.changedAt = time.Now()
		m.known = true
	}
	m.mu.Unlock()

	if !changed || m.em == nil {
		return
	}
	if now {
		_, _ = m.em.Emit("info", "sink.connected", "mqtt broker connected", map[string]interface{}{
			"sink":       "mqtt",
			"broker":     BrokerURL(),
			"outage_sec": down.Seconds(),
		})
	} else {
		_, _ = m.em.Emit("warn", "sink.error", "mqtt broker unreachable", map[string]interface{}{
			"sink":   "mqtt",
			"broker": BrokerURL(),
		})
	}
}

// Connected reports the last observed broker state.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}
