// Package mock provides an in-memory transport.Transport for tests.
package mock

import (
	"sync"

	"github.com/lexiqai/live-captions/internal/protocol"
	"github.com/lexiqai/live-captions/internal/transport"
)

// Transport records sent events and lets tests drive inbound traffic and
// connection changes. Handlers run synchronously on the calling goroutine.
type Transport struct {
	mu sync.Mutex

	connected bool

	// Sent records every event accepted by Send, in order.
	Sent []protocol.Event

	// SendErrors are returned by successive Send calls on a connected
	// transport. A nil entry lets that call succeed.
	SendErrors []error

	// CallCountSend records every Send call, including failed ones.
	CallCountSend int

	onMessage []func(protocol.Event)
	onConnect []func()
}

// New returns a mock transport in the given connection state.
func New(connected bool) *Transport {
	return &Transport{connected: connected}
}

// Send records ev or fails like a real transport would.
func (t *Transport) Send(ev protocol.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.CallCountSend++
	if !t.connected {
		return transport.ErrNotConnected
	}
	if len(t.SendErrors) > 0 {
		err := t.SendErrors[0]
		t.SendErrors = t.SendErrors[1:]
		if err != nil {
			return err
		}
	}
	t.Sent = append(t.Sent, ev)
	return nil
}

// IsConnected reports the simulated connection state.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// OnMessage registers an inbound handler.
func (t *Transport) OnMessage(fn func(protocol.Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = append(t.onMessage, fn)
}

// OnConnect registers a connect handler.
func (t *Transport) OnConnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = append(t.onConnect, fn)
}

// Connect marks the transport connected and runs connect handlers.
func (t *Transport) Connect() {
	t.mu.Lock()
	t.connected = true
	handlers := append([]func(){}, t.onConnect...)
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Disconnect marks the transport disconnected.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

// Deliver hands ev to every inbound handler as if it arrived from the service.
func (t *Transport) Deliver(ev protocol.Event) {
	t.mu.Lock()
	handlers := append([]func(protocol.Event){}, t.onMessage...)
	t.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Reset forgets recorded events and call counts.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = nil
	t.CallCountSend = 0
}

// SentOf returns the recorded events of type T, in order.
func SentOf[T protocol.Event](t *Transport) []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []T
	for _, ev := range t.Sent {
		if typed, ok := ev.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
