// Package transport carries protocol events over the duplex channel to the
// transcription service.
package transport

import (
	"errors"
	"fmt"

	"github.com/lexiqai/live-captions/internal/protocol"
)

var (
	// ErrNotConnected is returned by Send while the channel is down.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrClosed is returned once the transport has been shut down.
	ErrClosed = errors.New("transport: closed")
)

// Transport is the capability the session needs from the channel.
//
// Handlers registered with OnMessage and OnConnect run on a goroutine owned
// by the transport. Consumers that keep state must post to their own loop.
type Transport interface {
	Send(ev protocol.Event) error
	IsConnected() bool
	OnMessage(fn func(protocol.Event))
	OnConnect(fn func())
}

// Error wraps a failed channel operation. It is recoverable: the delivery
// queue retries and the connection is re-established in the background.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
