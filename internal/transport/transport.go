package transport

import (
	"errors"

	"github.com/firemon-dev/firemon/internal/types"
)

var errAlreadyStarted = errors.New("transport already started")

// Sink receives raw telemetry bytes from the authoritative transport.
// Delivery is strictly in arrival order.
type Sink func([]byte)

// StateFunc is notified of every connection sub-state transition.
type StateFunc func(types.ConnectionState)

// Transport is one telemetry source. Start begins delivery into the
// sink; Stop tears the source down completely, and once it returns no
// further sink or state calls are made.
type Transport interface {
	Mode() types.TransportMode
	Start(sink Sink, onState StateFunc) error
	Stop()
	State() types.ConnectionState
}

// StatusSink is the write surface the arbiter exposes transport state
// through; satisfied by the unified status store.
type StatusSink interface {
	SetTransportState(types.TransportMode, types.ConnectionState)
}
