package transport

import (
	"fmt"
	"sync"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/types"
)

// EndpointSetter is implemented by transports whose peer address can be
// changed at runtime (the local TCP transport).
type EndpointSetter interface {
	SetEndpoint(host string, port int)
}

// Arbiter owns which transport is authoritative. Switching is always
// user- or config-initiated, never an automatic fallback: each transport
// retries its own reconnection, and a terminal failure stays terminal
// until Retry or Switch.
//
// At most one transport's frames ever reach the sink. A switch fully
// tears down the old transport before the new one may deliver, and a
// generation check on the active pointer discards any straggler.
type Arbiter struct {
	log        *log.Logger
	status     StatusSink
	sink       Sink
	reset      func()
	transports map[types.TransportMode]Transport

	// switchMu is the switch-in-progress guard: it serializes Switch,
	// Retry and Stop so there is no window where two transports could
	// deliver concurrently.
	switchMu sync.Mutex

	activeMu sync.RWMutex
	active   Transport
	mode     types.TransportMode
}

// NewArbiter builds an arbiter over the given transports. reset is
// invoked after a transport is torn down and before another may start,
// so the sink's consumer can drop buffered residue from the old
// stream; nil means no residue to drop.
func NewArbiter(logger *log.Logger, status StatusSink, sink Sink, reset func(), transports ...Transport) *Arbiter {
	byMode := make(map[types.TransportMode]Transport, len(transports))
	for _, t := range transports {
		byMode[t.Mode()] = t
	}
	if reset == nil {
		reset = func() {}
	}
	return &Arbiter{
		log:        logger.Component("arbiter"),
		status:     status,
		sink:       sink,
		reset:      reset,
		transports: byMode,
	}
}

// Start selects and starts the initial transport.
func (a *Arbiter) Start(initial types.TransportMode) error {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()
	return a.startLocked(initial)
}

// Switch makes the given transport authoritative. The previously active
// transport is torn down completely first; frames it delivered after the
// switch began never reach the decoder.
func (a *Arbiter) Switch(mode types.TransportMode) error {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()

	a.activeMu.RLock()
	current := a.active
	a.activeMu.RUnlock()
	if current != nil && current.Mode() == mode {
		return nil
	}

	a.log.Info("Switching transport to %s", mode)
	a.stopLocked()
	return a.startLocked(mode)
}

// Retry restarts the active transport after a terminal failure.
func (a *Arbiter) Retry() error {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()

	a.activeMu.RLock()
	current := a.active
	a.activeMu.RUnlock()
	if current == nil {
		return fmt.Errorf("no active transport to retry")
	}

	mode := current.Mode()
	a.log.Info("Retrying %s transport", mode)
	a.stopLocked()
	return a.startLocked(mode)
}

// Stop tears down the active transport.
func (a *Arbiter) Stop() {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()
	a.stopLocked()
}

// Mode returns the currently authoritative transport mode.
func (a *Arbiter) Mode() types.TransportMode {
	a.activeMu.RLock()
	defer a.activeMu.RUnlock()
	return a.mode
}

// SetLocalEndpoint points the local transport at a new controller
// address. Takes effect immediately if local is active, otherwise on the
// next switch to local.
func (a *Arbiter) SetLocalEndpoint(host string, port int) error {
	t, ok := a.transports[types.ModeLocal]
	if !ok {
		return fmt.Errorf("no local transport configured")
	}
	setter, ok := t.(EndpointSetter)
	if !ok {
		return fmt.Errorf("local transport does not support endpoint changes")
	}
	setter.SetEndpoint(host, port)
	return nil
}

func (a *Arbiter) startLocked(mode types.TransportMode) error {
	t, ok := a.transports[mode]
	if !ok {
		return fmt.Errorf("unknown transport mode: %v", mode)
	}

	a.activeMu.Lock()
	a.active = t
	a.mode = mode
	a.activeMu.Unlock()

	sink := func(data []byte) { a.deliver(t, data) }
	onState := func(state types.ConnectionState) { a.transportState(t, state) }

	if err := t.Start(sink, onState); err != nil {
		return fmt.Errorf("could not start %s transport: %v", mode, err)
	}
	return nil
}

func (a *Arbiter) stopLocked() {
	a.activeMu.Lock()
	current := a.active
	a.active = nil
	a.activeMu.Unlock()

	if current == nil {
		return
	}
	// Stop blocks until the transport's delivery path has exited; only
	// then can a partial frame it left behind be dropped.
	current.Stop()
	a.reset()
	a.status.SetTransportState(current.Mode(), types.StateDisconnected)
}

func (a *Arbiter) deliver(t Transport, data []byte) {
	a.activeMu.RLock()
	authoritative := a.active == t
	a.activeMu.RUnlock()
	if !authoritative {
		a.log.Debug("Discarding %d bytes from non-authoritative %s transport", len(data), t.Mode())
		return
	}
	a.sink(data)
}

func (a *Arbiter) transportState(t Transport, state types.ConnectionState) {
	a.activeMu.RLock()
	authoritative := a.active == t
	a.activeMu.RUnlock()
	if authoritative {
		a.status.SetTransportState(t.Mode(), state)
	}
}
