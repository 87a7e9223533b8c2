package store

import (
	"sync"

	"github.com/firemon-dev/firemon/internal/accum"
	"github.com/firemon-dev/firemon/internal/bell"
	"github.com/firemon-dev/firemon/internal/frame"
	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/metrics"
	"github.com/firemon-dev/firemon/internal/status"
	"github.com/firemon-dev/firemon/internal/types"
)

// ZoneStatus is the per-zone answer handed to the display layer.
type ZoneStatus struct {
	Alarm       bool
	Trouble     bool
	Active      bool
	Description string
}

// Store is the single owner of the current answer: the latest snapshot,
// the sticky accumulated sets, and the bell confirmations. Writes come
// only from the decode pipeline (Apply) and the arbiter's transport
// callbacks (SetTransportState); everything else reads.
type Store struct {
	mu        sync.RWMutex
	log       *log.Logger
	extractor *status.Extractor
	accum     *accum.Accumulator
	bells     *bell.Tracker

	snapshot  types.SystemStatus
	hasData   bool
	mode      types.TransportMode
	connState types.ConnectionState

	obsMu     sync.Mutex
	observers map[uint64]func()
	nextID    uint64

	notifyMu sync.Mutex
}

func New(logger *log.Logger, extractor *status.Extractor, a *accum.Accumulator, b *bell.Tracker) *Store {
	return &Store{
		log:       logger.Component("store"),
		extractor: extractor,
		accum:     a,
		bells:     b,
		snapshot:  status.Empty(),
		observers: make(map[uint64]func()),
	}
}

// Apply runs one decoded frame through extraction, validation and the
// sticky trackers, replaces the snapshot wholesale, and notifies
// observers once the new state is fully consistent. Frames must be
// applied in arrival order; the accumulator's monotonicity depends on
// observing transitions as they occurred on the wire.
func (s *Store) Apply(f frame.Frame) {
	snap := s.extractor.Extract(f)
	if !s.extractor.Validate(snap) {
		// Delivered anyway: the operator must see degraded data rather
		// than a stale snapshot. The mismatch is already counted and
		// logged by the extractor.
		s.log.Warn("Delivering snapshot that failed consistency validation")
	}

	s.accum.Observe(snap)
	s.bells.Observe(snap)
	s.bells.SetPanelDrill(snap.Flag(types.FlagDrill))

	s.mu.Lock()
	s.snapshot = snap
	s.hasData = true
	s.mu.Unlock()

	metrics.AlarmGauge.Set(boolAs(snap.Alarm))
	metrics.TroubleGauge.Set(boolAs(snap.Trouble))

	s.notify()
}

// Snapshot returns the latest consistent snapshot. Callers must treat it
// as read-only.
func (s *Store) Snapshot() types.SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// HasValidData reports whether at least one frame has been applied since
// startup. Until then the snapshot means "no data yet", not "normal".
func (s *Store) HasValidData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasData
}

// Flag reads a named condition from the current snapshot.
func (s *Store) Flag(f types.SystemFlag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Flag(f)
}

// FlagByName resolves a display-layer flag name and reads it.
func (s *Store) FlagByName(name string) (bool, error) {
	f, err := types.ParseSystemFlag(name)
	if err != nil {
		return false, err
	}
	return s.Flag(f), nil
}

// StatusText resolves the headline status from the current snapshot.
func (s *Store) StatusText() types.StatusText {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Text()
}

// ZoneStatus looks up one zone by global number. In accumulation mode
// the sticky alarm/trouble history overrides the live bits.
func (s *Store) ZoneStatus(number int) (ZoneStatus, bool) {
	if !types.ValidZone(number) {
		return ZoneStatus{}, false
	}

	s.mu.RLock()
	var zs ZoneStatus
	found := false
	device, index := types.SplitZone(number)
	for _, dev := range s.snapshot.Devices {
		if dev.Address == device {
			z := dev.Zones[index-1]
			zs = ZoneStatus{Alarm: z.Alarm, Trouble: z.Trouble, Active: z.Active, Description: z.Description}
			found = true
			break
		}
	}
	s.mu.RUnlock()

	if s.accum.Accumulating() {
		switch s.accum.State(number) {
		case accum.Alarmed:
			zs.Alarm = true
		case accum.Troubled:
			zs.Trouble = true
		}
	}
	return zs, found
}

// ActiveAlarmZones returns the zones currently reported in alarm: the
// sticky set in accumulation mode, the live snapshot otherwise.
func (s *Store) ActiveAlarmZones() []int {
	if s.accum.Accumulating() {
		return s.accum.AlarmZones()
	}
	return s.liveZones(func(z types.Zone) bool { return z.Alarm })
}

// ActiveTroubleZones is the trouble counterpart of ActiveAlarmZones.
func (s *Store) ActiveTroubleZones() []int {
	if s.accum.Accumulating() {
		return s.accum.TroubleZones()
	}
	return s.liveZones(func(z types.Zone) bool { return z.Trouble })
}

func (s *Store) liveZones(match func(types.Zone) bool) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zones []int
	for _, dev := range s.snapshot.Devices {
		for _, z := range dev.Zones {
			if match(z) {
				zones = append(zones, z.Number)
			}
		}
	}
	return zones
}

// AccumulationMode reports whether sticky history overrides live values.
func (s *Store) AccumulationMode() bool {
	return s.accum.Accumulating()
}

// SetAccumulationMode switches query modes without touching history.
func (s *Store) SetAccumulationMode(on bool) {
	s.accum.SetAccumulation(on)
	s.notify()
}

// BellActive reports whether a device's bell reads as ringing,
// including the drill override.
func (s *Store) BellActive(deviceKey string) bool {
	return s.bells.Active(deviceKey)
}

// RungBellDevices returns the sticky set of devices whose bell has rung
// since the last reset.
func (s *Store) RungBellDevices() []string {
	return s.accum.BellDevices()
}

// SetDrillMode toggles the global drill override.
func (s *Store) SetDrillMode(on bool) {
	s.bells.SetDrill(on)
	s.notify()
}

// Reset clears the accumulated history and bell confirmations. It is an
// explicit operator command, never a side effect of a mode or transport
// switch.
func (s *Store) Reset() {
	s.log.Info("System reset requested")
	s.accum.Reset()
	s.bells.Reset()
	s.notify()
}

// SetTransportState mirrors the arbiter's mode and connection sub-state
// for the display layer. Called only by the arbiter.
func (s *Store) SetTransportState(mode types.TransportMode, state types.ConnectionState) {
	s.mu.Lock()
	changed := s.mode != mode || s.connState != state
	s.mode = mode
	s.connState = state
	s.mu.Unlock()

	metrics.ConnectionGauge.Set(float64(state))
	if changed {
		s.notify()
	}
}

// TransportState returns the authoritative mode and its connection
// sub-state.
func (s *Store) TransportState() (types.TransportMode, types.ConnectionState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.connState
}

// ConnectionDisplay renders the transport state for the display layer.
func (s *Store) ConnectionDisplay() string {
	mode, state := s.TransportState()
	switch state {
	case types.StateConnecting:
		return "CONNECTING"
	case types.StateConnected:
		if mode == types.ModeLocal {
			return "LOCAL MODE"
		}
		return "ONLINE"
	default:
		return "DISCONNECTED"
	}
}

// Subscribe registers an observer called after every consistent state
// change. Callback delivery is serialized across all writers: a
// callback never runs concurrently with itself or another observer,
// so observers may keep unsynchronized local state. Callbacks must not
// write back into the store. The returned function unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) notify() {
	s.obsMu.Lock()
	observers := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	// Writers race into notify from the decode pipeline, the control
	// surface and the arbiter's callbacks; fan-out holds its own lock
	// for the whole loop so delivery stays sequential.
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func boolAs(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
