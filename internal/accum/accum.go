package accum

import (
	"sort"
	"sync"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/types"
)

// ZoneState is the sticky per-zone state. Transitions only ever move
// toward Alarmed; Reset is the sole way back to Normal.
type ZoneState int

const (
	Normal ZoneState = iota
	Troubled
	Alarmed
)

// Accumulator keeps the sticky history of a fire event: every zone that
// has alarmed or troubled and every device whose bell has rung since the
// last reset. During a fire event a zone that alarms and transiently
// clears must stay flagged until the event is formally reset.
type Accumulator struct {
	mu           sync.Mutex
	log          *log.Logger
	accumulating bool
	zones        map[int]ZoneState
	bells        map[string]struct{}
}

func New(logger *log.Logger) *Accumulator {
	return &Accumulator{
		log:          logger.Component("accum"),
		accumulating: true,
		zones:        make(map[int]ZoneState),
		bells:        make(map[string]struct{}),
	}
}

// Observe merges one snapshot into the sticky sets. Alarm wins over
// trouble; neither is ever cleared here.
func (a *Accumulator) Observe(s types.SystemStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, dev := range s.Devices {
		if dev.Bell {
			if _, seen := a.bells[dev.Key()]; !seen {
				a.bells[dev.Key()] = struct{}{}
				a.log.Debug("Bell on device %s joined sticky set", dev.Key())
			}
		}
		for _, z := range dev.Zones {
			switch {
			case z.Alarm && a.zones[z.Number] != Alarmed:
				a.zones[z.Number] = Alarmed
				a.log.Panel("Zone %d entered alarm", z.Number)
			case z.Trouble && a.zones[z.Number] == Normal:
				a.zones[z.Number] = Troubled
				a.log.Panel("Zone %d entered trouble", z.Number)
			}
		}
	}
}

// Reset atomically clears all sticky state. This is the only removal
// operation and corresponds to the operator's formal event reset.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.Info("Accumulated history reset: %d zones, %d bells cleared", len(a.zones), len(a.bells))
	a.zones = make(map[int]ZoneState)
	a.bells = make(map[string]struct{})
}

// SetAccumulation switches between accumulation and real-time query
// modes. Switching never clears history.
func (a *Accumulator) SetAccumulation(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accumulating != on {
		a.log.Info("Accumulation mode: %v", on)
	}
	a.accumulating = on
}

// Accumulating reports the current query mode.
func (a *Accumulator) Accumulating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accumulating
}

// AlarmZones returns the sticky alarm set in ascending zone order.
func (a *Accumulator) AlarmZones() []int {
	return a.zonesIn(Alarmed)
}

// TroubleZones returns the sticky trouble set in ascending zone order.
// A zone upgraded to alarm is reported as alarm only.
func (a *Accumulator) TroubleZones() []int {
	return a.zonesIn(Troubled)
}

func (a *Accumulator) zonesIn(state ZoneState) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	zones := make([]int, 0, len(a.zones))
	for n, s := range a.zones {
		if s == state {
			zones = append(zones, n)
		}
	}
	sort.Ints(zones)
	return zones
}

// BellDevices returns the sticky set of device keys whose bell has rung.
func (a *Accumulator) BellDevices() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.bells))
	for k := range a.bells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State returns the sticky state of one zone.
func (a *Accumulator) State(zone int) ZoneState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zones[zone]
}
