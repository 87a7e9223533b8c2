package bell

import (
	"sort"
	"sync"
	"time"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/types"
)

// Tracker follows per-device bell relay confirmations. A confirmation
// that is not renewed within the silence window decays; the decay is
// evaluated at read time, so there are no timers to cancel on teardown.
type Tracker struct {
	mu         sync.Mutex
	log        *log.Logger
	window     time.Duration
	now        func() time.Time
	drill      bool // operator command
	panelDrill bool // drill flag reported by the panel itself
	confirmed  map[string]time.Time
}

func New(logger *log.Logger, silenceWindow time.Duration) *Tracker {
	return &Tracker{
		log:       logger.Component("bell"),
		window:    silenceWindow,
		now:       time.Now,
		confirmed: make(map[string]time.Time),
	}
}

// Observe records bell confirmations carried by one snapshot.
func (t *Tracker) Observe(s types.SystemStatus) {
	for _, dev := range s.Devices {
		if dev.Bell {
			t.Confirm(dev.Key())
		}
	}
}

// Confirm marks a device's bell relay as confirmed now, renewing any
// earlier confirmation.
func (t *Tracker) Confirm(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.confirmed[key]; !ok {
		t.log.Panel("Bell confirmed on device %s", key)
	}
	t.confirmed[key] = t.now()
}

// Active reports whether the device's bell reads as ringing. Drill mode
// overrides every device to true without touching the underlying
// confirmation timestamps.
func (t *Tracker) Active(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drill || t.panelDrill {
		return true
	}
	at, ok := t.confirmed[key]
	return ok && t.now().Sub(at) <= t.window
}

// LastConfirmed returns the most recent confirmation time for a device.
func (t *Tracker) LastConfirmed(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.confirmed[key]
	return at, ok
}

// ActiveDevices returns the keys of all devices currently reading as
// ringing, in ascending order. Drill mode is a read-time override and
// does not add devices that were never confirmed.
func (t *Tracker) ActiveDevices() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	keys := make([]string, 0, len(t.confirmed))
	for k, at := range t.confirmed {
		if now.Sub(at) <= t.window {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SetDrill toggles the operator's drill override. Independent of the
// drill flag the panel reports in telemetry; either one forces bells.
func (t *Tracker) SetDrill(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drill != on {
		t.log.Info("Drill mode (operator): %v", on)
	}
	t.drill = on
}

// SetPanelDrill records the drill flag carried by the latest frame.
func (t *Tracker) SetPanelDrill(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.panelDrill != on {
		t.log.Info("Drill mode (panel): %v", on)
	}
	t.panelDrill = on
}

// Drill reports whether either drill override is active.
func (t *Tracker) Drill() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drill || t.panelDrill
}

// Reset clears every confirmation. Part of the operator's formal event
// reset; drill mode is left as-is.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmed = make(map[string]time.Time)
}
