package status

import (
	"time"

	"github.com/firemon-dev/firemon/internal/frame"
	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/metrics"
	"github.com/firemon-dev/firemon/internal/types"
)

// Extractor folds decoded device records into a system-wide snapshot.
type Extractor struct {
	log *log.Logger
}

func NewExtractor(logger *log.Logger) *Extractor {
	return &Extractor{log: logger.Component("status")}
}

// Extract builds a snapshot from one decoded frame. Alarm and trouble
// are recomputed from the zones; supervisory and the remaining flags are
// carried through from the frame unchanged.
func (e *Extractor) Extract(f frame.Frame) types.SystemStatus {
	s := types.SystemStatus{
		Supervisory: f.Supervisory,
		Devices:     f.Devices,
		Time:        time.Now(),
	}
	for _, dev := range f.Devices {
		if dev.HasAlarm() {
			s.Alarm = true
		}
		if dev.HasTrouble() {
			s.Trouble = true
		}
	}
	s.Flags = map[types.SystemFlag]bool{
		types.FlagAlarm:       s.Alarm,
		types.FlagTrouble:     s.Trouble,
		types.FlagSupervisory: f.Supervisory,
		types.FlagDrill:       f.Drill,
		types.FlagSilenced:    f.Silenced,
		types.FlagDisabled:    f.Disabled,
	}
	return s
}

// Empty returns the explicit no-data snapshot. Callers treat it as "no
// data yet", not as a confirmed all-normal reading.
func Empty() types.SystemStatus {
	return types.SystemStatus{
		Flags: map[types.SystemFlag]bool{},
		Time:  time.Now(),
	}
}

// Validate recomputes the aggregate flags from the device list and
// compares them with the snapshot's stored values. A mismatch signals a
// decode or aggregation bug. An empty device list is the bootstrap state
// and validates as true.
func (e *Extractor) Validate(s types.SystemStatus) bool {
	if len(s.Devices) == 0 {
		return true
	}

	var alarm, trouble bool
	for _, dev := range s.Devices {
		if dev.HasAlarm() {
			alarm = true
		}
		if dev.HasTrouble() {
			trouble = true
		}
	}

	if alarm != s.Alarm || trouble != s.Trouble {
		metrics.ValidationFailuresTotal.Inc()
		e.log.Error("Snapshot flags inconsistent: stored alarm=%v trouble=%v, recomputed alarm=%v trouble=%v",
			s.Alarm, s.Trouble, alarm, trouble)
		return false
	}
	return true
}
