package store

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firemon-dev/firemon/internal/accum"
	"github.com/firemon-dev/firemon/internal/bell"
	"github.com/firemon-dev/firemon/internal/frame"
	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/status"
	"github.com/firemon-dev/firemon/internal/types"
)

func newTestStore() *Store {
	logger := log.NewLogger("error")
	return New(
		logger,
		status.NewExtractor(logger),
		accum.New(logger),
		bell.New(logger, 30*time.Second),
	)
}

func deviceFrame(addr int, alarmZones ...int) frame.Frame {
	dev := types.Device{Address: addr, Connected: true}
	for i := 0; i < types.ZonesPerDevice; i++ {
		dev.Zones[i] = types.Zone{Number: types.ZoneNumber(addr, i+1), Device: addr, Index: i + 1}
	}
	for _, z := range alarmZones {
		_, idx := types.SplitZone(z)
		dev.Zones[idx-1].Alarm = true
	}
	return frame.Frame{Devices: []types.Device{dev}}
}

func TestFireEventScenario(t *testing.T) {
	s := newTestStore()
	require.False(t, s.HasValidData())

	// Device 1, zone 3 in alarm.
	s.Apply(deviceFrame(1, 3))

	assert.True(t, s.HasValidData())
	assert.Equal(t, []int{3}, s.ActiveAlarmZones())
	got, err := s.FlagByName("Alarm")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "ALARM", s.StatusText().String())

	// The alarm bit clears on the wire.
	s.Apply(deviceFrame(1))

	// Accumulation mode (the default) keeps the zone flagged.
	assert.True(t, s.AccumulationMode())
	assert.Equal(t, []int{3}, s.ActiveAlarmZones())

	// Real-time mode answers from the live snapshot.
	s.SetAccumulationMode(false)
	assert.Empty(t, s.ActiveAlarmZones())

	// History survives the mode switch and clears only on reset.
	s.SetAccumulationMode(true)
	assert.Equal(t, []int{3}, s.ActiveAlarmZones())
	s.Reset()
	assert.Empty(t, s.ActiveAlarmZones())
}

func TestZoneStatusLookup(t *testing.T) {
	s := newTestStore()
	f := deviceFrame(1, 3)
	f.Devices[0].Zones[2].Active = true
	f.Devices[0].Zones[2].Description = "Server Room"
	s.Apply(f)

	zs, ok := s.ZoneStatus(3)
	require.True(t, ok)
	assert.True(t, zs.Alarm)
	assert.True(t, zs.Active)
	assert.Equal(t, "Server Room", zs.Description)

	// A zone on an unreported module is not found.
	_, ok = s.ZoneStatus(types.ZoneNumber(40, 1))
	assert.False(t, ok)

	// Out-of-range numbers never resolve.
	_, ok = s.ZoneStatus(0)
	assert.False(t, ok)
	_, ok = s.ZoneStatus(types.MaxZones + 1)
	assert.False(t, ok)
}

func TestZoneStatusAccumulationOverride(t *testing.T) {
	s := newTestStore()
	s.Apply(deviceFrame(1, 3))
	s.Apply(deviceFrame(1)) // live bit clears

	zs, ok := s.ZoneStatus(3)
	require.True(t, ok)
	assert.True(t, zs.Alarm, "sticky history overrides the live bit")

	s.SetAccumulationMode(false)
	zs, ok = s.ZoneStatus(3)
	require.True(t, ok)
	assert.False(t, zs.Alarm)
}

func TestNotifyOncePerApply(t *testing.T) {
	s := newTestStore()

	var calls int
	unsub := s.Subscribe(func() {
		calls++
		// Observers must see fully consistent state.
		assert.True(t, s.HasValidData())
		assert.Equal(t, []int{3}, s.ActiveAlarmZones())
	})
	defer unsub()

	s.Apply(deviceFrame(1, 3))
	assert.Equal(t, 1, calls)
}

func TestNotificationsSerializedAcrossWriters(t *testing.T) {
	s := newTestStore()

	// An observer keeping plain local state, the way the status-line
	// logger in cmd/firemon does. Serialized delivery is what makes
	// this safe; overlapping callbacks would trip the race detector on
	// lastText and the CAS below.
	var lastText types.StatusText
	var inCallback int32
	var overlaps int32
	unsub := s.Subscribe(func() {
		if !atomic.CompareAndSwapInt32(&inCallback, 0, 1) {
			atomic.AddInt32(&overlaps, 1)
			return
		}
		if text := s.StatusText(); text != lastText {
			lastText = text
		}
		runtime.Gosched()
		atomic.StoreInt32(&inCallback, 0)
	})
	defer unsub()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Apply(deviceFrame(1, 3))
			s.Apply(deviceFrame(1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.SetDrillMode(i%2 == 0)
		}
	}()
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlaps), "observer ran concurrently with itself")
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := newTestStore()
	var calls int
	unsub := s.Subscribe(func() { calls++ })
	s.Apply(deviceFrame(1))
	unsub()
	s.Apply(deviceFrame(1))
	assert.Equal(t, 1, calls)
}

func TestDrillModeFromFrameForcesBells(t *testing.T) {
	s := newTestStore()
	f := deviceFrame(1)
	f.Drill = true
	s.Apply(f)

	assert.True(t, s.Flag(types.FlagDrill))
	assert.True(t, s.BellActive("01"))
	assert.True(t, s.BellActive("63"), "drill reads every device as ringing")

	s.Apply(deviceFrame(1))
	assert.False(t, s.BellActive("63"))
}

func TestBellStickySetSurvivesSilence(t *testing.T) {
	s := newTestStore()
	f := deviceFrame(2)
	f.Devices[0].Bell = true
	s.Apply(f)

	s.Apply(deviceFrame(2))
	assert.Equal(t, []string{"02"}, s.RungBellDevices())

	s.Reset()
	assert.Empty(t, s.RungBellDevices())
}

func TestConnectionDisplay(t *testing.T) {
	s := newTestStore()
	assert.Equal(t, "DISCONNECTED", s.ConnectionDisplay())

	s.SetTransportState(types.ModeCloud, types.StateConnecting)
	assert.Equal(t, "CONNECTING", s.ConnectionDisplay())

	s.SetTransportState(types.ModeCloud, types.StateConnected)
	assert.Equal(t, "ONLINE", s.ConnectionDisplay())

	s.SetTransportState(types.ModeLocal, types.StateConnected)
	assert.Equal(t, "LOCAL MODE", s.ConnectionDisplay())

	s.SetTransportState(types.ModeLocal, types.StateFailed)
	assert.Equal(t, "DISCONNECTED", s.ConnectionDisplay())
}

func TestEmptyFrameValidatesAsBootstrap(t *testing.T) {
	s := newTestStore()
	s.Apply(frame.Frame{})
	assert.True(t, s.HasValidData())
	assert.False(t, s.Flag(types.FlagAlarm))
	assert.Equal(t, "NORMAL", s.StatusText().String())
}
