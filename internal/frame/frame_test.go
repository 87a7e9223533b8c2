package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/types"
)

func testFrame() Frame {
	var dev types.Device
	dev.Address = 1
	dev.Connected = true
	for i := 0; i < types.ZonesPerDevice; i++ {
		dev.Zones[i] = types.Zone{
			Number: types.ZoneNumber(1, i+1),
			Device: 1,
			Index:  i + 1,
		}
	}
	dev.Zones[2].Alarm = true // zone 3
	return Frame{Sequence: 7, Devices: []types.Device{dev}}
}

func TestDecodeRoundsTripsZoneThreeAlarm(t *testing.T) {
	raw := Encode(testFrame())

	f, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, f.Devices, 1)

	dev := f.Devices[0]
	assert.Equal(t, 1, dev.Address)
	assert.True(t, dev.Connected)
	for i, z := range dev.Zones {
		assert.Equal(t, i+1, z.Index)
		assert.Equal(t, types.ZoneNumber(1, i+1), z.Number)
		assert.Equal(t, i == 2, z.Alarm, "only zone 3 should be in alarm")
		assert.False(t, z.Trouble)
	}
}

func TestDecodeIsPure(t *testing.T) {
	raw := Encode(testFrame())
	first, err := Decode(raw)
	require.NoError(t, err)
	second, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeDescriptions(t *testing.T) {
	f := testFrame()
	f.Devices[0].Zones[0].Description = "Stairwell B"
	f.Devices[0].Zones[4].Description = "Loading Bay"

	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, "Stairwell B", got.Devices[0].Zones[0].Description)
	assert.Equal(t, "", got.Devices[0].Zones[1].Description)
	assert.Equal(t, "Loading Bay", got.Devices[0].Zones[4].Description)
}

func TestEncodeCapsOverlongDescription(t *testing.T) {
	f := testFrame()
	long := make([]byte, maxDescriptionLen+60)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	f.Devices[0].Zones[0].Description = string(long)

	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Len(t, got.Devices[0].Zones[0].Description, maxDescriptionLen)
	assert.Equal(t, string(long[:maxDescriptionLen]), got.Devices[0].Zones[0].Description)
}

func TestDecodeSystemFlags(t *testing.T) {
	f := testFrame()
	f.Supervisory = true
	f.Drill = true

	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.True(t, got.Supervisory)
	assert.True(t, got.Drill)
	assert.False(t, got.Silenced)
	assert.False(t, got.Disabled)
}

func TestDecodeRejectsCorruptCRC(t *testing.T) {
	raw := Encode(testFrame())
	raw[len(raw)-1] ^= 0xff
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsBitOutsideZones(t *testing.T) {
	raw := Encode(testFrame())
	raw[9] |= 0x20 // alarmBits bit 5: no sixth zone exists
	raw[len(raw)-1] = CRC8(raw[:len(raw)-1])
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsOutOfOrderAddresses(t *testing.T) {
	f := testFrame()
	second := f.Devices[0]
	second.Address = 1 // duplicate address
	f.Devices = append(f.Devices, second)
	_, err := Decode(Encode(f))
	assert.Error(t, err)
}

func TestFeedReassemblesFragments(t *testing.T) {
	d := NewDecoder(log.NewLogger("error"))
	raw := Encode(testFrame())

	assert.Empty(t, d.Feed(raw[:3]))
	assert.Empty(t, d.Feed(raw[3:7]))
	frames := d.Feed(raw[7:])
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Devices[0].Zones[2].Alarm)
}

func TestFeedSkipsGarbageAndRecovers(t *testing.T) {
	d := NewDecoder(log.NewLogger("error"))
	good := Encode(testFrame())
	bad := Encode(testFrame())
	bad[len(bad)-1] ^= 0x55

	input := append([]byte{0x00, 0x12, 0x34}, bad...)
	input = append(input, good...)

	frames := d.Feed(input)
	require.Len(t, frames, 1)
	assert.Equal(t, byte(7), frames[0].Sequence)
}

func TestFeedMultipleFramesInOneRead(t *testing.T) {
	d := NewDecoder(log.NewLogger("error"))
	a := testFrame()
	b := testFrame()
	b.Sequence = 8
	b.Devices[0].Zones[2].Alarm = false

	frames := d.Feed(append(Encode(a), Encode(b)...))
	require.Len(t, frames, 2)
	assert.True(t, frames[0].Devices[0].Zones[2].Alarm)
	assert.False(t, frames[1].Devices[0].Zones[2].Alarm)
	assert.Equal(t, byte(8), frames[1].Sequence)
}
