package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/metrics"
	"github.com/firemon-dev/firemon/internal/types"
	"github.com/firemon-dev/firemon/internal/util"
)

// Telemetry frame layout. Both transports deliver the same framing; only
// the carrier differs.
//
//	0     'F'           header start
//	1     'T'           frame type: telemetry
//	2..3  length        uint16 LE, total frame length including CRC
//	4     sequence      wraps at 255
//	5     sysFlags      bit0 supervisory, bit1 drill, bit2 silenced, bit3 disabled
//	6     deviceCount   0..63
//	7..   device records, ascending address order
//	last  CRC-8         poly 0x85 over all preceding bytes
//
// Device record:
//
//	0     address       1..63
//	1     devFlags      bit0 connected, bit1 bell confirmed
//	2     alarmBits     bit N-1 = zone N of the module, N in 1..5
//	3     troubleBits   same mapping
//	4     activeBits    same mapping
//	5     descMask      bit N-1 set = description block for zone N follows
//	6..   per set bit, ascending: len byte + UTF-8 text
//
// The bit N-1 to zone N mapping is contract. A transposition here reports
// the wrong physical zone to the operator.
const (
	headerStart   = 'F'
	typeTelemetry = 'T'
	headerLen     = 7
	recordLen     = 6
	minFrameLen   = headerLen + 1
	maxFrameLen   = 0xffff

	sysSupervisory = 1 << 0
	sysDrill       = 1 << 1
	sysSilenced    = 1 << 2
	sysDisabled    = 1 << 3

	devConnected = 1 << 0
	devBell      = 1 << 1

	zoneBitsMask = 0x1f

	// maxDescriptionLen is fixed by the one-byte length prefix.
	maxDescriptionLen = 0xff
)

// Frame is one complete telemetry unit covering every configured module.
type Frame struct {
	Sequence    byte
	Supervisory bool
	Drill       bool
	Silenced    bool
	Disabled    bool
	Devices     []types.Device
}

// Decoder turns a raw transport byte stream into Frames. It buffers
// fragmented input and resynchronizes on the next header after a bad
// frame; rejected frames are counted and logged, never surfaced as
// errors to the caller.
type Decoder struct {
	log *log.Logger
	buf []byte
}

func NewDecoder(logger *log.Logger) *Decoder {
	return &Decoder{log: logger.Component("decoder")}
}

// Feed appends raw bytes and returns every complete frame now available,
// in wire order.
func (d *Decoder) Feed(data []byte) []Frame {
	d.buf = append(d.buf, data...)

	var frames []Frame
	for {
		// Discard leading garbage up to the next header byte.
		start := 0
		for start < len(d.buf) && d.buf[start] != headerStart {
			start++
		}
		if start > 0 {
			d.log.Debug("Discarding %d bytes before header", start)
			d.buf = d.buf[start:]
		}

		if len(d.buf) < 4 {
			return frames
		}

		length := int(binary.LittleEndian.Uint16(d.buf[2:4]))
		if length < minFrameLen || length > maxFrameLen {
			d.reject(fmt.Errorf("implausible frame length %d", length))
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < length {
			// Incomplete frame, wait for more input.
			return frames
		}

		raw := d.buf[:length]
		f, err := Decode(raw)
		if err != nil {
			d.reject(err)
			d.buf = d.buf[1:]
			continue
		}

		d.buf = d.buf[length:]
		metrics.FramesTotal.Inc()
		d.log.Trace("Decoded frame seq=%d devices=%d", f.Sequence, len(f.Devices))
		frames = append(frames, f)
	}
}

// Reset discards any buffered partial input. Called on a transport
// switch so a fragment from the old source cannot prefix the new one.
func (d *Decoder) Reset() {
	if len(d.buf) > 0 {
		d.log.Debug("Dropping %d buffered bytes", len(d.buf))
	}
	d.buf = nil
}

func (d *Decoder) reject(err error) {
	metrics.FrameErrorsTotal.Inc()
	d.log.Warn("Rejected frame: %v", err)
}

// Decode parses one complete raw frame. It is pure: identical input
// always yields identical records, and no decoder state is consulted.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < minFrameLen {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(raw))
	}
	if raw[0] != headerStart || raw[1] != typeTelemetry {
		return Frame{}, fmt.Errorf("bad header: %x %x", raw[0], raw[1])
	}
	if length := int(binary.LittleEndian.Uint16(raw[2:4])); length != len(raw) {
		return Frame{}, fmt.Errorf("length field %d does not match frame size %d", length, len(raw))
	}
	if crc := CRC8(raw[:len(raw)-1]); crc != raw[len(raw)-1] {
		return Frame{}, fmt.Errorf("CRC mismatch: calculated %02x, frame carries %02x", crc, raw[len(raw)-1])
	}

	sysFlags := raw[5]
	f := Frame{
		Sequence:    raw[4],
		Supervisory: sysFlags&sysSupervisory != 0,
		Drill:       sysFlags&sysDrill != 0,
		Silenced:    sysFlags&sysSilenced != 0,
		Disabled:    sysFlags&sysDisabled != 0,
	}

	count := int(raw[6])
	if count > types.MaxDevices {
		return Frame{}, fmt.Errorf("device count %d exceeds maximum %d", count, types.MaxDevices)
	}

	body := raw[headerLen : len(raw)-1]
	prevAddr := 0
	for i := 0; i < count; i++ {
		dev, n, err := decodeDevice(body)
		if err != nil {
			return Frame{}, fmt.Errorf("device record %d: %w", i+1, err)
		}
		if dev.Address <= prevAddr {
			return Frame{}, fmt.Errorf("device addresses out of order: %d after %d", dev.Address, prevAddr)
		}
		prevAddr = dev.Address
		f.Devices = append(f.Devices, dev)
		body = body[n:]
	}
	if len(body) != 0 {
		return Frame{}, fmt.Errorf("%d trailing bytes after %d device records", len(body), count)
	}

	return f, nil
}

func decodeDevice(body []byte) (types.Device, int, error) {
	if len(body) < recordLen {
		return types.Device{}, 0, fmt.Errorf("truncated record: %d bytes", len(body))
	}

	addr := int(body[0])
	if addr < 1 || addr > types.MaxDevices {
		return types.Device{}, 0, fmt.Errorf("address %d out of range", addr)
	}

	flags, alarm, trouble, active, descMask := body[1], body[2], body[3], body[4], body[5]
	for name, bits := range map[string]byte{
		"alarm": alarm, "trouble": trouble, "active": active, "descMask": descMask,
	} {
		if bits&^byte(zoneBitsMask) != 0 {
			return types.Device{}, 0, fmt.Errorf("%s bits %02x set outside zones 1..5", name, bits)
		}
	}

	dev := types.Device{
		Address:   addr,
		Connected: flags&devConnected != 0,
		Bell:      flags&devBell != 0,
	}

	n := recordLen
	for i := 0; i < types.ZonesPerDevice; i++ {
		bit := byte(1 << i)
		z := types.Zone{
			Number:  types.ZoneNumber(addr, i+1),
			Device:  addr,
			Index:   i + 1,
			Alarm:   alarm&bit != 0,
			Trouble: trouble&bit != 0,
			Active:  active&bit != 0,
		}
		if descMask&bit != 0 {
			if len(body) < n+1 {
				return types.Device{}, 0, fmt.Errorf("truncated description length for zone %d", i+1)
			}
			dlen := int(body[n])
			n++
			if len(body) < n+dlen {
				return types.Device{}, 0, fmt.Errorf("truncated description for zone %d", i+1)
			}
			z.Description = util.Normalize(string(body[n : n+dlen]))
			n += dlen
		}
		dev.Zones[i] = z
	}

	return dev, n, nil
}

// Encode serializes a frame. Used by the panel simulator and tests; the
// monitor itself only decodes.
func Encode(f Frame) []byte {
	body := []byte{headerStart, typeTelemetry, 0, 0, f.Sequence, 0, byte(len(f.Devices))}

	var sysFlags byte
	if f.Supervisory {
		sysFlags |= sysSupervisory
	}
	if f.Drill {
		sysFlags |= sysDrill
	}
	if f.Silenced {
		sysFlags |= sysSilenced
	}
	if f.Disabled {
		sysFlags |= sysDisabled
	}
	body[5] = sysFlags

	for _, dev := range f.Devices {
		var flags, alarm, trouble, active, descMask byte
		if dev.Connected {
			flags |= devConnected
		}
		if dev.Bell {
			flags |= devBell
		}
		var descs []byte
		for i, z := range dev.Zones {
			bit := byte(1 << i)
			if z.Alarm {
				alarm |= bit
			}
			if z.Trouble {
				trouble |= bit
			}
			if z.Active {
				active |= bit
			}
			if z.Description != "" {
				desc := z.Description
				if len(desc) > maxDescriptionLen {
					desc = desc[:maxDescriptionLen]
				}
				descMask |= bit
				descs = append(descs, byte(len(desc)))
				descs = append(descs, desc...)
			}
		}
		body = append(body, byte(dev.Address), flags, alarm, trouble, active, descMask)
		body = append(body, descs...)
	}

	binary.LittleEndian.PutUint16(body[2:4], uint16(len(body)+1))
	return append(body, CRC8(body))
}
