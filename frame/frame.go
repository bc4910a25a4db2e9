// Package frame encodes the 10-byte LaCrosse-compatible telemetry frame:
//
//	[0xCC][id][0x06][0xF7][tempHi][tempLo][humHi][humLo][batt][crc]
//
// crc covers bytes 0..8. The checksum is unrelated to the sensor's own CRC
// and must stay a separate function.
package frame

import "errors"

// Size is the frame length on the wire.
const Size = 10

const (
	StartMarker   = 0xCC
	PayloadLength = 0x06 // bytes 3..8
	SensorType    = 0xF7 // CustomSensor

	poly = 0x31
)

var (
	ErrLength   = errors.New("frame: wrong length")
	ErrStart    = errors.New("frame: bad start marker")
	ErrHeader   = errors.New("frame: bad length or sensor type")
	ErrChecksum = errors.New("frame: checksum mismatch")
)

// Frame is one encoded telemetry frame.
type Frame [Size]byte

// Reading is the content of a frame.
type Reading struct {
	ID      byte
	Temp    uint16
	Hum     uint16
	Battery byte
}

// Encode builds a frame and seals it with its checksum.
func Encode(id byte, temp, hum uint16, batt byte) Frame {
	var f Frame
	f[0] = StartMarker
	f[1] = id
	f[2] = PayloadLength
	f[3] = SensorType
	f[4] = byte(temp >> 8)
	f[5] = byte(temp)
	f[6] = byte(hum >> 8)
	f[7] = byte(hum)
	f[8] = batt
	f[9] = Checksum(f[:Size-1])
	return f
}

// Bytes returns the frame as a slice for transmission.
func (f *Frame) Bytes() []byte { return f[:] }

// Valid reports whether the trailing byte matches the checksum of the rest.
func (f Frame) Valid() bool { return Checksum(f[:Size-1]) == f[Size-1] }

// Checksum is a CRC-8, polynomial 0x31, initial value 0, MSB first, no
// final XOR.
func Checksum(b []byte) byte {
	var crc byte
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			bit := (crc>>7 ^ v>>uint(i)) & 1
			crc <<= 1
			if bit != 0 {
				crc ^= poly
			}
		}
	}
	return crc
}

// Decode parses and verifies a received frame.
func Decode(b []byte) (Reading, error) {
	if len(b) != Size {
		return Reading{}, ErrLength
	}
	if b[0] != StartMarker {
		return Reading{}, ErrStart
	}
	if b[2] != PayloadLength || b[3] != SensorType {
		return Reading{}, ErrHeader
	}
	if Checksum(b[:Size-1]) != b[Size-1] {
		return Reading{}, ErrChecksum
	}
	return Reading{
		ID:      b[1],
		Temp:    uint16(b[4])<<8 | uint16(b[5]),
		Hum:     uint16(b[6])<<8 | uint16(b[7]),
		Battery: b[8],
	}, nil
}
