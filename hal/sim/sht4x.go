// hal/sim/sht4x.go
package sim

import "sync"

type sensorState uint8

const (
	sensIdle      sensorState = iota // waiting for START
	sensAddr                         // shifting in the address byte
	sensAck                          // driving ACK on the ninth clock
	sensRecv                         // shifting in a command byte
	sensSend                         // shifting out a data byte
	sensMasterAck                    // master's ACK/NACK clock
	sensIgnore                       // not addressed; wait for START/STOP
)

const sensorCmdMeasureHigh = 0xFD

// SHT4x is a line-level model of a Sensirion SHT4x on a Wire. It follows the
// single-shot protocol: a 0xFD command starts a conversion, the next read
// transaction returns six bytes, and reads without a finished conversion are
// not acknowledged.
type SHT4x struct {
	mu sync.Mutex

	addr     byte
	temp     uint16
	hum      uint16
	deaf     bool
	badCRC   bool
	measured bool

	state  sensorState
	shift  byte
	bits   int
	read   bool
	acked  bool
	out    [6]byte
	outIdx int
	pull   bool

	commands []byte
	reads    int
	nacks    int
	stops    int
}

// NewSHT4x returns a sensor at the given 7-bit address that will report the
// given raw values.
func NewSHT4x(addr byte, temp, hum uint16) *SHT4x {
	return &SHT4x{addr: addr, temp: temp, hum: hum}
}

// SetValues changes the raw values returned by the next read.
func (s *SHT4x) SetValues(temp, hum uint16) {
	s.mu.Lock()
	s.temp, s.hum = temp, hum
	s.mu.Unlock()
}

// SetDeaf makes the sensor ignore every transaction (never ACK).
func (s *SHT4x) SetDeaf(deaf bool) {
	s.mu.Lock()
	s.deaf = deaf
	s.mu.Unlock()
}

// SetBadCRC corrupts the temperature checksum of subsequent replies.
func (s *SHT4x) SetBadCRC(bad bool) {
	s.mu.Lock()
	s.badCRC = bad
	s.mu.Unlock()
}

// Commands returns every command byte received.
func (s *SHT4x) Commands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.commands...)
}

// Reads is the number of acknowledged read transactions.
func (s *SHT4x) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Nacks is the number of address bytes matching this sensor that were not
// acknowledged.
func (s *SHT4x) Nacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nacks
}

// Stops is the number of STOP conditions seen.
func (s *SHT4x) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Step implements Target.
func (s *SHT4x) Step(prevSCL, prevSDA, scl, sda bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevSCL && scl && prevSDA != sda {
		if !sda {
			s.state, s.shift, s.bits = sensAddr, 0, 0
		} else {
			s.stops++
			s.state = sensIdle
		}
		s.pull = false
		return s.pull
	}

	switch {
	case !prevSCL && scl:
		s.rise(sda)
	case prevSCL && !scl:
		s.fall()
	}
	return s.pull
}

func (s *SHT4x) rise(sda bool) {
	switch s.state {
	case sensAddr, sensRecv:
		s.shift <<= 1
		if sda {
			s.shift |= 1
		}
		s.bits++
	case sensMasterAck:
		s.acked = !sda
	}
}

func (s *SHT4x) fall() {
	switch s.state {
	case sensAddr:
		if s.bits < 8 {
			return
		}
		if s.shift>>1 != s.addr {
			s.state = sensIgnore
			return
		}
		s.read = s.shift&1 != 0
		if s.deaf || (s.read && !s.measured) {
			s.nacks++
			s.state = sensIgnore
			return
		}
		if s.read {
			s.load()
			s.reads++
			s.measured = false
		}
		s.pull = true
		s.state = sensAck

	case sensRecv:
		if s.bits < 8 {
			return
		}
		s.commands = append(s.commands, s.shift)
		if s.shift == sensorCmdMeasureHigh {
			s.measured = true
		}
		s.pull = true
		s.state = sensAck

	case sensAck:
		s.bits, s.shift = 0, 0
		if s.read {
			s.outIdx = 0
			s.state = sensSend
			s.present()
			return
		}
		s.pull = false
		s.state = sensRecv

	case sensSend:
		s.bits++
		if s.bits == 8 {
			s.pull = false
			s.state = sensMasterAck
			return
		}
		s.present()

	case sensMasterAck:
		if s.acked && s.outIdx+1 < len(s.out) {
			s.outIdx++
			s.bits = 0
			s.state = sensSend
			s.present()
			return
		}
		s.pull = false
		s.state = sensIgnore
	}
}

// present puts the current bit of the current output byte on SDA.
func (s *SHT4x) present() {
	s.pull = s.out[s.outIdx]&(0x80>>uint(s.bits)) == 0
}

func (s *SHT4x) load() {
	s.out[0], s.out[1] = byte(s.temp>>8), byte(s.temp)
	s.out[2] = sensirionCRC(s.out[0], s.out[1])
	s.out[3], s.out[4] = byte(s.hum>>8), byte(s.hum)
	s.out[5] = sensirionCRC(s.out[3], s.out[4])
	if s.badCRC {
		s.out[2] ^= 0x01
	}
}

// sensirionCRC is the sensor's own CRC-8 (poly 0x31, init 0xFF).
func sensirionCRC(data ...byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
