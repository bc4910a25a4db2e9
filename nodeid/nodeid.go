// Package nodeid loads and stores the node identifier record: two bytes at
// offset 0 of non-volatile storage, the identifier followed by its bitwise
// complement.
package nodeid

import (
	"errors"

	"sensornode-go/hal"
)

// Offset of the record in NVM.
const Offset = 0

var ErrShortWrite = errors.New("nodeid: short write")

// Load returns the persisted identifier, or fallback with ok == false when
// the record is unreadable or fails its complement check. Erased storage
// (0xFF 0xFF) and zeroed storage (0x00 0x00) both fail the check.
func Load(nvm hal.NVM, fallback byte) (id byte, ok bool) {
	var rec [2]byte
	if nvm == nil {
		return fallback, false
	}
	if n, err := nvm.ReadAt(rec[:], Offset); err != nil || n != len(rec) {
		return fallback, false
	}
	if rec[0] != ^rec[1] {
		return fallback, false
	}
	return rec[0], true
}

// Store writes the record for id.
func Store(nvm hal.NVM, id byte) error {
	rec := [2]byte{id, ^id}
	n, err := nvm.WriteAt(rec[:], Offset)
	if err != nil {
		return err
	}
	if n != len(rec) {
		return ErrShortWrite
	}
	return nil
}
