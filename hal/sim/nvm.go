// hal/sim/nvm.go
package sim

import (
	"errors"
	"io"
	"sync"

	"sensornode-go/hal"
)

var ErrNVMFailed = errors.New("sim: nvm failure")

// NVM is an in-memory byte store. New memory reads as erased (0xFF).
type NVM struct {
	mu   sync.Mutex
	mem  []byte
	fail bool
}

var _ hal.NVM = (*NVM)(nil)

// NewNVM returns size bytes of erased storage.
func NewNVM(size int) *NVM {
	m := make([]byte, size)
	for i := range m {
		m[i] = 0xFF
	}
	return &NVM{mem: m}
}

// SetFailing makes every access return ErrNVMFailed.
func (n *NVM) SetFailing(on bool) {
	n.mu.Lock()
	n.fail = on
	n.mu.Unlock()
}

func (n *NVM) ReadAt(p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return 0, ErrNVMFailed
	}
	if off < 0 || off >= int64(len(n.mem)) {
		return 0, io.EOF
	}
	c := copy(p, n.mem[off:])
	if c < len(p) {
		return c, io.EOF
	}
	return c, nil
}

func (n *NVM) WriteAt(p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return 0, ErrNVMFailed
	}
	if off < 0 || off >= int64(len(n.mem)) {
		return 0, io.ErrShortWrite
	}
	c := copy(n.mem[off:], p)
	if c < len(p) {
		return c, io.ErrShortWrite
	}
	return c, nil
}

// Bytes returns a copy of the whole store.
func (n *NVM) Bytes() []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]byte(nil), n.mem...)
}
