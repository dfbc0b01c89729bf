package record

import (
	"io"
	"sync"
)

// Memory is a volatile Storage, used by the simulator when no image file is configured
type Memory struct {
	mtx  sync.Mutex
	data []byte
}

// NewMemory returns size bytes of erased (0xFF) storage, the way a blank EEPROM reads
func NewMemory(size int) *Memory {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &Memory{data: data}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.data[off:], p), nil
}

// Bytes returns a copy of the contents
func (m *Memory) Bytes() []byte {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return append([]byte(nil), m.data...)
}
