package sim

import (
	"io"
	"sync"
)

// Input buffers a blocking reader, such as stdin, so the console can check for bytes without waiting
type Input struct {
	mtx sync.Mutex
	buf []byte
}

// NewInput starts copying r in the background until it returns an error
func NewInput(r io.Reader) *Input {
	in := &Input{}
	go func() {
		chunk := make([]byte, 64)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				in.mtx.Lock()
				in.buf = append(in.buf, chunk[:n]...)
				in.mtx.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return in
}

func (i *Input) Buffered() int {
	i.mtx.Lock()
	defer i.mtx.Unlock()
	return len(i.buf)
}

func (i *Input) ReadByte() (byte, error) {
	i.mtx.Lock()
	defer i.mtx.Unlock()
	if len(i.buf) == 0 {
		return 0, io.EOF
	}
	b := i.buf[0]
	i.buf = i.buf[1:]
	return b, nil
}
