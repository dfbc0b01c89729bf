package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/statuslog"
)

// memPort plays back device output and records what the bridge writes
type memPort struct {
	mtx     sync.Mutex
	rx      bytes.Buffer
	tx      bytes.Buffer
	readErr error
	closed  bool
}

func (p *memPort) Read(b []byte) (int, error) {
	p.mtx.Lock()
	if p.rx.Len() > 0 {
		defer p.mtx.Unlock()
		return p.rx.Read(b)
	}
	err := p.readErr
	p.mtx.Unlock()

	if err != nil {
		return 0, err
	}
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.Write(b)
}

func (p *memPort) Close() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.closed = true
	return nil
}

func (p *memPort) written() string {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.String()
}

type lockedBuffer struct {
	mtx sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.String()
}

type fakeStatusLog struct {
	mtx      sync.Mutex
	statuses []report.Status
	err      error
}

func (f *fakeStatusLog) Add(_ context.Context, s report.Status) (*statuslog.Event, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.statuses = append(f.statuses, s)
	return statuslog.FromStatus(s), nil
}

func (f *fakeStatusLog) count() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.statuses)
}

func TestRun(t *testing.T) {
	port := &memPort{}
	port.rx.WriteString("state=Dispensing record: done=3/7\r\nevt=pill_ok;slot=3;done=3;left=4;ok=3;miss=0;boots=2;\r\npartial")

	statusLog := &fakeStatusLog{}
	c := newWithPort(port, statusLog, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	out := &lockedBuffer{}
	result := make(chan error, 1)
	go func() {
		result <- c.Run(ctx, strings.NewReader("CD"), out)
	}()

	require.Eventually(t, func() bool {
		return port.written() == "CD" && statusLog.count() == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-result)

	assert.Equal(t, "state=Dispensing record: done=3/7\nevt=pill_ok;slot=3;done=3;left=4;ok=3;miss=0;boots=2;\n", out.String())
	assert.Equal(t, report.Status{
		Event:     pilldispenser.EventPillOK,
		Slot:      3,
		Done:      3,
		Remaining: 4,
		Dispensed: 3,
		Boots:     2,
	}, statusLog.statuses[0])
}

func TestRunTerminationChar(t *testing.T) {
	port := &memPort{}
	c := newWithPort(port, noopStatusLogClient{}, zap.NewNop())

	err := c.Run(context.Background(), strings.NewReader("D\x04S"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "D", port.written())
}

func TestRunDeviceDisconnected(t *testing.T) {
	t.Run("EOF", func(t *testing.T) {
		port := &memPort{readErr: io.EOF}
		c := newWithPort(port, noopStatusLogClient{}, zap.NewNop())

		err := c.Run(context.Background(), strings.NewReader(""), io.Discard)
		require.NoError(t, err)
	})

	t.Run("Error", func(t *testing.T) {
		port := &memPort{readErr: errors.New("port has been closed")}
		c := newWithPort(port, noopStatusLogClient{}, zap.NewNop())

		err := c.Run(context.Background(), strings.NewReader(""), io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading from device")
	})
}

func TestRunStatusLogError(t *testing.T) {
	port := &memPort{}
	port.rx.WriteString("evt=boot;slot=0;done=0;left=7;ok=0;miss=0;boots=1;\n")
	port.readErr = io.EOF

	core, logs := observer.New(zap.WarnLevel)
	c := newWithPort(port, &fakeStatusLog{err: errors.New("connection refused")}, zap.New(core))

	out := &lockedBuffer{}
	err := c.Run(context.Background(), strings.NewReader(""), out)
	require.NoError(t, err)

	assert.Equal(t, "evt=boot;slot=0;done=0;left=7;ok=0;miss=0;boots=1;\n", out.String())
	require.Equal(t, 1, logs.FilterMessage("error adding status to log").Len())
}

func TestRunLongLine(t *testing.T) {
	port := &memPort{}
	port.rx.WriteString(strings.Repeat("x", 300) + "\n")
	port.readErr = io.EOF

	c := newWithPort(port, noopStatusLogClient{}, zap.NewNop())

	out := &lockedBuffer{}
	err := c.Run(context.Background(), strings.NewReader(""), out)
	require.NoError(t, err)

	assert.Equal(t, []string{strings.Repeat("x", maxLine), strings.Repeat("x", 300-maxLine), ""}, strings.Split(out.String(), "\n"))
}

func TestClose(t *testing.T) {
	port := &memPort{}
	c := newWithPort(port, noopStatusLogClient{}, zap.NewNop())
	require.NoError(t, c.Close())
	assert.True(t, port.closed)
}

func TestNewSerialPortNone(t *testing.T) {
	c, err := New(Config{SerialPort: SerialPortNone}, nil)
	require.NoError(t, err)
	assert.Equal(t, nopPort{}, c.port)
	assert.NoError(t, c.Close())
}

func TestNewInvalidBaudRate(t *testing.T) {
	_, err := New(Config{SerialPort: "/dev/ttyACM0", BaudRate: "fast"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid baud rate")
}

func TestIsUSB(t *testing.T) {
	tests := []struct {
		port     string
		expected bool
	}{
		{"/dev/cu.usbmodem2101", true},
		{"/dev/ttyACM0", true},
		{"/dev/ttyUSB1", true},
		{"/dev/cu.usbserial-0001", true},
		{"/dev/ttyS0", false},
		{"/dev/cu.Bluetooth-Incoming-Port", false},
	}

	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			assert.Equal(t, tt.expected, isUSB(tt.port))
		})
	}
}
