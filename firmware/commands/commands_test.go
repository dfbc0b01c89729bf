package commands

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeController struct {
	calls    []string
	verbose  bool
	resetErr error
}

func (f *fakeController) PressCalibrate() { f.calls = append(f.calls, "calibrate") }
func (f *fakeController) PressStart()     { f.calls = append(f.calls, "start") }
func (f *fakeController) Debug() string {
	f.calls = append(f.calls, "debug")
	return "state=WaitCalButton"
}

func (f *fakeController) Verbose() bool {
	f.calls = append(f.calls, "verbose")
	f.verbose = !f.verbose
	return f.verbose
}

func (f *fakeController) ResetRecord() error {
	f.calls = append(f.calls, "reset")
	return f.resetErr
}

func (f *fakeController) ReportStatus() error {
	f.calls = append(f.calls, "status")
	return nil
}

// input is a buffered byte source that can be refilled between polls
type input struct {
	buf bytes.Buffer
}

func (i *input) Buffered() int { return i.buf.Len() }

func (i *input) ReadByte() (byte, error) {
	b, err := i.buf.ReadByte()
	if err != nil {
		return 0, io.EOF
	}
	return b, nil
}

func TestConsole(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedCalls []string
		expectedOut   string
	}{
		{"Calibrate", "C", []string{"calibrate"}, "calibration button pressed\n"},
		{"Start", "S", []string{"start"}, "start button pressed\n"},
		{"Debug", "D", []string{"debug"}, "state=WaitCalButton\n"},
		{"Verbose", "VV", []string{"verbose", "verbose"}, "verbose: true\nverbose: false\n"},
		{"EmitStatus", "E", []string{"status"}, ""},
		{"Reset", "XY", []string{"reset"}, "record reset\n"},
		{"ResetNotConfirmed", "Xn", nil, "error: reset not confirmed, send 'XY' to reset\n"},
		{"UnknownIgnored", "zq\r\nD", []string{"debug"}, "state=WaitCalButton\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			in := &input{}
			var out bytes.Buffer
			c := NewConsole(ctrl, in, &out)

			in.buf.WriteString(tt.input)
			c.Poll()

			assert.Equal(t, tt.expectedCalls, ctrl.calls)
			assert.Equal(t, tt.expectedOut, out.String())
			assert.Zero(t, in.Buffered())
		})
	}
}

func TestConsoleInputAcrossPolls(t *testing.T) {
	ctrl := &fakeController{}
	in := &input{}
	var out bytes.Buffer
	c := NewConsole(ctrl, in, &out)

	in.buf.WriteString("X")
	c.Poll()
	assert.Empty(t, ctrl.calls, "command waits for its input")

	c.Poll()
	assert.Empty(t, ctrl.calls)

	in.buf.WriteString("Y")
	c.Poll()
	assert.Equal(t, []string{"reset"}, ctrl.calls)
}

func TestConsoleError(t *testing.T) {
	ctrl := &fakeController{resetErr: errors.New("cannot reset while Calibrating")}
	in := &input{}
	var out bytes.Buffer
	c := NewConsole(ctrl, in, &out)

	in.buf.WriteString("XYD")
	c.Poll()
	assert.Equal(t, "error: cannot reset while Calibrating\nstate=WaitCalButton\n", out.String())
}

func TestHelp(t *testing.T) {
	in := &input{}
	var out bytes.Buffer
	c := NewConsole(&fakeController{}, in, &out)

	in.buf.WriteString("H")
	c.Poll()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "Available Commands:", lines[0])
	assert.Len(t, lines, len(commands)+1)
	assert.Contains(t, out.String(), "X: Reset calibration")
}
