package commands

import (
	"errors"
	"fmt"
	"io"
)

type Command struct {
	Flag        byte
	InputSize   uint
	Run         func(Controller, []byte, io.Writer) error
	Description string
}

// Controller is used to control a dispenser from the serial console
type Controller interface {
	PressCalibrate()
	PressStart()
	Debug() string
	Verbose() bool
	ResetRecord() error
	ReportStatus() error
}

// Input is a byte source that can be checked without blocking. machine.UART and machine.Serial satisfy it
type Input interface {
	Buffered() int
	ReadByte() (byte, error)
}

var (
	CalibrateCommand = &Command{
		Flag:      'C',
		InputSize: 0,
		Run: func(c Controller, _ []byte, out io.Writer) error {
			c.PressCalibrate()
			fmt.Fprintln(out, "calibration button pressed")
			return nil
		},
		Description: "Press the calibration button. Only has an effect while waiting for calibration.",
	}
	StartCommand = &Command{
		Flag:      'S',
		InputSize: 0,
		Run: func(c Controller, _ []byte, out io.Writer) error {
			c.PressStart()
			fmt.Fprintln(out, "start button pressed")
			return nil
		},
		Description: "Press the start button. Only has an effect once calibrated.",
	}
	DebugCommand = &Command{
		Flag:      'D',
		InputSize: 0,
		Run: func(c Controller, _ []byte, out io.Writer) error {
			fmt.Fprintln(out, c.Debug())
			return nil
		},
		Description: "Print the current state and record.",
	}
	VerboseCommand = &Command{
		Flag:      'V',
		InputSize: 0,
		Run: func(c Controller, _ []byte, out io.Writer) error {
			fmt.Fprintln(out, "verbose:", c.Verbose())
			return nil
		},
		Description: "Toggle verbose output.",
	}
	EmitStatusCommand = &Command{
		Flag:      'E',
		InputSize: 0,
		Run: func(c Controller, _ []byte, _ io.Writer) error {
			return c.ReportStatus()
		},
		Description: "Send a status report over the uplink.",
	}
	ResetCommand = &Command{
		Flag:      'X',
		InputSize: 1,
		Run: func(c Controller, b []byte, out io.Writer) error {
			if b[0] != 'Y' {
				return errors.New("reset not confirmed, send 'XY' to reset")
			}
			err := c.ResetRecord()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "record reset")
			return nil
		},
		Description: "Reset calibration and fill progress, keeping lifetime counters. Input: 'Y' to confirm.",
	}
	HelpCommand = &Command{
		Flag:        'H',
		InputSize:   0,
		Description: "Show all available commands and their descriptions.",
		Run: func(c Controller, b []byte, out io.Writer) error {
			fmt.Fprintln(out, "Available Commands:")
			for _, cmd := range commands {
				fmt.Fprintf(out, "%c: %s\n", cmd.Flag, cmd.Description)
			}
			return nil
		},
	}
)

var commands = []*Command{
	CalibrateCommand,
	StartCommand,
	DebugCommand,
	VerboseCommand,
	EmitStatusCommand,
	ResetCommand,
}

// Console reads single-letter commands. Poll never waits for input, so it can run between the dispenser's polls
type Console struct {
	ctrl   Controller
	in     Input
	out    io.Writer
	cmdMap map[byte]*Command

	// pending is a command still waiting for its input bytes
	pending *Command
	input   []byte
}

func NewConsole(ctrl Controller, in Input, out io.Writer) *Console {
	cmdMap := map[byte]*Command{
		HelpCommand.Flag: HelpCommand,
	}
	for _, cmd := range commands {
		cmdMap[cmd.Flag] = cmd
	}

	return &Console{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		cmdMap: cmdMap,
	}
}

// Poll handles whatever input is buffered
func (c *Console) Poll() {
	for c.in.Buffered() > 0 {
		b, err := c.in.ReadByte()
		if err != nil {
			return
		}
		c.handle(b)
	}
}

func (c *Console) handle(b byte) {
	if c.pending == nil {
		cmd, ok := c.cmdMap[b]
		if !ok {
			return
		}
		c.pending = cmd
		c.input = c.input[:0]
	} else {
		c.input = append(c.input, b)
	}

	if uint(len(c.input)) < c.pending.InputSize {
		return
	}

	cmd := c.pending
	c.pending = nil
	err := cmd.Run(c.ctrl, c.input, c.out)
	if err != nil {
		fmt.Fprintln(c.out, "error:", err.Error())
	}
}
