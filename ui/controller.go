package ui

import (
	"io"

	"github.com/calvinmclean/pilldispenser/firmware/commands"
)

// CommandWriter presses buttons on a remote dispenser by sending console commands
type CommandWriter struct {
	writer io.Writer
}

var _ Buttons = &CommandWriter{}

// NewCommandWriter writes commands to a serial bridge input
func NewCommandWriter(w io.Writer) *CommandWriter {
	return &CommandWriter{writer: w}
}

func (c *CommandWriter) PressCalibrate() {
	c.writer.Write([]byte{commands.CalibrateCommand.Flag})
}

func (c *CommandWriter) PressStart() {
	c.writer.Write([]byte{commands.StartCommand.Flag})
}
