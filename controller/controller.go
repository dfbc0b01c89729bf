// Package controller bridges a terminal to a dispenser's USB serial console and forwards its status lines
// to a status log
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/statuslog"
)

const (
	// SerialPortNone runs the bridge without a device, which is only useful for trying out the UI
	SerialPortNone = "none"

	DefaultBaudRate = "115200"

	readTimeout = 50 * time.Millisecond
	addTimeout  = 5 * time.Second

	// maxLine bounds a device line. Longer output is passed on in pieces
	maxLine = 256
)

var ErrNoUSBSerial = errors.New("no USB serial ports found")

type Config struct {
	SerialPort    string `mapstructure:"serial_port"`
	BaudRate      string `mapstructure:"baud_rate"`
	StatusLogAddr string `mapstructure:"status_log_addr"`
}

// Controller forwards input to the device and device output to a writer
type Controller struct {
	port      io.ReadWriteCloser
	statusLog statusLogClient
	logger    *zap.Logger
}

// New opens the configured serial port. An empty SerialPort uses the first USB serial port
func New(cfg Config, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	port, err := openConfigured(cfg)
	if err != nil {
		return nil, err
	}

	var statusLog statusLogClient = noopStatusLogClient{}
	if cfg.StatusLogAddr != "" {
		statusLog = statuslog.NewClient(cfg.StatusLogAddr)
	}

	return newWithPort(port, statusLog, logger), nil
}

func newWithPort(port io.ReadWriteCloser, statusLog statusLogClient, logger *zap.Logger) *Controller {
	return &Controller{
		port:      port,
		statusLog: statusLog,
		logger:    logger,
	}
}

func openConfigured(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.SerialPort == SerialPortNone {
		return nopPort{}, nil
	}

	baudRate := DefaultBaudRate
	if cfg.BaudRate != "" {
		baudRate = cfg.BaudRate
	}
	baud, err := strconv.Atoi(baudRate)
	if err != nil {
		return nil, fmt.Errorf("invalid baud rate %q: %w", cfg.BaudRate, err)
	}

	name := cfg.SerialPort
	if name == "" {
		ports, err := GetSerialPorts()
		if err != nil {
			return nil, err
		}
		name = ports[0]
	}

	return OpenPort(name, baud)
}

// OpenPort opens a serial port with a short read timeout so readers can notice cancellation
func OpenPort(name string, baudRate int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %q: %w", name, err)
	}

	err = port.SetReadTimeout(readTimeout)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("error setting read timeout: %w", err)
	}

	return port, nil
}

// GetSerialPorts lists serial ports that look like USB devices
func GetSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}

	var result []string
	for _, p := range ports {
		if isUSB(p) {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil, ErrNoUSBSerial
	}
	return result, nil
}

func isUSB(port string) bool {
	for _, s := range []string{"usbmodem", "usbserial", "ttyACM", "ttyUSB"} {
		if strings.Contains(port, s) {
			return true
		}
	}
	return false
}

// Run copies in to the device and device lines to out until ctx is done, the device disconnects, or in
// sends pilldispenser.TerminationChar. Status lines are also added to the status log
func (c *Controller) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// in is usually os.Stdin, whose Read cannot be interrupted, so this goroutine can outlive Run until the
	// next keypress or EOF
	inputErr := make(chan error, 1)
	go func() {
		inputErr <- c.forwardInput(ctx, in)
	}()

	buf := make([]byte, 256)
	line := make([]byte, 0, maxLine)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-inputErr:
			return err
		default:
		}

		n, err := c.port.Read(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading from device: %w", err)
		}
		if n == 0 {
			continue
		}

		for _, b := range buf[:n] {
			if b != '\n' {
				line = append(line, b)
				if len(line) < maxLine {
					continue
				}
			}
			c.handleLine(ctx, strings.TrimRight(string(line), "\r"), out)
			line = line[:0]
		}
	}
}

// forwardInput returns nil once the termination character is read. After in is exhausted it waits for ctx
// so the device output keeps flowing
func (c *Controller) forwardInput(ctx context.Context, in io.Reader) error {
	buf := make([]byte, 64)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			data := buf[:n]
			end := false
			if i := bytes.IndexByte(data, pilldispenser.TerminationChar); i >= 0 {
				data = data[:i]
				end = true
			}

			_, werr := c.port.Write(data)
			if werr != nil {
				return fmt.Errorf("error writing to device: %w", werr)
			}
			if end {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			<-ctx.Done()
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}
	}
}

func (c *Controller) handleLine(ctx context.Context, line string, out io.Writer) {
	fmt.Fprintln(out, line)

	status, err := report.ParseLine(line)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, addTimeout)
	defer cancel()

	_, err = c.statusLog.Add(ctx, status)
	if err != nil {
		c.logger.Warn("error adding status to log", zap.String("line", line), zap.Error(err))
	}
}

func (c *Controller) Close() error {
	return c.port.Close()
}

// nopPort never produces output and drops everything written
type nopPort struct{}

func (nopPort) Read(p []byte) (int, error) {
	time.Sleep(readTimeout)
	return 0, nil
}

func (nopPort) Write(p []byte) (int, error) { return len(p), nil }

func (nopPort) Close() error { return nil }
