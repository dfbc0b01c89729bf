// Package lora drives a LoRaWAN modem that speaks the Wio-E5 style AT command set over a UART
package lora

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser/firmware/timing"
)

const (
	DefaultPort           = 8
	DefaultCommandTimeout = time.Second
	DefaultJoinTimeout    = 20 * time.Second
	DefaultSendTimeout    = 8 * time.Second
	defaultPollInterval   = 5 * time.Millisecond

	// maxResponse bounds how much of a reply is kept while looking for the expected text
	maxResponse = 256
)

var (
	ErrTimeout    = errors.New("modem did not answer in time")
	ErrJoinFailed = errors.New("network join failed")
	ErrNotJoined  = errors.New("not joined to a network")
)

type Config struct {
	Port           uint8
	CommandTimeout time.Duration
	JoinTimeout    time.Duration
	SendTimeout    time.Duration
	PollInterval   time.Duration
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
}

// Modem talks to the radio. Reads must not block for long when nothing is buffered: a TinyGo UART returns
// immediately and a host serial port should have a short read timeout
type Modem struct {
	rw     io.ReadWriter
	clock  timing.Clock
	cfg    Config
	logger *zap.Logger
	joined bool
}

func New(rw io.ReadWriter, c timing.Clock, cfg Config, logger *zap.Logger) *Modem {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Modem{rw: rw, clock: c, cfg: cfg, logger: logger}
}

// Init checks the modem is there and puts it in OTAA class A mode on the configured port
func (m *Modem) Init() error {
	_, err := m.command("AT", "+AT: OK", m.cfg.CommandTimeout)
	if err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	steps := []struct{ cmd, want string }{
		{"AT+MODE=LWOTAA", "+MODE: LWOTAA"},
		{"AT+CLASS=A", "+CLASS: A"},
		{fmt.Sprintf("AT+PORT=%d", m.cfg.Port), "+PORT:"},
	}
	for _, s := range steps {
		_, err = m.command(s.cmd, s.want, m.cfg.CommandTimeout)
		if err != nil {
			return fmt.Errorf("error running %s: %w", s.cmd, err)
		}
	}
	return nil
}

// Join sets the application key and performs an OTAA join
func (m *Modem) Join(appKey string) error {
	_, err := m.command(fmt.Sprintf("AT+KEY=APPKEY,%q", appKey), "+KEY: APPKEY", m.cfg.CommandTimeout)
	if err != nil {
		return fmt.Errorf("error setting app key: %w", err)
	}

	resp, err := m.command("AT+JOIN", "+JOIN: Done", m.cfg.JoinTimeout)
	if err != nil {
		return fmt.Errorf("error joining: %w", err)
	}
	if strings.Contains(resp, "failed") {
		return ErrJoinFailed
	}

	m.joined = true
	m.logger.Info("joined network")
	return nil
}

// SetJoined marks the modem as joined without a join exchange, for a modem that keeps its session across reboots
func (m *Modem) SetJoined(joined bool) {
	m.joined = joined
}

func (m *Modem) Joined() bool {
	return m.joined
}

// Send transmits a short text uplink and waits for the modem to finish
func (m *Modem) Send(msg string) error {
	if !m.joined {
		return ErrNotJoined
	}
	msg = strings.ReplaceAll(msg, `"`, "'")
	_, err := m.command(`AT+MSG="`+msg+`"`, "+MSG: Done", m.cfg.SendTimeout)
	return err
}

func (m *Modem) command(cmd, want string, timeout time.Duration) (string, error) {
	m.logger.Debug("modem command", zap.String("cmd", cmd))

	_, err := io.WriteString(m.rw, cmd+"\r\n")
	if err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	return m.readUntil(want, timeout)
}

// readUntil collects output until it contains want or the deadline passes
func (m *Modem) readUntil(want string, timeout time.Duration) (string, error) {
	deadline := m.clock.Now().Add(timeout)

	var resp []byte
	buf := make([]byte, 64)
	for {
		n, err := m.rw.Read(buf)
		if n > 0 {
			resp = append(resp, buf[:n]...)
			if len(resp) > maxResponse {
				resp = resp[len(resp)-maxResponse:]
			}
			if strings.Contains(string(resp), want) {
				return string(resp), nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return string(resp), fmt.Errorf("error reading response: %w", err)
		}

		if !m.clock.Now().Before(deadline) {
			m.logger.Debug("modem timed out", zap.String("want", want), zap.ByteString("got", resp))
			return string(resp), ErrTimeout
		}
		if n == 0 {
			m.clock.Sleep(m.cfg.PollInterval)
		}
	}
}
