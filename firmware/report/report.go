// Package report turns dispenser events into short status lines and delivers them on a best-effort basis
package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/record"
)

var ErrMalformedLine = errors.New("malformed status line")

// Reporter delivers a status event. Errors are informational: nothing in the dispenser waits on a report
type Reporter interface {
	Report(event pilldispenser.Event, rec record.Record) error
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(pilldispenser.Event, record.Record) error

func (f ReporterFunc) Report(event pilldispenser.Event, rec record.Record) error { return f(event, rec) }

// Status is the content of one status line
type Status struct {
	Event     pilldispenser.Event
	Slot      int
	Done      int
	Remaining int
	Dispensed int
	Missed    int
	Boots     int
}

// StatusOf takes the reported counters from a record
func StatusOf(event pilldispenser.Event, rec record.Record) Status {
	return Status{
		Event:     event,
		Slot:      int(rec.CurrentSlot),
		Done:      int(rec.DispensesDone),
		Remaining: int(rec.PillsRemaining),
		Dispensed: int(rec.PillsDispensed),
		Missed:    int(rec.PillsMissed),
		Boots:     int(rec.BootCount),
	}
}

// String formats the status as semicolon terminated key=value pairs, e.g.
//
//	evt=pill_ok;slot=3;done=3;left=4;ok=3;miss=0;boots=2;
func (s Status) String() string {
	var sb strings.Builder
	sb.WriteString("evt=")
	sb.WriteString(string(s.Event))
	sb.WriteByte(';')
	for _, kv := range s.fields() {
		sb.WriteString(kv.key)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(*kv.value))
		sb.WriteByte(';')
	}
	return sb.String()
}

type field struct {
	key   string
	value *int
}

func (s *Status) fields() []field {
	return []field{
		{"slot", &s.Slot},
		{"done", &s.Done},
		{"left", &s.Remaining},
		{"ok", &s.Dispensed},
		{"miss", &s.Missed},
		{"boots", &s.Boots},
	}
}

// Line formats the status line for an event
func Line(event pilldispenser.Event, rec record.Record) string {
	return StatusOf(event, rec).String()
}

// ParseLine reads a line produced by Line. Unknown keys are ignored so older readers accept newer firmware
func ParseLine(line string) (Status, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "evt=") {
		return Status{}, ErrMalformedLine
	}

	var s Status
	ints := map[string]*int{}
	for _, f := range s.fields() {
		ints[f.key] = f.value
	}

	for _, pair := range strings.Split(line, ";") {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return Status{}, fmt.Errorf("%w: %q", ErrMalformedLine, pair)
		}
		if key == "evt" {
			s.Event = pilldispenser.Event(value)
			continue
		}
		dst, ok := ints[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return Status{}, fmt.Errorf("%w: %s: %w", ErrMalformedLine, key, err)
		}
		*dst = n
	}

	if s.Event == "" {
		return Status{}, fmt.Errorf("%w: missing event", ErrMalformedLine)
	}
	return s, nil
}

// Sender transmits a single text message, e.g. a LoRaWAN uplink
type Sender interface {
	Send(msg string) error
}

// Uplink reports status lines through a Sender
type Uplink struct {
	sender Sender
	logger *zap.Logger
}

func NewUplink(sender Sender, logger *zap.Logger) *Uplink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uplink{sender: sender, logger: logger}
}

func (u *Uplink) Report(event pilldispenser.Event, rec record.Record) error {
	line := Line(event, rec)
	err := u.sender.Send(line)
	if err != nil {
		u.logger.Warn("uplink report failed", zap.String("line", line), zap.Error(err))
		return fmt.Errorf("error sending %q: %w", event, err)
	}
	return nil
}

// Log writes every event to a logger
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Report(event pilldispenser.Event, rec record.Record) error {
	l.logger.Info("status",
		zap.String("event", string(event)),
		zap.Uint8("slot", rec.CurrentSlot),
		zap.Uint8("done", rec.DispensesDone),
		zap.Uint8("left", rec.PillsRemaining),
		zap.Uint32("ok", rec.PillsDispensed),
		zap.Uint32("miss", rec.PillsMissed),
		zap.Uint32("boots", rec.BootCount),
	)
	return nil
}

// Writer prints status lines, e.g. to the USB serial console where a host bridge picks them up
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Report(event pilldispenser.Event, rec record.Record) error {
	_, err := io.WriteString(w.w, Line(event, rec)+"\r\n")
	return err
}

// Multi reports to every reporter, even after one of them fails
type Multi []Reporter

func (m Multi) Report(event pilldispenser.Event, rec record.Record) error {
	var err error
	for _, r := range m {
		if r == nil {
			continue
		}
		err = multierr.Append(err, r.Report(event, rec))
	}
	return err
}

// Discard drops every report
var Discard Reporter = ReporterFunc(func(pilldispenser.Event, record.Record) error { return nil })
