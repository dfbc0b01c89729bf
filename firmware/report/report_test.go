package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/record"
)

func sampleRecord() record.Record {
	return record.Record{
		CurrentSlot:    3,
		DispensesDone:  3,
		PillsRemaining: 4,
		Calibrated:     true,
		StepsPerSlot:   512,
		BootCount:      2,
		PillsDispensed: 3,
	}
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(msg string) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestLine(t *testing.T) {
	assert.Equal(t,
		"evt=pill_ok;slot=3;done=3;left=4;ok=3;miss=0;boots=2;",
		Line(pilldispenser.EventPillOK, sampleRecord()),
	)
}

func TestParseLine(t *testing.T) {
	t.Run("FromLine", func(t *testing.T) {
		s, err := ParseLine(Line(pilldispenser.EventEmpty, sampleRecord()) + "\r\n")
		require.NoError(t, err)
		assert.Equal(t, StatusOf(pilldispenser.EventEmpty, sampleRecord()), s)
	})

	t.Run("UnknownKeysIgnored", func(t *testing.T) {
		s, err := ParseLine("evt=boot;fw=2;boots=9")
		require.NoError(t, err)
		assert.Equal(t, pilldispenser.EventBoot, s.Event)
		assert.Equal(t, 9, s.Boots)
	})

	tests := []struct {
		name string
		line string
	}{
		{"NotStatus", "INFO calibration measured"},
		{"NoValue", "evt=boot;slot;"},
		{"NotANumber", "evt=boot;slot=x;"},
		{"EmptyEvent", "evt=;slot=1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			require.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

func TestUplink(t *testing.T) {
	sender := &fakeSender{}
	u := NewUplink(sender, nil)

	require.NoError(t, u.Report(pilldispenser.EventBoot, sampleRecord()))
	assert.Equal(t, []string{"evt=boot;slot=3;done=3;left=4;ok=3;miss=0;boots=2;"}, sender.sent)

	sender.err = errors.New("not joined")
	err := u.Report(pilldispenser.EventPillMiss, sampleRecord())
	assert.ErrorContains(t, err, "not joined")
	assert.ErrorContains(t, err, "pill_miss")
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).Report(pilldispenser.EventCalibrated, sampleRecord()))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "status", entry.Message)
	assert.Equal(t, "calibrated", entry.ContextMap()["event"])
	assert.EqualValues(t, 4, entry.ContextMap()["left"])
}

func TestWriter(t *testing.T) {
	var out strings.Builder
	w := NewWriter(&out)

	require.NoError(t, w.Report(pilldispenser.EventPillOK, sampleRecord()))
	require.NoError(t, w.Report(pilldispenser.EventStatus, sampleRecord()))
	assert.Equal(t,
		"evt=pill_ok;slot=3;done=3;left=4;ok=3;miss=0;boots=2;\r\nevt=status;slot=3;done=3;left=4;ok=3;miss=0;boots=2;\r\n",
		out.String(),
	)
}

func TestMulti(t *testing.T) {
	failing := &fakeSender{err: errors.New("radio off")}
	ok := &fakeSender{}

	m := Multi{NewUplink(failing, nil), nil, NewUplink(ok, nil)}
	err := m.Report(pilldispenser.EventStatus, sampleRecord())
	assert.ErrorContains(t, err, "radio off")
	assert.Len(t, failing.sent, 1)
	assert.Len(t, ok.sent, 1, "a failing reporter must not stop the others")

	assert.NoError(t, Discard.Report(pilldispenser.EventStatus, sampleRecord()))
}
