// Package ui is a small front panel for a dispenser: the two buttons, the three indicator lamps and the
// record counters
package ui

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/sim"
)

const snapshotInterval = 200 * time.Millisecond

var (
	lampOff     = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	lampWaiting = color.NRGBA{R: 255, G: 191, B: 0, A: 255}
	lampReady   = color.NRGBA{R: 0, G: 200, B: 70, A: 255}
	lampError   = color.NRGBA{R: 220, G: 20, B: 20, A: 255}
)

// Buttons are the two physical buttons
type Buttons interface {
	PressCalibrate()
	PressStart()
}

// Panel shows one dispenser. It can follow a simulated machine directly or the status lines written by a
// serial bridge
type Panel struct {
	buttons Buttons
	// do runs widget updates on the UI goroutine
	do func(func())

	stateLabel  *widget.Label
	eventLabel  *widget.Label
	recordLabel *widget.Label
	sinceEvent  *timer

	waitingLamp *canvas.Circle
	readyLamp   *canvas.Circle
	errorLamp   *canvas.Circle

	calButton   *widget.Button
	startButton *widget.Button

	mtx     sync.Mutex
	partial []byte
}

func NewPanel(buttons Buttons) *Panel {
	p := &Panel{
		buttons:     buttons,
		do:          fyne.Do,
		stateLabel:  widget.NewLabel("State: -"),
		eventLabel:  widget.NewLabel("Last event: -"),
		recordLabel: widget.NewLabel(""),
		sinceEvent:  newTimer(),
		waitingLamp: canvas.NewCircle(lampOff),
		readyLamp:   canvas.NewCircle(lampOff),
		errorLamp:   canvas.NewCircle(lampOff),
	}
	p.calButton = widget.NewButton("Calibrate", buttons.PressCalibrate)
	p.startButton = widget.NewButton("Start", buttons.PressStart)
	p.setRecord(report.Status{})
	return p
}

// Content is the panel layout
func (p *Panel) Content() fyne.CanvasObject {
	lamp := func(c *canvas.Circle, name string) fyne.CanvasObject {
		return container.NewHBox(
			container.NewGridWrap(fyne.NewSize(20, 20), c),
			widget.NewLabel(name),
		)
	}

	return container.NewVBox(
		container.NewHBox(
			lamp(p.waitingLamp, "Waiting"),
			lamp(p.readyLamp, "Ready"),
			lamp(p.errorLamp, "Error"),
		),
		p.stateLabel,
		container.NewHBox(p.eventLabel, layout.NewSpacer(), container.NewPadded(p.sinceEvent.text)),
		p.recordLabel,
		container.NewGridWithColumns(2, p.calButton, p.startButton),
	)
}

// Report implements report.Reporter so a simulated dispenser can report straight to the panel
func (p *Panel) Report(event pilldispenser.Event, rec record.Record) error {
	s := report.StatusOf(event, rec)
	p.do(func() {
		p.setEvent(s.Event)
		p.setRecord(s)
	})
	return nil
}

// Write reads status lines from a serial bridge. Other output is ignored
func (p *Panel) Write(b []byte) (int, error) {
	p.mtx.Lock()
	p.partial = append(p.partial, b...)
	var lines []string
	for {
		i := bytes.IndexByte(p.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(p.partial[:i]))
		p.partial = p.partial[i+1:]
	}
	p.mtx.Unlock()

	for _, line := range lines {
		s, err := report.ParseLine(line)
		if err != nil {
			continue
		}
		p.do(func() {
			p.setEvent(s.Event)
			p.setRecord(s)
			p.setLamps(lampsForEvent(s.Event))
		})
	}
	return len(b), nil
}

// Snapshotter returns the current state and record. *dispenser.Dispenser implements it
type Snapshotter interface {
	Snapshot() (pilldispenser.State, record.Record)
}

// WatchMachine follows the lamps and the dispenser of a simulated machine until ctx is done
func (p *Panel) WatchMachine(ctx context.Context, lamps *sim.Lamps, d Snapshotter) {
	lamps.OnChange(func(s sim.LampState) {
		p.do(func() { p.setLamps(s) })
	})

	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			state, rec := d.Snapshot()
			p.do(func() {
				p.setState(state)
				p.setRecord(report.StatusOf(pilldispenser.EventStatus, rec))
			})
		}
	}()
}

func (p *Panel) setState(state pilldispenser.State) {
	p.stateLabel.SetText("State: " + state.String())
}

func (p *Panel) setEvent(event pilldispenser.Event) {
	p.eventLabel.SetText("Last event: " + string(event))
	p.sinceEvent.Set(time.Now())
}

func (p *Panel) setRecord(s report.Status) {
	p.recordLabel.SetText(fmt.Sprintf(
		"Slot %d  Done %d/%d  Left %d\nDispensed %d  Missed %d  Boots %d",
		s.Slot, s.Done, pilldispenser.DispenseSlots, s.Remaining, s.Dispensed, s.Missed, s.Boots,
	))
}

func (p *Panel) setLamps(s sim.LampState) {
	setLamp(p.waitingLamp, s.Waiting, lampWaiting)
	setLamp(p.readyLamp, s.Ready, lampReady)
	setLamp(p.errorLamp, s.Error, lampError)
}

func setLamp(c *canvas.Circle, on bool, onColor color.Color) {
	c.FillColor = lampOff
	if on {
		c.FillColor = onColor
	}
	c.Refresh()
}

// Run shows the panel until the window is closed or ctx is done
func Run(ctx context.Context, title string, p *Panel) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	application := app.New()
	showPanel(ctx, application, title, p)
	application.Run()
}

func showPanel(ctx context.Context, application fyne.App, title string, p *Panel) {
	p.sinceEvent.Go(ctx)

	go func() {
		<-ctx.Done()
		fyne.Do(func() {
			application.Quit()
		})
	}()

	window := application.NewWindow(title)
	window.SetContent(p.Content())
	window.Resize(fyne.NewSize(360, 220))
	window.SetMaster()
	window.Show()
}
