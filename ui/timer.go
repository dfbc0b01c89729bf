package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

// timer shows the time since Set was last called
type timer struct {
	startTime time.Time
	mtx       sync.Mutex
	text      *canvas.Text
}

func newTimer() *timer {
	return &timer{text: canvas.NewText("--:--", nil)}
}

func (t *timer) Set(start time.Time) {
	t.mtx.Lock()
	t.startTime = start
	t.mtx.Unlock()
}

func (t *timer) Go(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			fyne.Do(func() {
				t.text.Text = t.format(time.Now())
				t.text.Refresh()
			})
		}
	}()
}

func (t *timer) format(now time.Time) string {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.startTime.IsZero() {
		return "--:--"
	}
	elapsed := now.Sub(t.startTime)
	return fmt.Sprintf("%02d:%02d", int(elapsed.Minutes()), int(elapsed.Seconds())%60)
}
