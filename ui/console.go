package ui

import (
	"context"
	"io"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser/controller"
)

// appID scopes the saved connection preferences
const appID = "io.github.calvinmclean.pilldispenser"

// RunConsole asks for the connection settings, then shows a panel for the device on the serial port until
// the window is closed or ctx is done. Device output is also copied to out
func RunConsole(ctx context.Context, cfg controller.Config, logger *zap.Logger, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	application := app.NewWithID(appID)
	result := make(chan error, 1)

	cw := NewConfigWindow(application)
	cw.OnSubmit = func() {
		c, err := controller.New(cfg, logger)
		if err != nil {
			result <- err
			application.Quit()
			return
		}

		in, commands := io.Pipe()
		panel := NewPanel(NewCommandWriter(commands))

		go func() {
			defer c.Close()
			defer in.Close()

			result <- c.Run(ctx, in, io.MultiWriter(out, panel))
			fyne.Do(func() {
				application.Quit()
			})
		}()

		showPanel(ctx, application, "Pill Dispenser - "+cfg.SerialPort, panel)
	}
	cw.Show(&cfg)

	application.Run()
	cancel()

	select {
	case err := <-result:
		return err
	default:
		return nil
	}
}
