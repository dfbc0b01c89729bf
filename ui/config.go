package ui

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/pilldispenser/controller"
)

const (
	prefSerialPort    = "serialPort"
	prefBaudRate      = "baudRate"
	prefStatusLogAddr = "statusLogAddr"
)

// ConfigWindow asks which serial port to connect to. Choices are remembered in the app preferences
type ConfigWindow struct {
	app      fyne.App
	OnSubmit func()
}

func NewConfigWindow(app fyne.App) *ConfigWindow {
	return &ConfigWindow{app: app}
}

// load fills fields that were not given on the command line from the last submitted values
func (cw *ConfigWindow) load(cfg *controller.Config) {
	prefs := cw.app.Preferences()
	if cfg.SerialPort == "" {
		cfg.SerialPort = prefs.String(prefSerialPort)
	}
	if cfg.BaudRate == "" || cfg.BaudRate == controller.DefaultBaudRate {
		cfg.BaudRate = prefs.StringWithFallback(prefBaudRate, controller.DefaultBaudRate)
	}
	if cfg.StatusLogAddr == "" {
		cfg.StatusLogAddr = prefs.String(prefStatusLogAddr)
	}
}

func (cw *ConfigWindow) save(cfg controller.Config) {
	prefs := cw.app.Preferences()
	prefs.SetString(prefSerialPort, cfg.SerialPort)
	prefs.SetString(prefBaudRate, cfg.BaudRate)
	prefs.SetString(prefStatusLogAddr, cfg.StatusLogAddr)
}

// Show opens the window. cfg is updated in place before OnSubmit is called. Closing the window quits
func (cw *ConfigWindow) Show(cfg *controller.Config) {
	window := cw.app.NewWindow("Pill Dispenser - Connect")
	window.Resize(fyne.NewSize(420, 200))
	window.SetCloseIntercept(func() {
		window.Close()
		cw.app.Quit()
	})
	window.Show()

	cw.load(cfg)

	ports, err := portChoices(controller.GetSerialPorts())
	if err != nil {
		showError(cw.app, window, fmt.Errorf("error getting serial ports: %w", err))
		return
	}
	if !slices.Contains(ports, cfg.SerialPort) {
		cfg.SerialPort = ports[0]
	}

	portSelect := widget.NewSelect(ports, nil)
	portSelect.Bind(binding.BindString(&cfg.SerialPort))

	baudEntry := widget.NewEntry()
	baudEntry.Bind(binding.BindString(&cfg.BaudRate))
	baudEntry.Validator = func(s string) error {
		if !validConfig(controller.Config{SerialPort: controller.SerialPortNone, BaudRate: s}) {
			return errors.New("baud rate must be a positive number")
		}
		return nil
	}

	statusLogEntry := widget.NewEntry()
	statusLogEntry.SetPlaceHolder("optional, e.g. http://localhost:8080")
	statusLogEntry.Bind(binding.BindString(&cfg.StatusLogAddr))

	form := &widget.Form{
		Items: []*widget.FormItem{
			widget.NewFormItem("Serial Port", portSelect),
			widget.NewFormItem("Baud Rate", baudEntry),
			widget.NewFormItem("Status Log", statusLogEntry),
		},
		SubmitText: "Connect",
		OnSubmit: func() {
			if !validConfig(*cfg) {
				return
			}
			cw.save(*cfg)
			cw.OnSubmit()
			window.Close()
		},
		OnCancel: func() {
			window.Close()
			cw.app.Quit()
		},
	}

	window.SetContent(form)
}

// portChoices always offers SerialPortNone so the panel can be opened without a device
func portChoices(ports []string, err error) ([]string, error) {
	if err != nil && !errors.Is(err, controller.ErrNoUSBSerial) {
		return nil, err
	}
	return append(ports, controller.SerialPortNone), nil
}

// validConfig needs a port and a numeric baud rate. The status log is optional
func validConfig(cfg controller.Config) bool {
	if cfg.SerialPort == "" {
		return false
	}
	baud, err := strconv.Atoi(cfg.BaudRate)
	return err == nil && baud > 0
}

func showError(app fyne.App, window fyne.Window, err error) {
	d := dialog.NewError(err, window)
	d.SetOnClosed(app.Quit)
	d.Show()
}
