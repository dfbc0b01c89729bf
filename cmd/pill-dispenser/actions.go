package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/controller"
	"github.com/calvinmclean/pilldispenser/firmware/lora"
	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/firmware/timing"
	"github.com/calvinmclean/pilldispenser/internal/config"
	"github.com/calvinmclean/pilldispenser/internal/logging"
	"github.com/calvinmclean/pilldispenser/sim"
	"github.com/calvinmclean/pilldispenser/statuslog"
	"github.com/calvinmclean/pilldispenser/ui"
)

// loadConfig reads the config and applies the global flags
func loadConfig(c *cli.Context) (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(c.Path(flagConfig))
	if err != nil {
		return config.Config{}, nil, err
	}

	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagStatusLog) {
		cfg.Serial.StatusLogAddr = c.String(flagStatusLog)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// SimAction runs the simulator until interrupted
func SimAction(c *cli.Context) (err error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Close()

	if c.IsSet(flagImage) {
		cfg.Sim.Image = c.Path(flagImage)
	}
	if c.IsSet(flagLoRaPort) {
		cfg.LoRaPort = c.String(flagLoRaPort)
	}

	err = cfg.Validate()
	if err != nil {
		return err
	}

	// the panel needs the dispenser for its buttons, so it is created after the machine
	var panel *ui.Panel
	reporters := report.Multi{}
	if cfg.Serial.StatusLogAddr != "" {
		reporters = append(reporters, statuslog.NewClient(cfg.Serial.StatusLogAddr))
	}
	if c.Bool(flagUI) {
		reporters = append(reporters, report.ReporterFunc(func(e pilldispenser.Event, rec record.Record) error {
			return panel.Report(e, rec)
		}))
	}

	opts := sim.Options{
		Clock:      timing.Default(),
		Logger:     logger.Logger,
		Level:      &logger.Level,
		Reporter:   reporters,
		Console:    sim.NewInput(os.Stdin),
		ConsoleOut: os.Stdout,
	}

	if cfg.LoRaPort != "" {
		port, openErr := controller.OpenPort(cfg.LoRaPort, cfg.LoRaBaudRate)
		if openErr != nil {
			return openErr
		}
		defer func() {
			err = multierr.Append(err, port.Close())
		}()
		opts.Radio = lora.New(port, opts.Clock, lora.Config{}, logger.Named("lora"))
	}

	m, err := sim.New(cfg.Sim, opts)
	if err != nil {
		return fmt.Errorf("error creating simulator: %w", err)
	}
	defer func() {
		err = multierr.Append(err, m.Close())
	}()

	if !c.Bool(flagUI) {
		return m.Run(c.Context)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	panel = ui.NewPanel(m.Dispenser)
	panel.WatchMachine(ctx, m.Lamps, m.Dispenser)

	result := make(chan error, 1)
	go func() {
		result <- m.Run(ctx)
		cancel()
	}()

	ui.Run(ctx, "Pill Dispenser - Simulator", panel)
	cancel()
	return <-result
}

// ConsoleAction bridges the terminal, or the front panel, to a real dispenser
func ConsoleAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Close()

	if c.IsSet(flagPort) {
		cfg.Serial.SerialPort = c.String(flagPort)
	}
	if c.IsSet(flagBaudRate) {
		cfg.Serial.BaudRate = c.String(flagBaudRate)
	}

	if c.Bool(flagUI) {
		return ui.RunConsole(c.Context, cfg.Serial, logger.Logger, os.Stdout)
	}

	ctrl, err := controller.New(cfg.Serial, logger.Logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	logger.Info("connected, type H for help", zap.String("port", cfg.Serial.SerialPort))
	return ctrl.Run(c.Context, os.Stdin, os.Stdout)
}

// PortsAction prints the USB serial ports
func PortsAction(c *cli.Context) error {
	ports, err := controller.GetSerialPorts()
	if errors.Is(err, controller.ErrNoUSBSerial) {
		fmt.Fprintln(c.App.Writer, "no USB serial ports found")
		return nil
	}
	if err != nil {
		return err
	}

	for _, p := range ports {
		fmt.Fprintln(c.App.Writer, p)
	}
	return nil
}
