package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig    = "config"
	flagImage     = "image"
	flagLoRaPort  = "lora-port"
	flagUI        = "ui"
	flagStatusLog = "status-log"
	flagPort      = "port"
	flagBaudRate  = "baud"
	flagLogLevel  = "log-level"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "pill-dispenser",
		Usage: "simulate a pill dispenser or talk to one over USB serial",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "config file, defaults to ./pill-dispenser.yaml when present",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  flagStatusLog,
				Usage: "status log server address, e.g. http://localhost:8080",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sim",
				Usage: "run the firmware against a simulated wheel. Console commands are read from stdin",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  flagImage,
						Usage: "EEPROM image file so the record survives restarts",
					},
					&cli.StringFlag{
						Name:  flagLoRaPort,
						Usage: "serial port of a LoRaWAN modem to send status reports through",
					},
					&cli.BoolFlag{
						Name:  flagUI,
						Usage: "show the front panel",
					},
				},
				Action: SimAction,
			},
			{
				Name:  "console",
				Usage: "bridge stdin and stdout to a dispenser's serial console",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagPort,
						Usage: "serial port, defaults to the first USB serial port",
					},
					&cli.StringFlag{
						Name:  flagBaudRate,
						Usage: "baud rate",
					},
					&cli.BoolFlag{
						Name:  flagUI,
						Usage: "pick the port in a window and show the front panel",
					},
				},
				Action: ConsoleAction,
			},
			{
				Name:   "ports",
				Usage:  "list USB serial ports",
				Action: PortsAction,
			},
		},
	}

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
