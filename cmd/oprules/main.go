package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/blndgs/oprules/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "oprules",
		Usage: "Validate ERC-4337 user operations against the storage and opcode rules",
		Flags: []cli.Flag{
			ConfigFlag,
		},
		Commands: []*cli.Command{
			&CheckCmd,
			&ServeCmd,
		},
	}
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return zerolog.Nop(), err
	}

	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
