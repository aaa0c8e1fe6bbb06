package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/supportbot/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "supportbot",
		Usage:   "AI-assisted support ticket triage bot for issue trackers",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.TriageCommand(),
			cmd.ServeCommand(),
			cmd.ConfigCommand(),
			cmd.EvalCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
