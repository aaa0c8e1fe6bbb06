package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/supportbot/internal/api"
	"github.com/supportbot/internal/guardrails"
	"github.com/supportbot/internal/logging"
	"github.com/supportbot/internal/triage"
)

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (overrides config)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config)",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Process events without posting comments",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output for this command",
			},
		},
		Action: runServe,
	}
}

// pipelineRunner adapts the triage pipeline to the webhook server, which only
// cares whether an event succeeded.
type pipelineRunner struct {
	pipeline *triage.Pipeline
}

func (r pipelineRunner) Run(ctx context.Context, event guardrails.Event) error {
	if runLogger, lerr := logging.StartTriageLogging(uuid.NewString()); lerr == nil {
		defer runLogger.Close()
	}

	report, err := r.pipeline.Run(ctx, event)
	if err != nil {
		return err
	}
	log.Info().
		Int("issue", event.IssueNumber).
		Str("decision", string(report.Decision)).
		Bool("posted", report.Posted).
		Bool("escalated", report.Escalated).
		Msg("Webhook event processed")
	return nil
}

func runServe(c *cli.Context) error {
	logging.Setup(c.Bool("verbose"))

	cfg, err := loadValidConfig(c.String("config"))
	if err != nil {
		return err
	}

	host := cfg.Server.Host
	if c.IsSet("host") {
		host = c.String("host")
	}
	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	pipeline, err := buildPipeline(context.Background(), cfg, c.Bool("dry-run"))
	if err != nil {
		return err
	}

	server := api.NewServer(host, port, cfg.Tracker.WebhookSecret, pipelineRunner{pipeline: pipeline})

	fmt.Printf("Starting webhook server on %s:%d\n", host, port)
	return server.Start()
}
