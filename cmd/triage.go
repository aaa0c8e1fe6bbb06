package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/supportbot/internal/guardrails"
	"github.com/supportbot/internal/logging"
)

// TriageCommand returns the triage command
func TriageCommand() *cli.Command {
	return &cli.Command{
		Name:  "triage",
		Usage: "Run one triage pass over an issue",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Run triage without posting comments",
			},
			&cli.StringFlag{
				Name:  "as",
				Usage: "Process as a comment by this user instead of the issue author",
			},
			&cli.StringFlag{
				Name:  "body",
				Usage: "Comment body to process (requires --as)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output for this command",
			},
		},
		ArgsUsage: "ISSUE_NUMBER",
		Action:    runTriage,
	}
}

func runTriage(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: issue number")
	}

	var issueNumber int
	if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &issueNumber); err != nil {
		return fmt.Errorf("invalid issue number %q", c.Args().Get(0))
	}

	logging.Setup(c.Bool("verbose"))

	cfg, err := loadValidConfig(c.String("config"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pipeline, err := buildPipeline(ctx, cfg, c.Bool("dry-run"))
	if err != nil {
		return err
	}

	runLogger, err := logging.StartTriageLogging(uuid.NewString())
	if err == nil {
		defer runLogger.Close()
	}

	event := guardrails.Event{
		Kind:        guardrails.EventIssueOpened,
		Repo:        cfg.Tracker.Repo,
		IssueNumber: issueNumber,
		CreatedAt:   time.Now().UTC(),
	}
	if as := c.String("as"); as != "" {
		event.Kind = guardrails.EventCommentCreated
		event.Author = as
		event.Body = c.String("body")
	}

	report, err := pipeline.Run(ctx, event)
	if err != nil {
		return fmt.Errorf("triage failed: %w", err)
	}

	fmt.Printf("Decision: %s\n", report.Decision)
	if report.StopReason != "" {
		fmt.Printf("Stopped by guardrails: %s\n", report.StopReason)
	}
	if report.Posted {
		fmt.Printf("Posted comment %d\n", report.CommentID)
	}
	if report.Escalated {
		fmt.Println("Issue escalated to a human")
	}
	if report.Conflict {
		fmt.Println("Thread changed during processing, reply withheld")
	}
	return nil
}
