package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/supportbot/internal/config"
	"github.com/supportbot/internal/eval"
	"github.com/supportbot/internal/logging"
)

// EvalCommand returns the eval command
func EvalCommand() *cli.Command {
	return &cli.Command{
		Name:  "eval",
		Usage: "Replay golden triage scenarios against the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Value:   "./scenarios",
				Usage:   "Directory containing scenario YAML files",
				Aliases: []string{"s"},
			},
			&cli.StringFlag{
				Name:  "rules",
				Usage: "Triage rules file to use (defaults to built-in rules)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output for this command",
			},
		},
		Action: runEval,
	}
}

func runEval(c *cli.Context) error {
	logging.Setup(c.Bool("verbose"))

	scenarios, err := eval.LoadScenarios(c.String("dir"))
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %s", c.String("dir"))
	}

	rules := config.DefaultRules()
	if path := c.String("rules"); path != "" {
		rules, err = config.LoadRules(path)
		if err != nil {
			return err
		}
	}

	results := eval.RunAll(context.Background(), scenarios, rules)

	failed := 0
	for _, r := range results {
		if r.Passed {
			fmt.Printf("PASS  %s\n", r.Name)
			continue
		}
		failed++
		fmt.Printf("FAIL  %s\n", r.Name)
		for _, f := range r.Failures {
			fmt.Printf("      %s\n", f)
		}
	}

	fmt.Printf("\n%d/%d scenarios passed\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}
