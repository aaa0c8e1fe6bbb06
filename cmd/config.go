package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/supportbot/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage supportbot configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create a sample configuration file",
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if path == "" {
						path = "./supportbot.toml"
					}
					if err := config.InitConfig(path); err != nil {
						return err
					}
					fmt.Printf("Created sample configuration at %s\n", path)
					fmt.Println("Edit it to add your tracker credentials and model provider, then run 'supportbot config validate'.")
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Validate the configuration file",
				Action: func(c *cli.Context) error {
					cfg, err := loadValidConfig(c.String("config"))
					if err != nil {
						return err
					}
					fmt.Println("Configuration is valid")
					fmt.Printf("  Bot identity:  %s\n", cfg.Bot.Identity)
					fmt.Printf("  Repository:    %s\n", cfg.Tracker.Repo)
					fmt.Printf("  Provider:      %s (%s)\n", cfg.AI.Provider, cfg.AI.Model)
					if cfg.Tracker.AppID != "" {
						fmt.Println("  Auth:          GitHub App")
					} else {
						fmt.Println("  Auth:          token")
					}
					return nil
				},
			},
			{
				Name:  "rules",
				Usage: "Show the triage rulebook that would be used",
				Action: func(c *cli.Context) error {
					cfg, err := loadValidConfig(c.String("config"))
					if err != nil {
						return err
					}
					rules, err := loadRules(cfg)
					if err != nil {
						return err
					}
					fmt.Printf("Default category: %s\n", rules.DefaultCategory)
					for _, cat := range rules.Categories {
						fmt.Printf("  %s: %d checklist fields", cat.Name, len(cat.Checklist))
						if len(cat.EscalateTo) > 0 {
							fmt.Printf(", escalates to %v", cat.EscalateTo)
						}
						fmt.Println()
					}
					return nil
				},
			},
		},
	}
}
