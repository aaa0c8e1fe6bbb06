package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/agent"
	"github.com/supportbot/internal/config"
	"github.com/supportbot/internal/phases"
	"github.com/supportbot/internal/tracker"
	"github.com/supportbot/internal/triage"
)

// buildPipeline assembles the full triage pipeline from configuration.
func buildPipeline(ctx context.Context, cfg *config.Config, dryRun bool) (*triage.Pipeline, error) {
	auth, err := buildAuth(cfg)
	if err != nil {
		return nil, err
	}

	client, err := tracker.NewClient(tracker.Options{
		BaseURL: cfg.Tracker.URL,
		Repo:    cfg.Tracker.Repo,
		Auth:    auth,
		DryRun:  dryRun || cfg.Bot.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker client: %w", err)
	}

	rules, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}

	connector, err := agent.NewConnector(ctx, agent.ConnectorOptions{
		Provider: agent.Provider(cfg.AI.Provider),
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.BaseURL,
		ModelConfig: agent.ModelConfig{
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model connector: %w", err)
	}

	resilient := agent.NewResilientAgent(connector, agent.DefaultResilientOptions())

	p := phases.New(resilient, rules, phases.Thresholds{
		Classification: cfg.Thresholds.Classification,
		Evidence:       cfg.Thresholds.Evidence,
		Response:       cfg.Thresholds.Response,
	})

	return triage.New(client, p, triage.Options{
		BotIdentity:   cfg.Bot.Identity,
		EscalateLabel: cfg.Bot.EscalateLabel,
		MaxLoops:      cfg.Bot.MaxLoops,
		VisibleLoops:  cfg.Bot.VisibleLoops,
	})
}

func buildAuth(cfg *config.Config) (tracker.AuthProvider, error) {
	if cfg.Tracker.AppID != "" {
		keyPEM, err := os.ReadFile(cfg.Tracker.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read app private key: %w", err)
		}
		return tracker.NewAppAuth(cfg.Tracker.AppID, cfg.Tracker.InstallationID, keyPEM, cfg.Tracker.URL)
	}
	return tracker.NewTokenAuth(cfg.Tracker.Token), nil
}

func loadRules(cfg *config.Config) (*config.TriageRules, error) {
	if _, err := os.Stat(cfg.Bot.RulesPath); err != nil {
		log.Info().Str("path", cfg.Bot.RulesPath).Msg("No rules file, using built-in triage rules")
		return config.DefaultRules(), nil
	}
	rules, err := config.LoadRules(cfg.Bot.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load triage rules: %w", err)
	}
	return rules, nil
}

func loadValidConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
