// Package config loads the bot configuration from defaults, a TOML file and
// SUPPORTBOT_ environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Bot struct {
		Identity      string `koanf:"identity"`       // tracker login the bot posts as
		MaxLoops      int    `koanf:"max_loops"`      // hard ceiling on passes per user
		VisibleLoops  int    `koanf:"visible_loops"`  // follow-up questions before escalation
		RulesPath     string `koanf:"rules_path"`     // YAML triage rules file
		DryRun        bool   `koanf:"dry_run"`        // print instead of posting
		EscalateLabel string `koanf:"escalate_label"` // label applied on escalation
	} `koanf:"bot"`

	Tracker struct {
		URL            string `koanf:"url"`
		Repo           string `koanf:"repo"`
		Token          string `koanf:"token"`
		AppID          string `koanf:"app_id"`
		InstallationID int64  `koanf:"installation_id"`
		PrivateKeyPath string `koanf:"private_key_path"`
		WebhookSecret  string `koanf:"webhook_secret"`
	} `koanf:"tracker"`

	AI struct {
		Provider    string  `koanf:"provider"`
		APIKey      string  `koanf:"api_key"`
		BaseURL     string  `koanf:"base_url"`
		Model       string  `koanf:"model"`
		Temperature float64 `koanf:"temperature"`
		MaxTokens   int     `koanf:"max_tokens"`
	} `koanf:"ai"`

	Thresholds struct {
		Classification int `koanf:"classification"`
		Evidence       int `koanf:"evidence"`
		Response       int `koanf:"response"`
	} `koanf:"thresholds"`

	Server struct {
		Host string `koanf:"host"`
		Port int    `koanf:"port"`
	} `koanf:"server"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"bot.identity":              "supportbot",
		"bot.max_loops":             4,
		"bot.visible_loops":         3,
		"bot.rules_path":            "./triage_rules.yaml",
		"bot.escalate_label":        "triage/escalated",
		"tracker.url":               "https://api.github.com",
		"ai.provider":               "openai",
		"ai.temperature":            0.2,
		"thresholds.classification": 6,
		"thresholds.evidence":       5,
		"thresholds.response":       7,
		"server.host":               "0.0.0.0",
		"server.port":               8080,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./supportbot.toml", "$HOME/.supportbot.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix SUPPORTBOT_
	k.Load(env.Provider("SUPPORTBOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SUPPORTBOT_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Supportbot Configuration

[bot]
identity = "supportbot"
max_loops = 4
visible_loops = 3
rules_path = "./triage_rules.yaml"
escalate_label = "triage/escalated"
dry_run = false

[tracker]
url = "https://api.github.com"
repo = "your-org/your-repo"
token = "your-tracker-token"
webhook_secret = "your-webhook-secret"

[ai]
provider = "openai"
api_key = "your-api-key"
model = "gpt-4o-mini"
temperature = 0.2

[server]
host = "0.0.0.0"
port = 8080
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Bot.Identity == "" {
		return fmt.Errorf("bot identity is required")
	}
	if config.Bot.MaxLoops < 1 {
		return fmt.Errorf("bot max_loops must be at least 1")
	}
	if config.Bot.VisibleLoops >= config.Bot.MaxLoops {
		return fmt.Errorf("bot visible_loops must be below max_loops")
	}

	if config.Tracker.Repo == "" || !strings.Contains(config.Tracker.Repo, "/") {
		return fmt.Errorf("tracker repo must be in owner/name form")
	}
	usesApp := config.Tracker.AppID != "" || config.Tracker.PrivateKeyPath != ""
	if usesApp {
		if config.Tracker.AppID == "" || config.Tracker.PrivateKeyPath == "" || config.Tracker.InstallationID == 0 {
			return fmt.Errorf("app auth requires app_id, installation_id and private_key_path")
		}
	} else if config.Tracker.Token == "" {
		return fmt.Errorf("tracker token is required when app auth is not configured")
	}

	switch config.AI.Provider {
	case "openai", "gemini", "claude", "cohere":
		if config.AI.APIKey == "" {
			return fmt.Errorf("%s api_key is required", config.AI.Provider)
		}
	case "ollama":
		// local provider, no key
	default:
		return fmt.Errorf("unsupported ai provider %q", config.AI.Provider)
	}
	if config.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}

	return nil
}
