package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default data directory name.
	ConfigDir = ".clawd"
)

// DataDir returns the directory clawd uses for local state (sqlite, etc).
func DataDir() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("CLAWD_HOME")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir), nil
}

// Load builds the config from defaults and CLAWD_* environment variables.
// A .env file in the working directory is read first (best-effort).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if err := processEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Store.SQLitePath == "" {
		dir, err := DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.Store.SQLitePath = filepath.Join(dir, "credentials.db")
	}
	if cfg.Server.PublicBaseURL == "" {
		addr := cfg.Server.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		cfg.Server.PublicBaseURL = "http://" + addr
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8787",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:8787",
			},
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
		},
		Kafka: KafkaConfig{
			Topic: "clawd.run-events",
		},
		Assistant: AssistantConfig{
			Timezone:         "Asia/Kolkata",
			UTCOffset:        "+05:30",
			DefaultTime:      "11:00",
			DefaultDuration:  30,
			TriageLimit:      5,
			SlackWindowDays:  30,
			WebFetchTimeoutS: 12,
		},
	}
}

func processEnv(cfg *Config) error {
	groups := []struct {
		prefix string
		spec   any
	}{
		{"CLAWD_SERVER", &cfg.Server},
		{"CLAWD_STORE", &cfg.Store},
		{"CLAWD_OPENAI", &cfg.OpenAI},
		{"CLAWD_GOOGLE", &cfg.Google},
		{"CLAWD_SLACK", &cfg.Slack},
		{"CLAWD_KAFKA", &cfg.Kafka},
		{"CLAWD_ASSISTANT", &cfg.Assistant},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.spec); err != nil {
			return fmt.Errorf("process %s env: %w", g.prefix, err)
		}
	}
	return nil
}
