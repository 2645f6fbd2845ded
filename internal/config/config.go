package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Memory    MemoryConfig    `yaml:"memory"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Vault     VaultConfig     `yaml:"vault"`

	Agents map[string]AgentDefinition `yaml:"agents"`
}

type ProviderConfig struct {
	// Kind selects the model backend: "anthropic" or "openrouter".
	Kind        string  `yaml:"kind"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type MemoryConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type EventsConfig struct {
	// Port 0 binds the embedded server to a random free port.
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type DefaultsConfig struct {
	// TaskTimeout bounds agent invocations inside a task run.
	TaskTimeout   time.Duration `yaml:"task_timeout"`
	MaxIterations int           `yaml:"max_iterations"`
	MemoryEnabled bool          `yaml:"memory_enabled"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

// AgentDefinition declares an agent assembled at startup and registered
// with the orchestrator under its map key.
type AgentDefinition struct {
	Role          string   `yaml:"role"`
	Goal          string   `yaml:"goal"`
	Backstory     string   `yaml:"backstory"`
	Model         string   `yaml:"model"`
	Tools         []string `yaml:"tools"`
	MaxIterations int      `yaml:"max_iterations"`
	Memory        *bool    `yaml:"memory"`
	Temperature   float64  `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
}

func defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:        "anthropic",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Memory: MemoryConfig{
			Path:       "data/memory",
			Collection: "agent_memory",
		},
		Store: StoreConfig{
			Path: "data/cadre.db",
		},
		Events: EventsConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Defaults: DefaultsConfig{
			TaskTimeout:   300 * time.Second,
			MaxIterations: 10,
			MemoryEnabled: true,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CADRE_CONFIG")
	if path == "" {
		path = "config/cadre.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CADRE_PROVIDER"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("CADRE_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("CADRE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CADRE_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("CADRE_WEB_AUTH"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("CADRE_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("CADRE_TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Defaults.TaskTimeout = d
		}
	}
}
