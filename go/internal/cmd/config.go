package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/solowsim/go/internal/game"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Game game.Config `yaml:"game"`

	Engine struct {
		URL         string        `yaml:"url"`
		Timeout     time.Duration `yaml:"timeout"`
		InitOnStart bool          `yaml:"init_on_start"`
	} `yaml:"engine"`

	Broadcast struct {
		QueueSize        int `yaml:"queue_size"`
		SubscriberBuffer int `yaml:"subscriber_buffer"`
	} `yaml:"broadcast"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Archive struct {
		Enabled   bool `yaml:"enabled"`
		QueueSize int  `yaml:"queue_size"`
	} `yaml:"archive"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Game = game.DefaultConfig()
	cfg.Engine.URL = "http://localhost:8000"
	cfg.Engine.Timeout = 30 * time.Second
	cfg.Broadcast.QueueSize = 1000
	cfg.Broadcast.SubscriberBuffer = 64
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.StreamName = "GAME_EVENTS"
	cfg.NATS.SubjectPrefix = "game.events"
	cfg.Archive.QueueSize = 256
	return &cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file if present and applies environment overrides.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Game.GameID = getEnv("GAME_ID", c.Game.GameID)
	c.Game.MaxRounds = getEnvAsInt("MAX_ROUNDS", c.Game.MaxRounds)
	c.Game.RoundTimerSeconds = getEnvAsInt("ROUND_TIMER_SECONDS", c.Game.RoundTimerSeconds)
	c.Game.AutoAdvance = getEnvAsBool("AUTO_ADVANCE", c.Game.AutoAdvance)
	c.Game.DecisionTimeout = getEnvAsDuration("DECISION_TIMEOUT", c.Game.DecisionTimeout)
	c.Game.StartTimeout = getEnvAsDuration("START_TIMEOUT", c.Game.StartTimeout)
	c.Game.AdvanceTimeout = getEnvAsDuration("ADVANCE_TIMEOUT", c.Game.AdvanceTimeout)

	c.Engine.URL = getEnv("ENGINE_URL", c.Engine.URL)
	c.Engine.Timeout = getEnvAsDuration("ENGINE_TIMEOUT", c.Engine.Timeout)
	c.Engine.InitOnStart = getEnvAsBool("ENGINE_INIT_ON_START", c.Engine.InitOnStart)

	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Archive.Enabled = getEnvAsBool("ARCHIVE_ENABLED", c.Archive.Enabled)
}
