package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matchpool/livesync/go/internal/push"
	"github.com/matchpool/livesync/go/internal/resilience"
)

type Config struct {
	Nats struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	API struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"api"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Engine struct {
		PendingWindowSec      int `yaml:"pending_window_sec"`
		ResilienceIntervalSec int `yaml:"resilience_interval_sec"`
	} `yaml:"engine"`
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

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Environment overrides
	config.Nats.URL = getEnv("NATS_URL", config.Nats.URL)
	config.Nats.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", config.Nats.SubjectPrefix)
	config.API.BaseURL = getEnv("POOL_API_BASE_URL", config.API.BaseURL)
	config.HTTP.Addr = getEnv("HTTP_ADDR", config.HTTP.Addr)
	config.Engine.PendingWindowSec = getEnvAsInt("PENDING_WINDOW_SEC", config.Engine.PendingWindowSec)
	config.Engine.ResilienceIntervalSec = getEnvAsInt("RESILIENCE_INTERVAL_SEC", config.Engine.ResilienceIntervalSec)

	if config.HTTP.Addr == "" {
		config.HTTP.Addr = ":8085"
	}
	if config.API.BaseURL == "" {
		return nil, fmt.Errorf("api base URL is required (POOL_API_BASE_URL)")
	}
	return &config, nil
}

func (c *Config) natsConfig() push.NATSConfig {
	cfg := push.DefaultNATSConfig()
	if c.Nats.URL != "" {
		cfg.URL = c.Nats.URL
	}
	if c.Nats.SubjectPrefix != "" {
		cfg.SubjectPrefix = c.Nats.SubjectPrefix
	}
	return cfg
}

func (c *Config) pendingWindow() time.Duration {
	return time.Duration(c.Engine.PendingWindowSec) * time.Second
}

func (c *Config) resilienceInterval() time.Duration {
	if c.Engine.ResilienceIntervalSec <= 0 {
		return resilience.DefaultInterval
	}
	return time.Duration(c.Engine.ResilienceIntervalSec) * time.Second
}
