// Package config loads the yaml configuration shared by the CLI and the
// dev server, with environment overrides for credentials.
package config

import (
	"context"
	"os"

	"github.com/go-yaml/yaml"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API     API     `yaml:"api"`
	Session Session `yaml:"session"`
	Server  Server  `yaml:"server"`
}

// API locates the backend the clients talk to.
type API struct {
	BaseURL     string `yaml:"baseURL" env:"OUTFEED_BASE_URL"`
	RealtimeURL string `yaml:"realtimeURL" env:"OUTFEED_REALTIME_URL"`
}

// Session holds the externally issued credentials. Usually supplied via
// environment rather than the file.
type Session struct {
	Token  string `yaml:"token" env:"OUTFEED_TOKEN"`
	UserID string `yaml:"userID" env:"OUTFEED_USER_ID"`
}

// Server configures the dev server that emulates the backend locally.
type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

// Load reads the yaml file at path, then applies environment overrides.
func Load(ctx context.Context, path string) (Config, error) {
	var config Config

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return Config{}, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return Config{}, err
	}

	if config.API.RealtimeURL == "" {
		config.API.RealtimeURL = config.API.BaseURL
	}
	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}

	return config, nil
}
