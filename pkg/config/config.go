// Package config loads the application configuration from environment
// variables, with an optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr   string
	DatabasePath string
	LogLevel     logrus.Level

	LastFM struct {
		Key    string
		Secret string
	}
	Spotify struct {
		ClientID     string
		ClientSecret string
	}
	AudioNode struct {
		URL      string
		Password string
	}
	// LinkPollAttempts and LinkPollInterval bound the wait for a user to
	// approve the account-link token on the provider's site.
	LinkPollAttempts int
	LinkPollInterval time.Duration
}

// Load reads the configuration. Missing Last.fm credentials are an error;
// missing Spotify credentials select visitor mode and are fine.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{}

	cfg.LastFM.Key = os.Getenv("LASTFM_KEY")
	cfg.LastFM.Secret = os.Getenv("LASTFM_SECRET")
	if cfg.LastFM.Key == "" || cfg.LastFM.Secret == "" {
		return nil, fmt.Errorf("LASTFM_KEY and LASTFM_SECRET must be set")
	}

	cfg.Spotify.ClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	cfg.Spotify.ClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")

	cfg.AudioNode.URL = os.Getenv("AUDIO_NODE_URL")
	if cfg.AudioNode.URL == "" {
		cfg.AudioNode.URL = "ws://localhost:2333/events"
	}
	cfg.AudioNode.Password = os.Getenv("AUDIO_NODE_PASSWORD")

	cfg.ListenAddr = os.Getenv("LISTEN_ADDR")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":4000"
	}

	cfg.DatabasePath = os.Getenv("DATABASE_PATH")
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "scrobblebridge.db"
	}

	cfg.LinkPollAttempts = intEnv("LINK_POLL_ATTEMPTS", 15)
	cfg.LinkPollInterval = time.Duration(intEnv("LINK_POLL_INTERVAL_SECONDS", 20)) * time.Second

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	cfg.LogLevel = level

	return cfg, nil
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
