package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "GOPHSKY"

// Config holds runtime settings for the gophsky CLI.
type Config struct {
	ServiceURL      string `envconfig:"SERVICE_URL"`
	VideoServiceURL string `envconfig:"VIDEO_SERVICE_URL"`
	VideoServiceDID string `envconfig:"VIDEO_SERVICE_DID"`
	CredentialsPath string `envconfig:"CREDENTIALS_PATH"`
	// StorePassphrase unlocks the credential store. It is only read from the
	// environment; the CLI prompts for it when empty.
	StorePassphrase string `envconfig:"PASSPHRASE"`

	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT"`

	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND"`
	RateBurst         int           `envconfig:"RATE_BURST"`

	PollInterval     time.Duration `envconfig:"POLL_INTERVAL"`
	PollMaxAttempts  int           `envconfig:"POLL_MAX_ATTEMPTS"`
	MaxVideoBytes    int64         `envconfig:"MAX_VIDEO_BYTES"`
	MaxVideoDuration time.Duration `envconfig:"MAX_VIDEO_DURATION"`
	FFProbePath      string        `envconfig:"FFPROBE_PATH"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServiceURL = "https://bsky.social"
	c.VideoServiceURL = "https://video.bsky.app"
	c.VideoServiceDID = "did:web:video.bsky.app"
	c.CredentialsPath = "credentials.db"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.HTTPTimeout = 30 * time.Second
	c.RequestsPerSecond = 10
	c.RateBurst = 5
	c.PollInterval = 2 * time.Second
	c.PollMaxAttempts = 90
	c.MaxVideoBytes = 100 << 20
	c.MaxVideoDuration = 3 * time.Minute
	c.FFProbePath = "ffprobe"
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"service URL": c.ServiceURL, "video service URL": c.VideoServiceURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	switch {
	case c.CredentialsPath == "":
		return fmt.Errorf("credentials path is empty")
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	case c.PollMaxAttempts <= 0:
		return fmt.Errorf("poll max attempts must be positive, got %d", c.PollMaxAttempts)
	case c.MaxVideoBytes <= 0:
		return fmt.Errorf("max video bytes must be positive, got %d", c.MaxVideoBytes)
	case c.MaxVideoDuration <= 0:
		return fmt.Errorf("max video duration must be positive, got %s", c.MaxVideoDuration)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// LoadConfig constructs a Config from os.Args; see Load.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load applies defaults, then a JSON file (-c / -config), then GOPHSKY_*
// environment variables, then command-line flags. Later sources take
// precedence. Invalid input panics.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseEnv(cfg)
	parseFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
