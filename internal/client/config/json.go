package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophsky/internal/flagx"
	"github.com/dmitrijs2005/gophsky/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// leave the corresponding Config field untouched. Durations accept "2s"
// strings or integer nanoseconds.
type JsonConfig struct {
	ServiceURL        *string         `json:"service_url"`
	VideoServiceURL   *string         `json:"video_service_url"`
	VideoServiceDID   *string         `json:"video_service_did"`
	CredentialsPath   *string         `json:"credentials_path"`
	LogLevel          *string         `json:"log_level"`
	LogFormat         *string         `json:"log_format"`
	HTTPTimeout       *timex.Duration `json:"http_timeout"`
	RequestsPerSecond *float64        `json:"requests_per_second"`
	RateBurst         *int            `json:"rate_burst"`
	PollInterval      *timex.Duration `json:"poll_interval"`
	PollMaxAttempts   *int            `json:"poll_max_attempts"`
	MaxVideoBytes     *int64          `json:"max_video_bytes"`
	MaxVideoDuration  *timex.Duration `json:"max_video_duration"`
	FFProbePath       *string         `json:"ffprobe_path"`
}

// parseJson overlays cfg with the JSON file named by -c / -config in args.
// Without either flag nothing is loaded. Read or decode errors panic.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServiceURL, jc.ServiceURL)
	setString(&cfg.VideoServiceURL, jc.VideoServiceURL)
	setString(&cfg.VideoServiceDID, jc.VideoServiceDID)
	setString(&cfg.CredentialsPath, jc.CredentialsPath)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.FFProbePath, jc.FFProbePath)

	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
	if jc.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *jc.RequestsPerSecond
	}
	if jc.RateBurst != nil {
		cfg.RateBurst = *jc.RateBurst
	}
	if jc.PollInterval != nil {
		cfg.PollInterval = jc.PollInterval.Duration
	}
	if jc.PollMaxAttempts != nil {
		cfg.PollMaxAttempts = *jc.PollMaxAttempts
	}
	if jc.MaxVideoBytes != nil {
		cfg.MaxVideoBytes = *jc.MaxVideoBytes
	}
	if jc.MaxVideoDuration != nil {
		cfg.MaxVideoDuration = jc.MaxVideoDuration.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
