// Package config loads runtime configuration for the gophsky CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. GOPHSKY_* environment variables (e.g. GOPHSKY_SERVICE_URL,
//     GOPHSKY_POLL_INTERVAL=5s, GOPHSKY_PASSPHRASE).
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-s string   PDS URL
//	-v string   video service URL
//	-d string   credential store path
//	-l string   log level
//
// # JSON schema
//
// Durations are timex.Duration, so values can be strings like "2s" or
// integer nanoseconds:
//
//	{
//	  "service_url": "https://bsky.social",
//	  "video_service_url": "https://video.bsky.app",
//	  "credentials_path": "/home/me/.gophsky/credentials.db",
//	  "poll_interval": "2s",
//	  "poll_max_attempts": 90
//	}
package config
