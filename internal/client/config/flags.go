package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophsky/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-s string   PDS / entryway URL
//	-v string   video service URL
//	-d string   credential store path
//	-l string   log level (debug, info, warn, error)
//
// Only these flags are looked at; everything else in args is ignored.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-s", "-v", "-d", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServiceURL, "s", cfg.ServiceURL, "PDS URL")
	fs.StringVar(&cfg.VideoServiceURL, "v", cfg.VideoServiceURL, "video service URL")
	fs.StringVar(&cfg.CredentialsPath, "d", cfg.CredentialsPath, "credential store path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
