package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DataDir string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory holding the SQLite database"`

	// OAuth configuration
	ClientID             string `long:"client-id" env:"GOOGLE_CLIENT_ID" description:"OAuth 2.0 client ID (TV/Device application type)"`
	ClientSecret         string `long:"client-secret" env:"GOOGLE_CLIENT_SECRET" description:"OAuth 2.0 client secret"`
	Scopes               string `long:"scopes" env:"OAUTH_SCOPES" description:"Space-separated OAuth scopes (default: YouTube read-only plus profile)"`
	RefreshMarginSeconds int    `long:"refresh-margin" env:"TOKEN_REFRESH_MARGIN_SECONDS" default:"300" description:"Seconds before expiry to proactively refresh the access token"`

	// Application configuration
	Port             string `long:"port" env:"PORT" default:"8080" description:"HTTP status server port"`
	NotifyConfigPath string `long:"notify-config" env:"NOTIFY_CONFIG" default:"./notify.yaml" description:"Path to the notification channels YAML file"`
	APIAccessKey     string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses configuration from command-line flags and environment
// variables and returns the remaining positional arguments (the
// subcommand, if any). A nil Cfg with nil error means help was shown.
func Load() (*Cfg, []string, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	args, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DataDir:              raw.DataDir,
		ClientID:             raw.ClientID,
		ClientSecret:         raw.ClientSecret,
		Scopes:               raw.Scopes,
		RefreshMarginSeconds: raw.RefreshMarginSeconds,
		Port:                 raw.Port,
		NotifyConfigPath:     raw.NotifyConfigPath,
		APIAccessKey:         raw.APIAccessKey,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, args, nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
