package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"collabtext/protocol"
)

// Agent configures the terminal client.
type Agent struct {
	// URL is the relay's base websocket address. Ignored when Discover
	// is set; the relay is then found over mDNS.
	URL  string `yaml:"url" json:"url"`
	Room string `yaml:"room" json:"room"`

	Codec string `yaml:"codec" json:"codec"`

	Discover        bool     `yaml:"discover" json:"discover"`
	DiscoverTimeout Duration `yaml:"discover_timeout" json:"discover_timeout"`

	// QuietInterval is how long typing must pause before the field is
	// broadcast.
	QuietInterval Duration `yaml:"quiet_interval" json:"quiet_interval"`

	// LogOutput receives JSON log records. The terminal belongs to the
	// editor, so logs are discarded when empty.
	LogOutput string `yaml:"log_output" json:"log_output"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

func DefaultAgent() Agent {
	return Agent{
		URL:             "ws://localhost:8081",
		Room:            "default",
		Codec:           "json",
		DiscoverTimeout: Duration(5 * time.Second),
		QuietInterval:   Duration(100 * time.Millisecond),
		LogLevel:        "info",
	}
}

// ApplyEnv overrides fields from COLLABTEXT_URL and COLLABTEXT_ROOM.
func (a *Agent) ApplyEnv(lookup LookupFunc) {
	if v, ok := lookup("COLLABTEXT_URL"); ok && v != "" {
		a.URL = v
	}
	if v, ok := lookup("COLLABTEXT_ROOM"); ok && v != "" {
		a.Room = v
	}
}

func (a Agent) Validate() error {
	var errs []error
	if a.URL == "" && !a.Discover {
		errs = append(errs, errors.New("url is required unless discover is set"))
	}
	if a.Room == "" {
		errs = append(errs, errors.New("room is required"))
	}
	if _, err := protocol.Lookup(a.Codec); err != nil {
		errs = append(errs, err)
	}
	if a.QuietInterval <= 0 {
		errs = append(errs, fmt.Errorf("quiet_interval must be positive, got %s", a.QuietInterval))
	}
	if a.DiscoverTimeout <= 0 {
		errs = append(errs, fmt.Errorf("discover_timeout must be positive, got %s", a.DiscoverTimeout))
	}
	if _, err := ParseLevel(a.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AgentFlags holds agent flags until they are overlaid on a resolved
// configuration.
type AgentFlags struct {
	ConfigPath string
	values     Agent
	quiet      time.Duration
	timeout    time.Duration
}

// AddFlags registers the agent flags on fs.
func (f *AgentFlags) AddFlags(fs *pflag.FlagSet) {
	d := DefaultAgent()
	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML or JSONC config file")
	fs.StringVar(&f.values.URL, "url", d.URL, "relay websocket address")
	fs.StringVar(&f.values.Room, "room", d.Room, "room to join")
	fs.StringVar(&f.values.Codec, "codec", d.Codec, "wire codec: json or cbor")
	fs.BoolVar(&f.values.Discover, "discover", d.Discover, "find the relay over mDNS instead of --url")
	fs.DurationVar(&f.timeout, "discover-timeout", time.Duration(d.DiscoverTimeout), "how long to browse for a relay")
	fs.DurationVar(&f.quiet, "quiet-interval", time.Duration(d.QuietInterval), "pause in typing before the field is sent")
	fs.StringVar(&f.values.LogOutput, "log-output", d.LogOutput, "write JSON log records to this file")
	fs.StringVar(&f.values.LogLevel, "log-level", d.LogLevel, "debug, info, warn or error")
}

// Resolve builds the effective configuration from defaults, the config
// file, the environment and the flags set on fs.
func (f *AgentFlags) Resolve(fs *pflag.FlagSet, lookup LookupFunc) (Agent, error) {
	cfg := DefaultAgent()
	path := f.ConfigPath
	if path == "" {
		path, _ = lookup("COLLABTEXT_CONFIG")
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Agent{}, err
		}
	}
	cfg.ApplyEnv(lookup)
	fs.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "url":
			cfg.URL = f.values.URL
		case "room":
			cfg.Room = f.values.Room
		case "codec":
			cfg.Codec = f.values.Codec
		case "discover":
			cfg.Discover = f.values.Discover
		case "discover-timeout":
			cfg.DiscoverTimeout = Duration(f.timeout)
		case "quiet-interval":
			cfg.QuietInterval = Duration(f.quiet)
		case "log-output":
			cfg.LogOutput = f.values.LogOutput
		case "log-level":
			cfg.LogLevel = f.values.LogLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return Agent{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
