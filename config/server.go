package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"collabtext/protocol"
)

// Server configures the relay.
type Server struct {
	Addr  string `yaml:"addr" json:"addr"`
	Codec string `yaml:"codec" json:"codec"`

	// RedisAddr enables the Redis broker so several relays can serve
	// the same rooms. Empty keeps everything in process.
	RedisAddr   string `yaml:"redis_addr" json:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix"`

	// Advertise registers the relay over mDNS as Instance.
	Advertise bool   `yaml:"advertise" json:"advertise"`
	Instance  string `yaml:"instance" json:"instance"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

func DefaultServer() Server {
	return Server{
		Addr:        ":8081",
		Codec:       "json",
		RedisPrefix: "collabtext",
		LogLevel:    "info",
	}
}

// ApplyEnv overrides fields from COLLABTEXT_ADDR and REDIS_ADDR.
func (s *Server) ApplyEnv(lookup LookupFunc) {
	if v, ok := lookup("COLLABTEXT_ADDR"); ok && v != "" {
		s.Addr = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		s.RedisAddr = v
	}
}

func (s Server) Validate() error {
	var errs []error
	if s.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := protocol.Lookup(s.Codec); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ServerFlags holds relay flags until they are overlaid on a resolved
// configuration.
type ServerFlags struct {
	ConfigPath string
	values     Server
}

// AddFlags registers the relay flags on fs.
func (f *ServerFlags) AddFlags(fs *pflag.FlagSet) {
	d := DefaultServer()
	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML or JSONC config file")
	fs.StringVar(&f.values.Addr, "addr", d.Addr, "listen address")
	fs.StringVar(&f.values.Codec, "codec", d.Codec, "wire codec: json or cbor")
	fs.StringVar(&f.values.RedisAddr, "redis-addr", d.RedisAddr, "Redis address for multi-instance fan-out")
	fs.StringVar(&f.values.RedisPrefix, "redis-prefix", d.RedisPrefix, "namespace for Redis keys and channels")
	fs.BoolVar(&f.values.Advertise, "advertise", d.Advertise, "advertise the relay over mDNS")
	fs.StringVar(&f.values.Instance, "instance", d.Instance, "mDNS instance name (default: CollabText-<hostname>)")
	fs.StringVar(&f.values.LogLevel, "log-level", d.LogLevel, "debug, info, warn or error")
}

// Resolve builds the effective configuration from defaults, the config
// file, the environment and the flags set on fs.
func (f *ServerFlags) Resolve(fs *pflag.FlagSet, lookup LookupFunc) (Server, error) {
	cfg := DefaultServer()
	path := f.ConfigPath
	if path == "" {
		path, _ = lookup("COLLABTEXT_CONFIG")
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Server{}, err
		}
	}
	cfg.ApplyEnv(lookup)
	fs.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "addr":
			cfg.Addr = f.values.Addr
		case "codec":
			cfg.Codec = f.values.Codec
		case "redis-addr":
			cfg.RedisAddr = f.values.RedisAddr
		case "redis-prefix":
			cfg.RedisPrefix = f.values.RedisPrefix
		case "advertise":
			cfg.Advertise = f.values.Advertise
		case "instance":
			cfg.Instance = f.values.Instance
		case "log-level":
			cfg.LogLevel = f.values.LogLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return Server{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", name, err)
	}
	return level, nil
}
