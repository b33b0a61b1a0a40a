package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestAgentDefaults(t *testing.T) {
	var flags AgentFlags
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := flags.Resolve(fs, env(nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg != DefaultAgent() {
		t.Fatalf("Resolve() = %+v, want defaults", cfg)
	}
	if time.Duration(cfg.QuietInterval) != 100*time.Millisecond {
		t.Fatalf("QuietInterval = %s, want 100ms", cfg.QuietInterval)
	}
}

func TestAgentPrecedence(t *testing.T) {
	path := writeFile(t, "agent.yaml", `
url: ws://file:1
room: from-file
codec: cbor
quiet_interval: 250ms
`)
	var flags AgentFlags
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--room", "from-flag"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := flags.Resolve(fs, env(map[string]string{
		"COLLABTEXT_URL":  "ws://env:2",
		"COLLABTEXT_ROOM": "from-env",
	}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.URL != "ws://env:2" {
		t.Errorf("URL = %q, want env value", cfg.URL)
	}
	if cfg.Room != "from-flag" {
		t.Errorf("Room = %q, want flag value", cfg.Room)
	}
	if cfg.Codec != "cbor" {
		t.Errorf("Codec = %q, want file value", cfg.Codec)
	}
	if time.Duration(cfg.QuietInterval) != 250*time.Millisecond {
		t.Errorf("QuietInterval = %s, want 250ms", cfg.QuietInterval)
	}
}

func TestAgentQuietIntervalFlag(t *testing.T) {
	var flags AgentFlags
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse([]string{"--quiet-interval", "40ms", "--discover"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := flags.Resolve(fs, env(nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if time.Duration(cfg.QuietInterval) != 40*time.Millisecond || !cfg.Discover {
		t.Fatalf("Resolve() = %+v", cfg)
	}
}

func TestAgentRejectsZeroDiscoverTimeout(t *testing.T) {
	var flags AgentFlags
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse([]string{"--discover", "--discover-timeout=0"}); err != nil {
		t.Fatal(err)
	}
	_, err := flags.Resolve(fs, env(nil))
	if err == nil || !strings.Contains(err.Error(), "discover_timeout") {
		t.Fatalf("Resolve error = %v, want it to mention discover_timeout", err)
	}
}

func TestServerJSONCFile(t *testing.T) {
	path := writeFile(t, "relay.jsonc", `{
	// two relays share rooms through redis
	"addr": ":9000",
	"redis_addr": "redis:6379",
	"advertise": true, /* announce on the LAN */
}`)
	var flags ServerFlags
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := flags.Resolve(fs, env(map[string]string{"COLLABTEXT_CONFIG": path}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.RedisAddr != "redis:6379" || !cfg.Advertise {
		t.Fatalf("Resolve() = %+v", cfg)
	}
	if cfg.Codec != "json" {
		t.Fatalf("Codec = %q, want default json", cfg.Codec)
	}
}

func TestServerEnvAndFlags(t *testing.T) {
	var flags ServerFlags
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse([]string{"--addr", ":7000"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := flags.Resolve(fs, env(map[string]string{
		"COLLABTEXT_ADDR": ":6000",
		"REDIS_ADDR":      "localhost:6379",
	}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want flag value", cfg.Addr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want env value", cfg.RedisAddr)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown codec", "a.yaml", "codec: xml\n", "unknown codec"},
		{"empty room", "a.yaml", "room: \"\"\n", "room is required"},
		{"bad duration", "a.yaml", "quiet_interval: soon\n", "soon"},
		{"unknown key", "a.yaml", "colour: blue\n", "colour"},
		{"unknown json key", "a.jsonc", `{"colour": "blue"}`, "colour"},
		{"bad level", "a.yaml", "log_level: loud\n", "loud"},
		{"zero discover timeout", "a.yaml", "discover_timeout: 0s\n", "discover_timeout must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			var flags AgentFlags
			fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
			flags.AddFlags(fs)
			if err := fs.Parse([]string{"--config", path}); err != nil {
				t.Fatal(err)
			}
			_, err := flags.Resolve(fs, env(nil))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Resolve error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	var flags ServerFlags
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.AddFlags(fs)
	if err := fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}); err != nil {
		t.Fatal(err)
	}
	if _, err := flags.Resolve(fs, env(nil)); err == nil {
		t.Fatal("Resolve succeeded with a missing config file")
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q): %v", name, err)
		}
	}
}
