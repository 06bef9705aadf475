// Package config handles colony configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (COLONY_*), including those loaded from a .env
//     file in the config directory
//  2. Config file (<config root>/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/colony-launcher/colony/internal/paths"
)

const (
	// DefaultHelperPort is the loopback port of the helper server.
	DefaultHelperPort = 20311
	// DefaultFrontendOriginPort is the loopback port the desktop front-end is
	// served from; it is the only origin allowed by the helper's CORS policy.
	DefaultFrontendOriginPort = 9283
	// DefaultHelperBodyLimit caps helper and API request bodies.
	DefaultHelperBodyLimit = 32 * 1024
	// DefaultAPIListen is the listen address of the server-variant API.
	DefaultAPIListen = "127.0.0.1:8080"
	// DefaultRenderer selects the terminal renderer for job output.
	DefaultRenderer = "automaton"
	// DefaultTerminalRows and DefaultTerminalCols size the bounded terminal.
	DefaultTerminalRows = 60
	DefaultTerminalCols = 120
	// DefaultDistribution names the Linux subsystem distribution on Windows.
	DefaultDistribution = "ColonyWSL"
	// DefaultJournalRetention is how long resolved requests stay in the journal.
	DefaultJournalRetention = 30 * 24 * time.Hour
)

// Config holds the colony configuration.
type Config struct {
	v   *viper.Viper
	dir string
}

// Load reads configuration from all sources.
func Load() *Config {
	dir, err := paths.ConfigRoot()
	if err != nil {
		dir = ""
	}

	return LoadFrom(dir)
}

// LoadFrom reads configuration with dir as the config directory. An empty dir
// disables the config file and the .env file.
func LoadFrom(dir string) *Config {
	v := viper.New()

	v.SetDefault("persistence.dir", "")
	v.SetDefault("helper.port", DefaultHelperPort)
	v.SetDefault("helper.frontend_origin_port", DefaultFrontendOriginPort)
	v.SetDefault("helper.body_limit", DefaultHelperBodyLimit)
	v.SetDefault("api.listen", DefaultAPIListen)
	v.SetDefault("terminal.renderer", DefaultRenderer)
	v.SetDefault("terminal.rows", DefaultTerminalRows)
	v.SetDefault("terminal.cols", DefaultTerminalCols)
	v.SetDefault("subsystem.distribution", DefaultDistribution)
	v.SetDefault("subsystem.wrapper", "")
	v.SetDefault("jobs.pty", false)
	v.SetDefault("jobs.transcripts", false)
	v.SetDefault("journal.retention", DefaultJournalRetention.String())
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	if dir != "" {
		// Existing environment wins over .env entries.
		if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: error reading .env file: %v\n", err)
		}

		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("COLONY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
			}
		}
	}

	return &Config{v: v, dir: dir}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	if c.dir == "" {
		return fmt.Errorf("no config directory")
	}

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}

	return c.v.WriteConfigAs(filepath.Join(c.dir, "config.yaml"))
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// Dir returns the config directory, or "" when none is in use.
func (c *Config) Dir() string {
	return c.dir
}

// PersistenceDir returns the configured persistence directory override.
func (c *Config) PersistenceDir() string {
	return c.GetString("persistence.dir")
}

// HelperPort returns the helper server port.
func (c *Config) HelperPort() int {
	return c.GetInt("helper.port")
}

// FrontendOriginPort returns the port of the trusted front-end origin.
func (c *Config) FrontendOriginPort() int {
	return c.GetInt("helper.frontend_origin_port")
}

// BodyLimit returns the request body cap in bytes.
func (c *Config) BodyLimit() int64 {
	limit := c.v.GetInt64("helper.body_limit")
	if limit <= 0 {
		return DefaultHelperBodyLimit
	}

	return limit
}

// APIListen returns the server-variant API listen address.
func (c *Config) APIListen() string {
	return c.GetString("api.listen")
}

// Renderer returns the terminal renderer name.
func (c *Config) Renderer() string {
	return c.GetString("terminal.renderer")
}

// TerminalSize returns the bounded terminal geometry.
func (c *Config) TerminalSize() (rows, cols int) {
	return c.GetInt("terminal.rows"), c.GetInt("terminal.cols")
}

// Distribution returns the Linux subsystem distribution name.
func (c *Config) Distribution() string {
	return c.GetString("subsystem.distribution")
}

// SubsystemWrapper returns the argv prefix that runs a command inside the
// Linux subsystem. On Windows it defaults to `wsl -d <distribution> -e`;
// elsewhere commands run directly unless a wrapper is configured.
func (c *Config) SubsystemWrapper() []string {
	if raw := strings.TrimSpace(c.GetString("subsystem.wrapper")); raw != "" {
		return strings.Fields(raw)
	}

	return DefaultWrapper(runtime.GOOS, c.Distribution())
}

// DefaultWrapper returns the subsystem wrapper for goos.
func DefaultWrapper(goos, distribution string) []string {
	if goos != "windows" {
		return nil
	}

	return []string{"wsl", "-d", distribution, "-e"}
}

// JobsPTY reports whether jobs run on a pseudo-terminal.
func (c *Config) JobsPTY() bool {
	return c.GetBool("jobs.pty")
}

// JobsTranscripts reports whether raw job output is recorded.
func (c *Config) JobsTranscripts() bool {
	return c.GetBool("jobs.transcripts")
}

// JournalRetention returns how long resolved journal rows are kept.
func (c *Config) JournalRetention() time.Duration {
	d, err := time.ParseDuration(c.GetString("journal.retention"))
	if err != nil || d <= 0 {
		return DefaultJournalRetention
	}

	return d
}

// TelemetryEndpoint returns the OTLP/HTTP collector address, if any.
func (c *Config) TelemetryEndpoint() string {
	return c.GetString("telemetry.endpoint")
}

// TelemetryInsecure reports whether spans go to the collector over plain HTTP.
func (c *Config) TelemetryInsecure() bool {
	return c.GetBool("telemetry.insecure")
}

// TelemetrySampleRatio returns the share of traces to sample.
func (c *Config) TelemetrySampleRatio() float64 {
	return c.v.GetFloat64("telemetry.sample_ratio")
}
