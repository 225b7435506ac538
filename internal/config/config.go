package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where serve looks for a configuration file.
const DefaultPath = "fsmlink.yaml"

// Config is the runtime configuration. Command-line flags override it.
type Config struct {
	Listen      string            `yaml:"listen" json:"listen"`
	Admin       string            `yaml:"admin" json:"admin"` // empty disables the admin API
	Log         LogConfig         `yaml:"log" json:"log"`
	Definitions DefinitionsConfig `yaml:"definitions" json:"definitions"`
	Redis       RedisConfig       `yaml:"redis" json:"redis"`
	Engine      EngineConfig      `yaml:"engine" json:"engine"`
	Transport   TransportConfig   `yaml:"transport" json:"transport"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text or json
}

// DefinitionsConfig selects where JSON messages load machines from.
type DefinitionsConfig struct {
	Source string `yaml:"source" json:"source"` // file, redis or loam
	Dir    string `yaml:"dir" json:"dir"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	Prefix       string `yaml:"prefix" json:"prefix"`
	TraceChannel string `yaml:"trace_channel" json:"trace_channel"`
	Mirror       bool   `yaml:"mirror" json:"mirror"` // publish traces on TraceChannel
}

type EngineConfig struct {
	ScriptTimeout   time.Duration `yaml:"script_timeout" json:"script_timeout"`
	QueueSize       int           `yaml:"queue_size" json:"queue_size"`
	MaxEpsilonChain int           `yaml:"max_epsilon_chain" json:"max_epsilon_chain"`
}

type TransportConfig struct {
	OutboxSize     int `yaml:"outbox_size" json:"outbox_size"`
	MaxConnections int `yaml:"max_connections" json:"max_connections"` // 0 is unbounded
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "text"},
		Definitions: DefinitionsConfig{
			Source: "file",
			Dir:    ".",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Prefix:       "fsmlink:def:",
			TraceChannel: "fsmlink:trace",
		},
		Engine: EngineConfig{
			ScriptTimeout:   time.Second,
			QueueSize:       64,
			MaxEpsilonChain: 64,
		},
		Transport: TransportConfig{
			OutboxSize: 256,
		},
	}
}

// Load reads a YAML (or JSON) file over the defaults. A missing file at
// DefaultPath is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no component can honour.
func (c Config) Validate() error {
	switch c.Definitions.Source {
	case "file", "redis", "loam":
	default:
		return fmt.Errorf("unknown definitions source %q (want file, redis or loam)", c.Definitions.Source)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Transport.MaxConnections < 0 {
		return fmt.Errorf("max_connections cannot be negative")
	}
	return nil
}
