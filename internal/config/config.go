package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/recsync/internal/core/ecs"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid config")

// Source kinds.
const (
	SourceSnapshot  = "snapshot"
	SourceRedis     = "redis"
	SourceWebSocket = "websocket"
	SourceQUIC      = "quic"
)

// Relay transports.
const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

type Config struct {
	Log        LogConfig         `yaml:"log" toml:"log"`
	Sync       SyncConfig        `yaml:"sync" toml:"sync"`
	Source     SourceConfig      `yaml:"source" toml:"source"`
	Relay      RelayConfig       `yaml:"relay" toml:"relay"`
	Components []ComponentConfig `yaml:"components" toml:"components"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json or console
}

type SyncConfig struct {
	AckPeriod     time.Duration `yaml:"ack_period" toml:"ack_period"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	Cursor        string        `yaml:"cursor" toml:"cursor"`
	StatsInterval time.Duration `yaml:"stats_interval" toml:"stats_interval"`
}

type SourceConfig struct {
	Kind      string          `yaml:"kind" toml:"kind"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	QUIC      QUICConfig      `yaml:"quic" toml:"quic"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" toml:"snapshot"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Stream   string `yaml:"stream" toml:"stream"`
}

type WebSocketConfig struct {
	URL string `yaml:"url" toml:"url"`
}

type QUICConfig struct {
	Addr               string `yaml:"addr" toml:"addr"`
	ServerName         string `yaml:"server_name" toml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// RelayConfig configures "recsync relay", which re-serves the configured
// source to remote consumers.
type RelayConfig struct {
	Transport    string        `yaml:"transport" toml:"transport"`
	Listen       string        `yaml:"listen" toml:"listen"`
	Path         string        `yaml:"path" toml:"path"` // websocket only
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size" toml:"batch_size"`
	// CertFile and KeyFile hold the QUIC server certificate. A self signed
	// certificate is generated when both are empty.
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

type SnapshotConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ComponentConfig declares a component. Schema maps field names to type
// names such as "Number" or "OptionalEntityArray".
type ComponentConfig struct {
	ID      string            `yaml:"id" toml:"id"`
	Indexed bool              `yaml:"indexed" toml:"indexed"`
	Schema  map[string]string `yaml:"schema" toml:"schema"`
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: log.FormatJSON,
		},
		Sync: SyncConfig{
			AckPeriod:     16 * time.Millisecond,
			BatchSize:     512,
			StatsInterval: 10 * time.Second,
		},
		Source: SourceConfig{
			Kind: SourceSnapshot,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Stream: "recsync:events",
			},
			QUIC: QUICConfig{
				ServerName: "localhost",
			},
		},
		Relay: RelayConfig{
			Transport:    TransportWebSocket,
			Listen:       ":7070",
			Path:         "/",
			PollInterval: 16 * time.Millisecond,
			BatchSize:    512,
		},
	}
}

func invalid(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	if c.Log.Format != log.FormatJSON && c.Log.Format != log.FormatConsole {
		return invalid("log.format", "must be %q or %q", log.FormatJSON, log.FormatConsole)
	}
	if c.Sync.AckPeriod <= 0 {
		return invalid("sync.ack_period", "must be positive")
	}
	if c.Sync.BatchSize <= 0 {
		return invalid("sync.batch_size", "must be positive")
	}

	switch c.Source.Kind {
	case SourceSnapshot:
		if c.Source.Snapshot.Path == "" {
			return invalid("source.snapshot.path", "required")
		}
	case SourceRedis:
		if c.Source.Redis.Addr == "" || c.Source.Redis.Stream == "" {
			return invalid("source.redis", "addr and stream are required")
		}
	case SourceWebSocket:
		if !strings.HasPrefix(c.Source.WebSocket.URL, "ws://") && !strings.HasPrefix(c.Source.WebSocket.URL, "wss://") {
			return invalid("source.websocket.url", "must be a ws:// or wss:// url")
		}
	case SourceQUIC:
		if c.Source.QUIC.Addr == "" {
			return invalid("source.quic.addr", "required")
		}
	default:
		return invalid("source.kind", "unknown kind %q", c.Source.Kind)
	}

	switch c.Relay.Transport {
	case TransportWebSocket, TransportQUIC:
	default:
		return invalid("relay.transport", "unknown transport %q", c.Relay.Transport)
	}
	if c.Relay.PollInterval <= 0 {
		return invalid("relay.poll_interval", "must be positive")
	}
	if c.Relay.BatchSize <= 0 {
		return invalid("relay.batch_size", "must be positive")
	}
	if (c.Relay.CertFile == "") != (c.Relay.KeyFile == "") {
		return invalid("relay", "cert_file and key_file must be set together")
	}

	seen := make(map[string]struct{}, len(c.Components))
	for i, comp := range c.Components {
		key := fmt.Sprintf("components[%d]", i)
		if comp.ID == "" {
			return invalid(key+".id", "required")
		}
		if _, dup := seen[comp.ID]; dup {
			return invalid(key+".id", "duplicate id %q", comp.ID)
		}
		seen[comp.ID] = struct{}{}
		if len(comp.Schema) == 0 {
			return invalid(key+".schema", "at least one field is required")
		}
		if _, err := comp.ParseSchema(); err != nil {
			return invalid(key+".schema", "%v", err)
		}
	}
	return nil
}

// ParseSchema converts the declared type names into an ecs.Schema.
func (c ComponentConfig) ParseSchema() (ecs.Schema, error) {
	schema := make(ecs.Schema, len(c.Schema))
	for field, typeName := range c.Schema {
		ft, err := ecs.ParseFieldType(typeName)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		schema[field] = ft
	}
	return schema, nil
}
