package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	strutil "mantrip/pkg/platform/strings"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr            string        `toml:"addr"`
	ShutdownTimeout time.Duration `toml:"-"`
	Log             LogConfig     `toml:"log"`
	Store           StoreConfig   `toml:"store"`
	Redis           RedisConfig   `toml:"redis"`
	Kafka           KafkaConfig   `toml:"kafka"`
	Tracker         TrackerConfig `toml:"tracker"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StoreConfig selects where attendance records live.
type StoreConfig struct {
	Backend     string `toml:"backend"`
	DatabaseURL string `toml:"database_url"`
}

// RedisConfig configures the go-redis pool.
type RedisConfig struct {
	URL          string        `toml:"url"`
	PoolSize     int           `toml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns"`
	DialTimeout  time.Duration `toml:"-"`
	ReadTimeout  time.Duration `toml:"-"`
	WriteTimeout time.Duration `toml:"-"`
}

// KafkaConfig enables change events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string `toml:"brokers"`
	Topic             string   `toml:"topic"`
	Partitions        int32    `toml:"partitions"`
	ReplicationFactor int16    `toml:"replication_factor"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// TrackerConfig configures the grid UI and its reconciliation engine. An empty
// StoreURL makes the tracker call the in-process attendance service.
type TrackerConfig struct {
	StoreURL         string        `toml:"store_url"`
	ClientTimeout    time.Duration `toml:"-"`
	Roster           []string      `toml:"roster"`
	PropagateDeletes bool          `toml:"propagate_deletes"`
	NotificationSize int           `toml:"notification_size"`
}

// fileDurations holds duration keys, which TOML carries as strings like "5s".
type fileDurations struct {
	ShutdownTimeout string `toml:"shutdown_timeout"`
	Redis           struct {
		DialTimeout  string `toml:"dial_timeout"`
		ReadTimeout  string `toml:"read_timeout"`
		WriteTimeout string `toml:"write_timeout"`
	} `toml:"redis"`
	Tracker struct {
		ClientTimeout string `toml:"client_timeout"`
	} `toml:"tracker"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Server {
	return Server{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		Log:             LogConfig{Level: "info", Format: "json"},
		Store:           StoreConfig{Backend: BackendMemory},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:             "mantrip.attendance",
			Partitions:        1,
			ReplicationFactor: 1,
		},
		Tracker: TrackerConfig{
			ClientTimeout:    10 * time.Second,
			NotificationSize: 20,
		},
	}
}

// FromEnv builds a Server config: defaults, then the TOML file named by
// MANTRIP_CONFIG if set, then environment overrides.
func FromEnv() (Server, error) {
	return Load(os.Getenv("MANTRIP_CONFIG"), os.Getenv)
}

// Load is FromEnv with an explicit file path and variable lookup.
func Load(path string, getenv func(string) string) (Server, error) {
	cfg := Defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Server{}, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Server) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var d fileDurations
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	for _, f := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"shutdown_timeout", d.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"redis.dial_timeout", d.Redis.DialTimeout, &cfg.Redis.DialTimeout},
		{"redis.read_timeout", d.Redis.ReadTimeout, &cfg.Redis.ReadTimeout},
		{"redis.write_timeout", d.Redis.WriteTimeout, &cfg.Redis.WriteTimeout},
		{"tracker.client_timeout", d.Tracker.ClientTimeout, &cfg.Tracker.ClientTimeout},
	} {
		if !meta.IsDefined(strings.Split(f.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(f.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return nil
}

func applyEnv(cfg *Server, getenv func(string) string) error {
	setString(&cfg.Addr, getenv("MANTRIP_ADDR"))
	setString(&cfg.Log.Level, getenv("LOG_LEVEL"))
	setString(&cfg.Log.Format, getenv("LOG_FORMAT"))
	setString(&cfg.Store.Backend, getenv("STORE_BACKEND"))
	setString(&cfg.Store.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.Redis.URL, getenv("REDIS_URL"))
	setString(&cfg.Kafka.Topic, getenv("KAFKA_TOPIC"))
	setString(&cfg.Tracker.StoreURL, getenv("TRACKER_STORE_URL"))
	setList(&cfg.Kafka.Brokers, getenv("KAFKA_BROKERS"))
	setList(&cfg.Tracker.Roster, getenv("TRACKER_ROSTER"))

	if v := getenv("TRACKER_PROPAGATE_DELETES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse TRACKER_PROPAGATE_DELETES: %w", err)
		}
		cfg.Tracker.PropagateDeletes = b
	}
	if v := getenv("REDIS_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse REDIS_POOL_SIZE: %w", err)
		}
		cfg.Redis.PoolSize = n
	}
	for name, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT":       &cfg.ShutdownTimeout,
		"REDIS_DIAL_TIMEOUT":     &cfg.Redis.DialTimeout,
		"REDIS_READ_TIMEOUT":     &cfg.Redis.ReadTimeout,
		"REDIS_WRITE_TIMEOUT":    &cfg.Redis.WriteTimeout,
		"TRACKER_CLIENT_TIMEOUT": &cfg.Tracker.ClientTimeout,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

// Validate rejects combinations the server cannot start with.
func (s Server) Validate() error {
	switch s.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if s.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Store.Backend)
	}
	if s.Tracker.ClientTimeout <= 0 {
		return fmt.Errorf("tracker client timeout must be positive")
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v string) {
	if list := strutil.SplitList(v); list != nil {
		*dst = list
	}
}
