package common

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/parsing"
)

// EnvPrefix namespaces every environment override, e.g. GRADEPARSE_STORE_DSN.
const EnvPrefix = "GRADEPARSE"

// Config holds all application configuration
type Config struct {
	Parsing parsing.Config `mapstructure:"parsing"`
	Store   StoreConfig    `mapstructure:"store"`
	Worker  WorkerConfig   `mapstructure:"worker"`
	Log     LogConfig      `mapstructure:"log"`
	Cache   CacheConfig    `mapstructure:"cache"`
}

// StoreConfig holds database-related configuration
type StoreConfig struct {
	Driver           string        `mapstructure:"driver"`
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// WorkerConfig sizes the batch queue.
type WorkerConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheConfig struct {
	// Engines is the number of rubric engines kept warm.
	Engines int `mapstructure:"engines"`
}

// NewViper returns a viper instance with defaults and env overrides set up.
// file is optional; when set it is read as the config file.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	p := parsing.DefaultConfig()
	v.SetDefault("parsing.max_attempts", p.MaxAttempts)
	v.SetDefault("parsing.enable_recovery", p.EnableRecovery)
	v.SetDefault("parsing.accept_partial", p.AcceptPartial)
	v.SetDefault("parsing.field_mapping", p.FieldMapping)
	v.SetDefault("parsing.type_coercion", p.TypeCoercion)
	v.SetDefault("parsing.budget", p.Budget)
	v.SetDefault("parsing.confidence_threshold", p.ConfidenceThreshold)
	v.SetDefault("parsing.max_edit_distance", p.MaxEditDistance)
	v.SetDefault("parsing.max_input_bytes", p.MaxInputBytes)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:gradeparse.db?_pragma=busy_timeout(5000)")
	v.SetDefault("store.max_conns", 20)
	v.SetDefault("store.min_conns", 5)
	v.SetDefault("store.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("store.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("store.dial_timeout", 3*time.Second)
	v.SetDefault("store.statement_timeout", time.Duration(0))

	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.job_timeout", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cache.engines", 16)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(CodeInvalidConfig, "read config file "+file, err)
		}
	}
	return v, nil
}

// Load reads defaults, the optional file and the environment.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper builds a validated Config. Keys are read one by one so that env
// overrides apply to keys without a file entry.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Parsing: parsing.Config{
			MaxAttempts:         v.GetInt("parsing.max_attempts"),
			EnableRecovery:      v.GetBool("parsing.enable_recovery"),
			AcceptPartial:       v.GetBool("parsing.accept_partial"),
			FieldMapping:        v.GetBool("parsing.field_mapping"),
			TypeCoercion:        v.GetBool("parsing.type_coercion"),
			Budget:              v.GetDuration("parsing.budget"),
			ConfidenceThreshold: v.GetFloat64("parsing.confidence_threshold"),
			MaxEditDistance:     v.GetInt("parsing.max_edit_distance"),
			MaxInputBytes:       v.GetInt("parsing.max_input_bytes"),
		},
		Store: StoreConfig{
			Driver:           strings.ToLower(v.GetString("store.driver")),
			DSN:              v.GetString("store.dsn"),
			MaxConns:         v.GetInt32("store.max_conns"),
			MinConns:         v.GetInt32("store.min_conns"),
			MaxConnLifetime:  v.GetDuration("store.max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("store.max_conn_idle_time"),
			DialTimeout:      v.GetDuration("store.dial_timeout"),
			StatementTimeout: v.GetDuration("store.statement_timeout"),
		},
		Worker: WorkerConfig{
			Workers:    v.GetInt("worker.workers"),
			QueueSize:  v.GetInt("worker.queue_size"),
			JobTimeout: v.GetDuration("worker.job_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Cache: CacheConfig{
			Engines: v.GetInt("cache.engines"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if err := c.Parsing.Validate(); err != nil {
		return NewAppError(CodeInvalidConfig, "parsing", err)
	}
	val := NewValidator().
		Field("store.driver", c.Store.Driver, OneOf("sqlite", "postgres")).
		Field("store.dsn", c.Store.DSN, Required).
		Field("worker.workers", c.Worker.Workers, Positive).
		Field("worker.queue_size", c.Worker.QueueSize, Positive).
		Field("worker.job_timeout", c.Worker.JobTimeout, Positive).
		Field("log.format", strings.ToLower(c.Log.Format), OneOf("json", "text")).
		Field("cache.engines", c.Cache.Engines, Positive)
	return val.AppError(CodeInvalidConfig)
}
