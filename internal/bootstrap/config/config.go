package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/errs"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Messaging    MessagingConfig    `mapstructure:"messaging"`
	Lifecycle    LifecycleConfig    `mapstructure:"lifecycle"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Applications ApplicationsConfig `mapstructure:"applications"`
	Subjects     SubjectsConfig     `mapstructure:"subjects"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	// BaseURL prefixes the report URLs sent to applications.
	BaseURL string `mapstructure:"base_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CacheConfig struct {
	Driver     string        `mapstructure:"driver"`
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

type MessagingConfig struct {
	NatsURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LifecycleConfig struct {
	DefaultUrgency        float64 `mapstructure:"default_urgency"`
	HighPriorityName      string  `mapstructure:"high_priority_name"`
	HighPriorityUrgency   float64 `mapstructure:"high_priority_urgency"`
	InitialLocationWeight float64 `mapstructure:"initial_location_weight"`
}

type DedupConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxDistanceMeters float64       `mapstructure:"max_distance_meters"`
	Window            time.Duration `mapstructure:"window"`
}

type ApplicationsConfig struct {
	RegistryFile string        `mapstructure:"registry_file"`
	TokenPath    string        `mapstructure:"token_path"`
	NotifyPath   string        `mapstructure:"notify_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type SubjectsConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type JobsConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	LeaseTimeout    time.Duration `mapstructure:"lease_timeout"`
}

type StorageConfig struct {
	MediaRoot string `mapstructure:"media_root"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errs.Wrap(err, "load .env")
		}
	} else {
		logging.Debug(logCtx, "loaded .env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("cache_driver", cfg.Cache.Driver),
	)

	return cfg, nil
}

// Validate rejects settings the rest of the process cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(c.App.BaseURL) == "" {
		return errors.New("app.base_url is required")
	}
	switch strings.ToLower(c.Cache.Driver) {
	case "database", "":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			return errors.New("cache.redis_url is required for the redis cache")
		}
	default:
		return errors.New("cache.driver must be database or redis")
	}
	for name, value := range map[string]float64{
		"lifecycle.default_urgency":         c.Lifecycle.DefaultUrgency,
		"lifecycle.high_priority_urgency":   c.Lifecycle.HighPriorityUrgency,
		"lifecycle.initial_location_weight": c.Lifecycle.InitialLocationWeight,
	} {
		if value < 0 || value > 1 {
			return errors.New(name + " must be between 0 and 1")
		}
	}
	if c.Jobs.MaxAttempts < 1 {
		return errors.New("jobs.max_attempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "morcore")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.base_url", "http://localhost:8000")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".morcore/state/morcore.sqlite")

	v.SetDefault("cache.driver", "database")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "10m")

	v.SetDefault("messaging.nats_url", "")
	v.SetDefault("messaging.subject_prefix", "mor")

	v.SetDefault("lifecycle.default_urgency", 0.2)
	v.SetDefault("lifecycle.high_priority_name", "high")
	v.SetDefault("lifecycle.high_priority_urgency", 0.5)
	v.SetDefault("lifecycle.initial_location_weight", 0.25)

	v.SetDefault("dedup.enabled", true)
	v.SetDefault("dedup.max_distance_meters", 25.0)
	v.SetDefault("dedup.window", "72h")

	v.SetDefault("applications.registry_file", "configs/applications.toml")
	v.SetDefault("applications.token_path", "/api-token-auth/")
	v.SetDefault("applications.notify_path", "/api/v1/melding/notificatie/")
	v.SetDefault("applications.timeout", "20s")
	v.SetDefault("applications.token_ttl", "1h")

	v.SetDefault("subjects.base_url", "")
	v.SetDefault("subjects.cache_ttl", "1h")
	v.SetDefault("subjects.timeout", "10s")

	v.SetDefault("jobs.poll_interval", "5s")
	v.SetDefault("jobs.batch_size", 20)
	v.SetDefault("jobs.max_attempts", 7)
	v.SetDefault("jobs.initial_interval", "2s")
	v.SetDefault("jobs.max_interval", "30m")
	v.SetDefault("jobs.lease_timeout", "15m")

	v.SetDefault("storage.media_root", ".morcore/media")

	v.SetDefault("metrics.listen_addr", "")
}
