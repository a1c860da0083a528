package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Detection DetectionConfig `mapstructure:"detection"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PlannerConfig holds command generation settings
type PlannerConfig struct {
	Tool          string `mapstructure:"tool"`
	MaxSourceSize string `mapstructure:"max_source_size"`
}

// DetectionConfig selects and tunes the face detector
type DetectionConfig struct {
	Backend     string        `mapstructure:"backend"`
	URL         string        `mapstructure:"url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SendFormat  string        `mapstructure:"send_format"`
	SendSize    int           `mapstructure:"send_size"`
	SendQuality int           `mapstructure:"send_quality"`
}

// CacheConfig holds the redis detection cache settings
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig holds the plan worker settings
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	ResultTopic string   `mapstructure:"result_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Planner: PlannerConfig{
			Tool:          "magick",
			MaxSourceSize: "20MB",
		},
		Detection: DetectionConfig{
			Backend:     "none",
			Model:       "openbmb/minicpm-v4.5",
			Timeout:     2 * time.Minute,
			SendFormat:  "jpeg",
			SendSize:    1536,
			SendQuality: 85,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			Topic:       "plan-tasks",
			ResultTopic: "plan-results",
			GroupID:     "magickplan",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, or from ./config/config.yaml when path
// is empty, and applies MAGICKPLAN_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MAGICKPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("planner.tool", d.Planner.Tool)
	v.SetDefault("planner.max_source_size", d.Planner.MaxSourceSize)

	v.SetDefault("detection.backend", d.Detection.Backend)
	v.SetDefault("detection.url", d.Detection.URL)
	v.SetDefault("detection.model", d.Detection.Model)
	v.SetDefault("detection.timeout", d.Detection.Timeout)
	v.SetDefault("detection.send_format", d.Detection.SendFormat)
	v.SetDefault("detection.send_size", d.Detection.SendSize)
	v.SetDefault("detection.send_quality", d.Detection.SendQuality)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.addr", d.Cache.Addr)
	v.SetDefault("cache.password", d.Cache.Password)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.result_topic", d.Kafka.ResultTopic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// MaxSourceBytes parses Planner.MaxSourceSize, e.g. "20MB"
func (c *Config) MaxSourceBytes() (int64, error) {
	n, err := bytefmt.ToBytes(c.Planner.MaxSourceSize)
	if err != nil {
		return 0, fmt.Errorf("planner.max_source_size: %w", err)
	}
	return int64(n), nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port cannot be empty")
	}

	if c.Planner.Tool == "" {
		return fmt.Errorf("planner.tool cannot be empty")
	}

	if _, err := c.MaxSourceBytes(); err != nil {
		return err
	}

	switch c.Detection.Backend {
	case "none":
	case "ollama", "llamacpp":
		if c.Detection.Model == "" {
			return fmt.Errorf("detection.model is required for backend %q", c.Detection.Backend)
		}
	default:
		return fmt.Errorf("detection.backend must be one of none, ollama, llamacpp")
	}

	if c.Detection.SendQuality < 1 || c.Detection.SendQuality > 100 {
		return fmt.Errorf("detection.send_quality must be between 1 and 100")
	}

	if c.Detection.SendSize < 0 {
		return fmt.Errorf("detection.send_size must not be negative")
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when the cache is enabled")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty")
		}
		if c.Kafka.Topic == "" || c.Kafka.ResultTopic == "" {
			return fmt.Errorf("kafka.topic and kafka.result_topic are required")
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// NewLogger builds a logrus logger from the log settings
func (c LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if c.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(c.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "magickplan", "config.yaml")
}
