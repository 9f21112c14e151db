package main

import (
	"fmt"
	"os"
	"time"

	"arena/internal/common/cache"
	"arena/internal/common/db"
	"arena/internal/common/mq"
	"arena/internal/common/storage"
	"arena/internal/sandbox"
	"arena/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultEventTopic      = "arena.contest.events"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	AdminToken   string        `yaml:"adminToken"`
}

// JudgeConfig holds judging throughput settings.
type JudgeConfig struct {
	Concurrency   int64         `yaml:"concurrency"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// KafkaAppConfig holds producer settings plus the event topic.
type KafkaAppConfig struct {
	mq.KafkaConfig `yaml:",inline"`
	EventTopic     string `yaml:"eventTopic"`
}

// AppConfig holds arena-server config.
type AppConfig struct {
	Server   ServerConfig         `yaml:"server"`
	Logger   logger.Config        `yaml:"logger"`
	Database db.MySQLConfig       `yaml:"database"`
	Redis    *cache.RedisConfig   `yaml:"redis"`
	MinIO    *storage.MinIOConfig `yaml:"minio"`
	Kafka    *KafkaAppConfig      `yaml:"kafka"`
	Docker   sandbox.DockerConfig `yaml:"docker"`
	Judge    JudgeConfig          `yaml:"judge"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := AppConfig{Docker: sandbox.DefaultDockerConfig()}
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Redis != nil {
		applyRedisDefaults(cfg.Redis)
	}
	if cfg.Kafka != nil && cfg.Kafka.EventTopic == "" {
		cfg.Kafka.EventTopic = defaultEventTopic
	}
	applyDockerDefaults(&cfg.Docker)
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
}

func applyDockerDefaults(cfg *sandbox.DockerConfig) {
	defaults := sandbox.DefaultDockerConfig()
	if cfg.ImagePython == "" {
		cfg.ImagePython = defaults.ImagePython
	}
	if cfg.ImageCPP == "" {
		cfg.ImageCPP = defaults.ImageCPP
	}
	if cfg.RunTemplate == "" {
		cfg.RunTemplate = defaults.RunTemplate
	}
	if cfg.Overhead == 0 {
		cfg.Overhead = defaults.Overhead
	}
}
