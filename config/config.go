// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the service configuration from a YAML file and
// ACTIVITYMATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch/notify"
	"github.com/someonegg/activitymatch/pgstore"
	"github.com/someonegg/activitymatch/runlock"
	"github.com/someonegg/activitymatch/scoring"
	"github.com/spf13/viper"
)

const EnvPrefix = "ACTIVITYMATCH"

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    notify.Config  `mapstructure:"kafka"`
	Matching MatchingConfig `mapstructure:"matching"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres pgstore.Config `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Lock    runlock.Config `mapstructure:",squash"`
}

type MatchingConfig struct {
	Scoring   scoring.Settings `mapstructure:",squash"`
	Overrides []Override       `mapstructure:"overrides"`
}

// Override pins the score of one criterion for one attendee at one occasion.
type Override struct {
	Criterion string  `mapstructure:"criterion"`
	Occasion  string  `mapstructure:"occasion"`
	Attendee  string  `mapstructure:"attendee"`
	Score     float64 `mapstructure:"score"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "activitymatch")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "activitymatch")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 1)
	v.SetDefault("database.postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("database.postgres.connect_attempts", 5)
	v.SetDefault("database.sqlite.path", "activitymatch.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", runlock.DefaultTTL)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "activitymatch.runs")
	v.SetDefault("kafka.timeout", 10*time.Second)

	v.SetDefault("matching.prefer_in_age_bracket", false)
	v.SetDefault("matching.prefer_organiser", false)
	v.SetDefault("matching.prefer_association", false)
	v.SetDefault("matching.prefer_admins", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads file, or config/config.yaml when file is empty. A missing
// default file is not an error, the defaults and environment still apply.
func LoadConfig(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka: brokers and topic are required")
	}
	if _, err := c.Matching.Build(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Build returns the configured scoring with the overrides applied.
func (m MatchingConfig) Build() (*scoring.Scoring, error) {
	sc := scoring.FromSettings(m.Scoring)
	names := sc.Names()

	records := make(map[string][]scoring.OverrideRecord)
	var order []string
	for i, o := range m.Overrides {
		if !slices.Contains(names, o.Criterion) {
			return nil, fmt.Errorf("matching.overrides[%d]: criterion %q is not enabled", i, o.Criterion)
		}
		if o.Occasion == "" || o.Attendee == "" {
			return nil, fmt.Errorf("matching.overrides[%d]: occasion and attendee are required", i)
		}
		if _, ok := records[o.Criterion]; !ok {
			order = append(order, o.Criterion)
		}
		records[o.Criterion] = append(records[o.Criterion], scoring.OverrideRecord{
			OverrideKey: scoring.OverrideKey{Occasion: o.Occasion, Attendee: o.Attendee},
			OverrideVal: scoring.OverrideVal{Score: o.Score},
		})
	}
	for _, name := range order {
		sc = sc.Override(name, records[name])
	}
	return sc, nil
}

// Logger builds the process logger.
func (c LogConfig) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}
