package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Engine       EngineConfig       `mapstructure:"engine"`
	Limits       LimitsConfig       `mapstructure:"limits"`
	Runner       RunnerConfig       `mapstructure:"runner"`
	Notifier     NotifierConfig     `mapstructure:"notifier"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
}

type EngineConfig struct {
	HistoryKeep      int    `mapstructure:"history_keep"`
	HousekeepingCron string `mapstructure:"housekeeping_cron"`
	SummaryMaxRunes  int    `mapstructure:"summary_max_runes"`
}

type LimitsConfig struct {
	MaxDailyTasks  int `mapstructure:"max_daily_tasks"`
	MaxWeeklyTasks int `mapstructure:"max_weekly_tasks"`
	MaxTotalTasks  int `mapstructure:"max_total_tasks"`
}

type RunnerConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NotifierConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ConversationConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Database              string        `mapstructure:"database"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("engine.history_keep", 30)
	viper.SetDefault("engine.housekeeping_cron", "0 15 4 * * *")
	viper.SetDefault("engine.summary_max_runes", 500)

	viper.SetDefault("limits.max_daily_tasks", 5)
	viper.SetDefault("limits.max_weekly_tasks", 10)
	viper.SetDefault("limits.max_total_tasks", 10)

	viper.SetDefault("runner.timeout", "5m")
	viper.SetDefault("notifier.enabled", true)
	viper.SetDefault("notifier.timeout", "10s")
	viper.SetDefault("conversation.timeout", "15s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.connection_max_lifetime", "1h")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.max_header_bytes", 1048576)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
