package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		RequestTimeout  time.Duration `mapstructure:"request_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Auth struct {
		APIKeys []string `mapstructure:"api_keys"`
	} `mapstructure:"auth"`

	MQTT struct {
		Enabled              bool          `mapstructure:"enabled"`
		Broker               string        `mapstructure:"broker"`
		Username             string        `mapstructure:"username"`
		Password             string        `mapstructure:"password"`
		ClientIDPrefix       string        `mapstructure:"client_id_prefix"`
		ReconnectPeriod      time.Duration `mapstructure:"reconnect_period"`
		ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
		KeepAlive            time.Duration `mapstructure:"keep_alive"`
		MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	} `mapstructure:"mqtt"`

	Storage struct {
		Driver     string `mapstructure:"driver"`
		ClickHouse struct {
			Addr     string `mapstructure:"addr"`
			Database string `mapstructure:"database"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
		} `mapstructure:"clickhouse"`
		Mongo struct {
			URI      string `mapstructure:"uri"`
			Database string `mapstructure:"database"`
		} `mapstructure:"mongo"`
	} `mapstructure:"storage"`

	Geo struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"geo"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	// Seed registers users and devices at startup
	Seed struct {
		Users []struct {
			ID       string `mapstructure:"id"`
			Username string `mapstructure:"username"`
			Email    string `mapstructure:"email"`
		} `mapstructure:"users"`
		Devices []struct {
			ID     string `mapstructure:"id"`
			UserID string `mapstructure:"user_id"`
			Name   string `mapstructure:"name"`
			Type   string `mapstructure:"type"`
		} `mapstructure:"devices"`
	} `mapstructure:"seed"`
}

const (
	DriverClickHouse = "clickhouse"
	DriverMongo      = "mongo"
	DriverMemory     = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id_prefix", "iot_server")
	v.SetDefault("mqtt.reconnect_period", 5*time.Second)
	v.SetDefault("mqtt.connect_timeout", 30*time.Second)
	v.SetDefault("mqtt.keep_alive", 60*time.Second)
	v.SetDefault("mqtt.max_reconnect_attempts", 10)

	v.SetDefault("storage.driver", DriverClickHouse)
	v.SetDefault("storage.clickhouse.addr", "localhost:9000")
	v.SetDefault("storage.clickhouse.database", "iot")
	v.SetDefault("storage.clickhouse.username", "default")
	v.SetDefault("storage.clickhouse.password", "")
	v.SetDefault("storage.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo.database", "iot")

	v.SetDefault("geo.base_url", "http://ip-api.com/json")
	v.SetDefault("geo.timeout", 3*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. A .env file in the working
// directory is loaded into the environment first if present.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.String("config", "", "Path to YAML config file")
	fs.String("http-addr", "", "HTTP listen address")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// comma separated when coming from the environment
	cfg.Auth.APIKeys = splitKeys(cfg.Auth.APIKeys)

	if addr, _ := fs.GetString("http-addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if level, _ := fs.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverClickHouse, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
