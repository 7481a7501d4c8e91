package config

import (
	"log/slog"
	"net"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelConn  = "conn"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const DefaultCookieName = "yummy_magical_cookie"

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Listen      string `mapstructure:"listen"`
	Port        int    `mapstructure:"port"`
	Bind        string `mapstructure:"bind"`
}

type ReversePathConfig struct {
	Path string `mapstructure:"path"`
	URL  string `mapstructure:"url"`
}

type ReverseConfig struct {
	Only       bool                `mapstructure:"only"`
	Magic      bool                `mapstructure:"magic"`
	CookieName string              `mapstructure:"cookie_name"`
	Paths      []ReversePathConfig `mapstructure:"paths"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Reverse ReverseConfig `mapstructure:"reverse"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads the configuration. An empty path searches for config.yaml in
// ./config and the working directory; a missing file is not an error.
// Environment variables prefixed TINYPROXY_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.port", 8888)
	v.SetDefault("server.listen", "")
	v.SetDefault("server.bind", "")
	v.SetDefault("reverse.only", false)
	v.SetDefault("reverse.magic", false)
	v.SetDefault("reverse.cookie_name", DefaultCookieName)
	v.SetDefault("admin.address", "")
	v.SetDefault("logging.level", LogLevelInfo)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TINYPROXY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// Validate checks everything except the reverse proxy rules. Rules are
// checked as they are registered, where a bad one is dropped with a
// warning instead of stopping the proxy.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Port,
						validation.Required,
						validation.Min(1),
						validation.Max(65535),
					),
					validation.Field(&sc.Listen,
						is.IPv4,
					),
					validation.Field(&sc.Bind,
						is.Host,
					),
				)
			}),
		),
		validation.Field(&c.Reverse,
			validation.By(func(value interface{}) error {
				rc, ok := value.(ReverseConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ReverseConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.CookieName,
						validation.Required,
						validation.By(validateCookieName),
					),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Address,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelConn, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

// validateCookieName accepts RFC 6265 token characters only.
func validateCookieName(value interface{}) error {
	name, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune(`()<>@,;:\"/[]?={}`, r) {
			return validation.NewError("validation_invalid_cookie_name", "must be a valid cookie name")
		}
	}

	return nil
}
