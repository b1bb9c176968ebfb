// Package config loads service settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Brownie44l1/agri-ml/internal/imaging"
)

// EnvPrefix namespaces environment overrides, e.g. AGRIML_SERVER_PORT.
const EnvPrefix = "AGRIML"

// Config holds application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Models     ModelsConfig     `mapstructure:"models"`
	Treatments TreatmentsConfig `mapstructure:"treatments"`
	Soil       SoilConfig       `mapstructure:"soil"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BodyLimit       string        `mapstructure:"body_limit"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For, trusting
	// loopback and private-network hops only.
	TrustProxy      bool          `mapstructure:"trust_proxy"`
	// MaxImagePixels caps the declared dimensions of uploaded images.
	MaxImagePixels  int           `mapstructure:"max_image_pixels"`
}

type AuthConfig struct {
	InternalKey string `mapstructure:"internal_key"`
}

// RateLimitConfig applies per client IP to each prediction route.
type RateLimitConfig struct {
	PerMinute float64 `mapstructure:"per_minute"`
	Burst     int     `mapstructure:"burst"`
}

type ModelPaths struct {
	Path     string `mapstructure:"path"`
	Metadata string `mapstructure:"metadata"`
}

type ModelsConfig struct {
	// RuntimeLibrary is the onnxruntime shared library; empty uses the default.
	RuntimeLibrary string     `mapstructure:"runtime_library"`
	Pest           ModelPaths `mapstructure:"pest"`
	Soil           ModelPaths `mapstructure:"soil"`
}

// TreatmentsConfig points at a YAML treatment table. Empty uses the built-in one.
type TreatmentsConfig struct {
	Path string `mapstructure:"path"`
}

type SoilConfig struct {
	SuitabilityThreshold float64 `mapstructure:"suitability_threshold"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.body_limit", "10M")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.max_image_pixels", imaging.DefaultMaxPixels)
	v.SetDefault("auth.internal_key", "")
	v.SetDefault("ratelimit.per_minute", 100)
	v.SetDefault("ratelimit.burst", 100)
	v.SetDefault("models.runtime_library", "")
	v.SetDefault("models.pest.path", "models/pest_model.onnx")
	v.SetDefault("models.pest.metadata", "models/pest_metadata.json")
	v.SetDefault("models.soil.path", "models/soil_model.onnx")
	v.SetDefault("models.soil.metadata", "models/soil_metadata.json")
	v.SetDefault("treatments.path", "")
	v.SetDefault("soil.suitability_threshold", 0.6)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. configPath may be empty, in which case
// config.yaml is looked up in the working directory and ./configs and is
// optional.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variable names used by the existing deployment.
	_ = v.BindEnv("auth.internal_key", EnvPrefix+"_AUTH_INTERNAL_KEY", "INTERNAL_API_KEY")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.allowed_origins", EnvPrefix+"_SERVER_ALLOWED_ORIGINS", "NEXTJS_BACKEND_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.InternalKey == "" {
		errs = append(errs, errors.New("auth.internal_key is required (set INTERNAL_API_KEY)"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.RateLimit.PerMinute <= 0 {
		errs = append(errs, errors.New("ratelimit.per_minute must be positive"))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("ratelimit.burst must be at least 1"))
	}
	if c.Server.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("server.max_image_pixels must be positive"))
	}
	if t := c.Soil.SuitabilityThreshold; t <= 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("soil.suitability_threshold %g must be in (0, 1)", t))
	}
	if c.Models.Pest.Path == "" || c.Models.Pest.Metadata == "" {
		errs = append(errs, errors.New("models.pest.path and models.pest.metadata are required"))
	}
	if c.Models.Soil.Path == "" || c.Models.Soil.Metadata == "" {
		errs = append(errs, errors.New("models.soil.path and models.soil.metadata are required"))
	}
	return errors.Join(errs...)
}

// Address is the listen address for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
