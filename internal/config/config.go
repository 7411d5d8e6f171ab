package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// Port is the port number to listen on. The default is 8000.
	Port int `validate:"required,min=1,max=65535"`
	// Hostname is the address to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	Auth     struct {
		// Secret is the key used to sign JWT tokens, base64 encoded in
		// the config. The default is a random 32 byte key, which means
		// tokens do not survive a restart; set it explicitly anywhere
		// that matters.
		Secret Base64Encoded `validate:"required"`
		// TokenTTL is how long issued tokens stay valid.
		TokenTTL time.Duration `mapstructure:"token_ttl" validate:"required"`
	}
	SQLite struct {
		// File is the path to the sqlite database file.
		File string `validate:"required"`
		// Migrations is the directory holding the goose migration files.
		Migrations string `validate:"required"`
	}
	// AllowedOrigins is the CORS allowlist. The default is ["*"].
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration from config.yaml, the environment, and an
// optional .env file. Environment keys use underscores for nesting, e.g.
// AUTH_SECRET.
func Load() (*Config, error) {
	// .env is a dev convenience; a missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8000)
	v.SetDefault("hostname", "0.0.0.0")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("sqlite.file", "./pairlink.db")
	v.SetDefault("sqlite.migrations", "./migrations")
	v.SetDefault("allowed_origins", []string{"*"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)),
	); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}
