package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the screening service.
type Config struct {
	ListenAddr      string
	DatabaseDSN     string
	RedisAddr       string
	ModelPath       string
	ModelInputName  string
	ModelOutputName string
	JWTSecret       string
	JWTAudience     string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_dsn", "host=postgres user=postgres password=postgres dbname=anemiascan port=5432 sslmode=disable")
	v.SetDefault("redis_addr", "redis:6379")
	v.SetDefault("model_path", "models/conjunctiva_classifier.onnx")
	v.SetDefault("model_input_name", "input")
	v.SetDefault("model_output_name", "output")
	v.SetDefault("jwt_secret", "dev-secret")
	v.SetDefault("jwt_audience", "")
	v.SetDefault("max_upload_bytes", int64(5<<20))
	v.SetDefault("shutdown_timeout", "15s")

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		DatabaseDSN:     v.GetString("database_dsn"),
		RedisAddr:       v.GetString("redis_addr"),
		ModelPath:       v.GetString("model_path"),
		ModelInputName:  v.GetString("model_input_name"),
		ModelOutputName: v.GetString("model_output_name"),
		JWTSecret:       v.GetString("jwt_secret"),
		JWTAudience:     v.GetString("jwt_audience"),
		MaxUploadBytes:  v.GetInt64("max_upload_bytes"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	return cfg, nil
}
