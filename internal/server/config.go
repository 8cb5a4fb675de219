package server

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

func LoadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath("./config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config config.AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Load environment-specific configurations
	if envSettings := v.GetStringMap(fmt.Sprintf("database.%s", env)); len(envSettings) > 0 {
		if err := v.UnmarshalKey(fmt.Sprintf("database.%s", env), &config.Database); err != nil {
			return nil, fmt.Errorf("error unmarshaling env config: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")

	v.SetDefault("build.root_dir", "/var/lib/makevia/builds")
	v.SetDefault("build.workers", 4)
	v.SetDefault("build.queue_size", 64)
	v.SetDefault("build.artifact_expiration", 7*24*time.Hour)

	v.SetDefault("cache.freshness_window", 30*24*time.Hour)

	v.SetDefault("gc.interval", time.Hour)
	v.SetDefault("gc.retention_window", 30*24*time.Hour)
	v.SetDefault("gc.keep_per_app", 5)

	v.SetDefault("docker.memory_limit_mb", 4096)
	v.SetDefault("docker.cpu_limit", 2.0)
	v.SetDefault("docker.build_timeout", 15*time.Minute)

	v.SetDefault("kube.namespace", "makevia-builds")
	v.SetDefault("kube.memory_request_mb", 4096)
	v.SetDefault("kube.memory_limit_mb", 8192)
	v.SetDefault("kube.cpu_request", 2.0)
	v.SetDefault("kube.cpu_limit", 4.0)
	v.SetDefault("kube.build_timeout", 25*time.Minute)
	v.SetDefault("kube.poll_interval", 10*time.Second)

	v.SetDefault("store.backend", "local")
	v.SetDefault("notify.subject", "builds.events")
}
