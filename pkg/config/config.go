package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system
// This should be called once at application startup
func Init(configPath string) error {
	once.Do(func() {
		setDefaults()

		// Environment variable overrides, e.g. TRANSCRIBE_SERVER_BASE_URL
		viper.SetEnvPrefix("TRANSCRIBE")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		if configPath == "" {
			configPath = "./config/settings.yaml"
		}
		viper.SetConfigFile(filepath.Clean(configPath))

		if err := viper.ReadInConfig(); err != nil {
			// A missing config file is fine: defaults and env vars apply
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	baseURL := viper.GetString("server.base_url")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return fmt.Errorf("invalid server base URL: %s", baseURL)
	}

	if viper.GetDuration("polling.interval") <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if viper.GetDuration("polling.max_interval") < viper.GetDuration("polling.interval") {
		return fmt.Errorf("polling max_interval must not be below the base interval")
	}
	return nil
}

// setDefaults configures all default values
func setDefaults() {
	viper.SetDefault("server.base_url", "http://localhost:8000")
	viper.SetDefault("server.upload_timeout", 10*time.Minute)
	viper.SetDefault("server.status_timeout", 10*time.Second)
	viper.SetDefault("server.status_rate_limit", 5.0)
	viper.SetDefault("server.user_agent", "turkish-transcribe/1.0")

	viper.SetDefault("polling.interval", 2*time.Second)
	viper.SetDefault("polling.max_interval", 4*time.Second)

	viper.SetDefault("push.enabled", true)

	viper.SetDefault("job.model_size", "base")
	viper.SetDefault("job.language", "tr")
	viper.SetDefault("job.device", "auto")
	viper.SetDefault("job.apply_vad", true)
	viper.SetDefault("job.normalize_audio", false)
	viper.SetDefault("job.output_format", "txt")
	viper.SetDefault("job.temperature", 0.0)

	viper.SetDefault("storage.output_dir", ".")
	viper.SetDefault("storage.history_path", "./transcribe-history.db")
}
