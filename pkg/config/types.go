package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Polling PollingConfig `mapstructure:"polling"`
	Push    PushConfig    `mapstructure:"push"`
	Job     JobConfig     `mapstructure:"job"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig contains transcription backend settings
type ServerConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	UploadTimeout   time.Duration `mapstructure:"upload_timeout"`
	StatusTimeout   time.Duration `mapstructure:"status_timeout"`
	StatusRateLimit float64       `mapstructure:"status_rate_limit"` // fetches per second
	UserAgent       string        `mapstructure:"user_agent"`
}

// PollingConfig contains the status polling loop settings
type PollingConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"` // backoff ceiling
}

// PushConfig contains push-channel settings
type PushConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// JobConfig contains default transcription options
type JobConfig struct {
	ModelSize      string  `mapstructure:"model_size"`
	Language       string  `mapstructure:"language"`
	Device         string  `mapstructure:"device"`
	ApplyVAD       bool    `mapstructure:"apply_vad"`
	NormalizeAudio bool    `mapstructure:"normalize_audio"`
	OutputFormat   string  `mapstructure:"output_format"`
	Temperature    float64 `mapstructure:"temperature"`
}

// StorageConfig contains local file settings
type StorageConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	HistoryPath string `mapstructure:"history_path"`
}
