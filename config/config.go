package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName     string `mapstructure:"app_name"`
	AppEnv      string `mapstructure:"app_env"`
	AppHost     string `mapstructure:"app_host"`
	AppPort     int    `mapstructure:"app_port"`
	AppLogLevel string `mapstructure:"app_log_level"`
	AppDebug    bool   `mapstructure:"app_debug"`

	GradioSpace      string `mapstructure:"gradio_space"`
	GradioRoute      string `mapstructure:"gradio_route"`
	HFAPIBase        string `mapstructure:"hf_api_base"`
	HFToken          string `mapstructure:"hf_token"`
	PredictTimeoutMs int    `mapstructure:"predict_timeout_ms"`

	StaleResultPolicy string `mapstructure:"stale_result_policy"`
	MaxUploadBytes    int64  `mapstructure:"max_upload_bytes"`
	PreviewMaxDim     int    `mapstructure:"preview_max_dim"`

	ResultCacheSizeBytes int `mapstructure:"result_cache_size_bytes"`
	ResultCacheTTLSec    int `mapstructure:"result_cache_ttl_sec"`

	SessionTTLSec    int   `mapstructure:"session_ttl_sec"`
	SessionCacheSize int64 `mapstructure:"session_cache_size"`

	TelegrafHost       string  `mapstructure:"telegraf_host"`
	TelegrafPort       string  `mapstructure:"telegraf_port"`
	MetricSamplingRate float64 `mapstructure:"metric_sampling_rate"`
}

var defaults = map[string]any{
	"app_name":      "ovaquick",
	"app_env":       "local",
	"app_host":      "127.0.0.1",
	"app_port":      8080,
	"app_log_level": "INFO",
	"app_debug":     false,

	"gradio_space":       "ashad0167/ovarian-condition-detector",
	"gradio_route":       "/predict",
	"hf_api_base":        "https://huggingface.co",
	"hf_token":           "",
	"predict_timeout_ms": 0,

	"stale_result_policy": "keep",
	"max_upload_bytes":    10 << 20,
	"preview_max_dim":     300,

	"result_cache_size_bytes": 0,
	"result_cache_ttl_sec":    600,

	"session_ttl_sec":    3600,
	"session_cache_size": 10000,

	"telegraf_host":        "",
	"telegraf_port":        "8125",
	"metric_sampling_rate": 1.0,
}

// Load reads the configuration from the environment. Every key maps to its upper-case
// env variable, e.g. gradio_space <- GRADIO_SPACE.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.AppPort <= 0 || c.AppPort > 65535:
		return fmt.Errorf("invalid APP_PORT %d", c.AppPort)
	case strings.TrimSpace(c.GradioSpace) == "":
		return fmt.Errorf("GRADIO_SPACE must be set")
	case c.PredictTimeoutMs < 0:
		return fmt.Errorf("invalid PREDICT_TIMEOUT_MS %d", c.PredictTimeoutMs)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("invalid MAX_UPLOAD_BYTES %d", c.MaxUploadBytes)
	case c.SessionTTLSec <= 0:
		return fmt.Errorf("invalid SESSION_TTL_SEC %d", c.SessionTTLSec)
	case c.SessionCacheSize <= 0:
		return fmt.Errorf("invalid SESSION_CACHE_SIZE %d", c.SessionCacheSize)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.AppHost, c.AppPort)
}

func (c *Config) PredictTimeout() time.Duration {
	return time.Duration(c.PredictTimeoutMs) * time.Millisecond
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}
