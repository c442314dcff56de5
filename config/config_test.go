package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ovaquick", cfg.AppName)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "ashad0167/ovarian-condition-detector", cfg.GradioSpace)
	assert.Equal(t, "/predict", cfg.GradioRoute)
	assert.Equal(t, time.Duration(0), cfg.PredictTimeout())
	assert.Equal(t, "keep", cfg.StaleResultPolicy)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 0, cfg.ResultCacheSizeBytes)
	assert.Equal(t, time.Hour, cfg.SessionTTL())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("GRADIO_SPACE", "https://example.hf.space")
	t.Setenv("PREDICT_TIMEOUT_MS", "1500")
	t.Setenv("STALE_RESULT_POLICY", "clear")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("METRIC_SAMPLING_RATE", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.AppPort)
	assert.Equal(t, "https://example.hf.space", cfg.GradioSpace)
	assert.Equal(t, 1500*time.Millisecond, cfg.PredictTimeout())
	assert.Equal(t, "clear", cfg.StaleResultPolicy)
	assert.True(t, cfg.AppDebug)
	assert.Equal(t, 0.25, cfg.MetricSamplingRate)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{name: "port out of range", key: "APP_PORT", value: "70000"},
		{name: "negative timeout", key: "PREDICT_TIMEOUT_MS", value: "-1"},
		{name: "zero upload limit", key: "MAX_UPLOAD_BYTES", value: "0"},
		{name: "zero session ttl", key: "SESSION_TTL_SEC", value: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
