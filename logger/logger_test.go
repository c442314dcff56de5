package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: "INFO", want: zerolog.InfoLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "warning", want: zerolog.WarnLevel},
		{in: "DISABLED", want: zerolog.Disabled},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInitWritesJSONOutsideLocal(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	require.NoError(t, initWithWriter(&buf, "ovaquick", "prod", "warn", false))
	buf.Reset()

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	zerolog.Ctx(context.Background()).Warn().Msg("from context")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "ovaquick", entry["app"])
}

func TestInitDebugOverridesLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	require.NoError(t, initWithWriter(&buf, "ovaquick", "prod", "error", true))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, initWithWriter(&bytes.Buffer{}, "ovaquick", "prod", "chatty", false))
}
