package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf).Component("sweeper")

	log.Info().Int("deactivated", 3).Msg("Sweep complete")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sweeper", entry["component"])
	assert.Equal(t, float64(3), entry["deactivated"])
	assert.Equal(t, "Sweep complete", entry["message"])
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Error().Msg("dropped")
	assert.False(t, log.IsDebug())
}
