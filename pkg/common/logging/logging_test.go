package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"debug json", Config{Level: "debug", Format: "json"}, false},
		{"warn console", Config{Level: "warn", Format: "console"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRespectsLevel(t *testing.T) {
	l := New(Config{Level: "warn", Output: "discard"})
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent(zerolog.New(&buf), "workerpool")
	l.Info().Msg("started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "workerpool", entry[FieldComponent])
	assert.Equal(t, "started", entry["message"])
}
