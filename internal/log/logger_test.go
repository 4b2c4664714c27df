package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "api", "")

	logger.Debug().Msg("hidden")
	logger.Info().Str("user_id", "u1").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "production", line["env"])
	assert.Equal(t, "api", line["service"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestNew_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "worker", "warn")

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger = newLogger(&buf, "development", "worker", "loud")
	assert.Contains(t, buf.String(), "unknown log level")
	buf.Reset()
	logger.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
