package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "debug", Format: FormatJSON, Output: &buf})
		require.NoError(t, err)

		logger.Debug().Int("ply", 3).Msg("searched")
		var event map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
		require.Equal(t, "debug", event["level"])
		require.Equal(t, "searched", event["message"])
		require.EqualValues(t, 3, event["ply"])
	})

	t.Run("level filters events", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "WARN", Format: FormatJSON, Output: &buf})
		require.NoError(t, err)

		logger.Info().Msg("hidden")
		require.Zero(t, buf.Len())
		logger.Warn().Msg("shown")
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("pretty indents", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Format: FormatPretty, Output: &buf})
		require.NoError(t, err)

		logger.Info().Str("move", "H8").Msg("commit")
		require.Contains(t, buf.String(), "\n  \"move\": \"H8\"")
		require.True(t, strings.HasSuffix(buf.String(), "}\n"))
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Output: &buf})
		require.NoError(t, err)

		logger.Info().Str("move", "H8").Msg("commit")
		require.Contains(t, buf.String(), "commit")
		require.Contains(t, buf.String(), "move=")
	})

	t.Run("rejects unknown settings", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		require.Error(t, err)
		_, err = New(Options{Format: "xml"})
		require.Error(t, err)
	})
}

func TestSetup(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "error", Format: FormatJSON, Output: &buf}))
	require.Equal(t, zerolog.ErrorLevel, log.Logger.GetLevel())

	log.Error().Msg("boom")
	require.Contains(t, buf.String(), "boom")
}
