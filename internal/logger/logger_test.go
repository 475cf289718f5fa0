package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bilal/orion-agent/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestBuild_MirrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	var stdout bytes.Buffer

	l, closer, err := build(config.LoggingConfig{Level: "info", Format: "json", File: path}, &stdout)
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Warn().Str("component", "test").Msg("mirrored")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mirrored")
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, stdout.String(), "mirrored")
}

func TestBuild_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0o644))

	l, closer, err := build(config.LoggingConfig{Format: "json", File: path}, &bytes.Buffer{})
	require.NoError(t, err)
	l.Info().Msg("next")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "previous\n")
	assert.Contains(t, string(data), "next")
}

func TestBuild_UnwritableFile(t *testing.T) {
	_, _, err := build(config.LoggingConfig{File: filepath.Join(t.TempDir(), "missing", "agent.log")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBuild_LevelTags(t *testing.T) {
	var out bytes.Buffer
	l, _, err := build(config.LoggingConfig{Level: "debug", Format: "json"}, &out)
	require.NoError(t, err)

	l.Debug().Msg("d")
	l.Info().Msg("i")
	l.Warn().Msg("w")
	l.Error().Msg("e")
	for _, tag := range []string{"DEBUG", "INFO", "WARNING", "ERROR"} {
		assert.Contains(t, out.String(), `"level":"`+tag+`"`)
	}

	out.Reset()
	l, _, err = build(config.LoggingConfig{Level: "info", Format: "console"}, &out)
	require.NoError(t, err)
	l.Warn().Msg("bgp degraded")
	assert.Contains(t, out.String(), "WARNING bgp degraded")
}
