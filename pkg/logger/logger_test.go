package logger

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"prescription-analytics-api/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("text formatter and debug level", func(t *testing.T) {
		l := New(config.LoggerConfig{Level: "debug", Format: "text", Output: "stdout"})
		assert.Equal(t, logrus.DebugLevel, l.GetLevel())
		assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l := New(config.LoggerConfig{Level: "loud"})
		assert.Equal(t, logrus.InfoLevel, l.GetLevel())
		assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
	})

	t.Run("file output rotates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "analytics.log")
		l := New(config.LoggerConfig{Level: "info", Output: "file", Filename: path, MaxSize: 1})
		writer, ok := l.Out.(*lumberjack.Logger)
		require.True(t, ok)
		assert.Equal(t, path, writer.Filename)
	})
}
