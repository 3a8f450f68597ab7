package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud")
	assert.Error(t, err)

	l, err := NewLogger("info")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.NotPanics(t, func() {
		l.Info("nothing")
		l.With(zap.String("k", "v")).Error("still nothing")
		_ = l.Sync()
	})
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).With(zap.String("session", "abc"))

	l.Debug("cart updated", zap.Int("items", 2))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cart updated", entries[0].Message)
	assert.Equal(t, "abc", entries[0].ContextMap()["session"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["items"])
}
