package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Named(FromZap(zap.New(core)), "webhooks")

	l.Warn("delivery failed", map[string]any{"attempt": 2, "error": errors.New("timeout")})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "delivery failed", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "webhooks", ctx["component"])
	assert.EqualValues(t, 2, ctx["attempt"])
	assert.Equal(t, "timeout", ctx["error"])
}

func TestNewZapLogger_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus"} {
		l, err := NewZapLogger(lvl)
		require.NoError(t, err, lvl)
		require.NotNil(t, l)
	}
}

func TestNamed_Noop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, Named(NoopLogger{}, "x"))
}
