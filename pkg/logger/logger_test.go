package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_LevelOverride(t *testing.T) {
	l, err := New("fleet-telemetry", "prod", "debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidLevelKeepsDefault(t *testing.T) {
	l, err := New("fleet-telemetry", "prod", "shouting")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestL_LazyInit(t *testing.T) {
	log, sugar = nil, nil
	assert.NotNil(t, L())
	assert.NotNil(t, S())
	assert.NotNil(t, Named("auth"))
}
