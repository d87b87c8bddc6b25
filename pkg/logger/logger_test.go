package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewAndChildren(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)
	require.NotNil(t, log)

	child := log.WithSession("user-1").Named("conn")
	assert.NotSame(t, log, child)
	assert.True(t, child.Core().Enabled(zapcore.DebugLevel))
}

func TestOrGlobal(t *testing.T) {
	nop := NewNop()
	assert.Same(t, nop, OrGlobal(nop))
	assert.Same(t, Global(), OrGlobal(nil))
}
