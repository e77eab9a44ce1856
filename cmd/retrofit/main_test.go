package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoggerConfig(t *testing.T) {
	zc := loggerConfig(false, "")
	assert.Equal(t, zapcore.WarnLevel, zc.Level.Level())
	assert.Equal(t, []string{"stderr"}, zc.OutputPaths)

	zc = loggerConfig(true, "")
	assert.Equal(t, zapcore.DebugLevel, zc.Level.Level())
}

func TestLoggerConfig_FileKeepsTerminalClean(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	logFile, err := tuiLogFile("", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, logFileName), logFile)
	assert.DirExists(t, root)

	zc := loggerConfig(false, logFile)
	assert.Equal(t, []string{logFile}, zc.OutputPaths)
	assert.Equal(t, []string{logFile}, zc.ErrorOutputPaths)

	log, err := zc.Build()
	require.NoError(t, err)
	log.Warn("no context match")
	require.NoError(t, log.Sync())
	assert.FileExists(t, logFile)
}

func TestTUILogFile_FlagWins(t *testing.T) {
	flagRoot := filepath.Join(t.TempDir(), "flag")
	logFile, err := tuiLogFile(flagRoot, filepath.Join(t.TempDir(), "cfg"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(flagRoot, logFileName), logFile)
}
