package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeConsole(t *testing.T) {
	require.NoError(t, Initialize(false, "info"))
	require.NotNil(t, L())
	Infow("test message", FieldComponent, "logger_test")
}

func TestInitializeJSON(t *testing.T) {
	require.NoError(t, Initialize(true, "debug"))
	require.NotNil(t, L())
}

func TestComponentTagging(t *testing.T) {
	require.NoError(t, Initialize(false, "info"))
	c := Component("watcher")
	require.NotNil(t, c)
}

func TestInitializeUnknownLevelDefaultsToInfo(t *testing.T) {
	require.NoError(t, Initialize(false, "bogus"))
	require.NotNil(t, L())
}
