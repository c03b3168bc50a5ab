package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesJSONToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closer, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("debug enabled", "turns", 2)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "minichat.log"))
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"msg":"debug enabled"`)
	assert.Contains(t, line, `"service":"minichat"`)
	assert.Contains(t, line, `"turns":2`)
}

func TestInitLoggerInfoLevel(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := InitLogger(dir, false)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "minichat.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestInitTelemetryDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	providers, err := InitTelemetry(context.Background(), dir, false)
	require.NoError(t, err)
	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	providers.Shutdown()

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "disabled telemetry creates no files")
}

func TestInitTelemetryExportsToFiles(t *testing.T) {
	dir := t.TempDir()

	providers, err := InitTelemetry(context.Background(), dir, true)
	require.NoError(t, err)

	_, span := providers.Tracer.Start(context.Background(), "test.span")
	span.End()
	counter, err := providers.Meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	providers.Shutdown()

	traces, err := os.ReadFile(filepath.Join(dir, "minichat_traces.log"))
	require.NoError(t, err)
	assert.Contains(t, string(traces), "test.span")

	metrics, err := os.ReadFile(filepath.Join(dir, "minichat_metrics.log"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "test.counter")
}
