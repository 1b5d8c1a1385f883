package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Detection, cfg.Detection)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<SVGDedupe>")
	assert.Contains(t, string(data), "<Mode>strict</Mode>")
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")
	xmlDoc := `<SVGDedupe>
  <Detection>
    <Mode>fast</Mode>
    <BatchSize>25</BatchSize>
    <MaxWorkers>2</MaxWorkers>
    <TimeoutSeconds>30</TimeoutSeconds>
    <ThresholdsFile>thresholds.yaml</ThresholdsFile>
  </Detection>
  <Advanced>
    <DevelopmentLogging>true</DevelopmentLogging>
  </Advanced>
</SVGDedupe>`
	require.NoError(t, os.WriteFile(path, []byte(xmlDoc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "fast", cfg.Detection.Mode)
	assert.Equal(t, 25, cfg.Detection.BatchSize)
	assert.Equal(t, filepath.Join(dir, "thresholds.yaml"), cfg.Detection.ThresholdsFile)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Jobs.RetentionMinutes)
	assert.True(t, cfg.Advanced.DevelopmentLogging)
	assert.Equal(t, "info", cfg.Advanced.LogLevel)

	sc := cfg.SchedulerConfig()
	assert.Equal(t, 25, sc.BatchSize)
	assert.Equal(t, 2, sc.MaxWorkers)
	assert.Equal(t, 30*time.Second, sc.Timeout)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.xml")
	t.Setenv("PORT", "9090")
	t.Setenv("DETECTION_MODE", " FAST ")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("DETECTION_TIMEOUT_SECONDS", "-1")
	t.Setenv("JOB_RETENTION_MINUTES", "15")
	t.Setenv("MAX_CONCURRENT_JOBS", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.GetServerAddr())
	assert.Equal(t, "fast", cfg.Detection.Mode)
	assert.Equal(t, 8, cfg.Detection.MaxWorkers)
	assert.Equal(t, 5, cfg.Detection.BatchSize)
	assert.Equal(t, 15*time.Minute, cfg.RetentionPeriod())
	assert.Equal(t, 3, cfg.DetectorConfig().MaxConcurrentJobs)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
	assert.Less(t, cfg.SchedulerConfig().Timeout, time.Duration(0))
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed":     `<SVGDedupe><Detection>`,
		"unknown mode":  `<SVGDedupe><Detection><Mode>psychic</Mode></Detection></SVGDedupe>`,
		"zero batch":    `<SVGDedupe><Detection><BatchSize>0</BatchSize></Detection></SVGDedupe>`,
		"zero workers":  `<SVGDedupe><Detection><MaxWorkers>0</MaxWorkers></Detection></SVGDedupe>`,
		"zero interval": `<SVGDedupe><Jobs><CleanupIntervalMinutes>0</CleanupIntervalMinutes></Jobs></SVGDedupe>`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.xml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSchedulerConfig_ZeroTimeoutStaysZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.TimeoutSeconds = 0
	assert.Equal(t, time.Duration(0), cfg.SchedulerConfig().Timeout)
}

func TestWebSocketPollInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.WebSocketPollInterval())
	cfg.Advanced.WebSocketPollIntervalMs = 0
	assert.Equal(t, 500*time.Millisecond, cfg.WebSocketPollInterval())
	cfg.Advanced.WebSocketPollIntervalMs = 50
	assert.Equal(t, 50*time.Millisecond, cfg.WebSocketPollInterval())
}
