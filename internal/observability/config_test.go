package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/bizbooks/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("SQL_SLOW_THRESHOLD", "")
	t.Setenv("SQL_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg := LoadConfig(config.Config{AppVersion: "0.1.0", Environment: "production", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "bizbooks", cfg.ServiceName)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.Equal(t, 200*time.Millisecond, cfg.SQLSlowThreshold)
	assert.Equal(t, gormlogger.Warn, cfg.GormLogLevel())
	assert.False(t, cfg.Debug())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("SQL_SLOW_THRESHOLD", "1s")
	t.Setenv("SQL_LOG_LEVEL", "INFO")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_ENABLED", "false")

	cfg := LoadConfig(config.Config{AppName: "books", Environment: "production"})

	assert.Equal(t, "books", cfg.ServiceName)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.Equal(t, time.Second, cfg.SQLSlowThreshold)
	assert.Equal(t, gormlogger.Info, cfg.GormLogLevel())
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}
