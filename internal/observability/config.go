package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/bizbooks/internal/config"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds logging, tracing and SQL logging settings. Values come from
// the application config and may be overridden by the standard OTEL_*
// variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// SQLLogLevel is one of silent, error, warn or info.
	SQLLogLevel      string
	SQLSlowThreshold time.Duration
}

func LoadConfig(cfg config.Config) Config {
	protocol := lookup("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		protocol = traces
	}

	out := Config{
		ServiceName:          firstNonEmpty(strings.TrimSpace(cfg.AppName), "bizbooks"),
		Environment:          lookup("DEPLOYMENT_ENV", cfg.Environment),
		Version:              lookup("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(lookup("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(lookup("LOG_FORMAT", "json")),
		OtelEnabled:          lookupBool("OTEL_ENABLED", true),
		OtelExporterEndpoint: lookup("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(protocol),
		OtelSamplingRatio:    0.1,
		SQLLogLevel:          strings.ToLower(lookup("SQL_LOG_LEVEL", "warn")),
		SQLSlowThreshold:     200 * time.Millisecond,
	}
	if raw := lookup("OTEL_SAMPLING_RATIO", ""); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil {
			out.OtelSamplingRatio = ratio
		}
	}
	if raw := lookup("SQL_SLOW_THRESHOLD", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			out.SQLSlowThreshold = d
		}
	}
	return out
}

// Debug enables stack traces and verbose request logs.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// GormLogLevel maps SQLLogLevel to the gorm level, defaulting to warn.
func (c Config) GormLogLevel() gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(c.SQLLogLevel)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func lookup(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func lookupBool(key string, def bool) bool {
	value, err := strconv.ParseBool(lookup(key, ""))
	if err != nil {
		return def
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
