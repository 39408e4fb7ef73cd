/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// HandoffBackend selects where exported artifacts wait for another feature.
type HandoffBackend string

const (
	HandoffMemory HandoffBackend = "memory"
	HandoffRedis  HandoffBackend = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	HTTPBind        string
	HTTPPort        int
	WorkDir         string // Staging directory for probe/decode temp files
	MaxUploadSizeMB int

	// Media tooling
	FFmpegBin           string
	FFprobeBin          string
	ProbeTimeout        time.Duration
	WaveformBuckets     int
	ReencodeBitrateKbps int

	// Waveform cache
	DBBackend DatabaseBackend
	DBDSN     string

	// Hand-off channel
	HandoffBackend HandoffBackend
	HandoffTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Artifact storage: S3 when a bucket is set, filesystem otherwise
	ArtifactRoot      string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3UsePathStyle    bool

	// Authentication
	JWTSigningKey string

	// Notifications fan-out (optional)
	NATSURL     string
	NATSSubject string

	// Observability
	MetricsBind       string
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string
}

// fileOverlay mirrors the subset of settings a YAML file may override.
type fileOverlay struct {
	Environment         *string  `yaml:"environment"`
	HTTPBind            *string  `yaml:"http_bind"`
	HTTPPort            *int     `yaml:"http_port"`
	WorkDir             *string  `yaml:"work_dir"`
	FFmpegBin           *string  `yaml:"ffmpeg_bin"`
	FFprobeBin          *string  `yaml:"ffprobe_bin"`
	ProbeTimeoutMS      *int     `yaml:"probe_timeout_ms"`
	WaveformBuckets     *int     `yaml:"waveform_buckets"`
	ReencodeBitrateKbps *int     `yaml:"reencode_bitrate_kbps"`
	DBBackend           *string  `yaml:"db_backend"`
	DBDSN               *string  `yaml:"db_dsn"`
	HandoffBackend      *string  `yaml:"handoff_backend"`
	HandoffTTLSeconds   *int     `yaml:"handoff_ttl_seconds"`
	RedisAddr           *string  `yaml:"redis_addr"`
	ArtifactRoot        *string  `yaml:"artifact_root"`
	S3Bucket            *string  `yaml:"s3_bucket"`
	S3Region            *string  `yaml:"s3_region"`
	S3Endpoint          *string  `yaml:"s3_endpoint"`
	NATSURL             *string  `yaml:"nats_url"`
	MetricsBind         *string  `yaml:"metrics_bind"`
	TracingEnabled      *bool    `yaml:"tracing_enabled"`
	TracingSampleRate   *float64 `yaml:"tracing_sample_rate"`
}

// Load reads environment variables, applies the optional YAML overlay and
// defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"CLIPDECK_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"CLIPDECK_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:        getEnvIntAny([]string{"CLIPDECK_HTTP_PORT"}, 8085),
		WorkDir:         getEnvAny([]string{"CLIPDECK_WORK_DIR"}, os.TempDir()),
		MaxUploadSizeMB: getEnvIntAny([]string{"CLIPDECK_MAX_UPLOAD_SIZE_MB"}, 512),

		FFmpegBin:           getEnvAny([]string{"CLIPDECK_FFMPEG_BIN", "FFMPEG_BIN"}, "ffmpeg"),
		FFprobeBin:          getEnvAny([]string{"CLIPDECK_FFPROBE_BIN", "FFPROBE_BIN"}, "ffprobe"),
		ProbeTimeout:        time.Duration(getEnvIntAny([]string{"CLIPDECK_PROBE_TIMEOUT_MS"}, 4000)) * time.Millisecond,
		WaveformBuckets:     getEnvIntAny([]string{"CLIPDECK_WAVEFORM_BUCKETS"}, 1500),
		ReencodeBitrateKbps: getEnvIntAny([]string{"CLIPDECK_REENCODE_BITRATE_KBPS"}, 192),

		DBBackend: DatabaseBackend(getEnvAny([]string{"CLIPDECK_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"CLIPDECK_DB_DSN"}, "clipdeck.db"),

		HandoffBackend: HandoffBackend(getEnvAny([]string{"CLIPDECK_HANDOFF_BACKEND"}, string(HandoffMemory))),
		HandoffTTL:     time.Duration(getEnvIntAny([]string{"CLIPDECK_HANDOFF_TTL_SECONDS"}, 300)) * time.Second,
		RedisAddr:      getEnvAny([]string{"CLIPDECK_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:  getEnvAny([]string{"CLIPDECK_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:        getEnvIntAny([]string{"CLIPDECK_REDIS_DB"}, 0),

		ArtifactRoot:      getEnvAny([]string{"CLIPDECK_ARTIFACT_ROOT"}, "./exports"),
		S3AccessKeyID:     getEnvAny([]string{"CLIPDECK_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"CLIPDECK_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"CLIPDECK_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"CLIPDECK_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"CLIPDECK_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"CLIPDECK_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		JWTSigningKey: getEnvAny([]string{"CLIPDECK_JWT_SIGNING_KEY"}, ""),

		NATSURL:     getEnvAny([]string{"CLIPDECK_NATS_URL", "NATS_URL"}, ""),
		NATSSubject: getEnvAny([]string{"CLIPDECK_NATS_SUBJECT"}, "clipdeck.notices"),

		MetricsBind:       getEnvAny([]string{"CLIPDECK_METRICS_BIND"}, "127.0.0.1:9095"),
		TracingEnabled:    getEnvBoolAny([]string{"CLIPDECK_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"CLIPDECK_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"CLIPDECK_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if path := getEnv("CLIPDECK_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.HandoffBackend != HandoffMemory && c.HandoffBackend != HandoffRedis {
		return fmt.Errorf("unsupported handoff backend %q", c.HandoffBackend)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("CLIPDECK_PROBE_TIMEOUT_MS must be positive")
	}
	if c.WaveformBuckets <= 0 {
		return fmt.Errorf("CLIPDECK_WAVEFORM_BUCKETS must be positive")
	}
	if c.ReencodeBitrateKbps <= 0 {
		return fmt.Errorf("CLIPDECK_REENCODE_BITRATE_KBPS must be positive")
	}
	if strings.EqualFold(c.Environment, "production") && c.JWTSigningKey == "" {
		return fmt.Errorf("CLIPDECK_JWT_SIGNING_KEY must be provided in production")
	}
	return nil
}

// applyFile overlays values from a YAML file on top of the environment.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Environment, overlay.Environment)
	setString(&c.HTTPBind, overlay.HTTPBind)
	setInt(&c.HTTPPort, overlay.HTTPPort)
	setString(&c.WorkDir, overlay.WorkDir)
	setString(&c.FFmpegBin, overlay.FFmpegBin)
	setString(&c.FFprobeBin, overlay.FFprobeBin)
	if overlay.ProbeTimeoutMS != nil {
		c.ProbeTimeout = time.Duration(*overlay.ProbeTimeoutMS) * time.Millisecond
	}
	setInt(&c.WaveformBuckets, overlay.WaveformBuckets)
	setInt(&c.ReencodeBitrateKbps, overlay.ReencodeBitrateKbps)
	if overlay.DBBackend != nil {
		c.DBBackend = DatabaseBackend(*overlay.DBBackend)
	}
	setString(&c.DBDSN, overlay.DBDSN)
	if overlay.HandoffBackend != nil {
		c.HandoffBackend = HandoffBackend(*overlay.HandoffBackend)
	}
	if overlay.HandoffTTLSeconds != nil {
		c.HandoffTTL = time.Duration(*overlay.HandoffTTLSeconds) * time.Second
	}
	setString(&c.RedisAddr, overlay.RedisAddr)
	setString(&c.ArtifactRoot, overlay.ArtifactRoot)
	setString(&c.S3Bucket, overlay.S3Bucket)
	setString(&c.S3Region, overlay.S3Region)
	setString(&c.S3Endpoint, overlay.S3Endpoint)
	setString(&c.NATSURL, overlay.NATSURL)
	setString(&c.MetricsBind, overlay.MetricsBind)
	if overlay.TracingEnabled != nil {
		c.TracingEnabled = *overlay.TracingEnabled
	}
	if overlay.TracingSampleRate != nil {
		c.TracingSampleRate = *overlay.TracingSampleRate
	}

	c.ConfigFile = path
	return nil
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
