package config

import (
	"os"
	"strconv"
	"time"
)

// EnvPrefix is shared by every environment override.
const EnvPrefix = "DATACUBE_"

var envVars = []string{
	"DATACUBE_JSOC_EMAIL",
	"DATACUBE_JSOC_URL",
	"DATACUBE_DOPPL_REQUEST",
	"DATACUBE_DRMS_FILES_PATH",
	"DATACUBE_FOLDER_PATH",
	"DATACUBE_OUTPUT_DIR",
	"DATACUBE_FILENAME",
	"DATACUBE_RUN_VIA_DRMS",
	"DATACUBE_DELETE_FILES_WHEN_FINISHED",
	"DATACUBE_DOWNLOAD_ATTEMPTS",
	"DATACUBE_RETRY_DELAY",
	"DATACUBE_EXPORT_TIMEOUT",
	"DATACUBE_POLL_INTERVAL",
	"DATACUBE_WORKERS",
	"DATACUBE_LOG_LEVEL",
	"DATACUBE_LOG_FORMAT",
	"DATACUBE_LOG_OUTPUT_PATH",
	"DATACUBE_METRICS_ADDR",
	"DATACUBE_S3_ENDPOINT",
	"DATACUBE_S3_ACCESS_KEY_ID",
	"DATACUBE_S3_SECRET_ACCESS_KEY",
	"DATACUBE_S3_BUCKET",
	"DATACUBE_S3_PREFIX",
	"DATACUBE_S3_USE_SSL",
	"DATACUBE_S3_REGION",
	"DATACUBE_CATALOG_HOST",
	"DATACUBE_CATALOG_PORT",
	"DATACUBE_CATALOG_DATABASE",
	"DATACUBE_CATALOG_USERNAME",
	"DATACUBE_CATALOG_PASSWORD",
	"DATACUBE_CATALOG_SSLMODE",
}

// Env holds the DATACUBE_* variables that were set.
type Env struct {
	values map[string]string
}

// LoadEnv snapshots the process environment.
func LoadEnv() *Env {
	e := &Env{values: make(map[string]string)}
	e.loadFromEnv()
	return e
}

// NewEnv builds an Env from explicit values.
func NewEnv(values map[string]string) *Env {
	e := &Env{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v != "" {
			e.values[k] = v
		}
	}
	return e
}

func (e *Env) loadFromEnv() {
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			e.values[envVar] = value
		}
	}
}

func (e *Env) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

func (e *Env) GetString(key, defaultValue string) string {
	if value, exists := e.values[key]; exists {
		return value
	}
	return defaultValue
}

func (e *Env) GetInt(key string, defaultValue int) int {
	if value, exists := e.values[key]; exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e *Env) GetBool(key string, defaultValue bool) bool {
	if value, exists := e.values[key]; exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (e *Env) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := e.values[key]; exists {
		if duration, err := ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ApplyEnv overrides file values with the environment.
func (c *Config) ApplyEnv(e *Env) {
	c.JSOCEmail = e.GetString("DATACUBE_JSOC_EMAIL", c.JSOCEmail)
	c.JSOCURL = e.GetString("DATACUBE_JSOC_URL", c.JSOCURL)
	c.DopplRequest = e.GetString("DATACUBE_DOPPL_REQUEST", c.DopplRequest)
	c.DRMSFilesPath = e.GetString("DATACUBE_DRMS_FILES_PATH", c.DRMSFilesPath)
	c.FolderPath = e.GetString("DATACUBE_FOLDER_PATH", c.FolderPath)
	c.OutputDir = e.GetString("DATACUBE_OUTPUT_DIR", c.OutputDir)
	c.Filename = e.GetString("DATACUBE_FILENAME", c.Filename)
	c.RunViaDRMS = e.GetBool("DATACUBE_RUN_VIA_DRMS", c.RunViaDRMS)
	c.DeleteFilesWhenFinished = e.GetBool("DATACUBE_DELETE_FILES_WHEN_FINISHED", c.DeleteFilesWhenFinished)
	c.DownloadAttempts = e.GetInt("DATACUBE_DOWNLOAD_ATTEMPTS", c.DownloadAttempts)
	c.RetryDelay = e.GetDuration("DATACUBE_RETRY_DELAY", c.RetryDelay)
	c.ExportTimeout = e.GetDuration("DATACUBE_EXPORT_TIMEOUT", c.ExportTimeout)
	c.PollInterval = e.GetDuration("DATACUBE_POLL_INTERVAL", c.PollInterval)
	c.Workers = e.GetInt("DATACUBE_WORKERS", c.Workers)

	c.Log.Level = e.GetString("DATACUBE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = e.GetString("DATACUBE_LOG_FORMAT", c.Log.Format)
	c.Log.OutputPath = e.GetString("DATACUBE_LOG_OUTPUT_PATH", c.Log.OutputPath)
	c.MetricsAddr = e.GetString("DATACUBE_METRICS_ADDR", c.MetricsAddr)

	if e.Has("DATACUBE_S3_ENDPOINT") {
		c.S3.Enabled = true
	}
	c.S3.Endpoint = e.GetString("DATACUBE_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = e.GetString("DATACUBE_S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = e.GetString("DATACUBE_S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.Bucket = e.GetString("DATACUBE_S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = e.GetString("DATACUBE_S3_PREFIX", c.S3.Prefix)
	c.S3.UseSSL = e.GetBool("DATACUBE_S3_USE_SSL", c.S3.UseSSL)
	c.S3.Region = e.GetString("DATACUBE_S3_REGION", c.S3.Region)

	if e.Has("DATACUBE_CATALOG_DATABASE") {
		c.Catalog.Enabled = true
	}
	c.Catalog.Host = e.GetString("DATACUBE_CATALOG_HOST", c.Catalog.Host)
	c.Catalog.Port = e.GetString("DATACUBE_CATALOG_PORT", c.Catalog.Port)
	c.Catalog.Database = e.GetString("DATACUBE_CATALOG_DATABASE", c.Catalog.Database)
	c.Catalog.Username = e.GetString("DATACUBE_CATALOG_USERNAME", c.Catalog.Username)
	c.Catalog.Password = e.GetString("DATACUBE_CATALOG_PASSWORD", c.Catalog.Password)
	c.Catalog.SSLMode = e.GetString("DATACUBE_CATALOG_SSLMODE", c.Catalog.SSLMode)
}
