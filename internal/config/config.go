package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
	"github.com/YoungMasterGandalf/thesis-work/internal/logging"
)

// Defaults.
const (
	DefaultDownloadAttempts = 25
	DefaultExportTimeout    = 900 * time.Second
	DefaultPollInterval     = 5 * time.Second
	DefaultJSOCURL          = "http://jsoc.stanford.edu"
	DefaultOutputDir        = "."
)

// Config is the full pipeline configuration. JSON files with the same keys
// load unchanged, JSON being a subset of YAML.
type Config struct {
	Origin                []float64 `yaml:"origin"` // lon, lat in degrees
	Shape                 []int     `yaml:"shape"`  // rows, cols in pixels
	TimeStep              float64   `yaml:"time_step"`
	Scale                 []float64 `yaml:"scale"` // x, y in deg/px
	RSun                  float64   `yaml:"r_sun"`
	ArtificialLonVelocity float64   `yaml:"artificial_lon_velocity"`

	OutputDir string `yaml:"output_dir"`
	Filename  string `yaml:"filename"`

	RunViaDRMS              bool   `yaml:"run_via_drms"`
	JSOCEmail               string `yaml:"jsoc_email"`
	DopplRequest            string `yaml:"doppl_request"`
	DRMSFilesPath           string `yaml:"drms_files_path"`
	FolderPath              string `yaml:"folder_path"`
	DeleteFilesWhenFinished bool   `yaml:"delete_files_when_finished"`

	// Durations take Go syntax ("90s", "15m") or a bare number of seconds.
	DownloadAttempts int           `yaml:"download_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	ExportTimeout    time.Duration `yaml:"export_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	Workers          int           `yaml:"workers"`
	JSOCURL          string        `yaml:"jsoc_url"`

	Log         logging.Config `yaml:"log"`
	MetricsAddr string         `yaml:"metrics_addr"`
	S3          S3Config       `yaml:"s3"`
	Catalog     CatalogConfig  `yaml:"catalog"`
}

// S3Config enables publishing results to S3-compatible object storage.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	UseSSL          bool   `yaml:"use_ssl"`
	Region          string `yaml:"region"`
}

// CatalogConfig enables recording runs in PostgreSQL.
type CatalogConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Host             string `yaml:"host"`
	Port             string `yaml:"port"`
	Database         string `yaml:"database"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	SSLMode          string `yaml:"sslmode"`
	ConnectTimeout   string `yaml:"connect_timeout"`
	StatementTimeout string `yaml:"statement_timeout"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		OutputDir:        DefaultOutputDir,
		DownloadAttempts: DefaultDownloadAttempts,
		ExportTimeout:    DefaultExportTimeout,
		PollInterval:     DefaultPollInterval,
		Workers:          1,
		JSOCURL:          DefaultJSOCURL,
		Log:              logging.Config{Level: "info", Format: "json"},
		S3:               S3Config{UseSSL: true, Region: "us-east-1"},
		Catalog: CatalogConfig{
			Host:             "localhost",
			Port:             "5432",
			SSLMode:          "prefer",
			ConnectTimeout:   "30s",
			StatementTimeout: "300s",
		},
	}
}

// Load reads path (if not empty) over the defaults and then applies
// DATACUBE_* environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if len(doc.Content) > 0 {
			secondsAsDurations(doc.Content[0])
			if err := doc.Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv(LoadEnv())
	return cfg, nil
}

var durationKeys = map[string]bool{
	"retry_delay":    true,
	"export_timeout": true,
	"poll_interval":  true,
}

// secondsAsDurations rewrites numeric duration values of the top-level
// mapping as seconds so that they decode into time.Duration.
func secondsAsDurations(root *yaml.Node) {
	if root.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if !durationKeys[key.Value] || val.Kind != yaml.ScalarNode {
			continue
		}
		if val.Tag == "!!int" || val.Tag == "!!float" {
			val.Tag = "!!str"
			val.Value += "s"
		}
	}
}

// ParseDuration accepts Go duration syntax or a bare number of seconds.
func ParseDuration(value string) (time.Duration, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ValidateGeometry checks the values needed to assemble a cube.
func (c *Config) ValidateGeometry() error {
	var errs []error
	if len(c.Origin) != 2 {
		errs = append(errs, fmt.Errorf("origin must have 2 values (lon, lat), got %d", len(c.Origin)))
	} else if c.Origin[1] < -90 || c.Origin[1] > 90 {
		errs = append(errs, fmt.Errorf("origin latitude %g out of range", c.Origin[1]))
	}
	if len(c.Shape) != 2 || c.Shape[0] <= 0 || c.Shape[1] <= 0 {
		errs = append(errs, fmt.Errorf("shape must be 2 positive values, got %v", c.Shape))
	}
	if len(c.Scale) != 2 || c.Scale[0] <= 0 || c.Scale[1] <= 0 {
		errs = append(errs, fmt.Errorf("scale must be 2 positive values, got %v", c.Scale))
	}
	if c.TimeStep <= 0 {
		errs = append(errs, fmt.Errorf("time_step must be positive, got %g", c.TimeStep))
	}
	if c.RSun <= 0 {
		errs = append(errs, fmt.Errorf("r_sun must be positive, got %g", c.RSun))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// ValidateArchive checks the values needed to talk to the archive.
func (c *Config) ValidateArchive() error {
	var errs []error
	if c.JSOCEmail == "" {
		errs = append(errs, errors.New("required field 'jsoc_email' is missing or empty"))
	}
	if c.DownloadAttempts < 1 {
		errs = append(errs, fmt.Errorf("download_attempts must be at least 1, got %d", c.DownloadAttempts))
	}
	if c.ExportTimeout <= 0 {
		errs = append(errs, fmt.Errorf("export_timeout must be positive, got %s", c.ExportTimeout))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay))
	}
	return errors.Join(errs...)
}

// Validate checks everything a full run needs in the selected mode.
func (c *Config) Validate() error {
	errs := []error{c.ValidateGeometry()}
	if c.RunViaDRMS {
		errs = append(errs, c.ValidateArchive())
		if c.DopplRequest == "" {
			errs = append(errs, errors.New("required field 'doppl_request' is missing or empty"))
		}
		if c.DRMSFilesPath == "" {
			errs = append(errs, errors.New("required field 'drms_files_path' is missing or empty"))
		}
	} else if c.FolderPath == "" {
		errs = append(errs, errors.New("required field 'folder_path' is missing or empty"))
	}
	if c.S3.Enabled && (c.S3.Endpoint == "" || c.S3.Bucket == "") {
		errs = append(errs, errors.New("s3 publishing needs endpoint and bucket"))
	}
	if c.Catalog.Enabled && c.Catalog.Database == "" {
		errs = append(errs, errors.New("catalog needs a database"))
	}
	return errors.Join(errs...)
}

// OriginSpec returns the projection origin with its drift.
func (c *Config) OriginSpec() helio.OriginSpec {
	var lon, lat float64
	if len(c.Origin) == 2 {
		lon, lat = c.Origin[0], c.Origin[1]
	}
	return helio.OriginSpec{
		Longitude:     lon,
		Latitude:      lat,
		BodyRadius:    c.RSun,
		DriftVelocity: c.ArtificialLonVelocity,
	}
}

// AssemblyParams converts the geometry settings for the assembler.
func (c *Config) AssemblyParams() helio.Params {
	p := helio.Params{
		Origin:   c.OriginSpec(),
		TimeStep: c.TimeStep,
		Workers:  c.Workers,
	}
	if len(c.Shape) == 2 {
		p.Shape = helio.Shape{Rows: c.Shape[0], Cols: c.Shape[1]}
	}
	if len(c.Scale) == 2 {
		p.Scale = helio.Scale{X: c.Scale[0], Y: c.Scale[1]}
	}
	return p
}

// Step is the cadence of the frame series.
func (c *Config) Step() time.Duration {
	return time.Duration(c.TimeStep * float64(time.Second))
}

// S3Map returns the object storage settings in the form store.NewClient takes.
func (c *Config) S3Map() map[string]string {
	return map[string]string{
		"endpoint":          c.S3.Endpoint,
		"access_key_id":     c.S3.AccessKeyID,
		"secret_access_key": c.S3.SecretAccessKey,
		"bucket":            c.S3.Bucket,
		"prefix":            c.S3.Prefix,
		"use_ssl":           strconv.FormatBool(c.S3.UseSSL),
		"region":            c.S3.Region,
	}
}

// CatalogMap returns the database settings in the form catalog.NewClient takes.
func (c *Config) CatalogMap() map[string]string {
	return map[string]string{
		"host":              c.Catalog.Host,
		"port":              c.Catalog.Port,
		"database":          c.Catalog.Database,
		"username":          c.Catalog.Username,
		"password":          c.Catalog.Password,
		"sslmode":           c.Catalog.SSLMode,
		"connect_timeout":   c.Catalog.ConnectTimeout,
		"statement_timeout": c.Catalog.StatementTimeout,
	}
}
