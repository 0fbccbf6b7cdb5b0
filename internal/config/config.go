// Package config reads the console's settings from TOWER_* environment
// variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

type Config struct {
	TransactionURL string // TOWER_TRANSACTION_URL (default "http://localhost:8000")
	VisualURL      string // TOWER_VISUAL_URL (default TransactionURL)
	GraphURL       string // TOWER_GRAPH_URL (default TransactionURL)
	GraphFile      string // TOWER_GRAPH_FILE (optional; replaces GraphURL when set)
	Token          string // TOWER_TOKEN (optional bearer token for upstream calls)
	NATSURL        string // TOWER_NATS_URL (optional; stage events over NATS instead of SSE)
	HTTPAddr       string // TOWER_HTTP_ADDR (default ":8080")
	AuthToken      string // TOWER_AUTH_TOKEN (optional, empty = auth disabled)

	StreamIdleTimeout time.Duration // TOWER_STREAM_IDLE_TIMEOUT (default 0 = disabled)
	GraphRefresh      time.Duration // TOWER_GRAPH_REFRESH (default 0 = load once)

	// Report export settings
	ReportDir        string // TOWER_REPORT_DIR (enables file reports when set)
	ReportS3Bucket   string // TOWER_REPORT_S3_BUCKET (enables S3 when set)
	ReportS3Endpoint string // TOWER_REPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ReportS3Region   string // TOWER_REPORT_S3_REGION (default "us-east-1")
	ReportS3Prefix   string // TOWER_REPORT_S3_PREFIX (default "tower")
	ReportGitRepo    string // TOWER_REPORT_GIT_REPO (enables git when set; path to clone)
	ReportGitDir     string // TOWER_REPORT_GIT_DIR (default "investigations")
	ReportGitBranch  string // TOWER_REPORT_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		TransactionURL:   envOrDefault("TOWER_TRANSACTION_URL", "http://localhost:8000"),
		GraphFile:        os.Getenv("TOWER_GRAPH_FILE"),
		Token:            os.Getenv("TOWER_TOKEN"),
		NATSURL:          os.Getenv("TOWER_NATS_URL"),
		HTTPAddr:         envOrDefault("TOWER_HTTP_ADDR", ":8080"),
		AuthToken:        os.Getenv("TOWER_AUTH_TOKEN"),
		ReportDir:        os.Getenv("TOWER_REPORT_DIR"),
		ReportS3Bucket:   os.Getenv("TOWER_REPORT_S3_BUCKET"),
		ReportS3Endpoint: os.Getenv("TOWER_REPORT_S3_ENDPOINT"),
		ReportS3Region:   envOrDefault("TOWER_REPORT_S3_REGION", "us-east-1"),
		ReportS3Prefix:   envOrDefault("TOWER_REPORT_S3_PREFIX", "tower"),
		ReportGitRepo:    os.Getenv("TOWER_REPORT_GIT_REPO"),
		ReportGitDir:     envOrDefault("TOWER_REPORT_GIT_DIR", "investigations"),
		ReportGitBranch:  envOrDefault("TOWER_REPORT_GIT_BRANCH", "main"),
	}
	c.VisualURL = envOrDefault("TOWER_VISUAL_URL", c.TransactionURL)
	c.GraphURL = envOrDefault("TOWER_GRAPH_URL", c.TransactionURL)

	for _, u := range []struct{ key, val string }{
		{"TOWER_TRANSACTION_URL", c.TransactionURL},
		{"TOWER_VISUAL_URL", c.VisualURL},
		{"TOWER_GRAPH_URL", c.GraphURL},
	} {
		if err := checkURL(u.val); err != nil {
			return nil, fmt.Errorf("%s: %w", u.key, err)
		}
	}

	var err error
	if c.StreamIdleTimeout, err = envDuration("TOWER_STREAM_IDLE_TIMEOUT"); err != nil {
		return nil, err
	}
	if c.GraphRefresh, err = envDuration("TOWER_GRAPH_REFRESH"); err != nil {
		return nil, err
	}
	return c, nil
}

// ReportsEnabled reports whether any report destination is configured.
func (c *Config) ReportsEnabled() bool {
	return c.ReportDir != "" || c.ReportS3Bucket != "" || c.ReportGitRepo != ""
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

func envDuration(key string) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
