// Package config holds the crawl settings of the chaplin spider.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"

	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/spider"
)

// AppName names the directories used under the XDG base directories.
const AppName = "scrapy-charlie-chaplin"

type Config struct {
	LogLevel       string           `yaml:"log_level"`
	Origin         string           `yaml:"origin"`
	AllowedDomains []string         `yaml:"allowed_domains"`
	StartURLs      []string         `yaml:"start_urls"`
	Downloader     DownloaderConfig `yaml:"downloader"`
	Feeds          FeedsConfig      `yaml:"feeds"`
}

type DownloaderConfig struct {
	Workers    int           `yaml:"workers"`
	Parsers    int           `yaml:"parsers"`
	RetryMax   int           `yaml:"retry_max"`
	RetrySleep time.Duration `yaml:"retry_sleep"`
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	RateLimit  float64       `yaml:"rate_limit"`
	RateBurst  int           `yaml:"rate_burst"`
}

// FeedsConfig selects the outputs. An empty path disables that feed.
type FeedsConfig struct {
	JsonLines   string        `yaml:"jsonl"`
	Csv         string        `yaml:"csv"`
	Sqlite      string        `yaml:"sqlite"`
	SqliteBatch int           `yaml:"sqlite_batch"`
	SqliteFlush time.Duration `yaml:"sqlite_flush"`
}

func Default() *Config {
	return &Config{
		LogLevel:       logrus.InfoLevel.String(),
		Origin:         spider.SiteOrigin,
		AllowedDomains: []string{spider.SiteDomain},
		StartURLs:      append([]string(nil), spider.StartURLs...),
		Downloader: DownloaderConfig{
			Workers:    4,
			Parsers:    1,
			RetryMax:   2,
			RetrySleep: time.Second,
			Timeout:    30 * time.Second,
			RateLimit:  2,
			RateBurst:  2,
		},
		Feeds: FeedsConfig{
			JsonLines:   filepath.Join(DataDir(), "records.jsonl"),
			SqliteBatch: 50,
			SqliteFlush: 3 * time.Second,
		},
	}
}

// DataDir is where feeds are written unless configured otherwise.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ConfigDir is searched for the config file when no path is given.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

var (
	ErrNoStartURLs    = errors.New("no start urls")
	ErrInvalidOrigin  = errors.New("invalid origin")
	ErrInvalidWorkers = errors.New("workers must be positive")
	ErrNoFeeds        = errors.New("no feed enabled")
)

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	origin, err := url.Parse(c.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, c.Origin)
	}
	if len(c.StartURLs) == 0 {
		return ErrNoStartURLs
	}
	for _, startURL := range c.StartURLs {
		if _, err := url.ParseRequestURI(startURL); err != nil {
			return fmt.Errorf("start url %q: %w", startURL, err)
		}
	}
	if c.Downloader.Workers <= 0 || c.Downloader.Parsers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Feeds.JsonLines == "" && c.Feeds.Csv == "" && c.Feeds.Sqlite == "" {
		return ErrNoFeeds
	}
	return nil
}
