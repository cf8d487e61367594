package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/spider"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, spider.SiteOrigin, cfg.Origin)
	assert.Equal(t, []string{"archive.org"}, cfg.AllowedDomains)
	assert.Equal(t, spider.StartURLs, cfg.StartURLs)
	assert.Equal(t, filepath.Join(DataDir(), "records.jsonl"), cfg.Feeds.JsonLines)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
start_urls:
  - https://archive.org/search.php?query=chaplin
downloader:
  workers: 8
  retry_sleep: 250ms
feeds:
  jsonl: ""
  csv: /tmp/records.csv
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://archive.org/search.php?query=chaplin"}, cfg.StartURLs)
	assert.Equal(t, 8, cfg.Downloader.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Downloader.RetrySleep)
	assert.Equal(t, 30*time.Second, cfg.Downloader.Timeout)
	assert.Empty(t, cfg.Feeds.JsonLines)
	assert.Equal(t, "/tmp/records.csv", cfg.Feeds.Csv)
	assert.Equal(t, spider.SiteOrigin, cfg.Origin)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("downloader: [workers"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate func(*Config)
		want   error
	}{
		"no start urls":   {func(c *Config) { c.StartURLs = nil }, ErrNoStartURLs},
		"relative origin": {func(c *Config) { c.Origin = "/archive" }, ErrInvalidOrigin},
		"zero workers":    {func(c *Config) { c.Downloader.Workers = 0 }, ErrInvalidWorkers},
		"no feeds": {func(c *Config) {
			c.Feeds.JsonLines = ""
		}, ErrNoFeeds},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}

	cfg := Default()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("{}"), 0600))

	assert.Equal(t, explicit, Find(explicit))
	assert.Empty(t, Find(filepath.Join(dir, "missing.yaml")))

	t.Chdir(dir)
	require.NoError(t, os.WriteFile(DefaultConfigFile, []byte("{}"), 0600))
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), Find(""))
}
