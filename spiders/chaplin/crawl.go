package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	scrapy "github.com/siskinc/scrapy-charlie-chaplin"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/config"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/pipelines"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/spider"
)

type crawlOptions struct {
	configPath string
	jsonLines  string
	csv        string
	sqlite     string
	logLevel   string
	workers    int
}

func NewCrawlCmd() *cobra.Command {
	return newCrawlCmd(&crawlOptions{})
}

func newCrawlCmd(opts *crawlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the spider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ./chaplin.yaml or $XDG_CONFIG_HOME/scrapy-charlie-chaplin/chaplin.yaml)")
	flags.StringVar(&opts.jsonLines, "jsonl", "", "write records as JSON lines to this file")
	flags.StringVar(&opts.csv, "csv", "", "write records as CSV to this file")
	flags.StringVar(&opts.sqlite, "sqlite", "", "write records to this SQLite database")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "concurrent downloads")
	return cmd
}

func loadConfig(cmd *cobra.Command, opts *crawlOptions) (*config.Config, error) {
	cfg := config.Default()
	if path := config.Find(opts.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	} else if opts.configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, opts.configPath)
	}

	flags := cmd.Flags()
	if flags.Changed("jsonl") {
		cfg.Feeds.JsonLines = opts.jsonLines
	}
	if flags.Changed("csv") {
		cfg.Feeds.Csv = opts.csv
	}
	if flags.Changed("sqlite") {
		cfg.Feeds.Sqlite = opts.sqlite
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("workers") {
		cfg.Downloader.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newEngine(cfg *config.Config) *scrapy.Engine {
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	engine := scrapy.NewEngine(&scrapy.EngineConfig{
		DownloaderConfig: &scrapy.DownloaderConfig{
			RetryMax:     cfg.Downloader.RetryMax,
			RetrySleep:   cfg.Downloader.RetrySleep,
			WorkerNumber: cfg.Downloader.Workers,
			Timeout:      cfg.Downloader.Timeout,
			UserAgent:    cfg.Downloader.UserAgent,
			RateLimit:    cfg.Downloader.RateLimit,
			RateBurst:    cfg.Downloader.RateBurst,
		},
		ParserNumber: cfg.Downloader.Parsers,
	})
	engine.RegisterSpider(spider.NewChaplinSpider(cfg.Origin, cfg.StartURLs, logrus.StandardLogger()))
	engine.RegisterMiddleWare(scrapy.NewOffsiteMiddleWare(cfg.AllowedDomains...))
	engine.RegisterPipeline(pipelines.NewDuplicatesPipeline())
	if cfg.Feeds.JsonLines != "" {
		engine.RegisterPipeline(pipelines.NewJsonLinesPipeline(cfg.Feeds.JsonLines))
	}
	if cfg.Feeds.Csv != "" {
		engine.RegisterPipeline(pipelines.NewCsvPipeline(cfg.Feeds.Csv))
	}
	if cfg.Feeds.Sqlite != "" {
		engine.RegisterPipeline(pipelines.NewSqlitePipeline(cfg.Feeds.Sqlite, cfg.Feeds.SqliteBatch, cfg.Feeds.SqliteFlush))
	}
	return engine
}

func runCrawl(ctx context.Context, cfg *config.Config) error {
	engine := newEngine(cfg)
	err := engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logrus.Warn("crawl interrupted")
		return nil
	}
	return err
}
