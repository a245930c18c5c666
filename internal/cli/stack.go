package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/cache"
	"github.com/ppiankov/mopscov/internal/model"
	"github.com/ppiankov/mopscov/internal/pipeline"
	"github.com/ppiankov/mopscov/internal/worker"
)

// HTTP flags shared by every command that talks to MOPS
var (
	httpTimeout time.Duration
	userAgent   string
	noCache     bool
	insecureTLS bool
	noRobots    bool
	offline     bool
	httpProxy   string
	httpsProxy  string
	maxRetries  int
)

func addHTTPFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "timeout for a single HTTP request")
	cmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable listing page cache (force fresh fetch)")
	cmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().BoolVar(&noRobots, "no-robots", false, "do not consult robots.txt")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not touch the network (every page is empty)")
	cmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	cmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	cmd.Flags().IntVar(&maxRetries, "retries", 3, "attempts per request before giving up")
}

// applyHTTPFlags overrides config fields for the flags the user set
func applyHTTPFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("http-timeout") {
		cfg.HTTP.Timeout = httpTimeout
	}
	if flags.Changed("ua") {
		cfg.HTTP.UserAgent = userAgent
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("insecure") {
		cfg.HTTP.InsecureTLS = insecureTLS
	}
	if flags.Changed("no-robots") {
		cfg.HTTP.RespectRobots = !noRobots
	}
	if flags.Changed("http-proxy") {
		cfg.HTTP.HTTPProxy = httpProxy
	}
	if flags.Changed("https-proxy") {
		cfg.HTTP.HTTPSProxy = httpsProxy
	}
	if flags.Changed("retries") {
		cfg.HTTP.MaxRetries = maxRetries
	}
}

// stack is the wired fetch side of the application
type stack struct {
	cfg      model.Config
	logger   *zap.Logger
	fetcher  *pipeline.Fetcher
	pipeline *pipeline.Pipeline
}

// setup loads and validates config, then wires logger, limiter, fetcher,
// cache and pipeline. override runs between loading and validation.
func setup(override func(cfg *model.Config)) (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Output.Verbose)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize, cfg.HTTP.RequestDelay)
	fetcher, err := pipeline.NewFetcher(cfg.HTTP, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	var pages pipeline.PageFetcher
	if offline {
		fmt.Fprintf(os.Stderr, "⚙️  Offline mode: no listing pages will be fetched\n")
		pages = pipeline.NoopPageFetcher{}
	} else {
		pages = pipeline.NewHTTPPageFetcher(fetcher, cfg.HTTP.BaseURL, cache.New(cfg.Cache), cfg.Cache.DiskTTL, logger)
	}

	return &stack{
		cfg:      cfg,
		logger:   logger,
		fetcher:  fetcher,
		pipeline: pipeline.NewPipeline(cfg, pages, logger),
	}, nil
}

func (s *stack) downloader() *pipeline.Downloader {
	return pipeline.NewDownloader(s.fetcher, s.cfg.Paths.DownloadsDir, s.cfg.HTTP.DownloadOrigin, s.cfg.Concurrency.Downloads, s.logger)
}

func (s *stack) close() {
	_ = s.logger.Sync()
}
