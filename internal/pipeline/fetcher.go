package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/ppiankov/mopscov/internal/model"
	"github.com/ppiankov/mopscov/internal/util"
	"github.com/ppiankov/mopscov/internal/worker"
)

// fetchSleepFunc is swapped out in tests to skip backoff pauses
var fetchSleepFunc = time.Sleep

// ErrDisallowed means robots.txt forbids the URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Fetcher performs polite GETs against MOPS: per-host rate limiting, an
// optional robots.txt check, bounded retries with exponential backoff and a
// body size cap.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxPDF     int64
	maxRetries int
	retryDelay time.Duration
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
	logger     *zap.Logger
}

// NewFetcher builds a fetcher from the HTTP config. limiter may be nil.
func NewFetcher(cfg model.HTTPConfig, limiter *worker.Limiter, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	proxy, err := util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for broken cert chains
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}

	f := &Fetcher{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		maxPDF:     cfg.MaxPDFBytes,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    limiter,
		logger:     logger,
	}
	if f.maxRetries < 1 {
		f.maxRetries = 1
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(cfg.UserAgent, client)
	}
	return f, nil
}

// FetchResult is one response body with its metadata
type FetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string
}

// Fetch performs a single GET with the page size cap
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.fetch(ctx, rawURL, f.maxBytes)
}

// FetchWithRetry fetches a page, retrying 429, 5xx and connection errors
// with backoff retryDelay * 2^attempt
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.withRetry(ctx, rawURL, f.maxBytes)
}

// Download fetches a PDF with retries and the PDF size cap
func (f *Fetcher) Download(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.withRetry(ctx, rawURL, f.maxPDF)
}

func (f *Fetcher) withRetry(ctx context.Context, rawURL string, limit int64) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.retryDelay * time.Duration(1<<uint(attempt-1))
			f.logger.Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			fetchSleepFunc(backoff)
		}

		result, err := f.fetch(ctx, rawURL, limit)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", f.maxRetries, lastErr)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, limit int64) (*FetchResult, error) {
	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("read body: exceeds %d bytes", limit)
	}

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// isRetryableFetchError reports whether another attempt could succeed:
// 429, 5xx and transport-level failures are retried, everything else is not
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDisallowed) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// DecodePage turns a MOPS response into text. Bodies that are valid UTF-8
// pass through unchanged. Otherwise the charset declared in the header or a
// meta tag is used, and pages that declare nothing are read as Big5.
func DecodePage(body []byte, contentType string) string {
	if utf8.Valid(body) {
		return string(body)
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	switch name {
	case "utf-8":
		return string(body)
	case "windows-1252":
		// The undeclared default
		enc = traditionalchinese.Big5
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
