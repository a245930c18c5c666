package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/cache"
	"github.com/ppiankov/mopscov/internal/model"
)

// ListingURL builds the t57sb01 listing query for one page request
func ListingURL(base string, req model.PageRequest) string {
	params := url.Values{}
	params.Set("step", "1")
	params.Set("colorchg", "1")
	params.Set("co_id", req.CompanyID)
	params.Set("year", strconv.Itoa(req.ROCYear))
	if req.Quarter != nil {
		params.Set("seamon", strconv.Itoa(*req.Quarter))
	} else {
		params.Set("seamon", "")
	}
	params.Set("mtype", "A")
	return base + "?" + params.Encode()
}

// PageFetcher supplies the raw markup of one listing page
type PageFetcher interface {
	FetchPage(ctx context.Context, req model.PageRequest) (string, error)
}

// HTTPPageFetcher fetches listing pages over HTTP, consulting the cache first.
// Only successful responses are cached.
type HTTPPageFetcher struct {
	fetcher *Fetcher
	baseURL string
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewHTTPPageFetcher creates a page fetcher. A nil cache disables caching.
func NewHTTPPageFetcher(fetcher *Fetcher, baseURL string, c cache.Cache, ttl time.Duration, logger *zap.Logger) *HTTPPageFetcher {
	if c == nil {
		c = cache.NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPPageFetcher{
		fetcher: fetcher,
		baseURL: baseURL,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

// FetchPage returns the decoded listing page for req
func (p *HTTPPageFetcher) FetchPage(ctx context.Context, req model.PageRequest) (string, error) {
	key := cache.PageKey(req)
	if data, ok := p.cache.Get(key); ok {
		p.logger.Debug("listing page cache hit", zap.String("request", req.String()))
		return string(data), nil
	}

	result, err := p.fetcher.FetchWithRetry(ctx, ListingURL(p.baseURL, req))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", req, err)
	}

	page := DecodePage(result.Body, result.ContentType)
	if err := p.cache.Set(key, []byte(page), p.ttl); err != nil {
		p.logger.Warn("failed to cache listing page", zap.String("request", req.String()), zap.Error(err))
	}
	return page, nil
}

// NoopPageFetcher returns an empty page for every request. It is selected
// explicitly for offline runs.
type NoopPageFetcher struct{}

// FetchPage always returns ""
func (NoopPageFetcher) FetchPage(context.Context, model.PageRequest) (string, error) {
	return "", nil
}
