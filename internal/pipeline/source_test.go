package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/mopscov/internal/cache"
	"github.com/ppiankov/mopscov/internal/model"
)

func TestListingURL(t *testing.T) {
	base := "https://doc.twse.com.tw/server-java/t57sb01"

	raw := ListingURL(base, model.NewPageRequest("2330", 2024, 2))
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	q := u.Query()
	expected := map[string]string{
		"step":     "1",
		"colorchg": "1",
		"co_id":    "2330",
		"year":     "113",
		"seamon":   "2",
		"mtype":    "A",
	}
	for k, v := range expected {
		if q.Get(k) != v {
			t.Errorf("param %s: expected %q, got %q", k, v, q.Get(k))
		}
	}

	whole, _ := url.Parse(ListingURL(base, model.NewPageRequest("2330", 2024, 0)))
	if whole.Query().Get("seamon") != "" {
		t.Errorf("expected empty seamon for a whole-year request, got %q", whole.Query().Get("seamon"))
	}
}

func TestHTTPPageFetcher_CachesSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("co_id") != "2330" {
			t.Errorf("unexpected co_id %q", r.URL.Query().Get("co_id"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html>listing</html>")
	}))
	defer server.Close()

	pages := NewHTTPPageFetcher(newTestFetcher(t), server.URL+"/server-java/t57sb01",
		cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)
	req := model.NewPageRequest("2330", 2024, 1)

	for i := 0; i < 3; i++ {
		page, err := pages.FetchPage(context.Background(), req)
		if err != nil {
			t.Fatalf("FetchPage failed: %v", err)
		}
		if page != "<html>listing</html>" {
			t.Errorf("unexpected page %q", page)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits.Load())
	}
}

func TestHTTPPageFetcher_FailuresNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	pages := NewHTTPPageFetcher(newTestFetcher(t), server.URL, c, time.Minute, nil)
	req := model.NewPageRequest("2330", 2024, 1)

	if _, err := pages.FetchPage(context.Background(), req); err == nil {
		t.Fatal("expected error for 403")
	}
	if _, ok := c.Get(cache.PageKey(req)); ok {
		t.Error("a failed fetch must not be cached")
	}
	if _, err := pages.FetchPage(context.Background(), req); err != nil {
		t.Errorf("expected second fetch to succeed, got %v", err)
	}
}

func TestNoopPageFetcher(t *testing.T) {
	page, err := NoopPageFetcher{}.FetchPage(context.Background(), model.NewPageRequest("2330", 2024, 1))
	if err != nil || page != "" {
		t.Errorf("expected empty page and nil error, got %q, %v", page, err)
	}
}
