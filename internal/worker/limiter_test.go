package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5, 0)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1, 0)
	if l2.defaultBurst != 1 {
		t.Errorf("expected default burst 1 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1, 0)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://doc.twse.com.tw/server-java/t57sb01"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "https://mops.twse.com.tw"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_FixedDelay(t *testing.T) {
	limiter := NewLimiter(100, 1, 50*time.Millisecond)

	start := time.Now()
	if err := limiter.Wait(context.Background(), "https://doc.twse.com.tw"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("expected delay >= 50ms, got %v", d)
	}
}

func TestLimiter_CancelledDuringDelay(t *testing.T) {
	limiter := NewLimiter(100, 1, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "https://doc.twse.com.tw"); err == nil {
		t.Error("expected context error")
	}
}

func TestLimiter_PerHostBuckets(t *testing.T) {
	limiter := NewLimiter(1, 1, 0)
	host := "https://doc.twse.com.tw"

	if err := limiter.Wait(context.Background(), host); err != nil {
		t.Errorf("first wait failed: %v", err)
	}
	if limiter.Allow(host) {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}
	if !limiter.Allow("https://other.example.com") {
		t.Errorf("expected allow for other host")
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	limiter := NewLimiter(10, 10, 0)
	limiter.SetHostRate("slow.example.com", 0.1, 1)

	if !limiter.Allow("http://slow.example.com") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("http://slow.example.com") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("http://fast.example.com") {
		t.Errorf("other host should pass")
	}
}

func TestHostOf(t *testing.T) {
	host, err := hostOf("https://doc.twse.com.tw/pdf/x.pdf")
	if err != nil {
		t.Fatalf("hostOf failed: %v", err)
	}
	if host != "doc.twse.com.tw" {
		t.Errorf("expected doc.twse.com.tw, got %s", host)
	}

	if _, err := hostOf("::invalid"); err == nil {
		t.Errorf("expected error for invalid URL")
	}
	if _, err := hostOf("/relative/path"); err == nil {
		t.Errorf("expected error for URL without host")
	}
}
