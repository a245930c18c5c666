package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/mopscov/internal/analyze"
	"github.com/ppiankov/mopscov/internal/model"
)

func testReport() analyze.AnalysisReport {
	return analyze.AnalysisReport{
		Stats: model.CoverageStats{
			TotalCompanies:       3,
			CompaniesWithReports: 2,
			TotalQuarters:        4,
			FilledCells:          6,
			PossibleCells:        12,
			CoveragePercentage:   50,
			FutureQuarters:       []string{"2025 Q3"},
		},
		QualityScore: 6.5,
		Insights:     []string{"Coverage is moderate"},
		MissingReports: []model.MissingReport{
			{CompanyID: "2330", CompanyName: "台積電", MissingQuarters: []string{"2024 Q2"}, Priority: model.PriorityHigh, ExpectedTypes: "A12/A13"},
		},
		Signals: []model.Signal{
			{Type: model.SignalMissingRecent, Severity: model.SeverityWarning, Description: "1 company missing recent quarters"},
		},
		FutureCandidates: []model.FutureCandidate{{CompanyID: "8069", Quarter: "2025 Q3"}},
		Temporal:         model.TemporalReport{IrregularCompanies: []string{"2330"}},
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}, nil); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestOpenAIProvider_Summarize_Success(t *testing.T) {
	var gotPrompt string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) == 2 {
			gotPrompt = req.Messages[1].Content
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: "  Coverage is 50%. 2330 is missing 2024 Q2.  ",
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 120},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	resp, err := provider.Summarize(context.Background(), SummarizeRequest{Report: testReport()})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if resp.Summary != "Coverage is 50%. 2330 is missing 2024 Q2." {
		t.Errorf("Unexpected summary: %q", resp.Summary)
	}
	if resp.TokensUsed != 120 {
		t.Errorf("Expected 120 tokens, got %d", resp.TokensUsed)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %s", resp.Model)
	}
	if !strings.Contains(gotPrompt, "Filled cells: 6 of 12 (50.0%)") {
		t.Errorf("Default prompt not sent, got: %s", gotPrompt)
	}
}

func TestOpenAIProvider_Summarize_CustomPrompt(t *testing.T) {
	var gotPrompt string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Messages[len(req.Messages)-1].Content
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
		})
	})

	if _, err := provider.Summarize(context.Background(), SummarizeRequest{Prompt: "custom"}); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if gotPrompt != "custom" {
		t.Errorf("Expected custom prompt, got %q", gotPrompt)
	}
}

func TestOpenAIProvider_Summarize_APIError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	})

	_, err := provider.Summarize(context.Background(), SummarizeRequest{Report: testReport()})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "OpenAI API error") {
		t.Errorf("Expected wrapped API error, got %v", err)
	}
}

func TestOpenAIProvider_Summarize_RateLimit(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`))
	})

	if _, err := provider.Summarize(context.Background(), SummarizeRequest{Report: testReport()}); err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestOpenAIProvider_Summarize_MalformedJSON(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{malformed json`))
	})

	if _, err := provider.Summarize(context.Background(), SummarizeRequest{Report: testReport()}); err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
}

func TestOpenAIProvider_Summarize_NoChoices(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	})

	_, err := provider.Summarize(context.Background(), SummarizeRequest{Report: testReport()})
	if err == nil || !strings.Contains(err.Error(), "no response") {
		t.Fatalf("Expected no response error, got %v", err)
	}
}

func TestOpenAIProvider_Summarize_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	// The caller's deadline wins over the configured timeout
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := provider.Summarize(ctx, SummarizeRequest{Report: testReport()}); err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Summarize ignored the context deadline (took %v)", elapsed)
	}
}

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected path /models, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`))
	})
	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be available")
	}

	down := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	})
	if down.IsAvailable(context.Background()) {
		t.Error("Expected provider to be unavailable on 401")
	}
}
