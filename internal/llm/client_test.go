package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultHTTPConfig("test-key")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	return srv, NewHTTPClient(cfg)
}

func completionBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}, "finish_reason": "stop"},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, completionBody("  [1,2,3]  "))
	})

	out, err := client.Complete(context.Background(), "classify this", Params{
		Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 2048,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "[1,2,3]" {
		t.Errorf("output %q, want trimmed content", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path %q", gotPath)
	}
	if gotReq.Temperature != 0.1 || gotReq.MaxTokens != 2048 {
		t.Errorf("request params: %+v", gotReq)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "classify this" {
		t.Errorf("prompt not forwarded: %+v", gotReq.Messages)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), "p", Params{})
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("got %v, want RateLimitedError", err)
	}
	if rl.RetryAfter != 30*time.Second {
		t.Errorf("retry-after %v, want 30s", rl.RetryAfter)
	}
	if !IsRateLimited(err) || !IsRetryable(err) {
		t.Error("helpers disagree on rate limit error")
	}
}

func TestCompleteServerError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := client.Complete(context.Background(), "p", Params{})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want ServiceError", err)
	}
	if se.Status != http.StatusBadGateway {
		t.Errorf("status %d", se.Status)
	}
	if IsRateLimited(err) || !IsRetryable(err) {
		t.Error("service errors are retryable but not rate limits")
	}
}

func TestCompleteClientErrorNotRetryable(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Complete(context.Background(), "p", Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Error("4xx (non-429) must not be retryable")
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	})

	_, err := client.Complete(context.Background(), "p", Params{})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want ServiceError for empty choices", err)
	}
}

func TestCompleteNetworkFailureIsRetryable(t *testing.T) {
	srv, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // connection refused from here on

	_, err := client.Complete(context.Background(), "p", Params{})
	if !IsRetryable(err) {
		t.Fatalf("network failure should be retryable, got %v", err)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewHTTPClient(HTTPConfig{BaseURL: "http://localhost:1", Model: "m"})
	if _, err := client.Complete(context.Background(), "p", Params{}); err == nil {
		t.Fatal("missing API key must be rejected before any request")
	}
}
