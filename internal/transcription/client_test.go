package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	client, err := NewClient(Config{Endpoint: "http://localhost:8000"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	// Defaults are applied for unset fields.
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.config.Timeout)
	}
	if client.config.MaxConcurrent != 10 {
		t.Errorf("Expected default max concurrent 10, got %d", client.config.MaxConcurrent)
	}
}

func TestTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if req.AudioRef != "http://store/chunk0.webm" {
			t.Errorf("Unexpected audio ref: %s", req.AudioRef)
		}
		if req.Language != "ko-KR" {
			t.Errorf("Expected default language applied, got %s", req.Language)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Unexpected authorization header: %s", auth)
		}

		json.NewEncoder(w).Encode(Response{
			Transcript: "hello world",
			Confidence: 0.95,
			Duration:   10.0,
			Speakers: []transcript.SpeakerSegment{
				{Text: "hello world", StartTime: 0, EndTime: 10, SpeakerTag: 1},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint: server.URL,
		APIKey:   "secret",
		Language: "ko-KR",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Transcribe(context.Background(), &Request{
		AudioRef:   "http://store/chunk0.webm",
		MimeType:   "audio/webm",
		CanvasID:   "canvas-1",
		ChunkIndex: 0,
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if resp.Transcript != "hello world" || len(resp.Speakers) != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestTranscribeRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporary failure", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Response{Transcript: "ok", Duration: 1.0})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Transcribe(context.Background(), &Request{AudioRef: "ref"})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if resp.Transcript != "ok" {
		t.Errorf("Unexpected transcript: %s", resp.Transcript)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}

	if client.GetStats().TotalRetries != 1 {
		t.Errorf("Expected 1 retry recorded, got %d", client.GetStats().TotalRetries)
	}
}

func TestTranscribeDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio reference", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), &Request{AudioRef: "ref"}); err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected no retries on a client error, got %d attempts", calls.Load())
	}

	if client.GetStats().FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", client.GetStats().FailedRequests)
	}
}

func TestIsRetryableError(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost:8000"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	tests := []struct {
		errMsg    string
		retryable bool
	}{
		{"HTTP error 500: internal", true},
		{"HTTP error 503: unavailable", true},
		{"HTTP error 429: slow down", true},
		{"HTTP error 400: bad request", false},
		{"HTTP error 404: not found", false},
		{"connection refused", true},
		{"request timeout exceeded", true},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			if got := client.isRetryableError(errString(tt.errMsg)); got != tt.retryable {
				t.Errorf("Expected retryable=%v for %q", tt.retryable, tt.errMsg)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
