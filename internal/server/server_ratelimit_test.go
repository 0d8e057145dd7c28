package server

import (
	"net/http"
	"testing"
	"time"

	"quranchat/internal/ratelimit"
)

func TestChatRateLimitPerClientIP(t *testing.T) {
	limiter, err := ratelimit.NewMemoryLimiter(30, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	s := newTestServer(t, testServerOptions{cfg: func(c *Config) { c.ChatLimiter = limiter }})
	headers := map[string]string{"X-Anonymous-Id": "anon-1"}
	body := map[string]string{"sessionId": "s1", "message": "salam"}

	for i := 0; i < 30; i++ {
		rec := postJSON(t, s.Router(), "/api/chat", body, headers)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := postJSON(t, s.Router(), "/api/chat", body, headers)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("31st request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestImageRateLimitIsSeparate(t *testing.T) {
	chatLimiter, err := ratelimit.NewMemoryLimiter(30, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	imageLimiter, err := ratelimit.NewMemoryLimiter(5, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	s := newTestServer(t, testServerOptions{cfg: func(c *Config) {
		c.ChatLimiter = chatLimiter
		c.ImageLimiter = imageLimiter
	}})
	headers := map[string]string{"X-Anonymous-Id": "anon-1"}

	for i := 0; i < 5; i++ {
		rec := postJSON(t, s.Router(), "/api/image", map[string]any{"theme": "mercy"}, headers)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d: unexpectedly rate limited", i+1)
		}
	}
	rec := postJSON(t, s.Router(), "/api/image", map[string]any{"theme": "mercy"}, headers)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th image request: status = %d, want 429", rec.Code)
	}

	rec = postJSON(t, s.Router(), "/api/chat", map[string]string{"sessionId": "s1", "message": "salam"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat after image limit: status = %d, want 200", rec.Code)
	}
}
