package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewGeminiClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetBaseURL(srv.URL)
	return client, srv
}

func TestGenerateContentParsesFunctionCalls(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[
			{"functionCall":{"name":"search_verse","args":{"query":"patience"}}},
			{"functionCall":{"name":"get_surah_info","args":{"surah_number":2}}}
		]}}]}`)
	})

	content, err := client.GenerateContent(context.Background(), "gemini-2.0-flash", GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "verses about patience"}}}},
	})
	if err != nil {
		t.Fatalf("generate content: %v", err)
	}
	calls := FunctionCallsOf(content)
	if len(calls) != 2 {
		t.Fatalf("expected 2 function calls, got %d", len(calls))
	}
	if calls[0].Name != "search_verse" || calls[0].Args["query"] != "patience" {
		t.Fatalf("unexpected first call: %+v", calls[0])
	}
	if TextOf(content) != "" {
		t.Fatalf("expected no text parts, got %q", TextOf(content))
	}
}

func TestGenerateContentMapsQuotaAndRateLimit(t *testing.T) {
	body := `{"error":{"message":"Quota exceeded for requests per day","status":"RESOURCE_EXHAUSTED"}}`
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, body)
	})

	_, err := client.GenerateContent(context.Background(), "gemini-2.0-flash", GenerateRequest{})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}

	body = `{"error":{"message":"slow down","status":"UNAVAILABLE"}}`
	_, err = client.GenerateContent(context.Background(), "gemini-2.0-flash", GenerateRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
}

func TestGenerateContentMapsForbidden(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	})
	_, err := client.GenerateContent(context.Background(), "gemini-2.0-flash", GenerateRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestGenerateImageRefusal(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"I cannot draw that."}]}}]}`)
	})
	_, err := client.GenerateImage(context.Background(), "gemini-2.0-flash-exp", "calligraphy")
	if !errors.Is(err, ErrImageRefused) {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestGenerateImageReturnsInlineData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"aGVsbG8="}}]}}]}`)
	})
	img, err := client.GenerateImage(context.Background(), "gemini-2.0-flash-exp", "mosque at dawn")
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if img.MimeType != "image/png" || img.Data != "aGVsbG8=" {
		t.Fatalf("unexpected inline data: %+v", img)
	}
}
