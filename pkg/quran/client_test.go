package quran

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"quranchat/internal/retry"
)

// countingTransport fails a fixed number of attempts before delegating.
type countingTransport struct {
	calls    int32
	failures int32
	next     http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&t.calls, 1)
	if n <= t.failures {
		return nil, errors.New("connection refused")
	}
	return t.next.RoundTrip(req)
}

func testPolicy(delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestSearchVersesValidation(t *testing.T) {
	transport := &countingTransport{next: http.DefaultTransport}
	client := NewClient(WithHTTPClient(&http.Client{Transport: transport}))

	cases := []struct {
		name  string
		query string
		page  int
	}{
		{"empty query", "", 1},
		{"whitespace query", "   ", 1},
		{"single rune", "a", 1},
		{"zero page", "mercy", 0},
		{"negative page", "mercy", -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SearchVerses(context.Background(), tc.query, "en", tc.page)
			if KindOf(err) != KindValidation {
				t.Fatalf("expected VALIDATION, got %v", err)
			}
		})
	}
	if transport.calls != 0 {
		t.Fatalf("validation failures must not reach the network, saw %d calls", transport.calls)
	}
}

func TestSurahRangeValidation(t *testing.T) {
	transport := &countingTransport{next: http.DefaultTransport}
	client := NewClient(WithHTTPClient(&http.Client{Transport: transport}))

	for _, surah := range []int{0, -1, 115, 1000} {
		if _, err := client.GetSurah(context.Background(), surah); KindOf(err) != KindValidation {
			t.Fatalf("surah %d: expected VALIDATION, got %v", surah, err)
		}
		if _, err := client.GetAyahDetails(context.Background(), surah, 1, 131); KindOf(err) != KindValidation {
			t.Fatalf("ayah lookup surah %d: expected VALIDATION, got %v", surah, err)
		}
	}
	if _, err := client.GetAyahDetails(context.Background(), 2, 0, 131); KindOf(err) != KindValidation {
		t.Fatal("expected VALIDATION for non-positive ayah")
	}
	if transport.calls != 0 {
		t.Fatalf("validation failures must not reach the network, saw %d calls", transport.calls)
	}
}

func TestSearchVersesRetriesTransientFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"search":{"results":[{"verse_key":"2:255","verse_id":262,"text":"Allah - there is no deity except Him"}]}}`)
	}))
	defer srv.Close()

	var delays []time.Duration
	transport := &countingTransport{failures: 2, next: http.DefaultTransport}
	client := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRetryPolicy(testPolicy(&delays)),
	)

	results, err := client.SearchVerses(context.Background(), "throne", "en", 1)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(results) != 1 || results[0].VerseKey != "2:255" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if transport.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.calls)
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Fatalf("expected delays 2s,4s, got %v", delays)
	}
}

func TestGetSurahDoesNotRetryAPIErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	var delays []time.Duration
	client := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(testPolicy(&delays)))
	_, err := client.GetSurah(context.Background(), 3)
	if KindOf(err) != KindAPI {
		t.Fatalf("expected API error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("API errors are fatal, expected 1 call, got %d", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no retry delays, got %v", delays)
	}
}

func TestGetSurahClassifiesForbiddenAndRateLimit(t *testing.T) {
	status := http.StatusForbidden
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "denied", status)
	}))
	defer srv.Close()

	var delays []time.Duration
	client := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(testPolicy(&delays)))

	if _, err := client.GetSurah(context.Background(), 1); KindOf(err) != KindForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("forbidden must not retry, got %d calls", calls)
	}

	status = http.StatusTooManyRequests
	calls = 0
	if _, err := client.GetSurah(context.Background(), 1); KindOf(err) != KindRateLimit {
		t.Fatalf("expected RATE_LIMIT after budget, got kind %v", KindOf(err))
	}
	if calls != 3 {
		t.Fatalf("rate limit should exhaust the retry budget, got %d calls", calls)
	}
}

func TestGetAyahDetailsMergesScriptText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/verses/by_key/2:255":
			fmt.Fprint(w, `{"verse":{"verse_key":"2:255","translations":[{"text":"Allah - there is no deity except Him<sup foot_note=1>1</sup>."}]}}`)
		case r.URL.Path == "/quran/verses/uthmani":
			fmt.Fprint(w, `{"verses":[{"text_uthmani":"ٱللَّهُ لَآ إِلَـٰهَ إِلَّا هُوَ"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	verse, err := client.GetAyahDetails(context.Background(), 2, 255, 131)
	if err != nil {
		t.Fatalf("get ayah details: %v", err)
	}
	if verse.VerseKey != "2:255" || verse.SurahNumber != 2 || verse.AyahNumber != 255 {
		t.Fatalf("unexpected verse identity: %+v", verse)
	}
	if verse.ArabicText == "" {
		t.Fatal("expected merged uthmani text")
	}
	if verse.Translation != "Allah - there is no deity except Him." {
		t.Fatalf("expected footnote-stripped translation, got %q", verse.Translation)
	}
}

func TestGetAyahDetailsToleratesMissingScriptText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/verses/by_key/1:1":
			fmt.Fprint(w, `{"verse":{"verse_key":"1:1","translations":[{"text":"In the name of Allah"}]}}`)
		case r.URL.Path == "/quran/verses/uthmani":
			fmt.Fprint(w, `{"verses":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	verse, err := client.GetAyahDetails(context.Background(), 1, 1, 131)
	if err != nil {
		t.Fatalf("missing script text must not fail the call: %v", err)
	}
	if verse.ArabicText != "" {
		t.Fatalf("expected empty arabic text, got %q", verse.ArabicText)
	}
	if verse.Translation == "" {
		t.Fatal("expected translation to survive")
	}
}

func TestSearchVersesFallsBackToDefaultLanguage(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("language")
		fmt.Fprint(w, `{"search":{"results":[]}}`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	results, err := client.SearchVerses(context.Background(), "mercy", "xx", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotLang != "en" {
		t.Fatalf("expected fallback language en, got %q", gotLang)
	}
	if len(results) != 0 {
		t.Fatalf("empty result set is a valid outcome, got %+v", results)
	}
}
