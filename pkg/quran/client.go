package quran

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quranchat/internal/retry"
	"quranchat/pkg/domain"
)

const (
	defaultBaseURL        = "https://api.quran.com/api/v4"
	defaultTranslationID  = 131
	defaultLanguage       = "en"
	defaultSearchPageSize = 10
	requestTimeout        = 10 * time.Second
)

var supportedLanguages = map[string]struct{}{
	"en": {}, "ar": {}, "ru": {}, "fr": {}, "id": {}, "ur": {}, "tr": {}, "bn": {},
}

// Client wraps the Quran reference REST API: input validation up front,
// bounded retries with exponential backoff, per-attempt timeout, normalized
// response shapes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy overrides the retry budget. The retryable predicate is
// always the client's transient-failure classification.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		p.Retryable = Retryable
		c.policy = p
	}
}

// NewClient constructs a client with the default retry budget
// (3 attempts, 2s base delay, doubling).
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		policy:     retry.DefaultPolicy(Retryable),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchVerses runs a verse search. The query must be at least 2 characters
// after trimming; an unsupported language falls back to the default; page
// must be positive. An empty result list is a valid outcome.
func (c *Client) SearchVerses(ctx context.Context, query, language string, page int) ([]domain.SearchResult, error) {
	query = sanitizeQuery(query)
	if len([]rune(query)) < 2 {
		return nil, validationError("search", "query must be at least 2 characters")
	}
	if page < 1 {
		return nil, validationError("search", "page must be a positive integer")
	}
	language = normalizeLanguage(language)

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", language)
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(defaultSearchPageSize))

	var payload struct {
		Search struct {
			Results []struct {
				VerseKey    string `json:"verse_key"`
				VerseID     int    `json:"verse_id"`
				Text        string `json:"text"`
				Highlighted string `json:"highlighted"`
			} `json:"results"`
		} `json:"search"`
	}
	if err := c.getJSON(ctx, "search", "/search?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(payload.Search.Results))
	for _, r := range payload.Search.Results {
		results = append(results, domain.SearchResult{
			VerseKey:    r.VerseKey,
			VerseID:     r.VerseID,
			Text:        r.Text,
			Highlighted: r.Highlighted,
		})
	}
	return results, nil
}

// GetAyahDetails fetches one verse with its translation, then the canonical
// uthmani script text, and merges them. A missing script text degrades to an
// empty string rather than failing the call. The ayah upper bound is left to
// the API; only positivity is checked locally.
func (c *Client) GetAyahDetails(ctx context.Context, surah, ayah, translationID int) (domain.Verse, error) {
	if surah < 1 || surah > 114 {
		return domain.Verse{}, validationError("ayah", "surah number must be between 1 and 114")
	}
	if ayah < 1 {
		return domain.Verse{}, validationError("ayah", "ayah number must be a positive integer")
	}
	if translationID <= 0 {
		translationID = defaultTranslationID
	}
	verseKey := fmt.Sprintf("%d:%d", surah, ayah)

	var versePayload struct {
		Verse struct {
			VerseKey     string `json:"verse_key"`
			Translations []struct {
				Text string `json:"text"`
			} `json:"translations"`
		} `json:"verse"`
	}
	path := fmt.Sprintf("/verses/by_key/%s?translations=%d", verseKey, translationID)
	if err := c.getJSON(ctx, "ayah", path, &versePayload); err != nil {
		return domain.Verse{}, err
	}

	verse := domain.Verse{
		VerseKey:    verseKey,
		SurahNumber: surah,
		AyahNumber:  ayah,
	}
	if len(versePayload.Verse.Translations) > 0 {
		verse.Translation = stripFootnotes(versePayload.Verse.Translations[0].Text)
	}

	var scriptPayload struct {
		Verses []struct {
			TextUthmani string `json:"text_uthmani"`
		} `json:"verses"`
	}
	scriptPath := "/quran/verses/uthmani?verse_key=" + url.QueryEscape(verseKey)
	if err := c.getJSON(ctx, "ayah_script", scriptPath, &scriptPayload); err == nil && len(scriptPayload.Verses) > 0 {
		verse.ArabicText = scriptPayload.Verses[0].TextUthmani
	}
	return verse, nil
}

// GetSurah fetches metadata for a single chapter.
func (c *Client) GetSurah(ctx context.Context, id int) (domain.Surah, error) {
	if id < 1 || id > 114 {
		return domain.Surah{}, validationError("surah", "surah number must be between 1 and 114")
	}
	var payload struct {
		Chapter chapterPayload `json:"chapter"`
	}
	path := fmt.Sprintf("/chapters/%d?language=%s", id, defaultLanguage)
	if err := c.getJSON(ctx, "surah", path, &payload); err != nil {
		return domain.Surah{}, err
	}
	return payload.Chapter.toDomain(), nil
}

// GetSurahs lists all 114 chapters.
func (c *Client) GetSurahs(ctx context.Context) ([]domain.Surah, error) {
	var payload struct {
		Chapters []chapterPayload `json:"chapters"`
	}
	if err := c.getJSON(ctx, "surahs", "/chapters?language="+defaultLanguage, &payload); err != nil {
		return nil, err
	}
	out := make([]domain.Surah, 0, len(payload.Chapters))
	for _, ch := range payload.Chapters {
		out = append(out, ch.toDomain())
	}
	return out, nil
}

type chapterPayload struct {
	ID             int    `json:"id"`
	NameSimple     string `json:"name_simple"`
	NameArabic     string `json:"name_arabic"`
	TranslatedName struct {
		Name string `json:"name"`
	} `json:"translated_name"`
	RevelationPlace string `json:"revelation_place"`
	VersesCount     int    `json:"verses_count"`
}

func (p chapterPayload) toDomain() domain.Surah {
	return domain.Surah{
		ID:              p.ID,
		NameSimple:      p.NameSimple,
		NameArabic:      p.NameArabic,
		TranslatedName:  p.TranslatedName.Name,
		RevelationPlace: p.RevelationPlace,
		VersesCount:     p.VersesCount,
	}
}

// getJSON performs one API call under the retry policy. Each attempt races
// against the per-request timeout; a timeout counts as a network failure.
func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return newError(KindUnknown, op, err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return newError(KindNetwork, op, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return newError(KindRateLimit, op, fmt.Errorf("rate limited: %s", resp.Status))
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return newError(KindForbidden, op, fmt.Errorf("access denied: %s", resp.Status))
		case resp.StatusCode >= 400:
			return newError(KindAPI, op, fmt.Errorf("unexpected status: %s", resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return newError(KindAPI, op, fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func sanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	// Strip characters that break the search endpoint's query parser.
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '{', '}', '\\':
			return -1
		}
		return r
	}, q)
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := supportedLanguages[lang]; ok {
		return lang
	}
	return defaultLanguage
}

// stripFootnotes removes inline <sup> footnote markers translations carry.
func stripFootnotes(s string) string {
	for {
		start := strings.Index(s, "<sup")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "</sup>")
		if end < 0 {
			return s[:start]
		}
		s = s[:start] + s[start+end+len("</sup>"):]
	}
}
