package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"quranchat/pkg/domain"
	"quranchat/pkg/quran"
)

// QuranAPI is the data-client surface the executor dispatches to.
type QuranAPI interface {
	SearchVerses(ctx context.Context, query, language string, page int) ([]domain.SearchResult, error)
	GetAyahDetails(ctx context.Context, surah, ayah, translationID int) (domain.Verse, error)
	GetSurah(ctx context.Context, id int) (domain.Surah, error)
}

// Executor turns model-issued tool calls into data-client invocations.
// Failures never escape as errors: every outcome is a ToolResult whose
// payload is either data or an {error: ...} marker, so the conversation
// stays alive.
type Executor struct {
	api           QuranAPI
	translationID int
}

// NewExecutor builds an executor over the given data client.
func NewExecutor(api QuranAPI, translationID int) *Executor {
	return &Executor{api: api, translationID: translationID}
}

// Execute dispatches one tool call. The result echoes the call's name and
// args unchanged regardless of outcome.
func (e *Executor) Execute(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	result := domain.ToolResult{Name: call.Name, Args: call.Args}

	name, ok := parseName(call.Name)
	if !ok {
		slog.Warn("unknown tool requested", "tool", call.Name)
		result.Result = errorPayload(fmt.Sprintf("unknown tool %q", call.Name))
		return result
	}

	switch name {
	case SearchVerse:
		result.Result = e.searchVerse(ctx, call.Args)
	case GetAyahDetails:
		result.Result = e.ayahDetails(ctx, call.Args)
	case GetSurahInfo:
		result.Result = e.surahInfo(ctx, call.Args)
	}
	return result
}

func (e *Executor) searchVerse(ctx context.Context, args map[string]any) any {
	query, _ := args["query"].(string)
	language, _ := args["language"].(string)
	page := intArg(args, "page", 1)

	results, err := e.api.SearchVerses(ctx, query, language, page)
	if err != nil {
		slog.Warn("search_verse failed", "err", err)
		return errorPayload("verse search failed: " + publicReason(err))
	}
	if len(results) == 0 {
		// Distinct from an error so the model can answer gracefully
		// instead of inventing verses.
		return map[string]any{
			"message": "No verses matched this search.",
			"results": []domain.SearchResult{},
		}
	}
	return map[string]any{"results": results}
}

func (e *Executor) ayahDetails(ctx context.Context, args map[string]any) any {
	surah := intArg(args, "surah_number", 0)
	ayah := intArg(args, "ayah_number", 0)

	verse, err := e.api.GetAyahDetails(ctx, surah, ayah, e.translationID)
	if err != nil {
		slog.Warn("get_ayah_details failed", "surah", surah, "ayah", ayah, "err", err)
		return errorPayload("verse lookup failed: " + publicReason(err))
	}
	return map[string]any{"verse": verse}
}

func (e *Executor) surahInfo(ctx context.Context, args map[string]any) any {
	surah := intArg(args, "surah_number", 0)

	info, err := e.api.GetSurah(ctx, surah)
	if err != nil {
		slog.Warn("get_surah_info failed", "surah", surah, "err", err)
		return errorPayload("surah lookup failed: " + publicReason(err))
	}
	return map[string]any{"surah": info}
}

func errorPayload(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// publicReason keeps upstream detail out of model-visible error text.
func publicReason(err error) string {
	switch quran.KindOf(err) {
	case quran.KindValidation:
		return "invalid input"
	case quran.KindNetwork:
		return "the reference service is unreachable"
	case quran.KindRateLimit:
		return "the reference service is rate limiting requests"
	case quran.KindForbidden:
		return "access to the reference service was denied"
	default:
		return "the reference service returned an error"
	}
}

// intArg tolerates the number encodings models actually emit: JSON numbers
// decode as float64, and some models quote integers as strings.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}
