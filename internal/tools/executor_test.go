package tools

import (
	"context"
	"testing"

	"quranchat/pkg/domain"
	"quranchat/pkg/quran"
)

type fakeAPI struct {
	searchResults []domain.SearchResult
	searchErr     error
	verse         domain.Verse
	verseErr      error
	surah         domain.Surah
	surahErr      error

	gotQuery string
	gotSurah int
	gotAyah  int
}

func (f *fakeAPI) SearchVerses(_ context.Context, query, _ string, _ int) ([]domain.SearchResult, error) {
	f.gotQuery = query
	return f.searchResults, f.searchErr
}

func (f *fakeAPI) GetAyahDetails(_ context.Context, surah, ayah, _ int) (domain.Verse, error) {
	f.gotSurah, f.gotAyah = surah, ayah
	return f.verse, f.verseErr
}

func (f *fakeAPI) GetSurah(_ context.Context, id int) (domain.Surah, error) {
	f.gotSurah = id
	return f.surah, f.surahErr
}

func errorOf(t *testing.T, res domain.ToolResult) string {
	t.Helper()
	payload, ok := res.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", res.Result)
	}
	msg, _ := payload["error"].(string)
	return msg
}

func TestExecuteUnknownToolIsStructuredError(t *testing.T) {
	exec := NewExecutor(&fakeAPI{}, 131)
	call := domain.ToolCall{Name: "summon_djinn", Args: map[string]any{"x": 1}}
	res := exec.Execute(context.Background(), call)
	if res.Name != call.Name {
		t.Fatalf("result must echo call name, got %q", res.Name)
	}
	if errorOf(t, res) == "" {
		t.Fatal("expected an error payload for unknown tool")
	}
}

func TestExecuteEchoesNameAndArgs(t *testing.T) {
	api := &fakeAPI{surah: domain.Surah{ID: 2, NameSimple: "Al-Baqarah"}}
	exec := NewExecutor(api, 131)
	args := map[string]any{"surah_number": float64(2)}
	res := exec.Execute(context.Background(), domain.ToolCall{Name: "get_surah_info", Args: args})
	if res.Name != "get_surah_info" {
		t.Fatalf("name not echoed: %q", res.Name)
	}
	if got := res.Args["surah_number"]; got != float64(2) {
		t.Fatalf("args not echoed unchanged: %v", got)
	}
	if api.gotSurah != 2 {
		t.Fatalf("expected surah 2 dispatched, got %d", api.gotSurah)
	}
}

func TestExecuteSearchZeroResultsIsBenign(t *testing.T) {
	exec := NewExecutor(&fakeAPI{searchResults: nil}, 131)
	res := exec.Execute(context.Background(), domain.ToolCall{
		Name: "search_verse",
		Args: map[string]any{"query": "xyzzy"},
	})
	payload, ok := res.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", res.Result)
	}
	if _, hasErr := payload["error"]; hasErr {
		t.Fatal("zero results must not be an error")
	}
	if payload["message"] == "" {
		t.Fatal("expected a no-results message for the model")
	}
}

func TestExecuteSearchFailureBecomesErrorPayload(t *testing.T) {
	api := &fakeAPI{searchErr: &quran.Error{Kind: quran.KindNetwork, Op: "search"}}
	exec := NewExecutor(api, 131)
	res := exec.Execute(context.Background(), domain.ToolCall{
		Name: "search_verse",
		Args: map[string]any{"query": "mercy"},
	})
	if errorOf(t, res) == "" {
		t.Fatal("expected error payload, not a propagated error")
	}
}

func TestExecuteAyahDetailsCoercesNumericArgs(t *testing.T) {
	api := &fakeAPI{verse: domain.Verse{VerseKey: "2:255"}}
	exec := NewExecutor(api, 131)
	res := exec.Execute(context.Background(), domain.ToolCall{
		Name: "get_ayah_details",
		Args: map[string]any{"surah_number": float64(2), "ayah_number": "255"},
	})
	if api.gotSurah != 2 || api.gotAyah != 255 {
		t.Fatalf("expected coerced args 2/255, got %d/%d", api.gotSurah, api.gotAyah)
	}
	payload := res.Result.(map[string]any)
	verse, ok := payload["verse"].(domain.Verse)
	if !ok || verse.VerseKey != "2:255" {
		t.Fatalf("unexpected verse payload: %+v", payload)
	}
}

func TestDeclarationsCoverClosedSet(t *testing.T) {
	decls := Declarations()
	if len(decls) != 3 {
		t.Fatalf("expected 3 declarations, got %d", len(decls))
	}
	seen := map[string]bool{}
	for _, d := range decls {
		seen[d.Name] = true
		if d.Description == "" {
			t.Fatalf("tool %s missing description", d.Name)
		}
	}
	for _, name := range []Name{SearchVerse, GetAyahDetails, GetSurahInfo} {
		if !seen[string(name)] {
			t.Fatalf("missing declaration for %s", name)
		}
	}
}
