package tools

import "quranchat/pkg/ai"

// Name is the closed set of tool identifiers the model may call.
type Name string

const (
	SearchVerse    Name = "search_verse"
	GetAyahDetails Name = "get_ayah_details"
	GetSurahInfo   Name = "get_surah_info"
)

// parseName maps a model-issued string onto the closed set.
func parseName(s string) (Name, bool) {
	switch Name(s) {
	case SearchVerse, GetAyahDetails, GetSurahInfo:
		return Name(s), true
	}
	return "", false
}

// Declarations returns the function schemas advertised to the model.
func Declarations() []ai.FunctionDeclaration {
	return []ai.FunctionDeclaration{
		{
			Name:        string(SearchVerse),
			Description: "Search Quran verses by keyword or phrase. Returns matching verses with their keys and translated text.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search text, at least 2 characters.",
					},
					"language": map[string]any{
						"type":        "string",
						"description": "Two-letter translation language code, e.g. en, ar, ru.",
					},
					"page": map[string]any{
						"type":        "integer",
						"description": "Result page number, starting at 1.",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        string(GetAyahDetails),
			Description: "Fetch a single verse (ayah) with its Arabic text and translation, addressed by surah and ayah numbers.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surah_number": map[string]any{
						"type":        "integer",
						"description": "Chapter number, 1 to 114.",
					},
					"ayah_number": map[string]any{
						"type":        "integer",
						"description": "Verse number within the chapter, starting at 1.",
					},
				},
				"required": []string{"surah_number", "ayah_number"},
			},
		},
		{
			Name:        string(GetSurahInfo),
			Description: "Fetch metadata about a chapter (surah): names, revelation place, verse count.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surah_number": map[string]any{
						"type":        "integer",
						"description": "Chapter number, 1 to 114.",
					},
				},
				"required": []string{"surah_number"},
			},
		},
	}
}
