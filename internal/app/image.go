package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quranchat/pkg/ai"
)

const maxThemeRunes = 200

// ErrImageDisabled indicates no image model was configured.
var ErrImageDisabled = errors.New("image generation not configured")

// GenerateVerseImage renders an abstract illustration for a verse or theme
// and returns it as a data URI. Cached verse images are served without a
// model call; a model refusal is retried exactly once before failing.
func (a *App) GenerateVerseImage(ctx context.Context, theme string, surah, ayah int) (string, error) {
	if a.image == nil {
		return "", ErrImageDisabled
	}
	theme = strings.TrimSpace(theme)
	if len([]rune(theme)) > maxThemeRunes {
		return "", ErrThemeTooLong
	}

	cacheable := a.cache != nil && surah > 0 && ayah > 0
	if cacheable {
		if data, contentType, ok := a.cache.Get(ctx, surah, ayah); ok {
			return dataURI(contentType, base64.StdEncoding.EncodeToString(data)), nil
		}
	}

	prompt := imagePrompt(theme, surah, ayah)
	img, err := a.image.GenerateImage(ctx, a.imageModel, prompt)
	if errors.Is(err, ai.ErrImageRefused) {
		// One retry covers transient refusals; a second refusal means
		// the prompt itself is being declined.
		img, err = a.image.GenerateImage(ctx, a.imageModel, prompt)
	}
	if err != nil {
		return "", fmt.Errorf("generate verse image: %w", err)
	}

	if cacheable {
		raw, decodeErr := base64.StdEncoding.DecodeString(img.Data)
		if decodeErr != nil {
			slog.Warn("image payload not base64, skipping cache", "err", decodeErr)
		} else if err := a.cache.Put(ctx, surah, ayah, raw, img.MimeType); err != nil {
			slog.Warn("image cache write failed", "surah", surah, "ayah", ayah, "err", err)
		}
	}
	return dataURI(img.MimeType, img.Data), nil
}

func dataURI(contentType, base64Data string) string {
	if contentType == "" {
		contentType = "image/png"
	}
	return "data:" + contentType + ";base64," + base64Data
}

func imagePrompt(theme string, surah, ayah int) string {
	var sb strings.Builder
	sb.WriteString("Create a serene, abstract, non-figurative illustration inspired by Islamic geometric art and calligraphy.")
	sb.WriteString(" Do not depict people, animals, or religious figures.")
	if theme != "" {
		sb.WriteString(" Theme: ")
		sb.WriteString(theme)
		sb.WriteString(".")
	}
	if surah > 0 && ayah > 0 {
		fmt.Fprintf(&sb, " The mood should reflect Quran %d:%d.", surah, ayah)
	}
	return sb.String()
}
