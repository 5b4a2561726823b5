// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// DefaultMaxImages is the per-turn image cap.
const DefaultMaxImages = 10

// System prompt preamble injected ahead of the conversation. Not every model
// has a native system role, so the instruction travels as an ordinary pair.
const (
	systemPromptHeader = "[System instructions]\n"
	systemPromptAck    = "Understood. I will follow these instructions."
)

// imageDataURLPattern matches base64 image data URLs and captures the subtype.
var imageDataURLPattern = regexp.MustCompile(`^data:image/([A-Za-z0-9.+-]+);base64,[A-Za-z0-9+/=\s]+$`)

// NormalizeOptions controls Normalize.
type NormalizeOptions struct {
	// SystemPrompt, when non-blank, is prepended as a user/assistant pair.
	SystemPrompt string
	// MaxImages caps images per user turn. Zero or negative uses DefaultMaxImages.
	MaxImages int
}

// Normalize cleans a conversation for sending. Text is trimmed and NFC
// normalized, invalid or excess images are dropped, images on assistant
// turns are dropped, and turns left with neither text nor images are
// removed. The input slice is not modified.
func Normalize(turns []model.Turn, opts NormalizeOptions) []model.Turn {
	maxImages := opts.MaxImages
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}

	out := make([]model.Turn, 0, len(turns)+2)
	if prompt := strings.TrimSpace(opts.SystemPrompt); prompt != "" {
		out = append(out,
			model.NewUserTurn(systemPromptHeader+norm.NFC.String(prompt)),
			model.NewAssistantTurn(systemPromptAck),
		)
	}

	for _, t := range turns {
		role := t.Role
		if role != model.RoleAssistant {
			role = model.RoleUser
		}
		clean := model.Turn{
			Role: role,
			Text: norm.NFC.String(strings.TrimSpace(t.Text)),
		}
		if role == model.RoleUser {
			clean.Images = normalizeImages(t.Images, maxImages)
		}
		if clean.IsEmpty() {
			continue
		}
		out = append(out, clean)
	}
	return out
}

// normalizeImages keeps at most max valid images, in order.
func normalizeImages(images []model.Image, max int) []model.Image {
	if len(images) == 0 {
		return nil
	}
	var kept []model.Image
	for _, img := range images {
		if len(kept) >= max {
			break
		}
		clean, ok := normalizeImage(img)
		if !ok {
			continue
		}
		kept = append(kept, clean)
	}
	return kept
}

// normalizeImage validates the data URL and MIME type. An empty MIME type is
// inferred from the data URL.
func normalizeImage(img model.Image) (model.Image, bool) {
	url := strings.TrimSpace(img.DataURL)
	m := imageDataURLPattern.FindStringSubmatch(url)
	if m == nil {
		return model.Image{}, false
	}

	mime := strings.ToLower(strings.TrimSpace(img.MimeType))
	if mime == "" {
		mime = "image/" + strings.ToLower(m[1])
	}
	if !strings.HasPrefix(mime, "image/") {
		return model.Image{}, false
	}

	return model.Image{
		DataURL:  url,
		MimeType: mime,
		Name:     strings.TrimSpace(img.Name),
	}, true
}

// lastText returns the text of the last turn, or "".
func lastText(turns []model.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	return strings.TrimSpace(turns[len(turns)-1].Text)
}
