// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"strings"
	"unicode/utf8"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// =============================================================================
// CHAT REQUEST PAYLOAD
// =============================================================================

// Wire constants for the GENERIC chat request format.
const (
	APIFormatGeneric = "GENERIC"

	MessageRoleUser      = "USER"
	MessageRoleAssistant = "ASSISTANT"

	ContentTypeText  = "TEXT"
	ContentTypeImage = "IMAGE"
)

// Variant shape names.
const (
	ShapeRoleHistory = "role-history"
	ShapeTranscript  = "single-user-transcript"
)

// Transcript flattening limits.
const (
	TranscriptMaxTurns = 12
	TranscriptMaxChars = 6000
)

// ChatRequest is the GENERIC chat request payload.
type ChatRequest struct {
	APIFormat        string    `json:"apiFormat"`
	Messages         []Message `json:"messages"`
	IsStream         bool      `json:"isStream"`
	MaxTokens        int       `json:"maxTokens"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"topP"`
	TopK             *int      `json:"topK,omitempty"`
	FrequencyPenalty *float64  `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64  `json:"presencePenalty,omitempty"`
}

// Message is one role-tagged message.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is a TEXT or IMAGE content block. Text is a pointer so an empty
// text block still serializes its "text" field.
type Content struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *ImageURL `json:"imageUrl,omitempty"`
}

// ImageURL wraps an image data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// TextContent returns a TEXT block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: &text}
}

// ImageContent returns an IMAGE block.
func ImageContent(dataURL string) Content {
	return Content{Type: ContentTypeImage, ImageURL: &ImageURL{URL: dataURL}}
}

// clone returns a deep copy so callers can't reach into a Variant.
func (r ChatRequest) clone() ChatRequest {
	c := r
	c.Messages = make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		blocks := make([]Content, len(m.Content))
		for j, b := range m.Content {
			if b.Text != nil {
				text := *b.Text
				b.Text = &text
			}
			if b.ImageURL != nil {
				u := *b.ImageURL
				b.ImageURL = &u
			}
			blocks[j] = b
		}
		c.Messages[i] = Message{Role: m.Role, Content: blocks}
	}
	if r.TopK != nil {
		c.TopK = intPtr(*r.TopK)
	}
	if r.FrequencyPenalty != nil {
		c.FrequencyPenalty = floatPtr(*r.FrequencyPenalty)
	}
	if r.PresencePenalty != nil {
		c.PresencePenalty = floatPtr(*r.PresencePenalty)
	}
	return c
}

// =============================================================================
// VARIANT
// =============================================================================

// Variant is one candidate request shape. It is immutable once built.
type Variant struct {
	name    string
	request ChatRequest
}

// Name returns the stable diagnostic name, e.g. "google:role-history".
func (v Variant) Name() string {
	return v.name
}

// Request returns a copy of the payload.
func (v Variant) Request() ChatRequest {
	return v.request.clone()
}

// WithStream returns a copy of the variant with isStream set.
func (v Variant) WithStream(stream bool) Variant {
	c := Variant{name: v.name, request: v.request.clone()}
	c.request.IsStream = stream
	return c
}

// VariantName joins a family and a shape.
func VariantName(f ModelFamily, shape string) string {
	return f.String() + ":" + shape
}

// BuildVariants returns the candidate shapes for a model in priority order:
// role history first, then the flattened transcript. Turns should already be
// normalized.
func BuildVariants(modelName string, turns []model.Turn, overrides model.GenerationOverrides) []Variant {
	family := FamilyOf(modelName)
	sampling := SamplingFor(family, overrides)

	return []Variant{
		{
			name:    VariantName(family, ShapeRoleHistory),
			request: newChatRequest(roleHistoryMessages(turns), sampling),
		},
		{
			name:    VariantName(family, ShapeTranscript),
			request: newChatRequest(transcriptMessages(turns), sampling),
		},
	}
}

func newChatRequest(messages []Message, s Sampling) ChatRequest {
	return ChatRequest{
		APIFormat:        APIFormatGeneric,
		Messages:         messages,
		IsStream:         true,
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
	}
}

func wireRole(r model.Role) string {
	if r == model.RoleAssistant {
		return MessageRoleAssistant
	}
	return MessageRoleUser
}

// roleHistoryMessages maps each turn to one message: text block first, then
// image blocks for user turns. A turn with nothing yields one empty text block.
func roleHistoryMessages(turns []model.Turn) []Message {
	messages := make([]Message, 0, len(turns))
	for _, t := range turns {
		var blocks []Content
		if t.Text != "" {
			blocks = append(blocks, TextContent(t.Text))
		}
		if t.Role != model.RoleAssistant {
			for _, img := range t.Images {
				blocks = append(blocks, ImageContent(img.DataURL))
			}
		}
		if len(blocks) == 0 {
			blocks = []Content{TextContent("")}
		}
		messages = append(messages, Message{Role: wireRole(t.Role), Content: blocks})
	}
	return messages
}

// transcriptMessages flattens the most recent turns into a single USER
// message. Oldest lines are dropped until the transcript fits
// TranscriptMaxChars; the newest line is always kept. Images from the most
// recent user turn in the window follow the text.
func transcriptMessages(turns []model.Turn) []Message {
	window := turns
	if len(window) > TranscriptMaxTurns {
		window = window[len(window)-TranscriptMaxTurns:]
	}

	lines := make([]string, 0, len(window))
	for _, t := range window {
		text := t.Text
		if text == "" && len(t.Images) > 0 {
			text = "[image]"
		}
		lines = append(lines, t.Role.DisplayName()+": "+text)
	}
	lines = fitTranscript(lines, TranscriptMaxChars)

	blocks := []Content{TextContent(strings.Join(lines, "\n"))}
	for i := len(window) - 1; i >= 0; i-- {
		t := window[i]
		if t.Role == model.RoleAssistant || len(t.Images) == 0 {
			continue
		}
		for _, img := range t.Images {
			blocks = append(blocks, ImageContent(img.DataURL))
		}
		break
	}

	return []Message{{Role: MessageRoleUser, Content: blocks}}
}

// fitTranscript drops leading lines until the joined length is within budget
// or one line remains.
func fitTranscript(lines []string, budget int) []string {
	total := 0
	for i, l := range lines {
		total += utf8.RuneCountInString(l)
		if i > 0 {
			total++
		}
	}
	for len(lines) > 1 && total > budget {
		total -= utf8.RuneCountInString(lines[0]) + 1
		lines = lines[1:]
	}
	return lines
}
