// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

const pngURL = "data:image/png;base64,iVBORw0KGgo="

func TestNormalize_TrimsAndDropsEmpty(t *testing.T) {
	in := []model.Turn{
		model.NewUserTurn("  hello  "),
		model.NewAssistantTurn("   "),
		model.NewUserTurn(""),
		model.NewAssistantTurn("\tworld\n"),
	}

	out := Normalize(in, NormalizeOptions{})

	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[0].Text)
	assert.Equal(t, model.RoleUser, out[0].Role)
	assert.Equal(t, "world", out[1].Text)
	assert.Equal(t, model.RoleAssistant, out[1].Role)
}

func TestNormalize_SystemPrompt(t *testing.T) {
	out := Normalize([]model.Turn{model.NewUserTurn("hi")}, NormalizeOptions{SystemPrompt: "  Be brief.  "})

	require.Len(t, out, 3)
	assert.Equal(t, model.RoleUser, out[0].Role)
	assert.Equal(t, "[System instructions]\nBe brief.", out[0].Text)
	assert.Equal(t, model.RoleAssistant, out[1].Role)
	assert.Equal(t, "Understood. I will follow these instructions.", out[1].Text)
	assert.Equal(t, "hi", out[2].Text)
}

func TestNormalize_BlankSystemPromptIgnored(t *testing.T) {
	out := Normalize([]model.Turn{model.NewUserTurn("hi")}, NormalizeOptions{SystemPrompt: " \n "})
	assert.Len(t, out, 1)
}

func TestNormalize_NFC(t *testing.T) {
	out := Normalize([]model.Turn{model.NewUserTurn("cafe\u0301")}, NormalizeOptions{})
	require.Len(t, out, 1)
	assert.Equal(t, "caf\u00e9", out[0].Text)
}

func TestNormalize_Images(t *testing.T) {
	tests := []struct {
		name  string
		image model.Image
		keep  bool
		mime  string
	}{
		{"valid", model.Image{DataURL: pngURL, MimeType: "image/png"}, true, "image/png"},
		{"mime inferred", model.Image{DataURL: "data:image/jpeg;base64,/9j/4AAQ"}, true, "image/jpeg"},
		{"mime lowercased", model.Image{DataURL: pngURL, MimeType: "IMAGE/PNG"}, true, "image/png"},
		{"not a data url", model.Image{DataURL: "https://example.com/cat.png", MimeType: "image/png"}, false, ""},
		{"non-image data url", model.Image{DataURL: "data:text/plain;base64,aGk=", MimeType: "text/plain"}, false, ""},
		{"non-image mime", model.Image{DataURL: pngURL, MimeType: "application/pdf"}, false, ""},
		{"not base64", model.Image{DataURL: "data:image/png,rawbytes"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize([]model.Turn{model.NewUserTurn("look", tt.image)}, NormalizeOptions{})
			require.Len(t, out, 1)
			if !tt.keep {
				assert.Empty(t, out[0].Images)
				return
			}
			require.Len(t, out[0].Images, 1)
			assert.Equal(t, tt.mime, out[0].Images[0].MimeType)
		})
	}
}

func TestNormalize_ImageCap(t *testing.T) {
	imgs := make([]model.Image, 5)
	for i := range imgs {
		imgs[i] = model.Image{DataURL: pngURL, Name: string(rune('a' + i))}
	}

	out := Normalize([]model.Turn{model.NewUserTurn("", imgs...)}, NormalizeOptions{MaxImages: 3})

	require.Len(t, out, 1)
	require.Len(t, out[0].Images, 3)
	assert.Equal(t, "a", out[0].Images[0].Name)
	assert.Equal(t, "c", out[0].Images[2].Name)
}

func TestNormalize_DefaultImageCap(t *testing.T) {
	imgs := make([]model.Image, DefaultMaxImages+4)
	for i := range imgs {
		imgs[i] = model.Image{DataURL: pngURL}
	}
	out := Normalize([]model.Turn{model.NewUserTurn("x", imgs...)}, NormalizeOptions{})
	assert.Len(t, out[0].Images, DefaultMaxImages)
}

func TestNormalize_AssistantImagesDropped(t *testing.T) {
	turn := model.Turn{Role: model.RoleAssistant, Text: "here", Images: []model.Image{{DataURL: pngURL}}}
	out := Normalize([]model.Turn{turn}, NormalizeOptions{})

	require.Len(t, out, 1)
	assert.Empty(t, out[0].Images)
}

func TestNormalize_ImageOnlyTurnKept(t *testing.T) {
	out := Normalize([]model.Turn{model.NewUserTurn("  ", model.Image{DataURL: pngURL})}, NormalizeOptions{})
	require.Len(t, out, 1)
	assert.Equal(t, "", out[0].Text)
	assert.Len(t, out[0].Images, 1)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []model.Turn{model.NewUserTurn("  hi  ", model.Image{DataURL: "bad"})}
	_ = Normalize(in, NormalizeOptions{SystemPrompt: "sys"})

	assert.Equal(t, "  hi  ", in[0].Text)
	assert.Len(t, in[0].Images, 1)
}
