// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"strings"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// =============================================================================
// MODEL FAMILY
// =============================================================================

// ModelFamily is a coarse classification of a model name.
type ModelFamily int

const (
	FamilyGeneric ModelFamily = iota
	FamilyGoogle
	FamilyXAI
	FamilyMeta
)

// String returns the family tag used in variant names.
func (f ModelFamily) String() string {
	switch f {
	case FamilyGoogle:
		return "google"
	case FamilyXAI:
		return "xai"
	case FamilyMeta:
		return "meta"
	default:
		return "generic"
	}
}

// familyMarkers maps name substrings to families, checked in order.
var familyMarkers = []struct {
	substr string
	family ModelFamily
}{
	{"gemini", FamilyGoogle},
	{"google", FamilyGoogle},
	{"grok", FamilyXAI},
	{"xai", FamilyXAI},
	{"llama", FamilyMeta},
	{"meta", FamilyMeta},
}

// FamilyOf classifies a model name by case-insensitive substring match.
func FamilyOf(modelName string) ModelFamily {
	name := strings.ToLower(modelName)
	for _, m := range familyMarkers {
		if strings.Contains(name, m.substr) {
			return m.family
		}
	}
	return FamilyGeneric
}

// =============================================================================
// SAMPLING DEFAULTS
// =============================================================================

// Sampling holds the generation parameters sent with a chat request.
// Nil pointer fields are omitted from the payload.
type Sampling struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	TopK             *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// familySampling holds the tuned defaults per family. It must have an entry
// for every ModelFamily.
var familySampling = map[ModelFamily]Sampling{
	FamilyGoogle: {
		MaxTokens:   model.DefaultMaxTokens,
		Temperature: 0.7,
		TopP:        0.95,
		TopK:        intPtr(40),
	},
	FamilyXAI: {
		MaxTokens:   model.DefaultMaxTokens,
		Temperature: 0.7,
		TopP:        1.0,
	},
	FamilyMeta: {
		MaxTokens:        model.DefaultMaxTokens,
		Temperature:      0.6,
		TopP:             0.9,
		FrequencyPenalty: floatPtr(0),
		PresencePenalty:  floatPtr(0),
	},
	FamilyGeneric: {
		MaxTokens:        model.DefaultMaxTokens,
		Temperature:      0.5,
		TopP:             0.75,
		FrequencyPenalty: floatPtr(0),
		PresencePenalty:  floatPtr(0),
	},
}

// SamplingFor returns the family defaults with caller overrides applied.
// Only maxTokens, temperature and topP are overridable. The returned value
// shares no pointers with the table.
func SamplingFor(f ModelFamily, o model.GenerationOverrides) Sampling {
	s, ok := familySampling[f]
	if !ok {
		s = familySampling[FamilyGeneric]
	}
	if s.TopK != nil {
		s.TopK = intPtr(*s.TopK)
	}
	if s.FrequencyPenalty != nil {
		s.FrequencyPenalty = floatPtr(*s.FrequencyPenalty)
	}
	if s.PresencePenalty != nil {
		s.PresencePenalty = floatPtr(*s.PresencePenalty)
	}

	if o.MaxTokens != nil {
		s.MaxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		s.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		s.TopP = *o.TopP
	}
	return s
}
