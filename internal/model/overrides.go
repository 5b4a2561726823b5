// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "math"

// =============================================================================
// GENERATION OVERRIDES
// =============================================================================

// Generation parameter bounds and defaults.
const (
	MinMaxTokens = 1
	MaxMaxTokens = 128000

	// DefaultMaxTokens applies to the standard deployment profile.
	DefaultMaxTokens = 64000
	// CompactMaxTokens applies to the compact deployment profile.
	CompactMaxTokens = 16000

	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	DefaultTemperature = 0.0

	MinTopP     = 0.0
	MaxTopP     = 1.0
	DefaultTopP = 1.0
)

// GenerationOverrides are caller-supplied sampling parameters. A nil field
// means "use the model family default".
type GenerationOverrides struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// Clamped returns the overrides with every field resolved and clamped to its
// bounds. Unset or non-finite values take the given defaults.
func (o GenerationOverrides) Clamped(defaultMaxTokens int) GenerationOverrides {
	if defaultMaxTokens < MinMaxTokens || defaultMaxTokens > MaxMaxTokens {
		defaultMaxTokens = DefaultMaxTokens
	}

	maxTokens := defaultMaxTokens
	if o.MaxTokens != nil {
		maxTokens = clampInt(*o.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}

	temperature := DefaultTemperature
	if o.Temperature != nil {
		temperature = clampFloat(*o.Temperature, MinTemperature, MaxTemperature, DefaultTemperature)
	}

	topP := DefaultTopP
	if o.TopP != nil {
		topP = clampFloat(*o.TopP, MinTopP, MaxTopP, DefaultTopP)
	}

	return GenerationOverrides{
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return math.Min(math.Max(v, lo), hi)
}
