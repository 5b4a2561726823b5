// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"strings"
	"sync"
)

// VariantMemory records the last successful variant name per model key.
type VariantMemory interface {
	Get(key string) (string, bool)
	Remember(key, variantName string)
}

// Memory is an in-process VariantMemory. Entries live for the process
// lifetime. It is safe for concurrent use by independent conversations.
type Memory struct {
	m sync.Map // string -> string
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns the remembered variant name for key.
func (m *Memory) Get(key string) (string, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Remember stores the variant name for key. Last writer wins.
func (m *Memory) Remember(key, variantName string) {
	m.m.Store(key, variantName)
}

// ModelKey returns the memory key for a region and model:
// "region::lowercased-model".
func ModelKey(region, modelName string) string {
	return region + "::" + strings.ToLower(modelName)
}

// Reorder moves the remembered variant to the front, keeping the relative
// order of the rest. It returns a new slice and leaves variants untouched.
func Reorder(variants []Variant, remembered string) []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	if remembered == "" {
		return out
	}

	idx := -1
	for i, v := range out {
		if v.Name() == remembered {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return out
	}

	first := out[idx]
	copy(out[1:idx+1], out[:idx])
	out[0] = first
	return out
}
