// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// Settings is a live view over a configuration source. Every accessor reads
// the source again, so a reloaded global config applies to the next request.
type Settings struct {
	source func() *Config
}

// NewSettings returns Settings backed by source. A nil source reads Global.
func NewSettings(source func() *Config) *Settings {
	if source == nil {
		source = Global
	}
	return &Settings{source: source}
}

// StaticSettings returns Settings that always read cfg.
func StaticSettings(cfg *Config) *Settings {
	return NewSettings(func() *Config { return cfg })
}

func (s *Settings) current() *Config {
	if cfg := s.source(); cfg != nil {
		return cfg
	}
	return Default()
}

// ModelNames returns the configured comma-separated model names.
func (s *Settings) ModelNames() string { return s.current().GenAI.ModelNames }

// Region returns the region override used for variant memory keys.
func (s *Settings) Region() string { return s.current().GenAI.Region }

// CompartmentID returns the OCI compartment OCID.
func (s *Settings) CompartmentID() string { return s.current().GenAI.CompartmentID }

// SystemPrompt returns the configured system prompt.
func (s *Settings) SystemPrompt() string { return s.current().GenAI.SystemPrompt }

// Overrides returns the clamped generation overrides.
func (s *Settings) Overrides() model.GenerationOverrides { return s.current().Overrides() }
