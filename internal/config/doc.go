// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ocichat.
//
// # Configuration Sources
//
// Configuration is loaded from multiple sources in order of precedence:
//   - Environment variables (OCICHAT_*)
//   - ~/.ocichat/config.toml
//   - ~/.ocichat/config.json
//   - Built-in defaults
//
// # Key Types
//
//   - Config: Complete configuration
//   - GenAIConfig: Model names, compartment, prompt and sampling overrides
//   - OCIConfig: Inference endpoint, credentials header, retries, rate limit
//   - Settings: Live view of the global config for the chat client
//
// # Usage
//
//	cfg := config.Global()
//	fmt.Println(cfg.GenAI.ModelNames)
//
// Watch the config file and reload on change:
//
//	w, err := config.Watch(ctx, path, func(cfg *config.Config, err error) {...})
//	defer w.Close()
package config
