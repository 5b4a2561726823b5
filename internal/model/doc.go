// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and turns.
//
// This package defines the core domain types shared by the chat client,
// the session store and the CLI.
//
// # Key Types
//
//   - Turn: Single user or assistant entry with text and optional images
//   - Image: Inline image attachment carried as a data URL
//   - Conversation: Append-only, concurrency-safe turn history
//   - GenerationOverrides: Caller-supplied maxTokens/temperature/topP
//
// # Usage
//
// Build a conversation:
//
//	conv := model.NewConversation()
//	conv.AddUser("Hello!")
//	conv.AddAssistant("Hi, how can I help?")
//
// Resolve sampling overrides:
//
//	o := model.GenerationOverrides{Temperature: &t}.Clamped(model.DefaultMaxTokens)
package model
