// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package genai implements the adaptive streaming chat client for the OCI
// generative AI service.
//
// Different model families accept different chat request shapes. The client
// builds a small ordered set of candidate shapes ("variants") for each call,
// tries them one after another, and remembers which one worked so later calls
// for the same region and model go straight to it.
//
// # Pipeline
//
//	turns -> Normalize -> BuildVariants -> Reorder(memory)
//	      -> Backend.Chat -> ReadStream | ExtractText -> onToken
//
// # Key Types
//
//   - Client: Orchestrates variants against a Backend (ChatStream)
//   - Variant: One immutable candidate request payload
//   - VariantMemory: Region/model to last successful variant name
//   - ChatError: Fatal failure annotated with the variants tried
//
// # Usage
//
//	client := genai.NewClient(genai.Options{
//		Backend:  backend,
//		Settings: settings,
//		Memory:   genai.NewMemory(),
//	})
//	err := client.ChatStream(ctx, turns, func(tok string) {
//		fmt.Print(tok)
//	}, "")
//	if genai.IsCancelled(err) {
//		// user pressed Ctrl+C
//	}
package genai
