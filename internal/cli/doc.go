// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ocichat command line.
//
// # Commands Overview
//
//   - ask: Single question, streamed to stdout
//   - chat: Interactive chat with history, session resume and Ctrl+C cancel
//   - config: Show, locate or create the configuration file
//   - sessions: List, show or remove stored chat sessions
//   - version: Print version information
//
// # Usage
//
//	os.Exit(cli.Execute())
//
// Tests construct an App with their own streams and backend:
//
//	app := cli.NewApp()
//	app.Stdout = &buf
//	app.NewBackend = func(*config.Config, log.FieldLogger) (genai.Backend, error) { return fake, nil }
//	cmd := app.RootCommand()
package cli
