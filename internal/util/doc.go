// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the ocichat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation by character count
//   - TruncateWidth: Truncation by terminal display width (CJK aware)
//   - SplitList: Comma-separated list parsing
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	// Fit a session preview into a 40-column table cell
//	cell := util.TruncateWidth(preview, 40)
//
//	// Write config files atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0600)
package util
