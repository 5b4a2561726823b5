// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat session persistence for ocichat.
//
// Sessions and their turns live in a single SQLite database
// (modernc.org/sqlite, no cgo). Session IDs are ULIDs, so they sort by
// creation time and a unique prefix is enough to address one.
//
// # Key Types
//
//   - Store: SQLite-backed session store
//   - Session: Session metadata for listing
//
// # Usage
//
// Create a session and record a turn:
//
//	store, err := storage.Open(path)
//	sess, err := store.Create(ctx, "meta.llama-3.3-70b-instruct")
//	err = store.AppendTurn(ctx, sess.ID, model.NewUserTurn("Hello"))
//
// Resume it later:
//
//	id, err := store.Resolve(ctx, "01J9")
//	turns, err := store.Turns(ctx, id)
//
// # Storage Location
//
// The database defaults to ~/.ocichat/sessions.db.
package storage
