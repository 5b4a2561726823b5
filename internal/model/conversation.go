// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and turns.
package model

import (
	"sync"
	"time"
)

// MaxTurns is the maximum number of turns kept in conversation history.
// When exceeded, the oldest turns are pruned to prevent unbounded memory growth.
const MaxTurns = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered, append-only list of turns.
// It is safe for concurrent use.
type Conversation struct {
	mu        sync.RWMutex
	turns     []Turn
	title     string
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		turns:     make([]Turn, 0),
		createdAt: now,
		updatedAt: now,
	}
}

// NewConversationFrom creates a conversation seeded with existing turns,
// e.g. a session loaded from storage.
func NewConversationFrom(turns []Turn) *Conversation {
	c := NewConversation()
	for _, t := range turns {
		c.Append(t)
	}
	return c
}

// =============================================================================
// TURN MANAGEMENT
// =============================================================================

// Append adds a turn to the end of the conversation.
func (c *Conversation) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, t.Clone())
	c.updatedAt = time.Now()
	if c.title == "" && t.Role == RoleUser {
		c.title = t.Preview(50)
	}
	c.pruneOldTurns()
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(text string, images ...Image) {
	c.Append(NewUserTurn(text, images...))
}

// AddAssistant appends an assistant turn.
func (c *Conversation) AddAssistant(text string) {
	c.Append(NewAssistantTurn(text))
}

// DropLast removes the most recent turn. Used to roll back a user turn whose
// request failed. Returns false if the conversation is empty.
func (c *Conversation) DropLast() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) == 0 {
		return false
	}
	c.turns = c.turns[:len(c.turns)-1]
	c.updatedAt = time.Now()
	return true
}

// Turns returns a copy of the turn history in conversation order.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.Clone()
	}
	return out
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1].Clone(), true
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Clear removes all turns and resets the title.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = c.turns[:0]
	c.title = ""
	c.updatedAt = time.Now()
}

// Title returns the conversation title, derived from the first user turn.
func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.title != "" {
		return c.title
	}
	return "New Conversation"
}

// UpdatedAt returns the time of the last modification.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// pruneOldTurns keeps only the most recent MaxTurns turns.
// Caller must hold c.mu.
func (c *Conversation) pruneOldTurns() {
	if len(c.turns) <= MaxTurns {
		return
	}
	kept := make([]Turn, MaxTurns)
	copy(kept, c.turns[len(c.turns)-MaxTurns:])
	c.turns = kept
}
