// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and turns.
package model

import (
	"strings"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// IMAGE TYPE
// =============================================================================

// Image is an image attachment carried inline as a data URL.
type Image struct {
	DataURL  string `json:"data_url"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is a single user or assistant entry in a conversation.
// Only user turns may carry images.
type Turn struct {
	Role   Role    `json:"role"`
	Text   string  `json:"text"`
	Images []Image `json:"images,omitempty"`
}

// NewUserTurn creates a user turn with optional image attachments.
func NewUserTurn(text string, images ...Image) Turn {
	return Turn{Role: RoleUser, Text: text, Images: images}
}

// NewAssistantTurn creates an assistant turn.
func NewAssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// IsEmpty returns true if the turn has no text and no images.
func (t Turn) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == "" && len(t.Images) == 0
}

// Preview returns a single-line preview of the turn text fitting maxWidth
// terminal columns.
func (t Turn) Preview(maxWidth int) string {
	text := strings.Join(strings.Fields(t.Text), " ")
	if text == "" && len(t.Images) > 0 {
		text = "[image]"
	}
	return util.TruncateWidth(text, maxWidth)
}

// Clone returns a copy of the turn that shares no slices with the original.
func (t Turn) Clone() Turn {
	c := t
	if t.Images != nil {
		c.Images = make([]Image, len(t.Images))
		copy(c.Images, t.Images)
	}
	return c
}
