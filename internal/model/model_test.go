// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TURN TESTS
// =============================================================================

func TestTurn_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		turn Turn
		want bool
	}{
		{"blank text", NewUserTurn("   "), true},
		{"text", NewUserTurn("hi"), false},
		{"image only", NewUserTurn("", Image{DataURL: "data:image/png;base64,AA==", MimeType: "image/png"}), false},
		{"empty assistant", NewAssistantTurn(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.turn.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTurn_Preview(t *testing.T) {
	turn := NewUserTurn("hello\n  world, this is a long line")
	assert.Equal(t, "hello world...", turn.Preview(14))

	img := NewUserTurn("", Image{DataURL: "data:image/png;base64,AA=="})
	assert.Equal(t, "[image]", img.Preview(20))
}

func TestTurn_CloneIsIndependent(t *testing.T) {
	orig := NewUserTurn("x", Image{Name: "a.png"})
	c := orig.Clone()
	c.Images[0].Name = "b.png"

	assert.Equal(t, "a.png", orig.Images[0].Name)
}

func TestRole_DisplayName(t *testing.T) {
	assert.Equal(t, "User", RoleUser.DisplayName())
	assert.Equal(t, "Assistant", RoleAssistant.DisplayName())
	assert.Equal(t, "tool", Role("tool").DisplayName())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AppendAndTurns(t *testing.T) {
	conv := NewConversation()
	conv.AddUser("first question")
	conv.AddAssistant("first answer")

	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "first question", conv.Title())

	// Mutating the returned slice must not affect the conversation.
	turns[0].Text = "changed"
	assert.Equal(t, "first question", conv.Turns()[0].Text)
}

func TestConversation_DropLast(t *testing.T) {
	conv := NewConversation()
	assert.False(t, conv.DropLast())

	conv.AddUser("a")
	conv.AddUser("b")
	require.True(t, conv.DropLast())

	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, "a", last.Text)
}

func TestConversation_Clear(t *testing.T) {
	conv := NewConversationFrom([]Turn{NewUserTurn("a"), NewAssistantTurn("b")})
	require.Equal(t, 2, conv.Len())

	conv.Clear()
	assert.Equal(t, 0, conv.Len())
	assert.Equal(t, "New Conversation", conv.Title())
}

func TestConversation_Prune(t *testing.T) {
	conv := NewConversation()
	for i := 0; i < MaxTurns+5; i++ {
		conv.AddUser("x")
	}
	assert.Equal(t, MaxTurns, conv.Len())
}

func TestConversation_ConcurrentAppend(t *testing.T) {
	conv := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			conv.AddUser("q")
		}()
		go func() {
			defer wg.Done()
			_ = conv.Turns()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, conv.Len())
}

// =============================================================================
// OVERRIDES TESTS
// =============================================================================

func TestGenerationOverrides_Defaults(t *testing.T) {
	o := GenerationOverrides{}.Clamped(DefaultMaxTokens)

	assert.Equal(t, DefaultMaxTokens, *o.MaxTokens)
	assert.Equal(t, DefaultTemperature, *o.Temperature)
	assert.Equal(t, DefaultTopP, *o.TopP)
}

func TestGenerationOverrides_Clamp(t *testing.T) {
	maxTokens := 500000
	temp := 3.5
	topP := -1.0
	o := GenerationOverrides{MaxTokens: &maxTokens, Temperature: &temp, TopP: &topP}.Clamped(CompactMaxTokens)

	assert.Equal(t, MaxMaxTokens, *o.MaxTokens)
	assert.Equal(t, MaxTemperature, *o.Temperature)
	assert.Equal(t, MinTopP, *o.TopP)
}

func TestGenerationOverrides_NonFinite(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	o := GenerationOverrides{Temperature: &nan, TopP: &inf}.Clamped(CompactMaxTokens)

	assert.Equal(t, CompactMaxTokens, *o.MaxTokens)
	assert.Equal(t, DefaultTemperature, *o.Temperature)
	assert.Equal(t, DefaultTopP, *o.TopP)
}

func TestGenerationOverrides_ZeroMaxTokens(t *testing.T) {
	zero := 0
	o := GenerationOverrides{MaxTokens: &zero}.Clamped(DefaultMaxTokens)
	assert.Equal(t, MinMaxTokens, *o.MaxTokens)
}
