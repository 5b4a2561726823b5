// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Output styles for ocichat commands.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(colorProfile())
}

// ANSI 256 palette.
const (
	colorAccent = lipgloss.Color("39")
	colorRole   = lipgloss.Color("75")
	colorOK     = lipgloss.Color("42")
	colorFail   = lipgloss.Color("196")
	colorWarn   = lipgloss.Color("214")
	colorMuted  = lipgloss.Color("242")
	colorRule   = lipgloss.Color("240")
)

// labelWidth aligns "Model:", "Session:" and similar field labels.
const labelWidth = 16

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	LabelStyle     = lipgloss.NewStyle().Foreground(colorMuted).Width(labelWidth)
	RoleStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorRole)
	SuccessStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	ErrorStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	WarningStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	DimStyle       = lipgloss.NewStyle().Foreground(colorMuted)
	SeparatorStyle = lipgloss.NewStyle().Foreground(colorRule)
)

// RenderSeparator renders a rule under a transcript header, at most 70
// columns wide.
func RenderSeparator() string {
	return SeparatorStyle.Render(strings.Repeat("-", min(terminalWidth()-4, 70)))
}

// RenderLabel renders a fixed-width field label.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}
