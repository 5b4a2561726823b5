// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/util"
)

// ShortIDLength is the ID prefix shown in session lists. Resolve accepts it.
const ShortIDLength = 12

// ShortID returns the displayed prefix of a session ID.
func ShortID(id string) string {
	if len(id) > ShortIDLength {
		return id[:ShortIDLength]
	}
	return id
}

// FormatSessionList formats sessions as a table with ID prefix, last update
// time, turn count, model and title.
func FormatSessionList(sessions []Session) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("ID", ShortIDLength) + "  " +
		util.PadWidth("Updated", 16) + "  " +
		util.PadWidth("Turns", 5) + "  " +
		util.PadWidth("Model", 24) + "  Title\n")

	for _, s := range sessions {
		sb.WriteString(util.PadWidth(ShortID(s.ID), ShortIDLength) + "  " +
			util.PadWidth(s.UpdatedAt.Format("2006-01-02 15:04"), 16) + "  " +
			util.PadWidth(strconv.Itoa(s.TurnCount), 5) + "  " +
			util.PadWidth(s.Model, 24) + "  " +
			util.TruncateWidth(s.DisplayTitle(), 40) + "\n")
	}
	return sb.String()
}
