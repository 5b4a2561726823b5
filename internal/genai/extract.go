// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"strings"

	"github.com/tidwall/gjson"
)

// responseRoots are where a non-streaming chat response may sit.
var responseRoots = []string{
	"chatResult.chatResponse",
	"chatResponse",
}

// ExtractText finds the assistant text in a non-streaming chat response
// body. It returns false when the body is not a JSON object or no non-blank
// text is found. It never panics.
func ExtractText(body []byte) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	if !gjson.ValidBytes(body) {
		return "", false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return "", false
	}

	for _, base := range responseRoots {
		resp := root.Get(base)
		if !resp.IsObject() {
			continue
		}
		candidates := []string{
			stringAt(resp, "text"),
			joinStrings(resp.Get("message.content.#.text")),
			joinStrings(resp.Get("choices.#.text")),
			joinTextBlocks(resp.Get("choices.#.message.content")),
		}
		for _, c := range candidates {
			if c = strings.TrimSpace(c); c != "" {
				return c, true
			}
		}
	}
	return "", false
}

func stringAt(r gjson.Result, path string) string {
	v := r.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// joinStrings concatenates the string elements of an array result.
func joinStrings(arr gjson.Result) string {
	if !arr.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, v := range arr.Array() {
		if v.Type == gjson.String {
			b.WriteString(v.Str)
		}
	}
	return b.String()
}

// joinTextBlocks concatenates the text of TEXT blocks across every choice's
// message content.
func joinTextBlocks(contents gjson.Result) string {
	if !contents.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, content := range contents.Array() {
		if content.Type == gjson.String {
			b.WriteString(content.Str)
			continue
		}
		for _, block := range content.Array() {
			if !strings.EqualFold(block.Get("type").String(), ContentTypeText) {
				continue
			}
			if t := block.Get("text"); t.Type == gjson.String {
				b.WriteString(t.Str)
			}
		}
	}
	return b.String()
}
