// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// STREAMING: Chunk-boundary independent SSE token extraction

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

const (
	// readChunkSize is the size of each read from the source.
	readChunkSize = 32 * 1024

	// MaxLineSize bounds a single unterminated line.
	// SECURITY: Prevents memory exhaustion from a stream that never sends '\n'.
	MaxLineSize = 4 * 1024 * 1024

	eventPrefix  = "data:"
	doneSentinel = "[DONE]"
)

// cursorArtifacts are block-cursor characters some backends interleave with
// content: the JSON escape text and the raw U+2588 character.
var cursorArtifacts = []string{`\u2588`, "\u2588"}

// tokenPaths are the payload locations checked for token text, in order.
// The first non-empty string wins.
var tokenPaths = []string{
	"choices.0.delta.content",
	"choices.0.delta.content.0.text",
	"choices.0.text",
	"choices.0.message.content",
	"choices.0.message.content.0.text",
	"chatResponse.text",
	"chatResponse.message.content.0.text",
	"text",
	"message.content.0.text",
}

// =============================================================================
// TOKEN EXTRACTION
// =============================================================================

// SanitizeToken removes block-cursor artifacts. Clean text is returned
// unchanged.
func SanitizeToken(s string) string {
	for {
		before := s
		for _, a := range cursorArtifacts {
			s = strings.ReplaceAll(s, a, "")
		}
		if s == before {
			return s
		}
	}
}

// TokenText extracts token text from one event payload. It returns "" when
// the payload is not valid JSON or carries no text.
func TokenText(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	root := gjson.ParseBytes(payload)
	for _, path := range tokenPaths {
		r := root.Get(path)
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// =============================================================================
// STREAM READER
// =============================================================================

// streamState is the per-call decode state.
type streamState struct {
	pending []byte
	emitted int
	done    bool
	// discarding is set while skipping the rest of an oversized line.
	discarding bool
	log        log.FieldLogger
}

// ReadStream consumes an SSE byte stream and calls onToken for each non-empty
// token, in order. It returns the number of tokens emitted.
//
// Reading stops at a "data: [DONE]" frame or at EOF; a final line without a
// trailing newline is still processed. Malformed frames are skipped.
//
// The context is checked before every read and before every emission. If src
// is an io.Closer it is closed when ctx is cancelled, which aborts a blocked
// read, and always on return. Cancellation returns an error matching
// ErrCancelled; tokens already delivered stay delivered.
//
// onToken runs synchronously on the reading goroutine; no further data is
// read until it returns.
func ReadStream(ctx context.Context, src io.Reader, onToken func(string)) (int, error) {
	return readStream(ctx, src, onToken, log.StandardLogger())
}

func readStream(ctx context.Context, src io.Reader, onToken func(string), logger log.FieldLogger) (int, error) {
	if closer, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
		defer closer.Close()
	}

	st := &streamState{log: logger}
	chunk := make([]byte, readChunkSize)

	for {
		if ctx.Err() != nil {
			return st.emitted, cancelledError(ctx)
		}

		n, err := src.Read(chunk)
		if n > 0 {
			st.pending = append(st.pending, chunk[:n]...)
			if cerr := st.drainLines(ctx, onToken); cerr != nil {
				return st.emitted, cerr
			}
			if st.done {
				return st.emitted, nil
			}
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			// A cancelled source may report EOF once closed.
			if ctx.Err() != nil {
				return st.emitted, cancelledError(ctx)
			}
			// Flush the unterminated remainder as a final line.
			rest := st.pending
			st.pending = nil
			if len(rest) > 0 && !st.discarding {
				if cerr := st.handleLine(ctx, rest, onToken); cerr != nil {
					return st.emitted, cerr
				}
			}
			return st.emitted, nil
		}
		if ctx.Err() != nil {
			return st.emitted, cancelledError(ctx)
		}
		return st.emitted, fmt.Errorf("stream read failed: %w", err)
	}
}

// drainLines processes every complete line in the buffer and keeps the
// trailing fragment.
func (st *streamState) drainLines(ctx context.Context, onToken func(string)) error {
	if st.discarding {
		idx := bytes.IndexByte(st.pending, '\n')
		if idx < 0 {
			st.pending = st.pending[:0]
			return nil
		}
		st.pending = append(st.pending[:0], st.pending[idx+1:]...)
		st.discarding = false
	}

	consumed := 0
	for !st.done {
		idx := bytes.IndexByte(st.pending[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := st.pending[consumed : consumed+idx]
		consumed += idx + 1
		if err := st.handleLine(ctx, line, onToken); err != nil {
			return err
		}
	}

	st.pending = append(st.pending[:0], st.pending[consumed:]...)
	if len(st.pending) > MaxLineSize {
		st.log.WithField("bytes", len(st.pending)).Warn("stream line exceeds size limit, skipping it")
		st.pending = st.pending[:0]
		st.discarding = true
	}
	return nil
}

// handleLine processes one line. Non-event lines, empty payloads and
// malformed JSON are ignored.
func (st *streamState) handleLine(ctx context.Context, line []byte, onToken func(string)) error {
	line = bytes.TrimRightFunc(line, unicode.IsSpace)
	if !bytes.HasPrefix(line, []byte(eventPrefix)) {
		return nil
	}
	payload := bytes.TrimSpace(line[len(eventPrefix):])
	if len(payload) == 0 {
		return nil
	}
	if string(payload) == doneSentinel {
		st.done = true
		return nil
	}

	token := SanitizeToken(TokenText(payload))
	if token == "" {
		return nil
	}
	if ctx.Err() != nil {
		return cancelledError(ctx)
	}
	onToken(token)
	st.emitted++
	return nil
}
