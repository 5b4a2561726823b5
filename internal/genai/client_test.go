// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type chatFunc func(ctx context.Context, d ChatDetails) (*ChatResult, error)

// fakeBackend plays back scripted responses in call order.
type fakeBackend struct {
	mu     sync.Mutex
	region string
	script []chatFunc
	calls  []ChatDetails
}

func (b *fakeBackend) Chat(ctx context.Context, d ChatDetails) (*ChatResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, d)
	n := len(b.calls)
	b.mu.Unlock()

	if n > len(b.script) {
		return nil, errors.New("unexpected backend call")
	}
	return b.script[n-1](ctx, d)
}

func (b *fakeBackend) Region() string { return b.region }

func (b *fakeBackend) Calls() []ChatDetails {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ChatDetails(nil), b.calls...)
}

type fakeSettings struct {
	models      string
	region      string
	compartment string
	prompt      string
	overrides   model.GenerationOverrides
}

func (s fakeSettings) ModelNames() string                   { return s.models }
func (s fakeSettings) Region() string                       { return s.region }
func (s fakeSettings) CompartmentID() string                { return s.compartment }
func (s fakeSettings) SystemPrompt() string                 { return s.prompt }
func (s fakeSettings) Overrides() model.GenerationOverrides { return s.overrides }

func defaultSettings() fakeSettings {
	return fakeSettings{models: "cohere.command-r-plus", compartment: "ocid1.compartment.oc1..test"}
}

func streamOf(body string) chatFunc {
	return func(context.Context, ChatDetails) (*ChatResult, error) {
		return &ChatResult{Stream: io.NopCloser(strings.NewReader(body))}, nil
	}
}

func bodyOf(body string) chatFunc {
	return func(context.Context, ChatDetails) (*ChatResult, error) {
		return &ChatResult{Body: []byte(body)}, nil
	}
}

func failWith(err error) chatFunc {
	return func(context.Context, ChatDetails) (*ChatResult, error) {
		return nil, err
	}
}

func newTestClient(b *fakeBackend, s Settings) (*Client, *Memory) {
	mem := NewMemory()
	logger, _ := test.NewNullLogger()
	return NewClient(Options{Backend: b, Settings: s, Memory: mem, Logger: logger}), mem
}

// isTranscript reports whether a call used the flattened transcript shape.
func isTranscript(d ChatDetails) bool {
	msgs := d.Request.Messages
	if len(msgs) != 1 || len(msgs[0].Content) == 0 || msgs[0].Content[0].Text == nil {
		return false
	}
	return strings.HasPrefix(*msgs[0].Content[0].Text, "User: ")
}

func run(t *testing.T, c *Client, ctx context.Context, turns []model.Turn, override string) ([]string, error) {
	t.Helper()
	var tokens []string
	err := c.ChatStream(ctx, turns, func(tok string) { tokens = append(tokens, tok) }, override)
	return tokens, err
}

var hi = []model.Turn{model.NewUserTurn("hi")}

// =============================================================================
// SUCCESS PATHS
// =============================================================================

func TestChatStream_StreamSuccess(t *testing.T) {
	b := &fakeBackend{
		region: "us-chicago-1",
		script: []chatFunc{streamOf(sse(`{"text":"He"}`, `{"text":"llo"}`, "[DONE]"))},
	}
	c, mem := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"He", "llo"}, tokens)
	got, ok := mem.Get(ModelKey("us-chicago-1", "cohere.command-r-plus"))
	require.True(t, ok)
	assert.Equal(t, "generic:role-history", got)

	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Request.IsStream)
	assert.Equal(t, "cohere.command-r-plus", calls[0].ModelID)
	assert.Equal(t, "ocid1.compartment.oc1..test", calls[0].CompartmentID)
	assert.False(t, isTranscript(calls[0]))
}

func TestChatStream_NonStreamFallback(t *testing.T) {
	b := &fakeBackend{
		region: "us-chicago-1",
		script: []chatFunc{
			streamOf(sse(`{"finishReason":"stop"}`, "[DONE]")),
			bodyOf(`{"chatResult":{"chatResponse":{"text":"fallback answer"}}}`),
		},
	}
	c, mem := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"fallback answer"}, tokens)

	calls := b.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Request.IsStream)
	assert.False(t, calls[1].Request.IsStream)
	assert.False(t, isTranscript(calls[1]), "fallback must reuse the same variant")

	got, _ := mem.Get(ModelKey("us-chicago-1", "cohere.command-r-plus"))
	assert.Equal(t, "generic:role-history", got)
}

func TestChatStream_NonStreamingBackend(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{
		bodyOf(`{"chatResponse":{"choices":[{"message":{"content":[{"type":"TEXT","text":"direct"}]}}]}}`),
	}}
	c, _ := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"direct"}, tokens)
	assert.Len(t, b.Calls(), 1)
}

func TestChatStream_EmptyResponse(t *testing.T) {
	empty := sse("[DONE]")
	b := &fakeBackend{script: []chatFunc{
		streamOf(empty), bodyOf(`{}`),
		streamOf(empty), bodyOf(`{}`),
	}}
	c, mem := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.NoError(t, err)
	assert.Equal(t, []string{EmptyResponseToken}, tokens)
	assert.Len(t, b.Calls(), 4)
	_, ok := mem.Get(ModelKey("", "cohere.command-r-plus"))
	assert.False(t, ok)
}

// =============================================================================
// VARIANT FALLBACK AND MEMORY
// =============================================================================

func TestChatStream_FormatErrorFallsBackAndRemembers(t *testing.T) {
	b := &fakeBackend{
		region: "eu-frankfurt-1",
		script: []chatFunc{
			failWith(errors.New(`status code 400: {"code": 400, "message": "Please pass in correct format of request"}`)),
			streamOf(sse(`{"text":"ok"}`)),
			// Second call goes straight to the remembered transcript shape.
			streamOf(sse(`{"text":"again"}`)),
		},
	}
	c, mem := newTestClient(b, fakeSettings{models: "xai.grok-3", compartment: "c"})

	tokens, err := run(t, c, context.Background(), hi, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, tokens)

	got, _ := mem.Get(ModelKey("eu-frankfurt-1", "xai.grok-3"))
	assert.Equal(t, "xai:single-user-transcript", got)

	tokens, err = run(t, c, context.Background(), hi, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"again"}, tokens)

	calls := b.Calls()
	require.Len(t, calls, 3)
	assert.False(t, isTranscript(calls[0]))
	assert.True(t, isTranscript(calls[1]))
	assert.True(t, isTranscript(calls[2]))
}

func TestChatStream_EveryMarkerFallsBack(t *testing.T) {
	for _, marker := range DefaultFormatErrorMarkers {
		t.Run(marker, func(t *testing.T) {
			b := &fakeBackend{script: []chatFunc{
				failWith(errors.New("request rejected: " + marker)),
				streamOf(sse(`{"text":"ok"}`)),
			}}
			c, _ := newTestClient(b, defaultSettings())

			tokens, err := run(t, c, context.Background(), hi, "")

			require.NoError(t, err)
			assert.Equal(t, []string{"ok"}, tokens)
			assert.Len(t, b.Calls(), 2)
		})
	}
}

func TestChatStream_UnclassifiedErrorIsFatal(t *testing.T) {
	boom := errors.New("status code 401: NotAuthenticated")
	b := &fakeBackend{script: []chatFunc{failWith(boom), streamOf(sse(`{"text":"never"}`))}}
	c, _ := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.Error(t, err)
	assert.Empty(t, tokens)
	assert.Len(t, b.Calls(), 1)
	assert.ErrorIs(t, err, boom)

	var chatErr *ChatError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, []string{"generic:role-history"}, chatErr.Tried)
	assert.Equal(t, "status code 401: NotAuthenticated Tried formats: generic:role-history.", err.Error())
}

func TestChatStream_AllVariantsRejected(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{
		failWith(errors.New("invalid_argument: messages")),
		failWith(errors.New("status code 400: missing field `role`")),
	}}
	c, mem := newTestClient(b, defaultSettings())

	_, err := run(t, c, context.Background(), hi, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing field `role`")
	assert.True(t, strings.HasSuffix(err.Error(), " Tried formats: generic:role-history -> generic:single-user-transcript."))
	_, ok := mem.Get(ModelKey("", "cohere.command-r-plus"))
	assert.False(t, ok)
}

func TestChatStream_FormatErrorThenEmpty(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{
		failWith(errors.New("valid role required")),
		streamOf(sse("[DONE]")),
		bodyOf(`{}`),
	}}
	c, _ := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.Error(t, err)
	assert.Empty(t, tokens)
	assert.Contains(t, err.Error(), "valid role required Tried formats: ")
}

func TestChatStream_ExtraMarkers(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{
		failWith(errors.New("Unsupported content shape")),
		streamOf(sse(`{"text":"ok"}`)),
	}}
	logger, _ := test.NewNullLogger()
	c := NewClient(Options{
		Backend:            b,
		Settings:           defaultSettings(),
		Logger:             logger,
		ExtraFormatMarkers: []string{"unsupported content shape"},
	})

	tokens, err := run(t, c, context.Background(), hi, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, tokens)
}

func TestChatStream_PartialStreamErrorIsFatal(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{
		func(context.Context, ChatDetails) (*ChatResult, error) {
			r := io.MultiReader(strings.NewReader(sse(`{"text":"part"}`)), &errReader{errors.New("invalid_argument mid-stream")})
			return &ChatResult{Stream: io.NopCloser(r)}, nil
		},
	}}
	c, _ := newTestClient(b, defaultSettings())

	tokens, err := run(t, c, context.Background(), hi, "")

	require.Error(t, err)
	assert.Equal(t, []string{"part"}, tokens)
	assert.Len(t, b.Calls(), 1, "no second variant after tokens were delivered")
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

// =============================================================================
// CANCELLATION
// =============================================================================

func TestChatStream_CancelledBeforeStart(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{streamOf(sse(`{"text":"x"}`))}}
	c, mem := newTestClient(b, defaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tokens, err := run(t, c, ctx, hi, "")

	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsCancelled(err))
	assert.Empty(t, tokens)
	assert.Empty(t, b.Calls())
	_, ok := mem.Get(ModelKey("", "cohere.command-r-plus"))
	assert.False(t, ok)
}

func TestChatStream_CancelledDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBackend{script: []chatFunc{
		func(ctx context.Context, _ ChatDetails) (*ChatResult, error) {
			cancel()
			return nil, ctx.Err()
		},
		streamOf(sse(`{"text":"never"}`)),
	}}
	c, mem := newTestClient(b, defaultSettings())

	_, err := run(t, c, ctx, hi, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	var chatErr *ChatError
	assert.False(t, errors.As(err, &chatErr), "cancellation is never enriched")
	assert.Len(t, b.Calls(), 1)
	_, ok := mem.Get(ModelKey("", "cohere.command-r-plus"))
	assert.False(t, ok)
}

func TestChatStream_CancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBackend{script: []chatFunc{streamOf(sse(`{"text":"a"}`, `{"text":"b"}`))}}
	c, mem := newTestClient(b, defaultSettings())

	var tokens []string
	err := c.ChatStream(ctx, hi, func(tok string) {
		tokens = append(tokens, tok)
		cancel()
	}, "")

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []string{"a"}, tokens)
	_, ok := mem.Get(ModelKey("", "cohere.command-r-plus"))
	assert.False(t, ok)
}

func TestChatStream_CancelledWhileStreamBlocked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newEOFOnCloseReader(sse(`{"text":"a"}`))
	b := &fakeBackend{script: []chatFunc{
		func(context.Context, ChatDetails) (*ChatResult, error) {
			return &ChatResult{Stream: src}, nil
		},
	}}
	c, mem := newTestClient(b, defaultSettings())

	var tokens []string
	err := c.ChatStream(ctx, hi, func(tok string) {
		tokens = append(tokens, tok)
		go cancel()
	}, "")

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []string{"a"}, tokens)
	_, ok := mem.Get(ModelKey("", "cohere.command-r-plus"))
	assert.False(t, ok)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestChatStream_NoModel(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestClient(b, fakeSettings{models: " , ", compartment: "c"})
	turns := []model.Turn{model.NewUserTurn("first"), model.NewAssistantTurn("x"), model.NewUserTurn("explain goroutines")}

	tokens, err := run(t, c, context.Background(), turns, "")

	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Contains(t, tokens[0], "explain goroutines")
	assert.Contains(t, tokens[0], "model_names")
	assert.Empty(t, b.Calls())
}

func TestChatStream_NoCompartment(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestClient(b, fakeSettings{models: "m", compartment: "  "})

	tokens, err := run(t, c, context.Background(), hi, "")

	assert.ErrorIs(t, err, ErrNoCompartment)
	assert.Empty(t, tokens)
	assert.Empty(t, b.Calls())
}

func TestChatStream_NoBackend(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := NewClient(Options{Settings: defaultSettings(), Logger: logger})

	_, err := run(t, c, context.Background(), hi, "")
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestChatStream_ModelOverrideAndRegion(t *testing.T) {
	b := &fakeBackend{region: "backend-region", script: []chatFunc{streamOf(sse(`{"text":"x"}`))}}
	s := fakeSettings{models: "cohere.command-r", region: "ap-tokyo-1", compartment: "c"}
	c, mem := newTestClient(b, s)

	_, err := run(t, c, context.Background(), hi, "  Google.Gemini-2.5-Flash ")

	require.NoError(t, err)
	assert.Equal(t, "Google.Gemini-2.5-Flash", b.Calls()[0].ModelID)
	got, ok := mem.Get("ap-tokyo-1::google.gemini-2.5-flash")
	require.True(t, ok)
	assert.Equal(t, "google:role-history", got)
}

func TestChatStream_SystemPromptAndOverrides(t *testing.T) {
	b := &fakeBackend{script: []chatFunc{streamOf(sse(`{"text":"x"}`))}}
	maxTokens := 256
	s := defaultSettings()
	s.prompt = "Answer in French."
	s.overrides = model.GenerationOverrides{MaxTokens: &maxTokens}
	c, _ := newTestClient(b, s)

	_, err := run(t, c, context.Background(), hi, "")
	require.NoError(t, err)

	req := b.Calls()[0].Request
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "[System instructions]\nAnswer in French.", *req.Messages[0].Content[0].Text)
	assert.Equal(t, MessageRoleAssistant, req.Messages[1].Role)
	assert.Equal(t, 256, req.MaxTokens)
}

func TestChatStream_FirstConfiguredModel(t *testing.T) {
	assert.Equal(t, "b", ResolveModel("", " , b, c"))
	assert.Equal(t, "o", ResolveModel(" o ", "b"))
	assert.Equal(t, "", ResolveModel(" ", ""))
}

func TestChatStream_LogsVariantAttempts(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	b := &fakeBackend{script: []chatFunc{
		failWith(errors.New("failed to deserialize the JSON body")),
		streamOf(sse(`{"text":"ok"}`)),
	}}
	c := NewClient(Options{Backend: b, Settings: defaultSettings(), Logger: logger})

	_, err := run(t, c, context.Background(), hi, "")
	require.NoError(t, err)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, "generic:role-history", e.Data["variant"])
		}
	}
	assert.True(t, warned)
}
