// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/genai"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

func fastBackoff(t *testing.T) {
	t.Helper()
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = old })
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := NewClient(Options{
		Endpoint: url,
		Region:   "us-chicago-1",
		Signer:   NewAuthorizationSigner("test-token"),
		Logger:   logger,
	})
	require.NoError(t, err)
	return c
}

func details(stream bool) genai.ChatDetails {
	v := genai.BuildVariants("meta.llama-3.3-70b", []model.Turn{model.NewUserTurn("hi")}, model.GenerationOverrides{})[0]
	return genai.ChatDetails{
		CompartmentID: "ocid1.compartment.oc1..aaa",
		ModelID:       "meta.llama-3.3-70b",
		Request:       v.WithStream(stream).Request(),
	}
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewClient_Endpoint(t *testing.T) {
	c, err := NewClient(Options{Region: "eu-frankfurt-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://inference.generativeai.eu-frankfurt-1.oci.oraclecloud.com", c.Endpoint())
	assert.Equal(t, "eu-frankfurt-1", c.Region())

	c, err = NewClient(Options{Endpoint: "http://localhost:8080/", Region: "x"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.Endpoint())

	_, err = NewClient(Options{})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_RequestShape(t *testing.T) {
	var got []byte
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/20231130/actions/chat", r.URL.Path)
		headers = r.Header.Clone()
		got, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chatResponse":{"text":"ok"}}`))
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL).Chat(context.Background(), details(false))
	require.NoError(t, err)
	assert.Nil(t, res.Stream)
	assert.JSONEq(t, `{"chatResponse":{"text":"ok"}}`, string(res.Body))

	assert.Equal(t, "ocid1.compartment.oc1..aaa", gjson.GetBytes(got, "compartmentId").String())
	assert.Equal(t, "ON_DEMAND", gjson.GetBytes(got, "servingMode.servingType").String())
	assert.Equal(t, "meta.llama-3.3-70b", gjson.GetBytes(got, "servingMode.modelId").String())
	assert.Equal(t, "GENERIC", gjson.GetBytes(got, "chatRequest.apiFormat").String())
	assert.False(t, gjson.GetBytes(got, "chatRequest.isStream").Bool())
	assert.Equal(t, "hi", gjson.GetBytes(got, "chatRequest.messages.0.content.0.text").String())

	assert.Equal(t, "Bearer test-token", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.NotEmpty(t, headers.Get("opc-request-id"))
}

func TestChat_EventStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Write([]byte("data: {\"message\":{\"content\":[{\"type\":\"TEXT\",\"text\":\"He\"}]}}\n\n"))
		w.(http.Flusher).Flush()
		w.Write([]byte("data: {\"message\":{\"content\":[{\"type\":\"TEXT\",\"text\":\"llo\"}]}}\n\ndata: [DONE]\n\n"))
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL).Chat(context.Background(), details(true))
	require.NoError(t, err)
	require.NotNil(t, res.Stream)

	var tokens []string
	n, err := genai.ReadStream(context.Background(), res.Stream, func(s string) { tokens = append(tokens, s) })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"He", "llo"}, tokens)
}

func TestChat_StreamCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"text\":\"first\"}\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := newTestClient(t, server.URL).Chat(ctx, details(true))
	require.NoError(t, err)

	var tokens []string
	done := make(chan error, 1)
	go func() {
		_, err := genai.ReadStream(ctx, res.Stream, func(s string) {
			tokens = append(tokens, s)
			go cancel()
		})
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, genai.IsCancelled(err))
		assert.Equal(t, []string{"first"}, tokens)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}

func TestChat_BadRequestIsFormatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("opc-request-id", "req-123")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"400","message":"Please pass in correct format of request."}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Chat(context.Background(), details(true))

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "req-123", apiErr.RequestID)
	assert.Contains(t, err.Error(), "status code 400")
	assert.True(t, genai.IsFormatError(err))
}

func TestChat_ErrorSentinels(t *testing.T) {
	tests := []struct {
		status int
		target error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusNotFound, ErrModelNotFound},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte("plain failure"))
		}))

		_, err := newTestClient(t, server.URL).Chat(context.Background(), details(false))
		server.Close()

		assert.ErrorIs(t, err, tt.target, "status %d", tt.status)
		assert.Contains(t, err.Error(), "plain failure")
		assert.False(t, genai.IsFormatError(err))
	}
}

func TestChat_RetriesTransientErrors(t *testing.T) {
	fastBackoff(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"chatResponse":{"text":"finally"}}`))
		}
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL).Chat(context.Background(), details(false))

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	text, ok := genai.ExtractText(res.Body)
	assert.True(t, ok)
	assert.Equal(t, "finally", text)
}

func TestChat_RetriesExhausted(t *testing.T) {
	fastBackoff(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Chat(context.Background(), details(false))

	require.Error(t, err)
	assert.Equal(t, int32(DefaultMaxRetries), calls.Load())
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Contains(t, err.Error(), "status code 500")
}

func TestChat_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Chat(context.Background(), details(false))

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChat_ResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(strings.Repeat("x", MaxResponseSize+10)))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Chat(context.Background(), details(false))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestChat_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL).Chat(ctx, details(true))
	assert.True(t, genai.IsCancelled(err))
}

// =============================================================================
// HELPERS
// =============================================================================

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, calculateBackoff(1))
	assert.Equal(t, time.Second, calculateBackoff(2))
	assert.Equal(t, 2*time.Second, calculateBackoff(3))
	assert.Equal(t, retryMaxDelay, calculateBackoff(10))
}

func TestIsEventStream(t *testing.T) {
	assert.True(t, isEventStream("text/event-stream"))
	assert.True(t, isEventStream("text/event-stream; charset=utf-8"))
	assert.False(t, isEventStream("application/json"))
	assert.False(t, isEventStream(""))
}

func TestSigners(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, NewAuthorizationSigner("abc").Sign(req))
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, NewAuthorizationSigner("Signature keyId=\"x\"").Sign(req))
	assert.Equal(t, "Signature keyId=\"x\"", req.Header.Get("Authorization"))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, NewAuthorizationSigner("").Sign(req))
	assert.Empty(t, req.Header.Get("Authorization"))

	called := false
	require.NoError(t, SignerFunc(func(*http.Request) error { called = true; return nil }).Sign(req))
	assert.True(t, called)
}
