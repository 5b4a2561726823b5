// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"net/http"
	"strings"
)

// Signer attaches credentials to a request before it is sent. Key material
// lives with the implementation; this package never stores it.
type Signer interface {
	Sign(req *http.Request) error
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(req *http.Request) error

// Sign calls f(req).
func (f SignerFunc) Sign(req *http.Request) error {
	return f(req)
}

// HeaderSigner sets a fixed set of headers on every request.
type HeaderSigner struct {
	header http.Header
}

// NewHeaderSigner creates a signer from header name/value pairs.
func NewHeaderSigner(headers map[string]string) *HeaderSigner {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return &HeaderSigner{header: h}
}

// NewAuthorizationSigner creates a signer that sets the Authorization header.
// A bare token is sent as a bearer token.
func NewAuthorizationSigner(value string) *HeaderSigner {
	value = strings.TrimSpace(value)
	if value != "" && !strings.Contains(value, " ") {
		value = "Bearer " + value
	}
	return NewHeaderSigner(map[string]string{"Authorization": value})
}

// Sign implements Signer.
func (s *HeaderSigner) Sign(req *http.Request) error {
	for k, vs := range s.header {
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		req.Header[k] = append([]string(nil), vs...)
	}
	return nil
}
