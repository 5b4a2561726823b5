// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the OCI Generative AI inference transport.
//
// The client posts chat requests to the inference endpoint of a region and
// returns either the live event stream or the complete JSON body, depending
// on what the service answered with. It implements genai.Backend.
//
// # Key Types
//
//   - Client: HTTP client with retry, rate limiting and size limits
//   - Signer: Attaches credentials to outgoing requests
//   - HeaderSigner: Static header signer (e.g. a local signing proxy token)
//   - APIError: Non-2xx service response
//
// # Usage
//
//	client, err := cloud.NewClient(cloud.Options{
//	    Region: "us-chicago-1",
//	    Signer: cloud.NewAuthorizationSigner(token),
//	})
//	res, err := client.Chat(ctx, genai.ChatDetails{...})
//
// # Security
//
// Request bodies, response bodies and credential headers are never logged.
// Only method, path, status, request ID and duration are.
package cloud
