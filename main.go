// ocichat - Streaming chat for OCI Generative AI models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
