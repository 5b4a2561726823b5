// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command for ocichat.
//
// Examples:
//   ocichat ask "What is a compartment?"
//   ocichat ask --image diagram.png "Explain this architecture"
//   git diff | ocichat ask --system "You review code."
//   ocichat ask --json "Summarize OCI regions"

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/config"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/genai"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// MaxStdinSize is the maximum question size read from stdin.
const MaxStdinSize = 1024 * 1024 // 1MB

type askOptions struct {
	images   []string
	system   string
	markdown bool
	json     bool
}

// askResult is the --json payload.
type askResult struct {
	Model  string `json:"model"`
	Answer string `json:"answer"`
}

func (a *App) newAskCommand() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a single question",
		Long: "Ask a single question and stream the answer to stdout.\n" +
			"The question is read from stdin when no arguments are given.",
		Example: `  ocichat ask "What is a compartment?"
  ocichat ask --image diagram.png "Explain this architecture"
  git diff | ocichat ask --system "You review code."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.images, "image", "i", nil, "Attach an image file (repeatable)")
	cmd.Flags().StringVarP(&opts.system, "system", "s", "", "System prompt for this question (overrides genai.system_prompt)")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "Render the answer as markdown when stdout is a terminal")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the answer as JSON")
	return cmd
}

func (a *App) runAsk(ctx context.Context, opts askOptions, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && len(args) == 0 && stdinHasData(a.Stdin) {
		data, err := io.ReadAll(io.LimitReader(a.Stdin, MaxStdinSize+1))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if len(data) > MaxStdinSize {
			return usageError("stdin input exceeds %d bytes", MaxStdinSize)
		}
		question = strings.TrimSpace(string(data))
	}

	images, err := loadImages(opts.images)
	if err != nil {
		return &CommandError{Code: ExitUsageError, Err: err}
	}
	if question == "" && len(images) == 0 {
		return usageError("no question provided. Usage: ocichat ask \"your question\"")
	}

	cfg := a.cfg
	var settings genai.Settings = config.NewSettings(nil)
	if opts.system != "" {
		cfg = cfg.Clone()
		cfg.GenAI.SystemPrompt = opts.system
		settings = config.StaticSettings(cfg)
	}

	client, err := a.newChatClient(cfg, settings)
	if err != nil {
		return err
	}

	// Ctrl+C cancels the request; the partial answer stays on screen.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	render := opts.markdown && !opts.json && isTerminal(a.Stdout)
	live := !render && !opts.json

	var answer strings.Builder
	turns := []model.Turn{model.NewUserTurn(question, images...)}
	err = client.ChatStream(ctx, turns, func(token string) {
		answer.WriteString(token)
		if live {
			fmt.Fprint(a.Stdout, token)
		}
	}, a.model)

	modelName := genai.ResolveModel(a.model, cfg.GenAI.ModelNames)
	if err != nil {
		if live && answer.Len() > 0 {
			fmt.Fprintln(a.Stdout)
		}
		if opts.json {
			NewJSONErrorResponse("ask", err).Print(a.Stdout)
		}
		return err
	}

	switch {
	case opts.json:
		return NewJSONResponse("ask", askResult{Model: modelName, Answer: answer.String()}).Print(a.Stdout)
	case render:
		fmt.Fprint(a.Stdout, renderMarkdown(answer.String()))
	default:
		if !strings.HasSuffix(answer.String(), "\n") {
			fmt.Fprintln(a.Stdout)
		}
	}
	return nil
}
