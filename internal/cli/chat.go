// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for ocichat.
//
// Examples:
//   ocichat chat                          Start a new session
//   ocichat chat --model xai.grok-3       Use a specific model
//   ocichat chat --session 01J9ZX3K4M5N   Resume a stored session
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /clear, /c          Start a new conversation
//   /model [name]       Show or switch model
//   /image <path>       Attach an image to the next message
//   /history            Show conversation history
//   /session            Show the stored session ID
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/config"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/genai"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/storage"
)

const chatPrompt = "ocichat> "

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads REPL input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// historyLiner is a liner-backed lineReader that persists input history.
type historyLiner struct {
	*liner.State
	historyFile string
}

// newHistoryLiner creates a line editor with history loaded from the config
// directory.
func newHistoryLiner() *historyLiner {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	h := &historyLiner{State: line, historyFile: filepath.Join(dir, "chat_history")}

	if f, err := os.Open(h.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return h
}

// Close saves history with owner-only permissions and restores the terminal.
func (h *historyLiner) Close() error {
	if err := os.MkdirAll(filepath.Dir(h.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(h.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			h.WriteHistory(f)
			f.Close()
		}
	}
	return h.State.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// chatSession holds the state of an interactive chat.
type chatSession struct {
	client   *genai.Client
	settings genai.Settings
	conv     *model.Conversation
	input    lineReader
	out      io.Writer
	log      log.FieldLogger

	// store is nil when persistence is disabled or unavailable.
	store     *storage.Store
	sessionID string

	model   string
	pending []model.Image

	mu     sync.Mutex
	cancel context.CancelFunc
}

// setCancel records the cancel func of the generation in flight.
func (s *chatSession) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// cancelCurrent cancels the generation in flight. Returns false when idle.
func (s *chatSession) cancelCurrent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// currentModel returns the model the next message will use.
func (s *chatSession) currentModel() string {
	return genai.ResolveModel(s.model, s.settings.ModelNames())
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

type chatOptions struct {
	session string
	noSave  bool
	noWatch bool
}

func (a *App) newChatCommand() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Example: `  ocichat chat
  ocichat chat --model xai.grok-3
  ocichat chat --session 01J9ZX3K4M5N`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.session, "session", "", "Resume a stored session by ID or unique prefix")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not store this conversation")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not reload the config file when it changes")
	return cmd
}

func (a *App) runChat(ctx context.Context, opts chatOptions) error {
	settings := config.NewSettings(nil)
	client, err := a.newChatClient(a.cfg, settings)
	if err != nil {
		return err
	}

	s := &chatSession{
		client:   client,
		settings: settings,
		conv:     model.NewConversation(),
		out:      a.Stdout,
		log:      a.Logger,
		model:    a.model,
	}

	if !opts.noSave || opts.session != "" {
		store, err := a.OpenStore(a.cfg)
		switch {
		case err == nil:
			s.store = store
			defer store.Close()
		case opts.session != "":
			return fmt.Errorf("open session store: %w", err)
		default:
			a.Logger.WithError(err).Warn("session store unavailable; conversation will not be saved")
		}
	}
	if opts.session != "" {
		if err := s.resume(ctx, opts.session); err != nil {
			return err
		}
	}
	if opts.noSave {
		s.store = nil
	}

	if !opts.noWatch {
		if path, err := a.configFilePath(); err == nil {
			if w, err := config.Watch(ctx, path, nil); err == nil {
				defer w.Close()
			} else {
				a.Logger.WithError(err).Debug("config watch disabled")
			}
		}
	}

	s.input = newHistoryLiner()
	defer s.input.Close()

	// First Ctrl+C cancels the generation in flight; at the prompt the line
	// editor handles it.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	done := make(chan struct{})
	defer close(done)
	go s.watchInterrupts(sigChan, done)

	s.printWelcome()
	return s.run(ctx)
}

// watchInterrupts cancels the generation in flight on each signal, or prints
// an exit hint when idle. It returns once done is closed.
func (s *chatSession) watchInterrupts(sigs <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-sigs:
			if !s.cancelCurrent() {
				fmt.Fprintln(s.out, DimStyle.Render("\n(type /quit or press Ctrl+D to exit)"))
			}
		}
	}
}

// resume loads a stored session into the conversation.
func (s *chatSession) resume(ctx context.Context, prefix string) error {
	id, err := s.store.Resolve(ctx, prefix)
	if err != nil {
		return err
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	turns, err := s.store.Turns(ctx, id)
	if err != nil {
		return err
	}

	s.conv = model.NewConversationFrom(turns)
	s.sessionID = id
	if s.model == "" {
		s.model = sess.Model
	}
	fmt.Fprintf(s.out, "%s %s (%d turns)\n", SuccessStyle.Render("Resumed"), sess.DisplayTitle(), len(turns))
	return nil
}

// =============================================================================
// REPL
// =============================================================================

// run reads input until /quit, EOF or an aborted prompt.
func (s *chatSession) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := s.input.Prompt(chatPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.input.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			cont, err := s.handleSlashCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(s.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !cont {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if err := s.send(ctx, input); err != nil {
			fmt.Fprintf(s.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			if hint := hintFor(err); hint != "" {
				fmt.Fprintln(s.out, DimStyle.Render(hint))
			}
		}
	}
}

// send streams the answer to one user message. A failed or cancelled
// request leaves the conversation as it was before the message.
func (s *chatSession) send(ctx context.Context, text string) error {
	images := s.pending
	s.pending = nil

	user := model.NewUserTurn(text, images...)
	s.conv.Append(user)

	genCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	fmt.Fprintln(s.out)
	var answer strings.Builder
	err := s.client.ChatStream(genCtx, s.conv.Turns(), func(token string) {
		answer.WriteString(token)
		fmt.Fprint(s.out, token)
	}, s.model)

	if err != nil {
		s.conv.DropLast()
		if genai.IsCancelled(err) {
			fmt.Fprintln(s.out, "\n"+WarningStyle.Render("[Cancelled]"))
			return nil
		}
		if answer.Len() > 0 {
			fmt.Fprintln(s.out)
		}
		return err
	}
	fmt.Fprint(s.out, "\n\n")

	assistant := model.NewAssistantTurn(answer.String())
	s.conv.Append(assistant)
	s.persist(ctx, user, assistant)
	return nil
}

// persist stores a completed exchange, creating the session on first use.
// Storage errors are logged, never fatal to the chat.
func (s *chatSession) persist(ctx context.Context, turns ...model.Turn) {
	if s.store == nil {
		return
	}
	if s.sessionID == "" {
		sess, err := s.store.Create(ctx, s.currentModel())
		if err != nil {
			s.log.WithError(err).Warn("could not create session")
			return
		}
		s.sessionID = sess.ID
	}
	for _, t := range turns {
		if err := s.store.AppendTurn(ctx, s.sessionID, t); err != nil {
			s.log.WithError(err).WithField("session", s.sessionID).Warn("could not save turn")
			return
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs a slash command. Returns false to exit the REPL.
func (s *chatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/help", "/h", "/?":
		s.printHelp()

	case "/quit", "/q", "/exit":
		return false, nil

	case "/clear", "/c":
		s.conv.Clear()
		s.pending = nil
		s.sessionID = ""
		fmt.Fprintln(s.out, DimStyle.Render("Conversation cleared."))

	case "/model", "/m":
		if len(args) == 0 {
			m := s.currentModel()
			if m == "" {
				m = "(none configured)"
			}
			fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), m)
			return true, nil
		}
		s.model = args[0]
		if s.store != nil && s.sessionID != "" {
			if err := s.store.SetModel(ctx, s.sessionID, s.model); err != nil {
				return true, err
			}
		}
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Switched to"), s.model)

	case "/image", "/img":
		if len(args) == 0 {
			return true, errors.New("usage: /image <path>")
		}
		img, err := loadImage(strings.Join(args, " "))
		if err != nil {
			return true, err
		}
		s.pending = append(s.pending, img)
		fmt.Fprintf(s.out, "%s %s (%d pending)\n", SuccessStyle.Render("Attached"), img.Name, len(s.pending))

	case "/history":
		s.printHistory()

	case "/session":
		if s.sessionID == "" {
			fmt.Fprintln(s.out, DimStyle.Render("Not saved yet."))
		} else {
			fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Session:"), s.sessionID)
		}

	default:
		return true, fmt.Errorf("unknown command %s (type /help)", name)
	}
	return true, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *chatSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("ocichat "+Version))
	m := s.currentModel()
	if m == "" {
		m = "(none configured)"
	}
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), m)
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+C to cancel a response, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printHelp() {
	help := []struct{ cmd, desc string }{
		{"/help, /h", "Show available commands"},
		{"/clear, /c", "Start a new conversation"},
		{"/model [name]", "Show or switch model"},
		{"/image <path>", "Attach an image to the next message"},
		{"/history", "Show conversation history"},
		{"/session", "Show the stored session ID"},
		{"/quit, /q", "Exit chat"},
	}
	fmt.Fprintln(s.out, TitleStyle.Render("Commands"))
	for _, h := range help {
		fmt.Fprintf(s.out, "  %s%s\n", RenderLabel(h.cmd), h.desc)
	}
}

func (s *chatSession) printHistory() {
	turns := s.conv.Turns()
	if len(turns) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("No messages yet."))
		return
	}
	width := terminalWidth() - 14
	for _, t := range turns {
		fmt.Fprintf(s.out, "%s %s\n", RoleStyle.Render(t.Role.DisplayName()+":"), t.Preview(width))
	}
}
