// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions_cmd.go - Stored chat session commands for ocichat.
//
// Examples:
//   ocichat sessions list                List recent sessions
//   ocichat sessions show 01J9ZX3K4M5N   Print a session transcript
//   ocichat sessions rm 01J9ZX3K4M5N     Delete a session

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/storage"
)

func (a *App) newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage stored chat sessions",
	}
	cmd.AddCommand(
		a.newSessionsListCommand(),
		a.newSessionsShowCommand(),
		a.newSessionsRemoveCommand(),
	)
	return cmd
}

// withStore opens the session store for the duration of fn.
func (a *App) withStore(fn func(*storage.Store) error) error {
	store, err := a.OpenStore(a.cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func (a *App) newSessionsListCommand() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored sessions, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store *storage.Store) error {
				sessions, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return NewJSONResponse("sessions list", sessions).Print(a.Stdout)
				}
				fmt.Fprint(a.Stdout, storage.FormatSessionList(sessions))
				if len(sessions) > 0 {
					fmt.Fprintln(a.Stdout)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

// sessionTranscript is the --json payload of sessions show.
type sessionTranscript struct {
	Session *storage.Session `json:"session"`
	Turns   []model.Turn     `json:"turns"`
}

func (a *App) newSessionsShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Store) error {
				transcript, err := loadTranscript(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return NewJSONResponse("sessions show", transcript).Print(a.Stdout)
				}
				a.printTranscript(transcript)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func loadTranscript(ctx context.Context, store *storage.Store, prefix string) (*sessionTranscript, error) {
	id, err := store.Resolve(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sess, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	turns, err := store.Turns(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sessionTranscript{Session: sess, Turns: turns}, nil
}

func (a *App) printTranscript(t *sessionTranscript) {
	fmt.Fprintln(a.Stdout, TitleStyle.Render(t.Session.DisplayTitle()))
	fmt.Fprintf(a.Stdout, "%s%s\n", RenderLabel("ID:"), t.Session.ID)
	fmt.Fprintf(a.Stdout, "%s%s\n", RenderLabel("Model:"), t.Session.Model)
	fmt.Fprintf(a.Stdout, "%s%s\n", RenderLabel("Updated:"), t.Session.UpdatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintln(a.Stdout, RenderSeparator())

	for _, turn := range t.Turns {
		fmt.Fprintln(a.Stdout, RoleStyle.Render(turn.Role.DisplayName()+":"))
		if n := len(turn.Images); n > 0 {
			fmt.Fprintln(a.Stdout, DimStyle.Render(fmt.Sprintf("[%d image(s)]", n)))
		}
		if turn.Text != "" {
			fmt.Fprintln(a.Stdout, turn.Text)
		}
		fmt.Fprintln(a.Stdout)
	}
}

func (a *App) newSessionsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete stored sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Store) error {
				for _, prefix := range args {
					id, err := store.Resolve(cmd.Context(), prefix)
					if err != nil {
						return err
					}
					if err := store.Delete(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(a.Stdout, "%s %s\n", SuccessStyle.Render("Deleted"), id)
				}
				return nil
			})
		},
	}
}
