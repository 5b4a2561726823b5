// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration commands for ocichat.
//
// Examples:
//   ocichat config show             Print the effective config (secrets redacted)
//   ocichat config path             Print the config file location
//   ocichat config init --model meta.llama-3.3-70b-instruct \
//       --compartment ocid1.compartment.oc1..xxxx --region us-chicago-1

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/config"
)

func (a *App) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration",
	}
	cmd.AddCommand(
		a.newConfigShowCommand(),
		a.newConfigPathCommand(),
		a.newConfigInitCommand(),
	)
	return cmd
}

func (a *App) newConfigShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOut {
				return NewJSONResponse("config show", a.cfg.Redacted()).Print(a.Stdout)
			}
			fmt.Fprint(a.Stdout, a.cfg.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func (a *App) newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.configFilePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Stdout, path)
			return nil
		},
	}
}

type configInitOptions struct {
	force       bool
	modelNames  string
	compartment string
}

func (a *App) newConfigInitCommand() *cobra.Command {
	var opts configInitOptions
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a new configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runConfigInit(opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&opts.modelNames, "model-names", "", "Comma-separated model names")
	cmd.Flags().StringVar(&opts.compartment, "compartment", "", "Compartment OCID")
	return cmd
}

func (a *App) runConfigInit(opts configInitOptions) error {
	path := a.configPath
	if path == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !opts.force {
		return &CommandError{
			Code: ExitConfigError,
			Err:  fmt.Errorf("config file already exists: %s", path),
			Hint: "Pass --force to overwrite it.",
		}
	}

	cfg := config.Default()
	cfg.GenAI.ModelNames = opts.modelNames
	cfg.GenAI.CompartmentID = opts.compartment
	cfg.OCI.Region = a.region
	cfg.SetDefaults()

	save := config.SaveTOML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		save = config.SaveJSON
	}
	if err := save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "%s %s\n", SuccessStyle.Render("Wrote"), path)
	return nil
}
