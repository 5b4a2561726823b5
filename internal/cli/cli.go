// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and shared wiring for ocichat.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/cloud"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/config"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/genai"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/storage"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// skipConfigAnnotation marks commands that run without loading the config.
const skipConfigAnnotation = "ocichat/skip-config"

// =============================================================================
// APP
// =============================================================================

// App holds the streams, collaborators and global flag values shared by all
// commands.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// NewBackend builds the inference backend from the loaded config.
	NewBackend func(cfg *config.Config, logger log.FieldLogger) (genai.Backend, error)
	// OpenStore opens the session store.
	OpenStore func(cfg *config.Config) (*storage.Store, error)

	Logger *log.Logger

	// Variant memory is shared by every chat client the app creates.
	memory genai.VariantMemory

	configPath string
	verbose    bool
	model      string
	region     string
	cfg        *config.Config
}

// NewApp creates an App wired to the process streams and the OCI backend.
func NewApp() *App {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)

	return &App{
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		NewBackend: newCloudBackend,
		OpenStore:  openStore,
		Logger:     logger,
		memory:     genai.NewMemory(),
	}
}

// newCloudBackend builds the OCI inference client.
func newCloudBackend(cfg *config.Config, logger log.FieldLogger) (genai.Backend, error) {
	client, err := cloud.NewClient(cloud.Options{
		Endpoint:          cfg.OCI.Endpoint,
		Region:            cfg.BackendRegion(),
		Signer:            cloud.NewAuthorizationSigner(cfg.OCI.AuthHeader),
		Timeout:           time.Duration(cfg.OCI.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.OCI.MaxRetries,
		RequestsPerSecond: cfg.OCI.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openStore opens the configured session database.
func openStore(cfg *config.Config) (*storage.Store, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// RootCommand builds the command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ocichat",
		Short: "Chat with OCI Generative AI models from the terminal",
		Long: "ocichat streams answers from OCI Generative AI chat models.\n\n" +
			"It adapts the request format to each model family and remembers\n" +
			"which format each model accepted.",
		Version:           Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &CommandError{Code: ExitUsageError, Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file (default ~/.ocichat/config.toml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&a.model, "model", "m", "", "Model to use (overrides genai.model_names)")
	flags.StringVar(&a.region, "region", "", "OCI region (overrides oci.region)")

	root.AddCommand(
		a.newAskCommand(),
		a.newChatCommand(),
		a.newConfigCommand(),
		a.newSessionsCommand(),
		a.newVersionCommand(),
	)
	return root
}

// setup loads the config and configures logging before any command runs.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if a.verbose {
		a.Logger.SetLevel(log.DebugLevel)
	}
	if cmd.Annotations[skipConfigAnnotation] != "" {
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	if a.region != "" {
		cfg.OCI.Region = a.region
	}

	if !a.verbose {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			a.Logger.SetLevel(level)
		}
	}

	config.SetGlobal(cfg)
	a.cfg = cfg
	a.Logger.WithFields(log.Fields{
		"model":  cfg.GenAI.ModelNames,
		"region": cfg.BackendRegion(),
	}).Debug("configuration loaded")
	return nil
}

// configFilePath returns the config file in use, or the default TOML path.
func (a *App) configFilePath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	if path, err := config.ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	if path, err := config.ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	return config.ConfigPathTOML()
}

// newChatClient builds a chat client over settings. A missing endpoint is
// not fatal here: the client still answers the "no model" case and reports
// ErrNoBackend otherwise.
func (a *App) newChatClient(cfg *config.Config, settings genai.Settings) (*genai.Client, error) {
	var backend genai.Backend
	b, err := a.NewBackend(cfg, a.Logger)
	switch {
	case err == nil:
		backend = b
	case errors.Is(err, cloud.ErrNoEndpoint):
		a.Logger.WithError(err).Debug("no inference backend")
	default:
		return nil, fmt.Errorf("create backend: %w", err)
	}

	return genai.NewClient(genai.Options{
		Backend:            backend,
		Settings:           settings,
		Memory:             a.memory,
		Logger:             a.Logger,
		ExtraFormatMarkers: cfg.GenAI.FormatErrorMarkers,
		MaxImages:          cfg.GenAI.MaxImagesPerTurn,
	}), nil
}

// =============================================================================
// EXECUTE
// =============================================================================

// Run executes the command tree with args and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	root := a.RootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		a.printError(err)
	}
	return ExitCodeFor(err)
}

func (a *App) printError(err error) {
	if genai.IsCancelled(err) {
		fmt.Fprintln(a.Stderr, WarningStyle.Render("[Cancelled]"))
		return
	}
	fmt.Fprintf(a.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintln(a.Stderr, DimStyle.Render(hint))
	}
}

// Execute runs ocichat with the process arguments and returns the exit code.
func Execute() int {
	return NewApp().Run(context.Background(), os.Args[1:])
}
