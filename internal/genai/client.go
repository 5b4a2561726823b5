// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/util"
)

// EmptyResponseToken is emitted when no variant produced text and none failed.
const EmptyResponseToken = "(empty response)"

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// ChatDetails is one chat call against the backend.
type ChatDetails struct {
	CompartmentID string
	ModelID       string
	Request       ChatRequest
}

// ChatResult is either a live event stream or a complete JSON body.
type ChatResult struct {
	Stream io.ReadCloser
	Body   []byte
}

// Backend issues chat calls. Implementations return a Stream when the
// service answered with an event stream and a Body otherwise.
type Backend interface {
	Chat(ctx context.Context, details ChatDetails) (*ChatResult, error)
	// Region is the backend's own region, used when Settings has none.
	Region() string
}

// Settings supplies per-call configuration. Values are read on every call so
// configuration changes apply without rebuilding the client.
type Settings interface {
	// ModelNames is a comma-separated list; the first non-empty entry is used.
	ModelNames() string
	Region() string
	CompartmentID() string
	SystemPrompt() string
	Overrides() model.GenerationOverrides
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	Backend  Backend
	Settings Settings
	// Memory defaults to a fresh in-process Memory.
	Memory VariantMemory
	// Logger defaults to the standard logrus logger.
	Logger log.FieldLogger
	// ExtraFormatMarkers extend DefaultFormatErrorMarkers.
	ExtraFormatMarkers []string
	// MaxImages caps images per user turn; zero uses DefaultMaxImages.
	MaxImages int
}

// Client is the adaptive multi-variant chat client. It is safe for
// concurrent use; each ChatStream call is independent apart from the shared
// variant memory.
type Client struct {
	backend   Backend
	settings  Settings
	memory    VariantMemory
	log       log.FieldLogger
	markers   []string
	maxImages int
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	memory := opts.Memory
	if memory == nil {
		memory = NewMemory()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		backend:   opts.Backend,
		settings:  opts.Settings,
		memory:    memory,
		log:       logger.WithField("component", "genai"),
		markers:   append([]string(nil), opts.ExtraFormatMarkers...),
		maxImages: opts.MaxImages,
	}
}

// Memory returns the client's variant memory.
func (c *Client) Memory() VariantMemory {
	return c.memory
}

// ResolveModel returns the trimmed override, or the first non-empty entry of
// the configured comma-separated names.
func ResolveModel(override, configured string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	if names := util.SplitList(configured); len(names) > 0 {
		return names[0]
	}
	return ""
}

// noModelMessage is sent instead of a model answer when no model is set.
func noModelMessage(lastTurn string) string {
	var b strings.Builder
	b.WriteString("No generative AI model is configured. ")
	b.WriteString("Set model_names in the [genai] section of the config file, ")
	b.WriteString("or pass --model, then send your message again.")
	if lastTurn != "" {
		b.WriteString("\n\nYour message: ")
		b.WriteString(lastTurn)
	}
	return b.String()
}

// ChatStream sends the conversation and delivers the answer through onToken,
// which may be called zero or more times with successive fragments.
//
// Candidate request shapes are tried one at a time, starting with the one
// that last succeeded for this region and model. Format rejections move on
// to the next shape; any other failure is returned as a *ChatError listing
// the shapes tried. Cancelling ctx stops the call with an error matching
// ErrCancelled and leaves the variant memory untouched.
//
// When no model is configured, onToken receives a single instructional
// message and ChatStream returns nil without contacting the backend.
func (c *Client) ChatStream(ctx context.Context, turns []model.Turn, onToken func(string), modelOverride string) error {
	if c.settings == nil {
		return errors.New("genai: settings not configured")
	}

	modelName := ResolveModel(modelOverride, c.settings.ModelNames())
	if modelName == "" {
		onToken(noModelMessage(lastText(turns)))
		return nil
	}

	compartmentID := strings.TrimSpace(c.settings.CompartmentID())
	if compartmentID == "" {
		return ErrNoCompartment
	}
	if c.backend == nil {
		return ErrNoBackend
	}

	region := strings.TrimSpace(c.settings.Region())
	if region == "" {
		region = c.backend.Region()
	}

	normalized := Normalize(turns, NormalizeOptions{
		SystemPrompt: c.settings.SystemPrompt(),
		MaxImages:    c.maxImages,
	})
	variants := BuildVariants(modelName, normalized, c.settings.Overrides())

	key := ModelKey(region, modelName)
	remembered, _ := c.memory.Get(key)
	variants = Reorder(variants, remembered)

	logger := c.log.WithFields(log.Fields{"model": modelName, "region": region})

	var (
		tried   []string
		lastErr error
	)
	for i, v := range variants {
		if ctx.Err() != nil {
			return cancelledError(ctx)
		}
		tried = append(tried, v.Name())
		vlog := logger.WithFields(log.Fields{"variant": v.Name(), "attempt": i + 1})

		start := time.Now()
		out, err := c.tryVariant(ctx, compartmentID, modelName, v, onToken, vlog)
		if err != nil {
			if IsCancelled(err) {
				vlog.Debug("chat cancelled")
				return asCancelled(err)
			}
			lastErr = err
			if out.emitted == 0 && i < len(variants)-1 && IsFormatError(err, c.markers...) {
				vlog.WithError(err).Warn("variant rejected, trying next format")
				continue
			}
			vlog.WithError(err).Error("chat failed")
			return &ChatError{Err: err, Tried: tried}
		}

		if out.emitted > 0 {
			c.memory.Remember(key, v.Name())
			vlog.WithFields(log.Fields{
				"tokens":   out.emitted,
				"fallback": out.fallback,
				"duration": time.Since(start).Round(time.Millisecond),
			}).Debug("chat succeeded")
			return nil
		}
		vlog.Debug("variant produced no text")
	}

	if lastErr != nil {
		return &ChatError{Err: lastErr, Tried: tried}
	}
	onToken(EmptyResponseToken)
	return nil
}

// attemptResult reports what one variant attempt delivered.
type attemptResult struct {
	emitted  int
	fallback bool
}

// tryVariant runs one variant: a streaming call, and if the stream carries no
// tokens, the same variant again without streaming.
func (c *Client) tryVariant(ctx context.Context, compartmentID, modelID string, v Variant, onToken func(string), logger log.FieldLogger) (attemptResult, error) {
	var out attemptResult

	res, err := c.backend.Chat(ctx, ChatDetails{
		CompartmentID: compartmentID,
		ModelID:       modelID,
		Request:       v.WithStream(true).Request(),
	})
	if err != nil {
		return out, err
	}
	if res == nil {
		res = &ChatResult{}
	}

	if res.Stream == nil {
		out.emitted, err = emitBody(res.Body, onToken)
		return out, err
	}

	out.emitted, err = readStream(ctx, res.Stream, onToken, logger)
	if err != nil || out.emitted > 0 {
		return out, err
	}

	// Zero tokens: some models only answer without streaming.
	logger.Debug("stream produced no tokens, retrying without streaming")
	if ctx.Err() != nil {
		return out, cancelledError(ctx)
	}
	out.fallback = true
	res, err = c.backend.Chat(ctx, ChatDetails{
		CompartmentID: compartmentID,
		ModelID:       modelID,
		Request:       v.WithStream(false).Request(),
	})
	if err != nil {
		return out, err
	}
	if res != nil && res.Stream != nil {
		out.emitted, err = readStream(ctx, res.Stream, onToken, logger)
		return out, err
	}
	if res != nil {
		out.emitted, err = emitBody(res.Body, onToken)
	}
	return out, err
}

// emitBody extracts the answer from a JSON body and emits it once.
func emitBody(body []byte, onToken func(string)) (int, error) {
	text, ok := ExtractText(body)
	if !ok {
		return 0, nil
	}
	text = SanitizeToken(text)
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	onToken(text)
	return 1, nil
}

// asCancelled makes sure a cancellation error matches ErrCancelled.
func asCancelled(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
