// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ocichat.
package config

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deployment profiles select the default maxTokens.
const (
	ProfileStandard = "standard"
	ProfileCompact  = "compact"
)

// CurrentVersion is the config file format version.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ocichat configuration.
type Config struct {
	Version string        `toml:"version" json:"version"`
	GenAI   GenAIConfig   `toml:"genai" json:"genai"`
	OCI     OCIConfig     `toml:"oci" json:"oci"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// GenAIConfig holds chat model settings.
type GenAIConfig struct {
	// ModelNames is a comma-separated list; the first non-empty entry is used.
	ModelNames string `toml:"model_names" json:"model_names"`
	// Region overrides the backend region for variant memory keys.
	Region        string `toml:"region" json:"region"`
	CompartmentID string `toml:"compartment_id" json:"compartment_id"`
	SystemPrompt  string `toml:"system_prompt" json:"system_prompt"`
	// Profile is "standard" (64000 max tokens) or "compact" (16000).
	Profile string `toml:"profile" json:"profile"`
	// MaxTokens of zero uses the profile default.
	MaxTokens   int      `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p,omitempty" json:"top_p,omitempty"`

	MaxImagesPerTurn   int      `toml:"max_images_per_turn" json:"max_images_per_turn"`
	FormatErrorMarkers []string `toml:"format_error_markers,omitempty" json:"format_error_markers,omitempty"`
}

// OCIConfig holds inference transport settings.
type OCIConfig struct {
	// Endpoint overrides the regional inference endpoint.
	Endpoint string `toml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Region   string `toml:"region" json:"region"`
	// AuthHeader is sent as the Authorization header, e.g. a token issued
	// by a local signing proxy. A bare token is sent as a bearer token.
	AuthHeader        string  `toml:"auth_header,omitempty" json:"auth_header,omitempty"`
	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries        int     `toml:"max_retries" json:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// StorageConfig holds session store settings.
type StorageConfig struct {
	// Path of the SQLite session database. Empty uses ~/.ocichat/sessions.db.
	Path string `toml:"path,omitempty" json:"path,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is a logrus level name: panic, fatal, error, warn, info, debug, trace.
	Level string `toml:"level" json:"level"`
}

// =============================================================================
// DEFAULT CONFIG
// =============================================================================

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		GenAI: GenAIConfig{
			Profile:          ProfileStandard,
			MaxImagesPerTurn: 10,
		},
		OCI: OCIConfig{
			TimeoutSecs: 120,
			MaxRetries:  3,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ocichat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ocichat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultStoragePath returns the default session database path.
func DefaultStoragePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// StoragePath returns the configured session database path.
func (c *Config) StoragePath() (string, error) {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return p, nil
	}
	return DefaultStoragePath()
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files may carry an auth header and must be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	return cfg, cfg.finish()
}

// LoadFromPath loads configuration from a specific file with full validation.
// Files ending in .json are decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, defaults and validation.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		log.Warnf("could not ensure secure permissions on %s: %v", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		log.Warnf("ignoring unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		log.Warnf("could not ensure secure permissions on %s: %v", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
// SECURITY: Written with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ocichat configuration file\n")
	buf.WriteString("# Values can be overridden with OCICHAT_* environment variables.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports settings that cannot be used. Sampling values are not
// errors; they are clamped when read.
func (c *Config) Validate() error {
	var errs ValidateErrors

	switch c.GenAI.Profile {
	case ProfileStandard, ProfileCompact:
	default:
		errs = append(errs, ValidationError{"genai.profile", fmt.Sprintf("must be %q or %q, got %q", ProfileStandard, ProfileCompact, c.GenAI.Profile)})
	}
	if c.GenAI.MaxImagesPerTurn < 0 {
		errs = append(errs, ValidationError{"genai.max_images_per_turn", "must not be negative"})
	}

	if c.OCI.Endpoint != "" {
		u, err := url.Parse(c.OCI.Endpoint)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, ValidationError{"oci.endpoint", "must be an http(s) URL"})
		}
	}
	if c.OCI.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"oci.timeout_secs", "must not be negative"})
	}
	if c.OCI.MaxRetries < 0 || c.OCI.MaxRetries > 10 {
		errs = append(errs, ValidationError{"oci.max_retries", "must be between 0 and 10"})
	}
	if c.OCI.RequestsPerSecond < 0 || math.IsNaN(c.OCI.RequestsPerSecond) {
		errs = append(errs, ValidationError{"oci.requests_per_second", "must not be negative"})
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{"log.level", err.Error()})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// SetDefaults fills empty fields with defaults and normalizes values.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}

	c.GenAI.Profile = strings.ToLower(strings.TrimSpace(c.GenAI.Profile))
	if c.GenAI.Profile == "" {
		c.GenAI.Profile = d.GenAI.Profile
	}
	if c.GenAI.MaxImagesPerTurn == 0 {
		c.GenAI.MaxImagesPerTurn = d.GenAI.MaxImagesPerTurn
	}
	c.GenAI.ModelNames = strings.Join(util.SplitList(c.GenAI.ModelNames), ",")
	c.GenAI.Region = strings.TrimSpace(c.GenAI.Region)
	c.GenAI.CompartmentID = strings.TrimSpace(c.GenAI.CompartmentID)

	c.OCI.Region = strings.TrimSpace(c.OCI.Region)
	if c.OCI.TimeoutSecs == 0 {
		c.OCI.TimeoutSecs = d.OCI.TimeoutSecs
	}
	if c.OCI.MaxRetries == 0 {
		c.OCI.MaxRetries = d.OCI.MaxRetries
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// ProfileMaxTokens returns the default maxTokens for the deployment profile.
func (c *Config) ProfileMaxTokens() int {
	if c.GenAI.Profile == ProfileCompact {
		return model.CompactMaxTokens
	}
	return model.DefaultMaxTokens
}

// Overrides returns the generation overrides with bounds applied. Every
// field is set: unconfigured values take the documented defaults (profile
// maxTokens, temperature 0, topP 1), so model family tables only supply
// topK and the penalties.
func (c *Config) Overrides() model.GenerationOverrides {
	o := model.GenerationOverrides{
		Temperature: c.GenAI.Temperature,
		TopP:        c.GenAI.TopP,
	}
	if c.GenAI.MaxTokens != 0 {
		v := c.GenAI.MaxTokens
		o.MaxTokens = &v
	}
	return o.Clamped(c.ProfileMaxTokens())
}

// BackendRegion returns the region for the inference endpoint: the OCI
// region, else the GenAI region override.
func (c *Config) BackendRegion() string {
	if c.OCI.Region != "" {
		return c.OCI.Region
	}
	return c.GenAI.Region
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OCICHAT_MODEL: overrides genai.model_names
//   - OCICHAT_REGION: overrides oci.region
//   - OCICHAT_COMPARTMENT_ID: overrides genai.compartment_id
//   - OCICHAT_ENDPOINT: overrides oci.endpoint
//   - OCICHAT_AUTH_HEADER: overrides oci.auth_header
//   - OCICHAT_PROFILE: overrides genai.profile
//   - OCICHAT_MAX_TOKENS: overrides genai.max_tokens
//   - OCICHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OCICHAT_MODEL"); v != "" {
		c.GenAI.ModelNames = v
	}
	if v := os.Getenv("OCICHAT_REGION"); v != "" {
		c.OCI.Region = v
	}
	if v := os.Getenv("OCICHAT_COMPARTMENT_ID"); v != "" {
		c.GenAI.CompartmentID = v
	}
	if v := os.Getenv("OCICHAT_ENDPOINT"); v != "" {
		c.OCI.Endpoint = v
	}
	if v := os.Getenv("OCICHAT_AUTH_HEADER"); v != "" {
		c.OCI.AuthHeader = v
	}
	if v := os.Getenv("OCICHAT_PROFILE"); v != "" {
		c.GenAI.Profile = v
	}
	if v := os.Getenv("OCICHAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GenAI.MaxTokens = n
		} else {
			log.Warnf("ignoring OCICHAT_MAX_TOKENS=%q: %v", v, err)
		}
	}
	if v := os.Getenv("OCICHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.GenAI.Temperature != nil {
		v := *c.GenAI.Temperature
		clone.GenAI.Temperature = &v
	}
	if c.GenAI.TopP != nil {
		v := *c.GenAI.TopP
		clone.GenAI.TopP = &v
	}
	clone.GenAI.FormatErrorMarkers = append([]string(nil), c.GenAI.FormatErrorMarkers...)
	return &clone
}

// Redacted returns a copy safe to display.
// SECURITY: The auth header must never appear in output or logs.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.OCI.AuthHeader != "" {
		safe.OCI.AuthHeader = "[REDACTED]"
	}
	return safe
}

// String returns the redacted config as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warnf("%v (using defaults)", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from the default files.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
