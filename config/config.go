package config

import (
	"encoding/json"
	"fmt"
)

// SyncConfig is the host-supplied configuration for the sync engine.
// Every default below is non-zero, but each defaulted key legitimately
// accepts an explicit 0 (e.g. maxRetries 0 means "never retry"). rawFields
// records which keys were actually present in the source JSON so
// applyDefaults can tell "unset" apart from "explicitly set to zero" for
// every defaulted key.
type SyncConfig struct {
	PullEndpointURL string `json:"pullEndpointUrl"`
	SocketIOURL     string `json:"socketioUrl"`
	ConnectionTag   int    `json:"connectionTag"`
	TimeoutMs       int    `json:"timeoutMs"`
	MaxRetries      int    `json:"maxRetries"`
	MaxAuthRetries  int    `json:"maxAuthRetries"`
	RetryInitialMs  int    `json:"retryInitialMs"`
	RetryMaxMs      int    `json:"retryMaxMs"`

	rawFields map[string]json.RawMessage
}

const (
	defaultTimeoutMs      = 30000
	defaultMaxRetries     = 3
	defaultMaxAuthRetries = 3
	defaultRetryInitialMs = 1000
	defaultRetryMaxMs     = 30000
)

// Default returns a SyncConfig with every field set to its built-in
// default, for engines that have not yet received a configure() call.
func Default() *SyncConfig {
	return &SyncConfig{
		TimeoutMs:      defaultTimeoutMs,
		MaxRetries:     defaultMaxRetries,
		MaxAuthRetries: defaultMaxAuthRetries,
		RetryInitialMs: defaultRetryInitialMs,
		RetryMaxMs:     defaultRetryMaxMs,
	}
}

// Parse decodes raw (a JSON object) into a SyncConfig and applies defaults.
// Unknown keys are ignored.
func Parse(raw []byte) (*SyncConfig, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("config: invalid JSON: %w", err)
	}

	cfg := &SyncConfig{rawFields: fields}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: invalid config object: %w", err)
	}
	cfg.applyDefaults()

	if cfg.RetryMaxMs < cfg.RetryInitialMs {
		return nil, fmt.Errorf("config: retryMaxMs (%d) must be >= retryInitialMs (%d)", cfg.RetryMaxMs, cfg.RetryInitialMs)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("config: maxRetries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.MaxAuthRetries < 0 {
		return nil, fmt.Errorf("config: maxAuthRetries must be >= 0, got %d", cfg.MaxAuthRetries)
	}
	return cfg, nil
}

func (c *SyncConfig) applyDefaults() {
	if _, ok := c.rawFields["timeoutMs"]; !ok {
		c.TimeoutMs = defaultTimeoutMs
	}
	if _, ok := c.rawFields["maxRetries"]; !ok {
		c.MaxRetries = defaultMaxRetries
	}
	if _, ok := c.rawFields["maxAuthRetries"]; !ok {
		c.MaxAuthRetries = defaultMaxAuthRetries
	}
	if _, ok := c.rawFields["retryInitialMs"]; !ok {
		c.RetryInitialMs = defaultRetryInitialMs
	}
	if _, ok := c.rawFields["retryMaxMs"]; !ok {
		c.RetryMaxMs = defaultRetryMaxMs
	}
}
