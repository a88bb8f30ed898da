package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"pullEndpointUrl":"https://h/pull","connectionTag":1}`))
	require.NoError(t, err)
	require.Equal(t, defaultTimeoutMs, cfg.TimeoutMs)
	require.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, defaultRetryMaxMs, cfg.RetryMaxMs)
}

func TestParseHonorsExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(`{"pullEndpointUrl":"https://h/pull","maxRetries":0,"retryInitialMs":0,"retryMaxMs":0}`))
	require.NoError(t, err)
	require.Zero(t, cfg.MaxRetries, "explicit 0 should be honored")
	require.Zero(t, cfg.RetryInitialMs)
	require.Zero(t, cfg.RetryMaxMs)
}

func TestParseRejectsRetryMaxBelowInitial(t *testing.T) {
	_, err := Parse([]byte(`{"retryInitialMs":5000,"retryMaxMs":1000}`))
	require.Error(t, err)
}

func TestParseIgnoresUnknownKeys(t *testing.T) {
	cfg, err := Parse([]byte(`{"pullEndpointUrl":"https://h/pull","socketioUrl":"wss://h","bogus":"ignored"}`))
	require.NoError(t, err)
	require.Equal(t, "https://h/pull", cfg.PullEndpointURL)
}
