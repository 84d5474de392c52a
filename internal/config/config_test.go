package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("OPENROUTER_BASE_URL", "")
	t.Setenv("MCP_GATEWAY_URL", "")
	t.Setenv("AUTO_HEAL_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultOpenRouterBaseURL, cfg.OpenRouterBaseURL)
	assert.Equal(t, defaultGatewayURL, cfg.MCPGatewayURL)
	assert.True(t, cfg.AutoHealEnabled)
	assert.Equal(t, "", cfg.RedisAddr())
}

func TestLoad_RedisAddrWhenHostSet(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}

func TestLoad_AutoHealDisabled(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("AUTO_HEAL_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AutoHealEnabled)
}
