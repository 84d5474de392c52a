// Package config loads process configuration from the environment,
// with a .env file loaded first if present (§4.8, §6 "Environment
// configuration").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting named in §6.
type Config struct {
	OpenRouterAPIKey string
	OpenRouterBaseURL string
	CerebrasModel    string
	LlamaModel       string

	MCPGatewayURL   string
	AutoHealEnabled bool
	MCPTimeout      time.Duration

	RedisHost        string
	RedisPort        int
	RedisDB          int
	RedisPassword    string
	RedisMaxConns    int

	LogLinesPerCheck int
	LogCheckInterval time.Duration

	APIHost string
	APIPort int

	LogLevel string
}

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultCerebrasModel     = "meta-llama/llama-3.1-8b-instruct"
	defaultLlamaModel        = "meta-llama/llama-3.1-70b-instruct"
	defaultGatewayURL        = "http://localhost:8811"
	defaultMCPTimeoutSeconds = 30
	defaultRedisPort         = 6379
	defaultRedisMaxConns     = 10
	defaultLogLinesPerCheck  = 20
	defaultLogCheckInterval  = 5.0
	defaultAPIHost           = "0.0.0.0"
	defaultAPIPort           = 8000
	defaultLogLevel          = "info"
)

// Load reads a .env file (if present, never overriding already-set
// process variables) and then parses every variable with trimming and
// explicit defaults. OPENROUTER_API_KEY is required and fails fast with
// a named field in the error (§4.8, §7 "Operator").
func Load() (Config, error) {
	_ = godotenv.Load()

	apiKey := getenvTrim("OPENROUTER_API_KEY")
	if apiKey == "" {
		return Config{}, fmt.Errorf("config: OPENROUTER_API_KEY is required")
	}

	cfg := Config{
		OpenRouterAPIKey:  apiKey,
		OpenRouterBaseURL: getenvDefault("OPENROUTER_BASE_URL", defaultOpenRouterBaseURL),
		CerebrasModel:     getenvDefault("CEREBRAS_MODEL", defaultCerebrasModel),
		LlamaModel:        getenvDefault("LLAMA_MODEL", defaultLlamaModel),

		MCPGatewayURL:   getenvDefault("MCP_GATEWAY_URL", defaultGatewayURL),
		AutoHealEnabled: parseBoolDefault(getenvTrim("AUTO_HEAL_ENABLED"), true),
		MCPTimeout:      parseSecondsDefault(getenvTrim("MCP_TIMEOUT"), defaultMCPTimeoutSeconds),

		RedisHost:     getenvTrim("REDIS_HOST"),
		RedisPort:     parseIntDefault(getenvTrim("REDIS_PORT"), defaultRedisPort),
		RedisDB:       parseIntDefault(getenvTrim("REDIS_DB"), 0),
		RedisPassword: getenvTrim("REDIS_PASSWORD"),
		RedisMaxConns: parseIntDefault(getenvTrim("REDIS_MAX_CONNECTIONS"), defaultRedisMaxConns),

		LogLinesPerCheck: parseIntDefault(getenvTrim("LOG_LINES_PER_CHECK"), defaultLogLinesPerCheck),
		LogCheckInterval: parseSecondsDefault(getenvTrim("LOG_CHECK_INTERVAL"), defaultLogCheckInterval),

		APIHost: getenvDefault("API_HOST", defaultAPIHost),
		APIPort: parseIntDefault(getenvTrim("API_PORT"), defaultAPIPort),

		LogLevel: getenvDefault("LOG_LEVEL", defaultLogLevel),
	}

	return cfg, nil
}

// RedisAddr renders the host/port pair as a net.Dial-ready address, or
// "" when REDIS_HOST is unset (selecting the in-memory event store).
func (c Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getenvDefault(key, fallback string) string {
	if v := getenvTrim(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolDefault(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseSecondsDefault(value string, fallbackSeconds float64) time.Duration {
	seconds := fallbackSeconds
	if value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			seconds = parsed
		}
	}
	return time.Duration(seconds * float64(time.Second))
}
