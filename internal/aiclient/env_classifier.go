package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const envClassifierSystemPrompt = `You classify environment variable names by sensitivity for a container monitoring system
that must avoid leaking secrets into diagnostic prompts. Given a list of variable names (not values),
respond with strict JSON only: {"sensitive_keys": string[]} naming the subset that likely hold secrets
(passwords, tokens, API keys, connection strings, credentials). Do not include names that are clearly
non-secret (ports, hostnames without credentials, feature flags).`

// EnvClassifier adapts the fast classifier's transport to
// redact.Classifier, implementing the model-assisted tier of C1's
// two-tier strategy (§4.1 item 1).
type EnvClassifier struct {
	transport *Transport
	model     string
}

// NewEnvClassifier constructs the model-assisted sensitivity classifier.
func NewEnvClassifier(transport *Transport, model string) *EnvClassifier {
	return &EnvClassifier{transport: transport, model: model}
}

// ClassifySensitiveKeys implements redact.Classifier.
func (e *EnvClassifier) ClassifySensitiveKeys(ctx context.Context, names []string) ([]string, error) {
	content, err := e.transport.Chat(ctx, ChatParams{
		Model:       e.model,
		System:      envClassifierSystemPrompt,
		User:        "Variable names:\n" + strings.Join(names, "\n"),
		Temperature: 0,
		MaxTokens:   300,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("env classifier call: %w", err)
	}

	var parsed struct {
		SensitiveKeys []interface{} `json:"sensitive_keys"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal sensitive_keys: %w", err)
	}

	out := make([]string, 0, len(parsed.SensitiveKeys))
	for _, v := range parsed.SensitiveKeys {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("sensitive_keys entry is not a string: %v", v)
		}
		out = append(out, s)
	}
	return out, nil
}
