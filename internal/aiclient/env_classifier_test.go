package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvClassifier_ClassifySensitiveKeys(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletionJSON(`{"sensitive_keys":["API_KEY","DATABASE_URL"]}`))
	})

	c := NewEnvClassifier(transport, "fast-model")
	keys, err := c.ClassifySensitiveKeys(context.Background(), []string{"API_KEY", "DATABASE_URL", "PORT"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"API_KEY", "DATABASE_URL"}, keys)
}

func TestEnvClassifier_ClassifySensitiveKeys_RejectsNonStringEntries(t *testing.T) {
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletionJSON(`{"sensitive_keys":[1,2]}`))
	})

	c := NewEnvClassifier(transport, "fast-model")
	_, err := c.ClassifySensitiveKeys(context.Background(), []string{"X"})
	assert.Error(t, err)
}
