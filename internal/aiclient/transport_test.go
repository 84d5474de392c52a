package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Chat_RetriesOnTransientStatus(t *testing.T) {
	var calls int32
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"unavailable"}}`)
			return
		}
		fmt.Fprint(w, chatCompletionJSON("ok"))
	})
	transport.client.Timeout = 0

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	content, err := transport.Chat(ctx, ChatParams{Model: "m", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTransport_Chat_NonRetryableFailsImmediately(t *testing.T) {
	var calls int32
	transport, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	})

	_, err := transport.Chat(context.Background(), ChatParams{Model: "m", User: "hi"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewTransport_DefaultsBaseURL(t *testing.T) {
	tr := NewTransport("key", "", 0, zerolog.Nop())
	assert.Equal(t, defaultBaseURL, tr.baseURL)
}
