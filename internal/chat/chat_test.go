package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragreader/internal/domain"
)

var _ domain.Completer = (*Client)(nil)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body struct {
			Model    string    `json:"model"`
			Messages []message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tiny", body.Model)
		assert.Equal(t, []message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "what is alpha?"},
		}, body.Messages)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"tiny",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Alpha is the first letter.\n"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "tiny", Logger: zerolog.Nop()})
	got, err := c.Complete(context.Background(), "be brief", "what is alpha?")
	require.NoError(t, err)
	assert.Equal(t, "Alpha is the first letter.", got)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL + "/v1", Logger: zerolog.Nop()}).Complete(context.Background(), "s", "u")
	assert.EqualError(t, err, "chat completion returned no choices")
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"model offline","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL + "/v1", Logger: zerolog.Nop()}).Complete(context.Background(), "s", "u")
	assert.ErrorContains(t, err, "model offline")
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL + "/v1", Timeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	start := time.Now()
	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
