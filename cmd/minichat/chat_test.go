package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MiniChat/internal/chatbot"
	"MiniChat/internal/config"
)

func TestPlainChatShowsThinkingDots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Write([]byte(`{"model":"llama3:latest","message":{"role":"assistant","content":"Doing well"},"done":true}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend = config.BackendOllama
	cfg.OllamaURL = server.URL
	cfg.Plain = true
	cfg.AutoSave = false
	cfg.Telemetry = false
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.SessionDir = dir
	require.NoError(t, cfg.Validate())

	out, err := os.Create(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	defer out.Close()

	bot, cleanup, err := chatbot.NewChatBot(context.Background(), cfg, out)
	defer cleanup()
	require.NoError(t, err)

	require.NoError(t, bot.HandleLine(context.Background(), "How are you?"))

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\r. Thinking")
	assert.Contains(t, string(data), "Bot: Doing well")
}
