package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutCredentialsDropsAlerts(t *testing.T) {
	assert.IsType(t, Nop{}, New(Config{}))
	assert.IsType(t, Nop{}, New(Config{TelegramToken: "t"}))
	assert.NoError(t, New(Config{}).SendAlert(context.Background(), LevelError, "ignored"))
	assert.IsType(t, &TelegramNotifier{}, New(Config{TelegramToken: "t", TelegramChat: "c"}))
}

func TestTelegramSendAlert(t *testing.T) {
	var path, chat, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, r.ParseForm())
		chat = r.PostForm.Get("chat_id")
		text = r.PostForm.Get("text")
	}))
	defer srv.Close()

	n := NewTelegramNotifier("secret", "42").WithBaseURL(srv.URL + "/")
	require.NoError(t, n.SendAlert(context.Background(), LevelSuccess, "TREND_UP searched"))

	assert.Equal(t, "/botsecret/sendMessage", path)
	assert.Equal(t, "42", chat)
	assert.Contains(t, text, "✅ Regime Optimizer")
	assert.Contains(t, text, "TREND_UP searched")
}

func TestTelegramStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramNotifier("secret", "42").WithBaseURL(srv.URL).SendAlert(context.Background(), LevelError, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
