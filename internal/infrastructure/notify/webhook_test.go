package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"habitquest/internal/application/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWebhookSender(t *testing.T) {
	var (
		got  webhookRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := usecase.Notification{
		UserID: uuid.New(),
		Kind:   usecase.NotifyUserDied,
		Title:  "Out of lives",
		Data:   map[string]string{"k": "v"},
	}
	require.NoError(t, NewWebhookSender(srv.URL, "tok").Notify(context.Background(), n))
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, n.UserID, got.UserID)
	assert.Equal(t, usecase.NotifyUserDied, got.Kind)
	assert.Equal(t, "v", got.Data["k"])
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "").Notify(context.Background(), usecase.Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(zaptest.NewLogger(t)).Notify(context.Background(), usecase.Notification{Kind: usecase.NotifyUserRevived}))
}
