package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"habitquest/internal/application/usecase"

	"go.uber.org/zap"
)

// WebhookSender posts notifications as JSON to a delivery service.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

var _ usecase.Notifier = (*WebhookSender)(nil)

func NewWebhookSender(url, token string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type webhookRequest struct {
	usecase.Notification
	SentAt time.Time `json:"sent_at"`
}

func (s *WebhookSender) Notify(ctx context.Context, n usecase.Notification) error {
	body, err := json.Marshal(webhookRequest{Notification: n, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook error: status=%d body=%s", resp.StatusCode, msg)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

var _ usecase.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n usecase.Notification) error {
	l.logger.Info("notification",
		zap.String("user_id", n.UserID.String()),
		zap.String("kind", string(n.Kind)),
		zap.String("title", n.Title),
		zap.Any("data", n.Data))
	return nil
}
