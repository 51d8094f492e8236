package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers the post-run summary email. Failures must never fail the
// execution; the coordinator swallows every error this returns.
type Notifier interface {
	SendSummary(ctx context.Context, ownerID, title, content, conversationRef string) error
}

type HTTPNotifier struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPNotifier(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (n *HTTPNotifier) SendSummary(ctx context.Context, ownerID, title, content, conversationRef string) error {
	payload := map[string]any{
		"user_id":          ownerID,
		"title":            title,
		"content":          content,
		"conversation_ref": conversationRef,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notifier returned status %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier is used when email notification is disabled by config.
type NopNotifier struct{}

func (NopNotifier) SendSummary(context.Context, string, string, string, string) error {
	return nil
}
