package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cast"
)

// ConversationStore is the chat-backend collaborator. A task gets one linked
// conversation, created lazily on the first run and reused afterward; each
// run appends a turn to it.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, ownerID, taskID, title string) (string, error)
	AppendTurn(ctx context.Context, conversationID, prompt, reply string) error
}

type HTTPConversationStore struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPConversationStore(endpoint string, timeout time.Duration) *HTTPConversationStore {
	return &HTTPConversationStore{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPConversationStore) EnsureConversation(ctx context.Context, ownerID, taskID, title string) (string, error) {
	out, err := s.post(ctx, s.endpoint+"/conversations", map[string]any{
		"user_id": ownerID,
		"task_id": taskID,
		"title":   title,
	})
	if err != nil {
		return "", err
	}
	id := cast.ToString(out["conversation_id"])
	if id == "" {
		return "", fmt.Errorf("conversation backend returned no conversation_id")
	}
	return id, nil
}

func (s *HTTPConversationStore) AppendTurn(ctx context.Context, conversationID, prompt, reply string) error {
	_, err := s.post(ctx, s.endpoint+"/conversations/"+conversationID+"/turns", map[string]any{
		"prompt": prompt,
		"reply":  reply,
	})
	return err
}

func (s *HTTPConversationStore) post(ctx context.Context, url string, payload map[string]any) (map[string]any, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call conversation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("conversation backend returned status %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode conversation response: %w", err)
	}
	return out, nil
}
