package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// RunRequest carries everything the prompt runner needs for one firing.
type RunRequest struct {
	TaskID           string
	OwnerID          string
	Prompt           string
	ConversationID   string
	EnabledToolSlugs []string
	SearchEnabled    bool
}

// RunResult is a successful run: the generated text plus usage counters the
// coordinator persists into execution metadata.
type RunResult struct {
	Text            string
	InputTokens     int64
	OutputTokens    int64
	ToolInvocations int64
}

func (r *RunResult) Metadata() map[string]any {
	return map[string]any{
		"input_tokens":     r.InputTokens,
		"output_tokens":    r.OutputTokens,
		"tool_invocations": r.ToolInvocations,
	}
}

// Runner executes a prompt against the model backend. A nil error means
// success; context.DeadlineExceeded surfaces as the timeout outcome; any
// other error is a plain failure. The runner owns all provider specifics.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// CircuitBreaker guards the runner endpoint: after threshold consecutive
// failures calls fail fast until the reset window elapses.
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	state           string // "closed", "open", "half-open"
	threshold       int
	resetTimeout    time.Duration
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:        "closed",
		threshold:    3,
		resetTimeout: 60 * time.Second,
	}
}

func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case "open":
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = "half-open"
			cb.failureCount = 0
			cb.successCount = 0
		} else {
			cb.mu.Unlock()
			return ErrRunnerUnavailable
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failureCount++
		cb.lastFailureTime = time.Now()
		if cb.failureCount >= cb.threshold {
			cb.state = "open"
		}
		return err
	}

	if cb.state == "half-open" {
		cb.successCount++
		if cb.successCount >= 2 {
			cb.state = "closed"
			cb.failureCount = 0
		}
	}
	return nil
}

// HTTPRunner calls the hosted prompt-execution endpoint. The long-latency
// model call lives entirely behind this request; everything else in the
// engine stays non-blocking.
type HTTPRunner struct {
	endpoint   string
	httpClient *http.Client
	breaker    *CircuitBreaker
	logger     *zap.Logger
}

func NewHTTPRunner(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPRunner {
	return &HTTPRunner{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: NewCircuitBreaker(),
		logger:  logger,
	}
}

func (r *HTTPRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	var result *RunResult
	err := r.breaker.Call(func() error {
		res, err := r.call(ctx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *HTTPRunner) call(ctx context.Context, req RunRequest) (*RunResult, error) {
	payload := map[string]any{
		"task_id":         req.TaskID,
		"user_id":         req.OwnerID,
		"prompt":          req.Prompt,
		"conversation_id": req.ConversationID,
		"enabled_tools":   req.EnabledToolSlugs,
		"search_enabled":  req.SearchEnabled,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call runner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("runner returned status %d: %s", resp.StatusCode, string(body))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode runner response: %w", err)
	}

	usage, _ := out["usage"].(map[string]any)
	result := &RunResult{
		Text:            cast.ToString(out["text"]),
		InputTokens:     cast.ToInt64(usage["input_tokens"]),
		OutputTokens:    cast.ToInt64(usage["output_tokens"]),
		ToolInvocations: cast.ToInt64(out["tool_invocations"]),
	}

	r.logger.Debug("runner call completed",
		zap.String("task_id", req.TaskID),
		zap.Int64("input_tokens", result.InputTokens),
		zap.Int64("output_tokens", result.OutputTokens))

	return result, nil
}
