package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kkrriders/airra/internal/models"
)

// ExecuteRequest asks the effector to run one action.
type ExecuteRequest struct {
	ActionType    models.ActionType    `json:"action_type"`
	Parameters    map[string]string    `json:"parameters,omitempty"`
	ExecutionMode models.ExecutionMode `json:"execution_mode"`
}

// ExecuteResponse is the effector's acceptance response.
type ExecuteResponse struct {
	Status    string `json:"status"` // started | rejected
	AttemptID int64  `json:"attempt_id"`
	Error     string `json:"error,omitempty"`
}

// AttemptStatus is the effector's view of a running attempt.
type AttemptStatus struct {
	Status string `json:"status"` // running | succeeded | failed
	Detail string `json:"detail,omitempty"`
}

// EffectorClient invokes remediation actions on the effector service.
type EffectorClient struct {
	baseURL string
	httpc   *http.Client
}

// NewEffectorClient builds a client with a per-call timeout.
func NewEffectorClient(baseURL string, timeout time.Duration) *EffectorClient {
	return &EffectorClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Execute starts an action attempt. A rejected attempt is returned with
// Status "rejected" and the effector's error text; it is not a transport
// error.
func (c *EffectorClient) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/actions/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("effector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("effector: status %d", resp.StatusCode)
	}

	var out ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("effector: decode response: %w", err)
	}
	return &out, nil
}

// Status polls one attempt.
func (c *EffectorClient) Status(ctx context.Context, attemptID int64) (*AttemptStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/actions/%d", c.baseURL, attemptID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("effector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("effector: status %d", resp.StatusCode)
	}

	var out AttemptStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("effector: decode response: %w", err)
	}
	return &out, nil
}

// WaitForCompletion polls an attempt until it leaves the running state or
// ctx expires.
func (c *EffectorClient) WaitForCompletion(ctx context.Context, attemptID int64, pollEvery time.Duration) (*AttemptStatus, error) {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		st, err := c.Status(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		if st.Status != "running" {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
