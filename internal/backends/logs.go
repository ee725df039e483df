package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// LogItem is one log record from the log backend.
type LogItem struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// LogsClient queries the optional log backend.
type LogsClient struct {
	baseURL string
	httpc   *http.Client
}

// NewLogsClient builds a client for the given base URL.
func NewLogsClient(baseURL string, timeout time.Duration) *LogsClient {
	return &LogsClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Query fetches up to limit log items for a service in [start, end].
func (c *LogsClient) Query(ctx context.Context, service string, start, end time.Time, limit int) ([]LogItem, error) {
	q := url.Values{}
	q.Set("service", service)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/logs?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("log backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("log backend: status %d", resp.StatusCode)
	}

	var body struct {
		Items []LogItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("log backend: decode response: %w", err)
	}
	return body.Items, nil
}
