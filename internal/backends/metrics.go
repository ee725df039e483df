package backends

// Package backends holds the outbound HTTP clients: metrics, logs,
// reasoning model, and effector. Each client is a thin typed wrapper over
// one collaborator's JSON surface; retries and error classification are the
// caller's concern.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Point is one timestamped sample.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series is one labeled time series from a range query.
type Series struct {
	Metric map[string]string
	Points []Point
}

// MetricsClient queries the metrics backend's range API.
type MetricsClient struct {
	baseURL string
	httpc   *http.Client
}

// NewMetricsClient builds a client for the given base URL with a per-query
// timeout.
func NewMetricsClient(baseURL string, timeout time.Duration) *MetricsClient {
	return &MetricsClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// queryRangeResponse is the standard range-query envelope. Only vector and
// matrix result types are consumed.
type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]any          `json:"values"`
			Value  [2]any            `json:"value"`
		} `json:"result"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// QueryRange runs a range query and returns the decoded series.
func (c *MetricsClient) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]Series, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.Itoa(int(step.Seconds())))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/query_range?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics backend: status %d", resp.StatusCode)
	}

	var body queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("metrics backend: decode response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("metrics backend: query failed: %s", body.Error)
	}

	switch body.Data.ResultType {
	case "matrix", "vector":
	default:
		return nil, fmt.Errorf("metrics backend: unsupported result type %q", body.Data.ResultType)
	}

	out := make([]Series, 0, len(body.Data.Result))
	for _, r := range body.Data.Result {
		s := Series{Metric: r.Metric}
		values := r.Values
		if len(values) == 0 && r.Value[0] != nil {
			values = [][2]any{r.Value}
		}
		for _, v := range values {
			p, err := decodePoint(v)
			if err != nil {
				return nil, fmt.Errorf("metrics backend: %w", err)
			}
			s.Points = append(s.Points, p)
		}
		out = append(out, s)
	}
	return out, nil
}

// LatestValue runs a range query and returns the last sample of the first
// series, used for point-in-time reads like QPS and pre/post snapshots.
func (c *MetricsClient) LatestValue(ctx context.Context, query string) (float64, bool, error) {
	now := time.Now()
	series, err := c.QueryRange(ctx, query, now.Add(-5*time.Minute), now, time.Minute)
	if err != nil {
		return 0, false, err
	}
	if len(series) == 0 || len(series[0].Points) == 0 {
		return 0, false, nil
	}
	pts := series[0].Points
	return pts[len(pts)-1].Value, true, nil
}

func decodePoint(v [2]any) (Point, error) {
	ts, ok := v[0].(float64)
	if !ok {
		return Point{}, fmt.Errorf("malformed sample timestamp %v", v[0])
	}
	str, ok := v[1].(string)
	if !ok {
		return Point{}, fmt.Errorf("malformed sample value %v", v[1])
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return Point{}, fmt.Errorf("malformed sample value %q: %w", str, err)
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return Point{Timestamp: time.Unix(sec, nsec).UTC(), Value: val}, nil
}
