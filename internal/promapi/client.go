// Package promapi is a small client for the Prometheus HTTP query API.
package promapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrQueryFailed = errors.New("prometheus query failed")
	ErrNoData      = errors.New("prometheus query returned no data")
)

// Sample is one point of a range query.
type Sample struct {
	Time  time.Time
	Value float64
}

type envelope struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
	Data      struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string   `json:"metric"`
			Value  []json.RawMessage   `json:"value"`
			Values [][]json.RawMessage `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// New returns a client for the backend at baseURL. Every request is bounded
// by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Query runs an instant query and returns the value of the first result.
func (c *Client) Query(ctx context.Context, expr string) (float64, error) {
	params := url.Values{"query": {expr}}
	env, err := c.get(ctx, "/api/v1/query", params)
	if err != nil {
		return 0, err
	}
	if len(env.Data.Result) == 0 {
		return 0, ErrNoData
	}
	_, v, err := parsePair(env.Data.Result[0].Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return v, nil
}

// QueryRange runs a range query and returns the samples of the first series.
func (c *Client) QueryRange(ctx context.Context, expr string, start, end time.Time, step time.Duration) ([]Sample, error) {
	params := url.Values{
		"query": {expr},
		"start": {strconv.FormatInt(start.Unix(), 10)},
		"end":   {strconv.FormatInt(end.Unix(), 10)},
		"step":  {strconv.FormatFloat(step.Seconds(), 'f', -1, 64)},
	}
	env, err := c.get(ctx, "/api/v1/query_range", params)
	if err != nil {
		return nil, err
	}
	if len(env.Data.Result) == 0 {
		return nil, ErrNoData
	}

	values := env.Data.Result[0].Values
	out := make([]Sample, 0, len(values))
	for _, pair := range values {
		ts, v, err := parsePair(pair)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		out = append(out, Sample{Time: ts, Value: v})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: status %d: decode: %v", ErrQueryFailed, resp.StatusCode, err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("%w: status %q: %s", ErrQueryFailed, env.Status, env.Error)
	}
	return &env, nil
}

// parsePair decodes a [unixSeconds, "value"] pair.
func parsePair(pair []json.RawMessage) (time.Time, float64, error) {
	if len(pair) != 2 {
		return time.Time{}, 0, fmt.Errorf("value pair has %d elements", len(pair))
	}
	var ts float64
	if err := json.Unmarshal(pair[0], &ts); err != nil {
		return time.Time{}, 0, fmt.Errorf("timestamp: %w", err)
	}
	var s string
	if err := json.Unmarshal(pair[1], &s); err != nil {
		return time.Time{}, 0, fmt.Errorf("value: %w", err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("value: %w", err)
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), v, nil
}
