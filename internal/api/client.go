package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/httputil"
)

// ErrRejected is returned by Client.Predict when the server refused the
// features as invalid input.
var ErrRejected = errors.New("prediction request rejected")

// Client calls a running prediction server.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the server at base, e.g.
// "http://localhost:8000".
func NewClient(base string, c httputil.HTTPClient) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return nil, err
	}
	var out HealthResponse
	if _, err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict calls POST /predict and returns the prediction and the version
// that produced it.
func (c *Client) Predict(ctx context.Context, v features.Vector) (float64, string, error) {
	body, err := json.Marshal(features.NewRequest(v))
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var out PredictResponse
	resp, err := c.do(req, &out)
	if err != nil {
		return 0, "", err
	}
	return out.Prediction, resp.Header.Get(ModelVersionHeader), nil
}

func (c *Client) do(req *http.Request, out interface{}) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e httputil.ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w (%d): %s", ErrRejected, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
