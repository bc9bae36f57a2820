package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBusinessTimeout bounds one business API call.
const DefaultBusinessTimeout = 60 * time.Second

// maxBusinessResponse caps how much of a business API response is read.
const maxBusinessResponse = 1 << 20 // 1MB

// BusinessAPI is an HTTP client for the fleet-operations backend. Tool
// arguments are posted as JSON; session credentials travel in the
// Authorization header, never in the request body.
type BusinessAPI struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewBusinessAPI creates a client for the backend at baseURL. A zero
// timeout selects DefaultBusinessTimeout.
func NewBusinessAPI(baseURL string, timeout time.Duration, logger *slog.Logger) *BusinessAPI {
	if timeout <= 0 {
		timeout = DefaultBusinessTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BusinessAPI{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// post sends args (minus credentials) to path and returns the raw body.
func (b *BusinessAPI) post(ctx context.Context, path string, args map[string]any) (string, error) {
	token, _ := args[AuthTokenArg].(string)

	body := make(map[string]any, len(args))
	for k, v := range args {
		if k == AuthTokenArg {
			continue
		}
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBusinessResponse))
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w", path, err)
	}

	b.logger.Debug("business API call completed",
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, data)
	}
	return string(data), nil
}

// apiTool binds one registry name to one backend endpoint.
type apiTool struct {
	api  *BusinessAPI
	name string
	path string
}

func (t *apiTool) Name() string { return t.name }

func (t *apiTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.api.post(ctx, t.path, args)
}

// UptimeReport returns the tool producing station uptime analysis lists.
func UptimeReport(api *BusinessAPI) Invoker {
	return &apiTool{api: api, name: "uptime_report", path: "/api/uptime/report"}
}

// StationInfo returns the tool looking up charging-station details.
func StationInfo(api *BusinessAPI) Invoker {
	return &apiTool{api: api, name: "station_info", path: "/api/station/info"}
}
