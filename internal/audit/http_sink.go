package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wedge/internal/scan"
)

const (
	userAgent           = "wedge/0.1.0"
	scanLogsPath        = "/scan-logs"
	defaultHTTPTimeout  = 5 * time.Second
	maxErrorBodyPreview = 2048
)

// HTTPSink posts entries to {endpoint}/scan-logs.
type HTTPSink struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPSink builds a sink for endpoint. token, when set, is sent as a bearer
// credential.
func NewHTTPSink(endpoint, token string, timeout time.Duration) (*HTTPSink, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("audit endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPSink{
		url:    endpoint + scanLogsPath,
		token:  strings.TrimSpace(token),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSink) Name() string { return "http" }

// URL returns the full scan-log URL.
func (s *HTTPSink) URL() string { return s.url }

func (s *HTTPSink) Deliver(ctx context.Context, entry scan.AuditEntry) error {
	body, err := json.Marshal(NewPayload(entry))
	if err != nil {
		return fmt.Errorf("encode scan log: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build scan log request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send scan log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
		return fmt.Errorf("scan log endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(preview)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
