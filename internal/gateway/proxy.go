package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const maxResponseSize = 5 * 1024 * 1024 // 5MB

// ForwardRequest is the input to the HTTP forwarder.
type ForwardRequest struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// ForwardResponse is the HTTP forwarding result. Body is always a JSON
// object: non-JSON replies are wrapped as {"message": ...} and non-object
// JSON as {"data": ...}.
type ForwardResponse struct {
	StatusCode int
	Body       map[string]any
	LatencyMs  int64
}

// Forwarder sends HTTP requests to downstream services.
type Forwarder struct {
	client *http.Client
}

// NewForwarder creates a new HTTP forwarder.
// Pass timeout=0 to use DefaultHTTPTimeout.
func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Forwarder{
		client: &http.Client{Timeout: timeout},
	}
}

// Forward sends req and reads the reply. Any transport failure, timeout or
// cancellation is returned as an error; HTTP error statuses are not.
func (f *Forwarder) Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &ForwardResponse{
		StatusCode: resp.StatusCode,
		Body:       decodeReply(respBody),
		LatencyMs:  latency,
	}, nil
}

func decodeReply(raw []byte) map[string]any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		// If not JSON, wrap raw body
		return map[string]any{"message": string(raw)}
	}
	if obj, ok := v.(map[string]any); ok && obj != nil {
		return obj
	}
	return map[string]any{"data": v}
}
