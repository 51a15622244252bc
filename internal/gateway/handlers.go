package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mbd888/riskgate/internal/logging"
)

// Handler exposes the routed endpoints and the in-process test endpoint.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates a new gateway handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes sets up every routed endpoint from the table.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	for _, rt := range h.dispatcher.Table().Routes() {
		r.Handle(rt.Method, rt.Pattern, h.serve(rt))
	}
}

// RegisterTestRoute sets up POST /api/test.
func (h *Handler) RegisterTestRoute(r gin.IRoutes) {
	r.POST("/api/test", h.Test)
}

func (h *Handler) serve(rt Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := correlationID(c)

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			c.JSON(status, gin.H{
				"error":         "invalid_request",
				"message":       "Could not read request body",
				"correlationId": id,
			})
			return
		}
		body, err := decodeBody(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":         "Invalid JSON payload",
				"message":       err.Error(),
				"correlationId": id,
			})
			return
		}

		params := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}

		res := h.dispatcher.Dispatch(c.Request.Context(), Inbound{
			CorrelationID: id,
			Route:         rt,
			Path:          c.Request.URL.Path,
			RawQuery:      c.Request.URL.RawQuery,
			Params:        params,
			RawBody:       raw,
			Body:          body,
			IPAddress:     c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
		})
		writeResult(c, id, res)
	}
}

// Test handles POST /api/test: the JSON object body is dispatched in-process
// through the same pipeline. Optional "endpoint" and "method" fields select
// the route and are removed from the payload.
func (h *Handler) Test(c *gin.Context) {
	id := correlationID(c)

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid JSON payload",
			"message": "Request body must be a valid JSON object",
		})
		return
	}

	endpoint := "/api/payments"
	if v, ok := payload["endpoint"].(string); ok && v != "" {
		endpoint = v
	}
	method := http.MethodPost
	if v, ok := payload["method"].(string); ok && v != "" {
		method = strings.ToUpper(v)
	}
	delete(payload, "endpoint")
	delete(payload, "method")

	target, err := url.Parse(endpoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown_endpoint",
			"message": err.Error(),
		})
		return
	}
	path := target.EscapedPath()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	rt, params, err := h.dispatcher.Table().Match(method, path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown_endpoint",
			"message": err.Error(),
		})
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid JSON payload",
			"message": err.Error(),
		})
		return
	}

	res := h.dispatcher.Dispatch(c.Request.Context(), Inbound{
		CorrelationID: id,
		Route:         rt,
		Path:          path,
		RawQuery:      target.RawQuery,
		Params:        params,
		RawBody:       raw,
		Body:          payload,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})

	c.Header(HeaderCorrelationID, id)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"testRequest":   payload,
		"response":      res.Body,
		"statusCode":    res.StatusCode,
		"correlationId": id,
		"timestamp":     h.dispatcher.now().UTC(),
	})
}

func writeResult(c *gin.Context, id string, res Result) {
	c.Header(HeaderCorrelationID, id)
	if a := res.Assessment; a != nil {
		c.Header(HeaderRiskScore, a.ScoreHeader())
		c.Header(HeaderRiskLevel, string(a.RiskLevel))
	}
	c.JSON(res.StatusCode, res.Body)
}

// decodeBody parses a JSON body. An empty body decodes to nil.
func decodeBody(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedInput)
	}
	return v, nil
}

// correlationID returns the id assigned by the correlation middleware, or a
// fresh one when the handler runs without it.
func correlationID(c *gin.Context) string {
	if id := logging.CorrelationID(c.Request.Context()); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Request = c.Request.WithContext(logging.WithCorrelationID(c.Request.Context(), id))
	return id
}
