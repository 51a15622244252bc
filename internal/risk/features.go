package risk

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	defaultIP        = "127.0.0.1"
	defaultUserAgent = "Unknown"
	defaultUserID    = "anonymous"

	businessHourStart = 9
	businessHourEnd   = 21 // inclusive
)

// RawRequest describes an inbound call before normalisation. Body is a
// decoded JSON value (map, slice, scalar) or nil.
type RawRequest struct {
	CorrelationID string
	IPAddress     string
	UserAgent     string
	Endpoint      string
	Method        string
	Category      Category
	Body          any
}

// RequestFeatures is the canonical feature record the detectors read.
type RequestFeatures struct {
	CorrelationID   string
	Timestamp       time.Time
	IPAddress       string
	UserAgent       string
	Endpoint        string
	Method          string
	Category        Category
	Body            any
	HourOfDay       int
	IsBusinessHours bool
	Amount          float64
	UserID          string
}

// Extract normalises req into a feature record using now as the wall clock.
// It never fails: missing or malformed fields fall back to defaults.
func Extract(req RawRequest, now time.Time) RequestFeatures {
	body := req.Body
	if body == nil {
		body = map[string]any{}
	}

	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = defaultIP
	}
	ua := req.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	hour := now.Hour()
	f := RequestFeatures{
		CorrelationID:   req.CorrelationID,
		Timestamp:       now,
		IPAddress:       ip,
		UserAgent:       ua,
		Endpoint:        req.Endpoint,
		Method:          strings.ToUpper(req.Method),
		Category:        req.Category,
		Body:            body,
		HourOfDay:       hour,
		IsBusinessHours: hour >= businessHourStart && hour <= businessHourEnd,
		UserID:          defaultUserID,
	}

	if obj, ok := body.(map[string]any); ok {
		f.Amount = parseAmount(obj["amount"])
		if uid := stringField(obj["userId"]); uid != "" {
			f.UserID = uid
		}
	}
	return f
}

// parseAmount accepts JSON numbers and numeric strings. Anything else,
// including NaN and infinities, is treated as no amount.
func parseAmount(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		f, _ = x.Float64()
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(x), 64)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return 0
	}
	if f != f || f > maxAmount || f < -maxAmount {
		return 0
	}
	return f
}

const maxAmount = 1e15

func stringField(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}
