// Package gateway scores inbound API calls and routes them to downstream
// services.
//
// Flow per request:
//  1. Score the request with the risk engine before any downstream call
//  2. BLOCK_AND_VERIFY → 403, nothing is forwarded
//  3. Otherwise forward method, path, query and raw body to the route's service
//  4. Relay the reply (augmented with the risk score/level) or answer 503
//  5. Record exactly one metrics update and one log entry
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/riskgate/internal/risk"
)

// Errors
var (
	ErrDownstreamUnavailable = errors.New("gateway: downstream service unavailable")
	ErrCircuitOpen           = errors.New("gateway: circuit open for downstream service")
	ErrUnknownRoute          = errors.New("gateway: no route for endpoint")
	ErrMalformedInput        = errors.New("gateway: malformed input")
)

// DefaultHTTPTimeout bounds each downstream call.
const DefaultHTTPTimeout = 10 * time.Second

// Response headers stamped on every scored request.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRiskScore     = "X-Risk-Score"
	HeaderRiskLevel     = "X-Risk-Level"
)

// Service is a downstream collaborator.
type Service struct {
	Name        string // e.g. "payment-service"
	DisplayName string // e.g. "Payment", used in error messages
	BaseURL     string
}

// Route maps a method and path pattern to a service. Category decides
// whether a high score blocks the request outright.
type Route struct {
	Method   string
	Pattern  string // gin path pattern, e.g. /api/payments/:transactionId
	Category risk.Category
	Service  string
}

// ServiceURLs are the configurable base URLs of the downstream services.
type ServiceURLs struct {
	Payment      string
	Account      string
	Verification string
}

// DefaultServiceURLs are used for any empty ServiceURLs field.
var DefaultServiceURLs = ServiceURLs{
	Payment:      "http://localhost:3001",
	Account:      "http://localhost:3002",
	Verification: "http://localhost:3003",
}

// Table is the fixed routing table.
type Table struct {
	routes   []Route
	services map[string]Service
}

// NewTable builds the routing table for the given base URLs.
func NewTable(urls ServiceURLs) *Table {
	if urls.Payment == "" {
		urls.Payment = DefaultServiceURLs.Payment
	}
	if urls.Account == "" {
		urls.Account = DefaultServiceURLs.Account
	}
	if urls.Verification == "" {
		urls.Verification = DefaultServiceURLs.Verification
	}

	services := map[string]Service{
		"payment-service":      {Name: "payment-service", DisplayName: "Payment", BaseURL: strings.TrimRight(urls.Payment, "/")},
		"account-service":      {Name: "account-service", DisplayName: "Account", BaseURL: strings.TrimRight(urls.Account, "/")},
		"verification-service": {Name: "verification-service", DisplayName: "Verification", BaseURL: strings.TrimRight(urls.Verification, "/")},
	}
	return &Table{
		services: services,
		routes: []Route{
			{Method: http.MethodPost, Pattern: "/api/payments", Category: risk.CategoryPayment, Service: "payment-service"},
			{Method: http.MethodGet, Pattern: "/api/payments/:transactionId", Category: risk.CategoryPayment, Service: "payment-service"},
			{Method: http.MethodGet, Pattern: "/api/accounts/:accountId", Category: risk.CategoryAccount, Service: "account-service"},
			{Method: http.MethodPost, Pattern: "/api/verify/identity", Category: risk.CategoryVerification, Service: "verification-service"},
		},
	}
}

// Routes returns the routing table in registration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Service returns the service a route targets.
func (t *Table) Service(name string) (Service, bool) {
	s, ok := t.services[name]
	return s, ok
}

// Services returns every downstream service.
func (t *Table) Services() []Service {
	out := make([]Service, 0, len(t.services))
	for _, r := range []string{"payment-service", "account-service", "verification-service"} {
		out = append(out, t.services[r])
	}
	return out
}

// Match resolves a concrete method and path (query allowed) to a route and
// its path parameters.
func (t *Table) Match(method, target string) (Route, map[string]string, error) {
	path := target
	if u, err := url.Parse(target); err == nil {
		path = u.Path
	}
	method = strings.ToUpper(method)

	for _, r := range t.routes {
		if r.Method != method {
			continue
		}
		if params, ok := matchPattern(r.Pattern, path); ok {
			return r, params, nil
		}
	}
	return Route{}, nil, fmt.Errorf("%w: %s %s", ErrUnknownRoute, method, path)
}

func matchPattern(pattern, path string) (map[string]string, bool) {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return nil, false
	}
	params := make(map[string]string)
	for i, p := range ps {
		if strings.HasPrefix(p, ":") {
			if xs[i] == "" {
				return nil, false
			}
			params[p[1:]] = xs[i]
			continue
		}
		if p != xs[i] {
			return nil, false
		}
	}
	return params, true
}
