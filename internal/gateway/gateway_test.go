package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/riskgate/internal/circuitbreaker"
	"github.com/mbd888/riskgate/internal/metrics"
	"github.com/mbd888/riskgate/internal/requestlog"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router   *gin.Engine
	engine   *risk.Engine
	recorder *metrics.Recorder
	log      *requestlog.Log
	breaker  *circuitbreaker.Breaker
}

type fixtureOpts struct {
	hour    int
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	scorer  risk.Scorer
}

func newFixture(t *testing.T, downstream string, o fixtureOpts) *fixture {
	t.Helper()
	if o.hour == 0 {
		o.hour = 14
	}
	now := time.Date(2026, 3, 10, o.hour, 0, 0, 0, time.UTC)
	engine := risk.NewEngine().WithClock(func() time.Time { return now })

	var scorer risk.Scorer = engine
	if o.scorer != nil {
		scorer = o.scorer
	}
	breaker := o.breaker
	if breaker == nil {
		breaker = circuitbreaker.New(100, time.Minute)
	}

	f := &fixture{
		engine:   engine,
		recorder: metrics.NewRecorder(),
		log:      requestlog.New(requestlog.DefaultCapacity),
		breaker:  breaker,
	}
	table := NewTable(ServiceURLs{Payment: downstream, Account: downstream, Verification: downstream})
	d := NewDispatcher(scorer, table, NewForwarder(o.timeout), breaker, f.recorder, f.log,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	h := NewHandler(d)
	f.router = gin.New()
	h.RegisterRoutes(f.router)
	h.RegisterTestRoute(f.router)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "gateway-test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// closedURL returns the URL of a server that is no longer listening.
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestForwardAllowedPayment(t *testing.T) {
	var got struct {
		method, path, corr, score, level, body string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.method, got.path, got.body = r.Method, r.URL.Path, string(b)
		got.corr = r.Header.Get(HeaderCorrelationID)
		got.score = r.Header.Get(HeaderRiskScore)
		got.level = r.Header.Get(HeaderRiskLevel)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"transactionId":"tx-1","status":"completed"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})
	payload := `{"amount":120.5,"userId":"user-1","recipient":"acct-2"}`
	w := f.do(http.MethodPost, "/api/payments", payload)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "tx-1", body["transactionId"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(0), body["riskScore"])
	assert.Equal(t, "NORMAL", body["riskLevel"])

	corr := w.Header().Get(HeaderCorrelationID)
	assert.NotEmpty(t, corr)
	assert.Equal(t, "0", w.Header().Get(HeaderRiskScore))
	assert.Equal(t, "NORMAL", w.Header().Get(HeaderRiskLevel))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/payments", got.path)
	assert.Equal(t, payload, got.body, "raw body forwarded unchanged")
	assert.Equal(t, corr, got.corr)
	assert.Equal(t, "0", got.score)
	assert.Equal(t, "NORMAL", got.level)

	snap := f.recorder.Snapshot()
	assert.Equal(t, int64(1), snap.Requests.Total)
	assert.Equal(t, int64(1), snap.Requests.Success)
	assert.Equal(t, int64(1), snap.Requests.ByEndpoint["/api/payments"])
	assert.Equal(t, int64(1), snap.Requests.ByMethod["POST"])

	entries, total := f.log.List(10, "")
	require.Equal(t, 1, total)
	e := entries[0]
	assert.Equal(t, corr, e.CorrelationID)
	assert.Equal(t, requestlog.RoutingAllowed, e.Routing.Decision)
	assert.Equal(t, "payment-service", e.Routing.TargetService)
	assert.Equal(t, "Normal traffic", e.Routing.Reason)
	assert.Equal(t, http.StatusCreated, e.Response.StatusCode)
	assert.Equal(t, "192.0.2.10", e.Request.IPAddress)
	assert.Equal(t, "gateway-test", e.Request.UserAgent)
	require.NotNil(t, e.Decision)
	assert.Equal(t, risk.LevelNormal, e.Decision.RiskLevel)
}

func TestForwardGetWithParamsAndQuery(t *testing.T) {
	var path, query, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query, method = r.URL.Path, r.URL.RawQuery, r.Method
		_, _ = w.Write([]byte(`{"accountId":"acct-9","balance":10}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})
	w := f.do(http.MethodGet, "/api/accounts/acct-9?verbose=1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/accounts/acct-9", path)
	assert.Equal(t, "verbose=1", query)
	assert.Equal(t, http.MethodGet, method)

	snap := f.recorder.Snapshot()
	assert.Equal(t, int64(1), snap.Requests.ByEndpoint["/api/accounts/:accountId"])

	entries, _ := f.log.List(1, "")
	assert.Equal(t, map[string]string{"accountId": "acct-9"}, entries[0].Request.Params)
	assert.Equal(t, "account-service", entries[0].Routing.TargetService)
}

func TestEachRequestGetsCorrelationID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL, fixtureOpts{})

	w := f.do(http.MethodPost, "/api/verify/identity", `{"documentId":"d-1"}`)
	first := w.Header().Get(HeaderCorrelationID)
	w = f.do(http.MethodPost, "/api/verify/identity", `{"documentId":"d-2"}`)
	assert.NotEqual(t, first, w.Header().Get(HeaderCorrelationID), "each request gets its own id")
}

// Scenario: the same high-value payment replayed from one IP at 2 AM.
func TestReplayAttackIsBlockedWithoutForwarding(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{hour: 2})
	payload := `{"amount":12000,"userId":"user-9","recipient":"acct-x"}`

	var codes []int
	var last *httptest.ResponseRecorder
	for i := 0; i < 25; i++ {
		last = f.do(http.MethodPost, "/api/payments", payload)
		codes = append(codes, last.Code)
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusCreated, codes[i], "request %d", i+1)
	}
	for i := 10; i < 25; i++ {
		assert.Equal(t, http.StatusForbidden, codes[i], "request %d", i+1)
	}
	assert.Equal(t, int32(10), hits.Load(), "blocked requests never reach the downstream")

	body := decode(t, last)
	assert.Equal(t, "Transaction blocked due to high fraud risk", body["error"])
	assert.Equal(t, float64(100), body["riskScore"])
	assert.Equal(t, "HIGH_RISK", body["riskLevel"])
	assert.Contains(t, body["explanation"], "Primary concern")
	assert.Equal(t, last.Header().Get(HeaderCorrelationID), body["correlationId"])
	assert.Equal(t, "100", last.Header().Get(HeaderRiskScore))

	snap := f.recorder.Snapshot()
	assert.Equal(t, int64(25), snap.Requests.Total)
	assert.Equal(t, int64(15), snap.Requests.Blocked)
	assert.Equal(t, int64(15), snap.Requests.Failed)
	assert.Equal(t, int64(10), snap.Requests.Success)
	assert.Equal(t, int64(15), snap.Risk.ByLevel[risk.LevelHighRisk])

	blocked, total := f.log.List(100, risk.LevelHighRisk)
	assert.Equal(t, 15, total)
	assert.Equal(t, requestlog.RoutingBlocked, blocked[0].Routing.Decision)
	assert.Equal(t, "Risk score exceeds threshold", blocked[0].Routing.Reason)
	assert.Equal(t, 25, f.log.Len())
}

func TestHighRiskNonPaymentIsForwarded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"verified":true}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{hour: 2})
	var w *httptest.ResponseRecorder
	for i := 0; i < 12; i++ {
		w = f.do(http.MethodPost, "/api/verify/identity", `{"amount":9000,"documentId":"same"}`)
	}
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(12), hits.Load())
	assert.Equal(t, "HIGH_RISK", w.Header().Get(HeaderRiskLevel))

	entries, _ := f.log.List(1, "")
	assert.Equal(t, risk.RecommendAdditionalAuth, entries[0].Decision.Recommendation)
	assert.Equal(t, "Allowed with monitoring", entries[0].Routing.Reason)
}

func TestDownstreamUnavailable(t *testing.T) {
	f := newFixture(t, closedURL(t), fixtureOpts{})

	w := f.do(http.MethodPost, "/api/payments", `{"amount":50}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Payment service unavailable", body["error"])
	assert.Equal(t, w.Header().Get(HeaderCorrelationID), body["correlationId"])
	assert.Equal(t, "0", w.Header().Get(HeaderRiskScore))

	snap := f.recorder.Snapshot()
	assert.Equal(t, int64(1), snap.Requests.Total)
	assert.Equal(t, int64(1), snap.Requests.Failed)
	assert.Equal(t, int64(0), snap.Requests.Blocked)

	entries, total := f.log.List(10, "")
	require.Equal(t, 1, total)
	assert.Equal(t, requestlog.RoutingFailed, entries[0].Routing.Decision)
	assert.Equal(t, http.StatusServiceUnavailable, entries[0].Response.StatusCode)
}

func TestDownstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{timeout: 50 * time.Millisecond})
	start := time.Now()
	w := f.do(http.MethodGet, "/api/accounts/acct-1", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "Account service unavailable", decode(t, w)["error"])
}

func TestCallerCancellationIsNotBreakerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/payments/tx-1", nil).WithContext(ctx)
	time.AfterFunc(20*time.Millisecond, cancel)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, circuitbreaker.StateClosed, f.breaker.State("payment-service"))
	assert.Equal(t, int64(1), f.recorder.Snapshot().Requests.Total)
}

func TestReplyBodyWrapping(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		key   string
		want  any
	}{
		{"plain text", "OK plain", "message", "OK plain"},
		{"json array", `[1,2]`, "data", []any{float64(1), float64(2)}},
		{"json string", `"done"`, "data", "done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			f := newFixture(t, srv.URL, fixtureOpts{})
			w := f.do(http.MethodGet, "/api/payments/tx-9", "")
			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.want, body[tt.key])
			assert.Equal(t, "NORMAL", body["riskLevel"])
		})
	}
}

func TestDownstreamErrorStatusIsRelayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"ledger offline"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})
	w := f.do(http.MethodPost, "/api/payments", `{"amount":10}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "ledger offline", decode(t, w)["error"])
	assert.Equal(t, int64(1), f.recorder.Snapshot().Requests.Failed)
}

func TestOpenCircuitShortCircuits(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{breaker: circuitbreaker.New(2, time.Minute)})
	f.do(http.MethodGet, "/api/payments/a", "")
	f.do(http.MethodGet, "/api/payments/b", "")
	w := f.do(http.MethodGet, "/api/payments/c", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, circuitbreaker.StateOpen, f.breaker.State("payment-service"))
	assert.Equal(t, int64(3), f.recorder.Snapshot().Requests.Total)
}

type panicScorer struct{}

func (panicScorer) Analyze(context.Context, risk.RawRequest) *risk.RiskAssessment {
	panic("scorer exploded")
}

func TestPanicIsRecoveredAndCountedOnce(t *testing.T) {
	f := newFixture(t, closedURL(t), fixtureOpts{scorer: panicScorer{}})

	w := f.do(http.MethodPost, "/api/payments", `{"amount":1}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])

	snap := f.recorder.Snapshot()
	assert.Equal(t, int64(1), snap.Requests.Total)
	assert.Equal(t, int64(1), snap.Requests.Failed)

	entries, total := f.log.List(10, "")
	require.Equal(t, 1, total)
	assert.Equal(t, requestlog.RoutingError, entries[0].Routing.Decision)
	assert.Nil(t, entries[0].Decision)
}

func TestMalformedBodyIsRejected(t *testing.T) {
	f := newFixture(t, closedURL(t), fixtureOpts{})

	w := f.do(http.MethodPost, "/api/payments", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(0), f.recorder.Snapshot().Requests.Total)
	assert.Equal(t, 0, f.log.Len())
}

func TestTestEndpointDispatchesInProcess(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		path, body = r.URL.Path, string(b)
		_, _ = w.Write([]byte(`{"accountId":"acct-7"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})
	w := f.do(http.MethodPost, "/api/test", `{"endpoint":"/api/accounts/acct-7","method":"get","note":"hi"}`)

	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, map[string]any{"note": "hi"}, out["testRequest"])
	assert.Equal(t, float64(200), out["statusCode"])
	assert.NotEmpty(t, out["correlationId"])
	assert.NotEmpty(t, out["timestamp"])
	resp := out["response"].(map[string]any)
	assert.Equal(t, "acct-7", resp["accountId"])
	assert.Equal(t, "NORMAL", resp["riskLevel"])

	assert.Equal(t, "/api/accounts/acct-7", path)
	assert.JSONEq(t, `{"note":"hi"}`, body)

	entries, _ := f.log.List(1, "")
	assert.Equal(t, "/api/accounts/:accountId", entries[0].Request.Endpoint)
}

func TestTestEndpointDefaultsToPaymentPost(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})
	w := f.do(http.MethodPost, "/api/test", `{"amount":25}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(201), decode(t, w)["statusCode"])
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/payments", path)
}

func TestTestEndpointNormalizesEndpoint(t *testing.T) {
	var method, path, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, query = r.Method, r.URL.Path, r.URL.RawQuery
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fixtureOpts{})

	w := f.do(http.MethodPost, "/api/test", `{"endpoint":"api/payments","amount":12}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(200), decode(t, w)["statusCode"])
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/payments", path)

	w = f.do(http.MethodPost, "/api/test", `{"endpoint":"api/payments/tx-9?expand=1","method":"GET"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(200), decode(t, w)["statusCode"])
	assert.Equal(t, "/api/payments/tx-9", path)
	assert.Equal(t, "expand=1", query)

	entries, _ := f.log.List(2, "")
	require.Len(t, entries, 2)
	assert.Equal(t, "/api/payments/tx-9", entries[0].Request.Path)
	assert.Equal(t, "/api/payments", entries[1].Request.Path)
	assert.Equal(t, requestlog.RoutingAllowed, entries[1].Routing.Decision)
}

func TestDispatcherUsesInjectedClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * 5 * time.Millisecond)
	}

	log := requestlog.New(10)
	table := NewTable(ServiceURLs{Payment: srv.URL, Account: srv.URL, Verification: srv.URL})
	d := NewDispatcher(risk.NewEngine().WithClock(func() time.Time { return base }), table,
		NewForwarder(0), nil, metrics.NewRecorder(), log,
		slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(clock)

	rt, params, err := table.Match(http.MethodGet, "/api/accounts/acc-1")
	require.NoError(t, err)
	res := d.Dispatch(context.Background(), Inbound{
		CorrelationID: "clock-1",
		Route:         rt,
		Path:          "/api/accounts/acc-1",
		Params:        params,
		IPAddress:     "192.0.2.10",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	entries, _ := log.List(1, "")
	require.Len(t, entries, 1)
	// start, elapsed and timestamp each read the clock once.
	assert.Equal(t, int64(5), entries[0].Response.ResponseTime)
	assert.Equal(t, base.Add(15*time.Millisecond), entries[0].Timestamp)
}

func TestTestEndpointRejectsBadInput(t *testing.T) {
	f := newFixture(t, closedURL(t), fixtureOpts{})

	for _, body := range []string{`[1,2,3]`, `"text"`, `null`, `{bad`} {
		w := f.do(http.MethodPost, "/api/test", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := f.do(http.MethodPost, "/api/test", `{"endpoint":"/api/unknown"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_endpoint", decode(t, w)["error"])
	assert.Equal(t, int64(0), f.recorder.Snapshot().Requests.Total)
}

func TestTableMatch(t *testing.T) {
	table := NewTable(ServiceURLs{})

	rt, params, err := table.Match("get", "/api/payments/tx-1?x=1")
	require.NoError(t, err)
	assert.Equal(t, "/api/payments/:transactionId", rt.Pattern)
	assert.Equal(t, risk.CategoryPayment, rt.Category)
	assert.Equal(t, map[string]string{"transactionId": "tx-1"}, params)

	rt, _, err = table.Match("POST", "/api/verify/identity")
	require.NoError(t, err)
	assert.Equal(t, "verification-service", rt.Service)

	_, _, err = table.Match("DELETE", "/api/payments")
	assert.True(t, errors.Is(err, ErrUnknownRoute))
	_, _, err = table.Match("GET", "/api/payments/")
	assert.True(t, errors.Is(err, ErrUnknownRoute))

	svc, ok := table.Service("payment-service")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:3001", svc.BaseURL)
	assert.Len(t, table.Services(), 3)
}

func TestDecodeReply(t *testing.T) {
	assert.Equal(t, map[string]any{}, decodeReply(nil))
	assert.Equal(t, map[string]any{"ok": true}, decodeReply([]byte(`{"ok":true}`)))
	assert.Equal(t, map[string]any{"data": nil}, decodeReply([]byte(`null`)))
	assert.Equal(t, map[string]any{"message": "<html>"}, decodeReply([]byte(`<html>`)))
}
