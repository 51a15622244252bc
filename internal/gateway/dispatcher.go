package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mbd888/riskgate/internal/circuitbreaker"
	"github.com/mbd888/riskgate/internal/metrics"
	"github.com/mbd888/riskgate/internal/requestlog"
	"github.com/mbd888/riskgate/internal/risk"
	"github.com/mbd888/riskgate/internal/traces"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Recorder receives one outcome per dispatched request.
type Recorder interface {
	Record(metrics.Outcome)
}

// EntryLog receives one entry per dispatched request.
type EntryLog interface {
	Append(requestlog.Entry)
}

// Inbound is a request that matched a route.
type Inbound struct {
	CorrelationID string
	Route         Route
	Path          string // concrete path, forwarded as-is
	RawQuery      string
	Params        map[string]string
	RawBody       []byte // forwarded unchanged
	Body          any    // decoded JSON body, nil when absent
	IPAddress     string
	UserAgent     string
}

// Result is what the caller receives.
type Result struct {
	StatusCode int
	Body       map[string]any
	Assessment *risk.RiskAssessment // nil only if scoring itself failed
	Decision   requestlog.RoutingDecision
}

// Dispatcher runs the score → decide → forward → account pipeline.
type Dispatcher struct {
	scorer    risk.Scorer
	table     *Table
	forwarder *Forwarder
	breaker   *circuitbreaker.Breaker
	recorder  Recorder
	log       EntryLog
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. A nil breaker disables circuit
// breaking.
func NewDispatcher(
	scorer risk.Scorer,
	table *Table,
	forwarder *Forwarder,
	breaker *circuitbreaker.Breaker,
	recorder Recorder,
	log EntryLog,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		scorer:    scorer,
		table:     table,
		forwarder: forwarder,
		breaker:   breaker,
		recorder:  recorder,
		log:       log,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock used for log timestamps and response
// times.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Table returns the routing table.
func (d *Dispatcher) Table() *Table { return d.table }

// Dispatch processes one inbound request. It never returns an error: every
// outcome, including a recovered panic, becomes a Result and is accounted
// for exactly once.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (res Result) {
	start := d.now()
	svc, _ := d.table.Service(in.Route.Service)

	ctx, span := traces.StartSpan(ctx, "gateway.Dispatch",
		traces.CorrelationID(in.CorrelationID),
		traces.Route(in.Route.Pattern),
		traces.Service(svc.Name),
	)
	defer span.End()

	var (
		assessment *risk.RiskAssessment
		recorded   bool
	)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		gwPanics.Inc()
		span.SetStatus(codes.Error, "panic")
		d.logger.Error("panic in dispatch",
			"correlation_id", in.CorrelationID,
			"endpoint", in.Route.Pattern,
			"panic", fmt.Sprint(r),
		)
		res = Result{
			StatusCode: http.StatusInternalServerError,
			Body: map[string]any{
				"error":         "Internal server error",
				"correlationId": in.CorrelationID,
			},
			Assessment: assessment,
			Decision:   requestlog.RoutingError,
		}
		if !recorded {
			d.account(in, svc, res, "Internal error", nil, start)
		}
	}()

	assessment = d.scorer.Analyze(ctx, risk.RawRequest{
		CorrelationID: in.CorrelationID,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		Endpoint:      in.Route.Pattern,
		Method:        in.Route.Method,
		Category:      in.Route.Category,
		Body:          in.Body,
	})
	span.SetAttributes(traces.RiskScore(assessment.RiskScore))

	if assessment.Blocked() {
		gwBlocked.WithLabelValues(in.Route.Pattern).Inc()
		res = Result{
			StatusCode: http.StatusForbidden,
			Body: map[string]any{
				"error":         "Transaction blocked due to high fraud risk",
				"riskScore":     assessment.RiskScore,
				"riskLevel":     assessment.RiskLevel,
				"explanation":   assessment.Explanation,
				"correlationId": in.CorrelationID,
			},
			Assessment: assessment,
			Decision:   requestlog.RoutingBlocked,
		}
		d.logger.Warn("request blocked",
			"correlation_id", in.CorrelationID,
			"endpoint", in.Route.Pattern,
			"risk_score", assessment.RiskScore,
			"ip", assessment.Metadata.IPAddress,
		)
		recorded = true
		d.account(in, svc, res, "Risk score exceeds threshold", nil, start)
		return res
	}

	fwd, err := d.forward(ctx, in, svc, assessment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "downstream unavailable")
		d.logger.Warn("downstream unavailable",
			"correlation_id", in.CorrelationID,
			"service", svc.Name,
			"error", err,
		)
		res = Result{
			StatusCode: http.StatusServiceUnavailable,
			Body: map[string]any{
				"error":         svc.DisplayName + " service unavailable",
				"correlationId": in.CorrelationID,
			},
			Assessment: assessment,
			Decision:   requestlog.RoutingFailed,
		}
		recorded = true
		d.account(in, svc, res, svc.DisplayName+" service unavailable", nil, start)
		return res
	}

	body := make(map[string]any, len(fwd.Body)+2)
	for k, v := range fwd.Body {
		body[k] = v
	}
	body["riskScore"] = assessment.RiskScore
	body["riskLevel"] = assessment.RiskLevel

	span.SetAttributes(attribute.Int("http.response.status_code", fwd.StatusCode))
	res = Result{
		StatusCode: fwd.StatusCode,
		Body:       body,
		Assessment: assessment,
		Decision:   requestlog.RoutingAllowed,
	}
	reason := "Normal traffic"
	if assessment.RiskLevel != risk.LevelNormal {
		reason = "Allowed with monitoring"
	}
	recorded = true
	d.account(in, svc, res, reason, fwd.Body, start)
	return res
}

// forward calls the downstream service through the circuit breaker. Every
// failure is reported as ErrDownstreamUnavailable; nothing is retried.
func (d *Dispatcher) forward(ctx context.Context, in Inbound, svc Service, a *risk.RiskAssessment) (*ForwardResponse, error) {
	if d.breaker != nil && !d.breaker.Allow(svc.Name) {
		gwForwardFailures.WithLabelValues(svc.Name, "circuit_open").Inc()
		return nil, fmt.Errorf("%w: %w", ErrDownstreamUnavailable, ErrCircuitOpen)
	}

	url := svc.BaseURL + in.Path
	if in.RawQuery != "" {
		url += "?" + in.RawQuery
	}
	header := http.Header{}
	header.Set(HeaderCorrelationID, in.CorrelationID)
	header.Set(HeaderRiskScore, a.ScoreHeader())
	header.Set(HeaderRiskLevel, string(a.RiskLevel))

	fwd, err := d.forwarder.Forward(ctx, ForwardRequest{
		Method: in.Route.Method,
		URL:    url,
		Body:   in.RawBody,
		Header: header,
	})
	if err != nil {
		reason := failureReason(ctx, err)
		gwForwardFailures.WithLabelValues(svc.Name, reason).Inc()
		if d.breaker != nil {
			if reason == "cancelled" {
				d.breaker.Abandon(svc.Name)
			} else {
				d.breaker.RecordFailure(svc.Name)
			}
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDownstreamUnavailable, svc.Name, err)
	}

	gwForwardLatency.WithLabelValues(svc.Name).Observe(float64(fwd.LatencyMs) / 1000)
	if d.breaker != nil {
		if fwd.StatusCode >= 500 {
			d.breaker.RecordFailure(svc.Name)
		} else {
			d.breaker.RecordSuccess(svc.Name)
		}
	}
	return fwd, nil
}

func failureReason(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return "cancelled"
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return "timeout"
	}
	return "connection"
}

// account records the single metrics update and log entry for a request.
func (d *Dispatcher) account(in Inbound, svc Service, res Result, reason string, replyBody any, start time.Time) {
	elapsed := d.now().Sub(start)

	out := metrics.Outcome{
		Method:       in.Route.Method,
		Endpoint:     in.Route.Pattern,
		StatusCode:   res.StatusCode,
		ResponseTime: elapsed,
	}
	if a := res.Assessment; a != nil {
		out.Blocked = a.Blocked()
		out.RiskScore = a.RiskScore
		out.RiskLevel = a.RiskLevel
		out.Rules = make([]risk.RuleID, len(a.TriggeredRules))
		for i, r := range a.TriggeredRules {
			out.Rules[i] = r.RuleID
		}
	}
	d.recorder.Record(out)
	metrics.GatewayOutcomesTotal.WithLabelValues(in.Route.Pattern, string(res.Decision)).Inc()

	d.log.Append(requestlog.Entry{
		CorrelationID: in.CorrelationID,
		Timestamp:     d.now(),
		Request: requestlog.Request{
			Method:    in.Route.Method,
			Endpoint:  in.Route.Pattern,
			Path:      in.Path,
			Body:      in.Body,
			Params:    in.Params,
			IPAddress: in.IPAddress,
			UserAgent: in.UserAgent,
		},
		Decision: res.Assessment,
		Routing: requestlog.Routing{
			TargetService: svc.Name,
			Decision:      res.Decision,
			Reason:        reason,
		},
		Response: requestlog.Response{
			StatusCode:   res.StatusCode,
			ResponseTime: elapsed.Milliseconds(),
			Body:         replyBody,
		},
	})
}
