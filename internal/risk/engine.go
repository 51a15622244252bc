package risk

import (
	"context"
	"strconv"
	"time"

	"github.com/mbd888/riskgate/internal/traces"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultActivityTTL is how long an idle (ip,userId) history survives a sweep.
const DefaultActivityTTL = time.Hour

// Engine scores requests against in-memory detector state. All state is
// process-local; Reset returns it to empty.
type Engine struct {
	rapidFire   *slidingWindow // per source IP
	payloads    *slidingWindow // per canonical body hash
	amounts     amountBuffer
	activity    activityLog
	now         func() time.Time
	activityTTL time.Duration
}

type detector func(e *Engine, f *RequestFeatures) (TriggeredRule, bool)

// detectors run in this order; Explain depends on it.
var detectors = []detector{
	(*Engine).detectRapidFire,
	(*Engine).detectPayloadAnomaly,
	(*Engine).detectTimeAnomaly,
	(*Engine).detectSequentialPattern,
}

// NewEngine creates an engine with empty state.
func NewEngine() *Engine {
	return &Engine{
		rapidFire:   newSlidingWindow(rapidFireWindow),
		payloads:    newSlidingWindow(sequentialWindow),
		now:         time.Now,
		activityTTL: DefaultActivityTTL,
	}
}

// WithClock overrides the wall clock (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithActivityTTL overrides how long idle activity histories are kept.
func (e *Engine) WithActivityTTL(ttl time.Duration) *Engine {
	if ttl > 0 {
		e.activityTTL = ttl
	}
	return e
}

// Analyze extracts features from req, runs every detector, and returns the
// aggregated assessment. Pure in-memory computation; it never blocks on I/O.
func (e *Engine) Analyze(ctx context.Context, req RawRequest) *RiskAssessment {
	_, span := traces.StartSpan(ctx, "risk.Analyze",
		traces.CorrelationID(req.CorrelationID),
		attribute.String("risk.endpoint", req.Endpoint),
	)
	defer span.End()

	f := Extract(req, e.now())

	triggered := make([]TriggeredRule, 0, len(detectors))
	for _, d := range detectors {
		if r, ok := d(e, &f); ok {
			triggered = append(triggered, r)
		}
	}

	score := Aggregate(triggered)
	assessment := &RiskAssessment{
		CorrelationID:  f.CorrelationID,
		Timestamp:      f.Timestamp,
		RiskScore:      score,
		RiskLevel:      LevelFor(score),
		TriggeredRules: triggered,
		Recommendation: RecommendationFor(score, f.Category),
		Explanation:    Explain(triggered),
		Metadata: Metadata{
			IPAddress: f.IPAddress,
			Endpoint:  f.Endpoint,
			Method:    f.Method,
		},
	}

	e.activity.record(f.IPAddress, f.UserID, Activity{
		Timestamp: f.Timestamp,
		Endpoint:  f.Endpoint,
		Amount:    f.Amount,
	})

	observe(assessment)
	span.SetAttributes(
		traces.RiskScore(score),
		attribute.String("risk.level", string(assessment.RiskLevel)),
		attribute.String("risk.recommendation", string(assessment.Recommendation)),
		attribute.Int("risk.triggered", len(triggered)),
	)
	return assessment
}

// Activity returns the recorded history for (ip,userId), newest first.
func (e *Engine) Activity(ip, userID string) []Activity {
	if userID == "" {
		userID = defaultUserID
	}
	return e.activity.recent(ip, userID)
}

// Stats summarises how much state the engine holds.
type Stats struct {
	TrackedIPs      int `json:"trackedIps"`
	TrackedPayloads int `json:"trackedPayloads"`
	AmountSamples   int `json:"amountSamples"`
	TrackedUsers    int `json:"trackedUsers"`
}

// Stats reports current state sizes.
func (e *Engine) Stats() Stats {
	return Stats{
		TrackedIPs:      e.rapidFire.size(),
		TrackedPayloads: e.payloads.size(),
		AmountSamples:   e.amounts.size(),
		TrackedUsers:    e.activity.size(),
	}
}

// SweepResult counts keys removed by Sweep.
type SweepResult struct {
	IPs      int
	Payloads int
	Users    int
}

// Total returns the number of keys removed.
func (r SweepResult) Total() int { return r.IPs + r.Payloads + r.Users }

// Sweep prunes every window and drops keys that have gone quiet. Without it
// keys that stop recurring would stay in memory forever.
func (e *Engine) Sweep() SweepResult {
	now := e.now()
	res := SweepResult{
		IPs:      e.rapidFire.sweep(now),
		Payloads: e.payloads.sweep(now),
		Users:    e.activity.sweep(now, e.activityTTL),
	}
	riskStateKeys.WithLabelValues("ip").Set(float64(e.rapidFire.size()))
	riskStateKeys.WithLabelValues("payload").Set(float64(e.payloads.size()))
	riskStateKeys.WithLabelValues("user").Set(float64(e.activity.size()))
	return res
}

// Reset clears every window and buffer.
func (e *Engine) Reset() {
	e.rapidFire.reset()
	e.payloads.reset()
	e.amounts.reset()
	e.activity.reset()
}

func observe(a *RiskAssessment) {
	riskScores.Observe(float64(a.RiskScore))
	riskDecisions.WithLabelValues(string(a.RiskLevel), string(a.Recommendation)).Inc()
	for _, r := range a.TriggeredRules {
		riskRuleTriggers.WithLabelValues(string(r.RuleID), string(r.Severity)).Inc()
	}
}

// ScoreHeader formats the score for the X-Risk-Score header.
func (a *RiskAssessment) ScoreHeader() string {
	return strconv.Itoa(a.RiskScore)
}
