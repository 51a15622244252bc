package metrics

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/mbd888/riskgate/internal/risk"
)

// Outcome is the accounting record for one processed request. Exactly one
// Outcome is recorded per request, whatever its result.
type Outcome struct {
	Method       string
	Endpoint     string // route pattern
	StatusCode   int
	Blocked      bool
	RiskScore    int
	RiskLevel    risk.Level
	Rules        []risk.RuleID
	ResponseTime time.Duration
}

// Recorder accumulates running request totals and online averages.
// Safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	now func() time.Time

	startTime       time.Time
	total           int64
	success         int64
	failed          int64
	blocked         int64
	byMethod        map[string]int64
	byEndpoint      map[string]int64
	byLevel         map[risk.Level]int64
	rules           map[risk.RuleID]int64
	lastDetected    map[risk.RuleID]time.Time
	avgScore        float64
	avgResponseTime float64 // milliseconds
}

// NewRecorder creates a recorder in its initial state.
func NewRecorder() *Recorder {
	r := &Recorder{now: time.Now}
	r.reset()
	return r
}

// WithClock overrides the wall clock (tests).
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.mu.Lock()
	r.now = now
	r.startTime = now()
	r.mu.Unlock()
	return r
}

func (r *Recorder) reset() {
	r.startTime = r.now()
	r.total, r.success, r.failed, r.blocked = 0, 0, 0, 0
	r.byMethod = map[string]int64{
		http.MethodGet:    0,
		http.MethodPost:   0,
		http.MethodPut:    0,
		http.MethodDelete: 0,
	}
	r.byEndpoint = make(map[string]int64)
	r.byLevel = make(map[risk.Level]int64, len(risk.AllLevels))
	for _, l := range risk.AllLevels {
		r.byLevel[l] = 0
	}
	r.rules = make(map[risk.RuleID]int64, len(risk.AllRules))
	for _, id := range risk.AllRules {
		r.rules[id] = 0
	}
	r.lastDetected = make(map[risk.RuleID]time.Time)
	r.avgScore = 0
	r.avgResponseTime = 0
}

// Reset restores the exact initial state, including the uptime origin.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.reset()
	r.mu.Unlock()
}

// Record applies one outcome. 2xx is success, anything else is failed;
// blocked requests also count as failed.
func (r *Recorder) Record(o Outcome) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if o.StatusCode >= 200 && o.StatusCode < 300 {
		r.success++
	} else {
		r.failed++
	}
	if o.Blocked {
		r.blocked++
	}

	if o.Method != "" {
		r.byMethod[o.Method]++
	}
	if o.Endpoint != "" {
		r.byEndpoint[o.Endpoint]++
	}
	if o.RiskLevel != "" {
		r.byLevel[o.RiskLevel]++
	}
	for _, id := range o.Rules {
		if _, ok := r.rules[id]; ok {
			r.rules[id]++
			r.lastDetected[id] = now
		}
	}

	n := float64(r.total)
	r.avgScore += (float64(o.RiskScore) - r.avgScore) / n
	ms := float64(o.ResponseTime) / float64(time.Millisecond)
	r.avgResponseTime += (ms - r.avgResponseTime) / n
}

// Snapshot is the JSON body of the metrics endpoint.
type Snapshot struct {
	Timestamp   time.Time     `json:"timestamp"`
	Uptime      int64         `json:"uptime"` // seconds
	Requests    RequestCounts `json:"requests"`
	Risk        RiskSummary   `json:"risk"`
	AI          RuleSummary   `json:"ai"`
	Performance PerfSummary   `json:"performance"`
	Engine      *risk.Stats   `json:"engine,omitempty"`
}

type RequestCounts struct {
	Total      int64            `json:"total"`
	Success    int64            `json:"success"`
	Failed     int64            `json:"failed"`
	Blocked    int64            `json:"blocked"`
	ByMethod   map[string]int64 `json:"byMethod"`
	ByEndpoint map[string]int64 `json:"byEndpoint"`
}

type RiskSummary struct {
	AverageScore float64              `json:"averageScore"`
	ByLevel      map[risk.Level]int64 `json:"byLevel"`
}

type RuleSummary struct {
	TriggeredRules map[risk.RuleID]int64 `json:"triggeredRules"`
}

type PerfSummary struct {
	AverageResponseTime int64 `json:"averageResponseTime"` // milliseconds
}

// Snapshot returns a copy of the current totals. The average score is
// rounded to one decimal and the response time to whole milliseconds.
func (r *Recorder) Snapshot() Snapshot {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		Timestamp: now,
		Uptime:    int64(now.Sub(r.startTime) / time.Second),
		Requests: RequestCounts{
			Total:      r.total,
			Success:    r.success,
			Failed:     r.failed,
			Blocked:    r.blocked,
			ByMethod:   copyMap(r.byMethod),
			ByEndpoint: copyMap(r.byEndpoint),
		},
		Risk: RiskSummary{
			AverageScore: math.Round(r.avgScore*10) / 10,
			ByLevel:      copyMap(r.byLevel),
		},
		AI:          RuleSummary{TriggeredRules: copyMap(r.rules)},
		Performance: PerfSummary{AverageResponseTime: int64(math.Round(r.avgResponseTime))},
	}
}

// Pattern summarises how often one detector has fired.
type Pattern struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Count        int64     `json:"count"`
	Description  string    `json:"description"`
	LastDetected time.Time `json:"lastDetected"`
}

// PatternReport is the JSON body of the fraud-patterns endpoint.
type PatternReport struct {
	Patterns      []Pattern `json:"patterns"`
	TotalPatterns int       `json:"totalPatterns"`
	Timestamp     time.Time `json:"timestamp"`
}

var patternInfo = []struct {
	rule        risk.RuleID
	id          string
	kind        string
	description string
}{
	{risk.RuleRapidFire, "rapid-fire", "Rapid Fire Attack", "Multiple requests from same source in short time period"},
	{risk.RulePayloadAnomaly, "payload-anomaly", "Payload Anomaly", "Unusual transaction amounts or patterns detected"},
	{risk.RuleTimeBased, "time-based", "Off-Hours Activity", "Suspicious activity during unusual hours"},
	{risk.RuleSequentialPattern, "sequential", "Sequential Pattern", "Coordinated attack pattern detected"},
}

// Patterns derives the fraud pattern summary from the rule counters. Rules
// that never fired are omitted.
func (r *Recorder) Patterns() PatternReport {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	patterns := make([]Pattern, 0, len(patternInfo))
	for _, p := range patternInfo {
		count := r.rules[p.rule]
		if count == 0 {
			continue
		}
		patterns = append(patterns, Pattern{
			ID:           p.id,
			Type:         p.kind,
			Severity:     patternSeverity(count),
			Count:        count,
			Description:  p.description,
			LastDetected: r.lastDetected[p.rule],
		})
	}
	return PatternReport{
		Patterns:      patterns,
		TotalPatterns: len(patterns),
		Timestamp:     now,
	}
}

func patternSeverity(count int64) string {
	switch {
	case count > 10:
		return "high"
	case count > 5:
		return "medium"
	default:
		return "low"
	}
}

func copyMap[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
