// Package risk implements real-time fraud risk scoring for inbound API calls.
//
// Every request is reduced to a feature record and evaluated by four
// independent detectors: rapid-fire (per source IP), payload anomaly (global
// amount distribution), time anomaly (off-hours high value), and sequential
// pattern (replayed payloads). Triggered rule scores are summed and capped at
// 100; the total maps to a risk level and a recommendation the gateway acts on
// before any downstream call is made.
package risk

import (
	"context"
	"time"
)

// RuleID identifies a detector.
type RuleID string

const (
	RuleRapidFire         RuleID = "RAPID_FIRE"
	RulePayloadAnomaly    RuleID = "PAYLOAD_ANOMALY"
	RuleTimeBased         RuleID = "TIME_BASED"
	RuleSequentialPattern RuleID = "SEQUENTIAL_PATTERN"
	// RuleGeoVelocity has a weight and a metrics slot but no detector.
	RuleGeoVelocity RuleID = "GEO_VELOCITY"
)

// AllRules lists every rule id in detector evaluation order, followed by the
// reserved ones. Metrics use it to pre-populate per-rule counters.
var AllRules = []RuleID{
	RuleRapidFire,
	RulePayloadAnomaly,
	RuleTimeBased,
	RuleSequentialPattern,
	RuleGeoVelocity,
}

// Base score contribution of each rule before severity adjustments.
const (
	WeightRapidFire         = 40
	WeightPayloadAnomaly    = 30
	WeightTimeBased         = 15
	WeightSequentialPattern = 25
	WeightGeoVelocity       = 20
)

// Severity of a triggered rule.
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Level is the risk level derived from the final score.
type Level string

const (
	LevelNormal     Level = "NORMAL"
	LevelSuspicious Level = "SUSPICIOUS"
	LevelHighRisk   Level = "HIGH_RISK"
)

// AllLevels lists risk levels from lowest to highest.
var AllLevels = []Level{LevelNormal, LevelSuspicious, LevelHighRisk}

// Recommendation is the action the gateway should take.
type Recommendation string

const (
	RecommendAllow          Recommendation = "ALLOW_NORMAL"
	RecommendMonitor        Recommendation = "ALLOW_WITH_MONITORING"
	RecommendAdditionalAuth Recommendation = "REQUIRE_ADDITIONAL_AUTH"
	RecommendBlock          Recommendation = "BLOCK_AND_VERIFY"
)

// Category tags a route at registration time. Only CategoryPayment routes
// are eligible for BLOCK_AND_VERIFY.
type Category string

const (
	CategoryPayment      Category = "payment"
	CategoryAccount      Category = "account"
	CategoryVerification Category = "verification"
)

// Score thresholds.
const (
	MaxScore            = 100
	HighRiskThreshold   = 70
	SuspiciousThreshold = 31
	MonitorThreshold    = 40
)

// TriggeredRule is the output of a detector that fired.
type TriggeredRule struct {
	RuleID     RuleID   `json:"ruleId"`
	RuleName   string   `json:"ruleName"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Score      int      `json:"score"`
	Reasoning  string   `json:"reasoning"`
}

// Metadata echoes request identity on the assessment.
type Metadata struct {
	IPAddress string `json:"ipAddress"`
	Endpoint  string `json:"endpoint"`
	Method    string `json:"method"`
}

// RiskAssessment is the result of scoring one request.
type RiskAssessment struct {
	CorrelationID  string          `json:"correlationId"`
	Timestamp      time.Time       `json:"timestamp"`
	RiskScore      int             `json:"riskScore"`
	RiskLevel      Level           `json:"riskLevel"`
	TriggeredRules []TriggeredRule `json:"triggeredRules"`
	Recommendation Recommendation  `json:"recommendation"`
	Explanation    string          `json:"explanation"`
	Metadata       Metadata        `json:"metadata"`
}

// Blocked reports whether the gateway must refuse the request.
func (a *RiskAssessment) Blocked() bool {
	return a != nil && a.Recommendation == RecommendBlock
}

// Scorer is what the gateway needs from the engine.
type Scorer interface {
	Analyze(ctx context.Context, req RawRequest) *RiskAssessment
}
