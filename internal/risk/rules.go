package risk

import (
	"fmt"
	"math"
	"strconv"
)

// detectRapidFire counts requests from the same IP in the last 60s.
// More than 20 is HIGH (CRITICAL above 30); more than 10 is MEDIUM.
func (e *Engine) detectRapidFire(f *RequestFeatures) (TriggeredRule, bool) {
	n := e.rapidFire.hit(f.IPAddress, f.Timestamp)

	switch {
	case n > 20:
		sev := SeverityHigh
		if n > 30 {
			sev = SeverityCritical
		}
		return TriggeredRule{
			RuleID:     RuleRapidFire,
			RuleName:   "Rapid Request Detection",
			Severity:   sev,
			Confidence: 0.95,
			Score:      min(95, WeightRapidFire+(n-20)*2),
			Reasoning:  fmt.Sprintf("Detected %d requests in 60 seconds from IP %s", n, f.IPAddress),
		}, true
	case n > 10:
		return TriggeredRule{
			RuleID:     RuleRapidFire,
			RuleName:   "Rapid Request Detection",
			Severity:   SeverityMedium,
			Confidence: 0.75,
			Score:      WeightRapidFire * 6 / 10,
			Reasoning:  fmt.Sprintf("Detected %d requests in 60 seconds from IP %s (elevated activity)", n, f.IPAddress),
		}, true
	}
	return TriggeredRule{}, false
}

// detectPayloadAnomaly flags amounts that are statistical outliers against the
// global buffer of recent amounts. Needs at least 10 samples; a buffer with
// zero variance never triggers.
func (e *Engine) detectPayloadAnomaly(f *RequestFeatures) (TriggeredRule, bool) {
	if f.Amount <= 0 {
		return TriggeredRule{}, false
	}

	st := e.amounts.add(f.Amount)
	if st.samples < amountMinSamples || st.stddev == 0 {
		return TriggeredRule{}, false
	}

	z := (f.Amount - st.mean) / st.stddev
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return TriggeredRule{}, false
	}
	reason := fmt.Sprintf("Transaction amount $%s is %.1fσ from average $%.0f",
		formatAmount(f.Amount), z, st.mean)

	switch abs := math.Abs(z); {
	case abs > 3:
		return TriggeredRule{
			RuleID:     RulePayloadAnomaly,
			RuleName:   "Statistical Outlier Detection",
			Severity:   SeverityHigh,
			Confidence: 0.88,
			Score:      WeightPayloadAnomaly + 15,
			Reasoning:  reason,
		}, true
	case abs > 2:
		return TriggeredRule{
			RuleID:     RulePayloadAnomaly,
			RuleName:   "Statistical Outlier Detection",
			Severity:   SeverityMedium,
			Confidence: 0.75,
			Score:      WeightPayloadAnomaly,
			Reasoning:  reason,
		}, true
	}
	return TriggeredRule{}, false
}

// detectTimeAnomaly flags high-value transactions outside business hours.
func (e *Engine) detectTimeAnomaly(f *RequestFeatures) (TriggeredRule, bool) {
	if f.IsBusinessHours || f.Amount <= 1000 {
		return TriggeredRule{}, false
	}

	sev, score := SeverityMedium, WeightTimeBased
	if f.Amount > 5000 {
		sev, score = SeverityHigh, WeightTimeBased+10
	}
	return TriggeredRule{
		RuleID:     RuleTimeBased,
		RuleName:   "Temporal Anomaly Detection",
		Severity:   sev,
		Confidence: 0.85,
		Score:      score,
		Reasoning: fmt.Sprintf("High-value transaction ($%s) at %d:00 (off-hours)",
			formatAmount(f.Amount), f.HourOfDay),
	}, true
}

// detectSequentialPattern counts identical payloads in the last 5 minutes.
func (e *Engine) detectSequentialPattern(f *RequestFeatures) (TriggeredRule, bool) {
	n := e.payloads.hit(CanonicalHash(f.Body), f.Timestamp)
	reason := fmt.Sprintf("Identical request payload repeated %d times in 5 minutes", n)

	switch {
	case n >= 5:
		return TriggeredRule{
			RuleID:     RuleSequentialPattern,
			RuleName:   "Replay Attack Detection",
			Severity:   SeverityHigh,
			Confidence: 0.92,
			Score:      WeightSequentialPattern + 15,
			Reasoning:  reason,
		}, true
	case n >= 3:
		return TriggeredRule{
			RuleID:     RuleSequentialPattern,
			RuleName:   "Replay Attack Detection",
			Severity:   SeverityMedium,
			Confidence: 0.80,
			Score:      WeightSequentialPattern,
			Reasoning:  reason,
		}, true
	}
	return TriggeredRule{}, false
}

func formatAmount(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}
