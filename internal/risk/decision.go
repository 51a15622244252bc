package risk

// Aggregate sums the triggered scores and caps the total at MaxScore.
func Aggregate(rules []TriggeredRule) int {
	total := 0
	for _, r := range rules {
		total += r.Score
	}
	if total > MaxScore {
		total = MaxScore
	}
	if total < 0 {
		total = 0
	}
	return total
}

// LevelFor maps a final score to its risk level.
func LevelFor(score int) Level {
	switch {
	case score >= HighRiskThreshold:
		return LevelHighRisk
	case score >= SuspiciousThreshold:
		return LevelSuspicious
	default:
		return LevelNormal
	}
}

// RecommendationFor derives the gateway action from the score and the route
// category. Only payment routes are blocked outright.
func RecommendationFor(score int, category Category) Recommendation {
	switch {
	case score >= HighRiskThreshold:
		if category == CategoryPayment {
			return RecommendBlock
		}
		return RecommendAdditionalAuth
	case score >= MonitorThreshold:
		return RecommendMonitor
	default:
		return RecommendAllow
	}
}

// Explain builds the human-readable summary. The first HIGH or CRITICAL rule
// in evaluation order wins; otherwise the first triggered rule is used.
func Explain(rules []TriggeredRule) string {
	if len(rules) == 0 {
		return "No anomalies detected. Request appears legitimate."
	}
	for _, r := range rules {
		if r.Severity == SeverityHigh || r.Severity == SeverityCritical {
			return "Multiple high-severity fraud indicators detected. Primary concern: " + r.Reasoning
		}
	}
	return "Suspicious activity detected. " + rules[0].Reasoning
}
