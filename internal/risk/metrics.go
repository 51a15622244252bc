package risk

import "github.com/prometheus/client_golang/prometheus"

var (
	riskScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskgate",
		Subsystem: "risk",
		Name:      "score",
		Help:      "Distribution of final risk scores.",
		Buckets:   []float64{0, 15, 25, 31, 40, 50, 70, 85, 100},
	})

	riskDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskgate",
		Subsystem: "risk",
		Name:      "decisions_total",
		Help:      "Total risk assessments by level and recommendation.",
	}, []string{"level", "recommendation"})

	riskRuleTriggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskgate",
		Subsystem: "risk",
		Name:      "rule_triggers_total",
		Help:      "Total detector triggers by rule id and severity.",
	}, []string{"rule", "severity"})

	riskStateKeys = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "riskgate",
		Subsystem: "risk",
		Name:      "state_keys",
		Help:      "Keys held by detector state after the last sweep.",
	}, []string{"store"}) // "ip", "payload", "user"

	riskSweepRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskgate",
		Subsystem: "risk",
		Name:      "sweep_removed_total",
		Help:      "Total idle keys removed by the state sweeper.",
	}, []string{"store"})
)

func init() {
	prometheus.MustRegister(
		riskScores,
		riskDecisions,
		riskRuleTriggers,
		riskStateKeys,
		riskSweepRemoved,
	)
}
