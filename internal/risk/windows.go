package risk

import (
	"math"
	"sync"
	"time"

	"github.com/mbd888/riskgate/internal/syncutil"
)

const (
	rapidFireWindow  = 60 * time.Second
	sequentialWindow = 5 * time.Minute

	amountBufferSize   = 100
	amountMinSamples   = 10
	activityBufferSize = 50
)

// slidingWindow keeps per-key timestamp lists pruned to a trailing horizon.
type slidingWindow struct {
	horizon time.Duration
	keys    syncutil.ShardedMap[[]time.Time]
}

func newSlidingWindow(horizon time.Duration) *slidingWindow {
	return &slidingWindow{horizon: horizon}
}

// hit appends now under key, prunes entries older than the horizon, and
// returns the resulting count. The append and the count happen under one
// shard lock, so concurrent hits on the same key never undercount.
func (w *slidingWindow) hit(key string, now time.Time) int {
	var n int
	w.keys.Update(key, func(ts []time.Time, _ bool) ([]time.Time, bool) {
		ts = append(ts, now)
		ts = pruneBefore(ts, now, w.horizon)
		n = len(ts)
		return ts, true
	})
	return n
}

// sweep prunes every key and drops the ones left empty.
func (w *slidingWindow) sweep(now time.Time) int {
	return w.keys.Sweep(func(_ string, ts []time.Time) ([]time.Time, bool) {
		ts = pruneBefore(ts, now, w.horizon)
		return ts, len(ts) > 0
	})
}

func (w *slidingWindow) size() int { return w.keys.Len() }

func (w *slidingWindow) reset() { w.keys.Reset() }

// pruneBefore filters ts in place, keeping entries strictly younger than
// horizon relative to now. Entries are not assumed sorted.
func pruneBefore(ts []time.Time, now time.Time, horizon time.Duration) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < horizon {
			kept = append(kept, t)
		}
	}
	return kept
}

// amountBuffer is the global FIFO of recent non-zero transaction amounts.
type amountBuffer struct {
	mu      sync.Mutex
	amounts []float64
}

type amountStats struct {
	samples int
	mean    float64
	stddev  float64
}

// add records amount, evicting the oldest sample beyond capacity, and returns
// population statistics over the buffer including the new sample.
func (b *amountBuffer) add(amount float64) amountStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.amounts = append(b.amounts, amount)
	if len(b.amounts) > amountBufferSize {
		b.amounts = b.amounts[len(b.amounts)-amountBufferSize:]
	}

	n := float64(len(b.amounts))
	var sum float64
	for _, a := range b.amounts {
		sum += a
	}
	mean := sum / n
	var sq float64
	for _, a := range b.amounts {
		d := a - mean
		sq += d * d
	}
	return amountStats{
		samples: len(b.amounts),
		mean:    mean,
		stddev:  math.Sqrt(sq / n),
	}
}

func (b *amountBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.amounts)
}

func (b *amountBuffer) reset() {
	b.mu.Lock()
	b.amounts = nil
	b.mu.Unlock()
}

// Activity is one entry of the per-(ip,user) history.
type Activity struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
	Amount    float64   `json:"amount"`
}

// activityLog keeps the last activityBufferSize requests per (ip,userId).
// No detector reads it; it is exposed for observability.
type activityLog struct {
	keys syncutil.ShardedMap[[]Activity]
}

func activityKey(ip, userID string) string {
	return ip + "-" + userID
}

func (l *activityLog) record(ip, userID string, a Activity) {
	l.keys.Update(activityKey(ip, userID), func(h []Activity, _ bool) ([]Activity, bool) {
		h = append(h, a)
		if len(h) > activityBufferSize {
			h = append(h[:0:0], h[len(h)-activityBufferSize:]...)
		}
		return h, true
	})
}

// recent returns a copy of the history for (ip,userId), newest first.
func (l *activityLog) recent(ip, userID string) []Activity {
	var out []Activity
	l.keys.View(activityKey(ip, userID), func(h []Activity) {
		out = make([]Activity, 0, len(h))
		for i := len(h) - 1; i >= 0; i-- {
			out = append(out, h[i])
		}
	})
	return out
}

// sweep drops histories whose newest entry is older than ttl.
func (l *activityLog) sweep(now time.Time, ttl time.Duration) int {
	return l.keys.Sweep(func(_ string, h []Activity) ([]Activity, bool) {
		if len(h) == 0 {
			return h, false
		}
		return h, now.Sub(h[len(h)-1].Timestamp) < ttl
	})
}

func (l *activityLog) size() int { return l.keys.Len() }

func (l *activityLog) reset() { l.keys.Reset() }
