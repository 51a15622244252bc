// Package requestlog keeps a bounded, newest-first history of gateway
// decisions for the reporting endpoints and the live stream.
package requestlog

import (
	"sync"
	"time"

	"github.com/mbd888/riskgate/internal/metrics"
	"github.com/mbd888/riskgate/internal/pagination"
	"github.com/mbd888/riskgate/internal/risk"
)

const (
	// DefaultCapacity is the number of entries retained before the oldest is
	// evicted.
	DefaultCapacity = 1000

	// DefaultListLimit is used when List is called without a positive limit.
	DefaultListLimit = 50
)

// RoutingDecision is what the gateway did with a scored request.
type RoutingDecision string

const (
	RoutingBlocked RoutingDecision = "BLOCKED"
	RoutingAllowed RoutingDecision = "ALLOWED"
	RoutingFailed  RoutingDecision = "FAILED" // downstream unavailable
	RoutingError   RoutingDecision = "ERROR"  // internal failure
)

// Request describes the inbound call.
type Request struct {
	Method    string            `json:"method"`
	Endpoint  string            `json:"endpoint"`
	Path      string            `json:"path,omitempty"`
	Body      any               `json:"body,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	IPAddress string            `json:"ipAddress"`
	UserAgent string            `json:"userAgent,omitempty"`
}

// Routing records the routing outcome.
type Routing struct {
	TargetService string          `json:"targetService"`
	Decision      RoutingDecision `json:"routingDecision"`
	Reason        string          `json:"reason"`
}

// Response records what the caller received.
type Response struct {
	StatusCode   int   `json:"statusCode"`
	ResponseTime int64 `json:"responseTime"` // milliseconds
	Body         any   `json:"body,omitempty"`
}

// Entry is one processed request. The aiDecision key is kept for dashboard
// compatibility.
type Entry struct {
	CorrelationID string               `json:"correlationId"`
	Timestamp     time.Time            `json:"timestamp"`
	Request       Request              `json:"request"`
	Decision      *risk.RiskAssessment `json:"aiDecision"`
	Routing       Routing              `json:"routing"`
	Response      Response             `json:"response"`
}

// RiskLevel returns the level of the stored decision, or "" when the entry
// has none.
func (e Entry) RiskLevel() risk.Level {
	if e.Decision == nil {
		return ""
	}
	return e.Decision.RiskLevel
}

// Log is a fixed-capacity ring of entries. Safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	head     int // index of the next write
	count    int
	onAppend []func(Entry)
}

// New creates a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

// OnAppend registers fn to be called after every Append, outside the lock.
// Register before the log is shared.
func (l *Log) OnAppend(fn func(Entry)) {
	l.onAppend = append(l.onAppend, fn)
}

// Append inserts e as the newest entry, evicting the oldest when full.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	l.entries[l.head] = e
	l.head = (l.head + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
	n := l.count
	l.mu.Unlock()

	metrics.RequestLogEntries.Set(float64(n))
	for _, fn := range l.onAppend {
		fn(e)
	}
}

// List returns up to limit entries newest first, optionally restricted to
// one risk level, along with the number of entries matching the filter.
func (l *Log) List(limit int, level risk.Level) ([]Entry, int) {
	p := l.Page(limit, level, nil)
	return p.Entries, p.Total
}

// Page is one step of a cursor walk through the log.
type Page struct {
	Entries    []Entry
	Total      int    // entries matching the level filter, across all pages
	NextCursor string // empty on the last page
}

// Page returns up to limit entries older than after, newest first. A nil
// cursor starts from the newest entry. If the cursor's entry has been
// evicted the walk resumes at the first entry older than its timestamp.
func (l *Log) Page(limit int, level risk.Level, after *pagination.Cursor) Page {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	started := after == nil
	found := !started && l.holds(after)

	out := make([]Entry, 0, min(limit, l.count)+1)
	total := 0
	for i := 0; i < l.count; i++ {
		e := l.entries[l.index(i)]
		matches := level == "" || e.RiskLevel() == level
		if matches {
			total++
		}
		if !started {
			if found {
				started = after.Matches(e.Timestamp, e.CorrelationID)
				continue
			}
			if !e.Timestamp.Before(after.Timestamp) {
				continue
			}
			started = true
		}
		if matches && len(out) <= limit {
			out = append(out, e)
		}
	}

	entries, next, _ := pagination.ComputePage(out, limit, func(e Entry) (time.Time, string) {
		return e.Timestamp, e.CorrelationID
	})
	return Page{Entries: entries, Total: total, NextCursor: next}
}

func (l *Log) holds(c *pagination.Cursor) bool {
	for i := 0; i < l.count; i++ {
		e := l.entries[l.index(i)]
		if c.Matches(e.Timestamp, e.CorrelationID) {
			return true
		}
	}
	return false
}

// index maps the i-th newest position to a slot.
func (l *Log) index(i int) int {
	n := len(l.entries)
	return ((l.head-1-i)%n + n) % n
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	clear(l.entries)
	l.head = 0
	l.count = 0
	l.mu.Unlock()
	metrics.RequestLogEntries.Set(0)
}
