package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the state sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically evicts idle detector state on a cron schedule.
type Sweeper struct {
	engine   *Engine
	schedule string
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a sweeper for engine. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(engine *Engine, schedule string, logger *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		engine:   engine,
		schedule: schedule,
		logger:   logger,
		stop:     make(chan struct{}, 1),
	}
}

// ValidateSchedule reports whether spec is a schedule the sweeper accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start schedules the sweep and blocks until ctx is done or Stop is called.
// Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.safeSweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.running.Store(true)
	defer s.running.Store(false)

	c.Start()
	s.logger.Info("risk state sweeper started", "schedule", s.schedule)

	select {
	case <-ctx.Done():
	case <-s.stop:
	}

	<-c.Stop().Done()
	s.logger.Info("risk state sweeper stopped")
	return nil
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in risk state sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.sweep()
}

func (s *Sweeper) sweep() {
	res := s.engine.Sweep()
	riskSweepRemoved.WithLabelValues("ip").Add(float64(res.IPs))
	riskSweepRemoved.WithLabelValues("payload").Add(float64(res.Payloads))
	riskSweepRemoved.WithLabelValues("user").Add(float64(res.Users))
	if res.Total() > 0 {
		s.logger.Info("swept idle risk state",
			"ips", res.IPs,
			"payloads", res.Payloads,
			"users", res.Users,
		)
	}
}
