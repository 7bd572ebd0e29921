package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// Scheduler runs Consolidate on a cron schedule for every live agent.
type Scheduler struct {
	expr     string
	services func() []*Service
	logger   *zap.Logger
}

// NewScheduler validates expr and returns a Scheduler. services is called at
// every tick so agents created after startup are included.
func NewScheduler(expr string, services func() []*Service, logger *zap.Logger) (*Scheduler, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid consolidation schedule %q", expr)
	}
	return &Scheduler{expr: expr, services: services, logger: logger}, nil
}

// Next returns the first tick strictly after now.
func (s *Scheduler) Next(now time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, now, false)
}

// Run blocks until ctx is cancelled, consolidating at each tick.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next, err := s.Next(time.Now())
		if err != nil {
			s.logger.Error("consolidation schedule", zap.String("cron", s.expr), zap.Error(err))
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce consolidates every agent and returns the total removed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	total := 0
	for _, svc := range s.services() {
		n, err := svc.Consolidate(ctx)
		if err != nil {
			s.logger.Warn("consolidation failed", zap.String("agent", svc.AgentID()), zap.Error(err))
			continue
		}
		total += n
	}
	return total
}
