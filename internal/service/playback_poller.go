package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/models"
)

type unitTrigger interface {
	Trigger(ctx context.Context, unitID string) (*models.TriggerResult, error)
}

type activeUnitLister interface {
	ListActiveUnits(ctx context.Context) ([]string, error)
}

// PlaybackPoller evaluates every unit on a fixed cadence and on demand. Evaluations run one at a
// time, so a unit is never triggered twice concurrently by the poller.
type PlaybackPoller struct {
	scheduler unitTrigger
	units     activeUnitLister
	static    []string
	interval  time.Duration
	kicks     chan string
	logger    *zap.Logger
}

// NewPlaybackPoller constructs the poller. When static units are given they replace discovery.
func NewPlaybackPoller(scheduler unitTrigger, units activeUnitLister, static []string, interval time.Duration, logger *zap.Logger) *PlaybackPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &PlaybackPoller{
		scheduler: scheduler,
		units:     units,
		static:    static,
		interval:  interval,
		kicks:     make(chan string, 32),
		logger:    logger,
	}
}

// Start runs the loop until ctx is cancelled.
func (p *PlaybackPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RunOnce(ctx)
			case unitID := <-p.kicks:
				p.evaluate(ctx, unitID)
			}
		}
	}()
}

// Kick requests an out-of-cycle evaluation of a unit. It reports false when the request was dropped.
func (p *PlaybackPoller) Kick(unitID string) bool {
	select {
	case p.kicks <- unitID:
		return true
	default:
		return false
	}
}

// RunOnce evaluates every known unit.
func (p *PlaybackPoller) RunOnce(ctx context.Context) {
	units := p.static
	if len(units) == 0 && p.units != nil {
		discovered, err := p.units.ListActiveUnits(ctx)
		if err != nil {
			p.logger.Warn("list active units failed", zap.Error(err))
			return
		}
		units = discovered
	}
	for _, unitID := range units {
		if ctx.Err() != nil {
			return
		}
		p.evaluate(ctx, unitID)
	}
}

func (p *PlaybackPoller) evaluate(ctx context.Context, unitID string) {
	result, err := p.scheduler.Trigger(ctx, unitID)
	if err != nil {
		p.logger.Warn("announcement evaluation failed", zap.String("unit_id", unitID), zap.Error(err))
		return
	}
	if result.Status != models.TriggerNothingDue {
		p.logger.Info("announcement evaluation",
			zap.String("unit_id", unitID),
			zap.String("status", string(result.Status)),
			zap.Int("candidates", result.Candidates))
	}
}
