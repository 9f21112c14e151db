package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arena/internal/contest"
	"arena/internal/realtime"
	"arena/pkg/utils/logger"
)

// DefaultSweepInterval is how often expired contests are collected.
const DefaultSweepInterval = time.Second

// RunSweeper periodically finishes contests whose deadline has passed,
// so a contest nobody is watching still terminates, gets archived, and
// leaves memory. Blocks until ctx is done.
func (s *ContestService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ContestService) sweep(ctx context.Context) {
	for _, c := range s.registry.FinishExpired(ctx) {
		logger.Info(ctx, "contest expired, archiving",
			zap.String("contest_id", c.ID))
		s.archiveContest(ctx, c)
		s.hub.CloseRoom(ctx, c.ID, realtime.Event{
			Type:    realtime.EventContestFinished,
			Payload: contest.SnapshotOf(c),
		})
		s.publishEvent(ctx, realtime.EventContestFinished, c.ID)
		contestsFinished.WithLabelValues(triggerExpired).Inc()
	}
}
