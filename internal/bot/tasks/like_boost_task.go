package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgard/sponsorbot/internal/boost"
)

// newLikeBoostTask creates the task that enrolls new posts in the boost
// ledger and adds the likes due since the previous tick.
func newLikeBoostTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "like_boost")

	return func(ctx context.Context) error {
		startTime := time.Now()

		result, err := deps.Booster.Tick(ctx)
		duration := time.Since(startTime)
		switch {
		case errors.Is(err, boost.ErrTickInProgress):
			log.WarnContext(ctx, "Previous like boost tick still running, skipping")
			return nil
		case err != nil:
			log.ErrorContext(ctx, "Like boost tick failed", "error", err, "duration", duration)
			return fmt.Errorf("like boost tick failed: %w", err)
		}

		attrs := []any{
			"enrolled", result.Enrolled,
			"boosted", result.Boosted,
			"likes_added", result.LikesAdded,
			"failed", result.Failed,
			"duration", duration,
		}
		if result.Failed > 0 {
			log.WarnContext(ctx, "Like boost tick completed with failures", attrs...)
			return nil
		}
		if result.Enrolled > 0 || result.LikesAdded > 0 {
			log.InfoContext(ctx, "Like boost tick completed", attrs...)
			return nil
		}
		log.DebugContext(ctx, "Like boost tick completed, nothing to do", attrs...)
		return nil
	}
}
