// Package tasks implements the scheduled jobs of the sponsor bot: the like
// boost tick and database maintenance.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/sponsorbot/internal/boost"
	"github.com/edgard/sponsorbot/internal/config"
)

// Booster advances the like boost by one tick.
type Booster interface {
	Tick(ctx context.Context) (boost.TickResult, error)
}

// Maintainer runs periodic database upkeep.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   Maintainer
	Booster Booster
	Config  *config.Config
}
