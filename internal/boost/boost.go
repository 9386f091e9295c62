// Package boost implements the like boost scheduler: every post is enrolled
// with a random like target that is delivered gradually over a fixed window.
package boost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/sponsorbot/internal/database"
)

// ErrTickInProgress is returned when Tick is called while another tick runs.
var ErrTickInProgress = errors.New("boost tick already in progress")

const (
	jitterMin   = 0.7
	jitterRange = 0.6
)

// Store is the subset of database.Store the engine needs.
type Store interface {
	ListPosts(ctx context.Context) ([]database.Post, error)
	ListBoosts(ctx context.Context) ([]database.LikeBoost, error)
	InsertBoost(ctx context.Context, boost *database.LikeBoost) (bool, error)
	BumpBoost(ctx context.Context, postID int64, delta int) error
}

// Config holds the enrollment parameters.
type Config struct {
	MinTarget int
	MaxTarget int
	Duration  time.Duration
}

// DefaultConfig returns the production defaults: 500..1100 likes over 7 days.
func DefaultConfig() Config {
	return Config{
		MinTarget: 500,
		MaxTarget: 1100,
		Duration:  7 * 24 * time.Hour,
	}
}

// Validate reports whether the configuration can be used.
func (c Config) Validate() error {
	if c.MinTarget < 0 || c.MaxTarget < c.MinTarget {
		return fmt.Errorf("invalid target range [%d, %d]", c.MinTarget, c.MaxTarget)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	return nil
}

// TickResult summarises one pass of the engine.
type TickResult struct {
	Enrolled   int
	Boosted    int
	LikesAdded int
	Failed     int
}

// Engine runs enrollment and progress passes over the boost ledger.
type Engine struct {
	store   Store
	cfg     Config
	clock   clockwork.Clock
	rng     *rand.Rand
	running atomic.Bool
	logger  *slog.Logger
}

// NewEngine creates an Engine. A nil clock means the real clock and a nil rng
// is seeded from the current time.
func NewEngine(store Store, cfg Config, clock clockwork.Clock, rng *rand.Rand, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("boost engine requires a store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:  store,
		cfg:    cfg,
		clock:  clock,
		rng:    rng,
		logger: logger.With("component", "boost"),
	}, nil
}

// Tick enrolls new posts and advances every active boost towards the
// likes expected at the current time. Per-post failures are logged and
// counted; only listing failures abort the tick.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	if !e.running.CompareAndSwap(false, true) {
		return result, ErrTickInProgress
	}
	defer e.running.Store(false)

	now := e.clock.Now()

	posts, err := e.store.ListPosts(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list posts: %w", err)
	}
	boosts, err := e.store.ListBoosts(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list boosts: %w", err)
	}

	enrolled := make(map[int64]struct{}, len(boosts))
	for _, b := range boosts {
		enrolled[b.PostID] = struct{}{}
	}

	for _, post := range posts {
		if _, ok := enrolled[post.ID]; ok {
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		boost := e.newBoost(post, now)
		created, err := e.store.InsertBoost(ctx, &boost)
		if err != nil {
			result.Failed++
			e.logger.ErrorContext(ctx, "Failed to enroll post", "post_id", post.ID, "error", err)
			continue
		}
		if created {
			result.Enrolled++
			e.logger.InfoContext(ctx, "Post enrolled in like boost",
				"post_id", post.ID, "target_likes", boost.TargetLikes, "end_time", boost.EndTime)
		}
	}

	if result.Enrolled > 0 {
		if boosts, err = e.store.ListBoosts(ctx); err != nil {
			return result, fmt.Errorf("failed to list boosts after enrollment: %w", err)
		}
	}

	for _, b := range boosts {
		delta := e.increment(b, now)
		if delta == 0 {
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if err := e.store.BumpBoost(ctx, b.PostID, delta); err != nil {
			result.Failed++
			e.logger.WarnContext(ctx, "Failed to apply like boost", "post_id", b.PostID, "delta", delta, "error", err)
			continue
		}
		result.Boosted++
		result.LikesAdded += delta
	}

	e.logger.DebugContext(ctx, "Like boost tick finished",
		"enrolled", result.Enrolled, "boosted", result.Boosted,
		"likes_added", result.LikesAdded, "failed", result.Failed)
	return result, nil
}

func (e *Engine) newBoost(post database.Post, now time.Time) database.LikeBoost {
	start := post.CreatedAt
	if start.IsZero() {
		start = now
	}
	return database.LikeBoost{
		PostID:      post.ID,
		TargetLikes: e.cfg.MinTarget + e.rng.IntN(e.cfg.MaxTarget-e.cfg.MinTarget+1),
		StartTime:   start,
		EndTime:     start.Add(e.cfg.Duration),
	}
}

// increment returns how many likes to add to b at time now. Past the end of
// the window everything left is added at once.
func (e *Engine) increment(b database.LikeBoost, now time.Time) int {
	remaining := b.Remaining()
	if remaining <= 0 {
		return 0
	}
	if !now.Before(b.EndTime) {
		return remaining
	}

	window := b.EndTime.Sub(b.StartTime)
	if window <= 0 {
		return remaining
	}
	elapsed := now.Sub(b.StartTime)
	if elapsed <= 0 {
		return 0
	}

	progress := math.Min(float64(elapsed)/float64(window), 1)
	expected := int(math.Floor(float64(b.TargetLikes) * progress))
	toAdd := expected - b.BoostedLikes
	if toAdd <= 0 {
		return 0
	}

	jitter := jitterMin + e.rng.Float64()*jitterRange
	add := max(1, int(math.Round(float64(toAdd)*jitter)))
	return min(add, remaining)
}
