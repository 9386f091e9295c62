package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrPostNotFound is returned by ledger writes whose post row no longer exists.
	ErrPostNotFound = errors.New("post not found")
	// ErrBoostOverflow is returned when a bump would push boosted likes past the target,
	// or when the ledger entry is missing.
	ErrBoostOverflow = errors.New("boost would exceed target or entry is missing")
)

const postColumns = `id, description, image_url, details_text, telegram_link, whatsapp_link,
	instagram_link, like_count, created_at, updated_at`

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// ListPosts returns every post in creation order.
	ListPosts(ctx context.Context) ([]Post, error)

	// ListPostsPage returns up to limit posts in creation order starting at offset.
	ListPostsPage(ctx context.Context, limit, offset int) ([]Post, error)

	// CountPosts returns the number of posts.
	CountPosts(ctx context.Context) (int, error)

	// GetPost retrieves a post by ID. Returns nil, nil if not found.
	GetPost(ctx context.Context, id int64) (*Post, error)

	// CreatePost inserts a post and sets its ID and timestamps.
	CreatePost(ctx context.Context, post *Post) error

	// UpdatePost writes the non-nil fields of update. Returns nil, nil if not found.
	UpdatePost(ctx context.Context, id int64, update PostUpdate) (*Post, error)

	// DeletePost removes a post and its boost ledger entry.
	DeletePost(ctx context.Context, id int64) (bool, error)

	// IncrementLike adds one like. Returns nil, nil if not found.
	IncrementLike(ctx context.Context, id int64) (*Post, error)

	// DecrementLike removes one like, never going below zero. Returns nil, nil if not found.
	DecrementLike(ctx context.Context, id int64) (*Post, error)

	// ListBoosts returns every boost ledger entry.
	ListBoosts(ctx context.Context) ([]LikeBoost, error)

	// InsertBoost enrolls a post in the ledger. It reports false if an entry already existed.
	InsertBoost(ctx context.Context, boost *LikeBoost) (bool, error)

	// BumpBoost adds delta to both the ledger entry and the post's like counter atomically.
	BumpBoost(ctx context.Context, postID int64, delta int) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *sqlxStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqlxStore) ListPosts(ctx context.Context) ([]Post, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var posts []Post
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY created_at ASC, id ASC`
	if err := s.db.SelectContext(ctx, &posts, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing posts", "error", err)
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	s.logger.DebugContext(ctx, "Listed posts", "count", len(posts))
	return posts, nil
}

func (s *sqlxStore) ListPostsPage(ctx context.Context, limit, offset int) ([]Post, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		offset = 0
	}

	var posts []Post
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &posts, query, limit, offset); err != nil {
		s.logger.ErrorContext(ctx, "Error listing posts page", "limit", limit, "offset", offset, "error", err)
		return nil, fmt.Errorf("failed to list posts (limit %d, offset %d): %w", limit, offset, err)
	}
	return posts, nil
}

func (s *sqlxStore) CountPosts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

func (s *sqlxStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	if id <= 0 {
		return nil, nil
	}
	return s.getPost(ctx, s.db, id)
}

func (s *sqlxStore) getPost(ctx context.Context, q sqlx.QueryerContext, id int64) (*Post, error) {
	var post Post
	err := sqlx.GetContext(ctx, q, &post, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No post found", "post_id", id)
		return nil, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching post", "post_id", id, "error", err)
		return nil, err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting post by ID", "post_id", id, "error", err)
		return nil, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	return &post, nil
}

func (s *sqlxStore) CreatePost(ctx context.Context, post *Post) error {
	if post == nil {
		return fmt.Errorf("cannot create nil post")
	}
	if strings.TrimSpace(post.Description) == "" {
		return fmt.Errorf("post must have a non-empty description")
	}

	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = post.CreatedAt
	if post.LikeCount < 0 {
		post.LikeCount = 0
	}

	query := `
		INSERT INTO posts (description, image_url, details_text, telegram_link, whatsapp_link,
			instagram_link, like_count, created_at, updated_at)
		VALUES (:description, :image_url, :details_text, :telegram_link, :whatsapp_link,
			:instagram_link, :like_count, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, query, post)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating post", "error", err)
		return fmt.Errorf("failed to create post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read id of created post: %w", err)
	}
	post.ID = id

	s.logger.InfoContext(ctx, "Post created", "post_id", post.ID)
	return nil
}

func (s *sqlxStore) UpdatePost(ctx context.Context, id int64, update PostUpdate) (*Post, error) {
	cols := update.columns()
	if len(cols) == 0 {
		return s.GetPost(ctx, id)
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, c.column+" = ?")
		args = append(args, c.value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	var updated *Post
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `UPDATE posts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update post %d: %w", id, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return nil
		}
		updated, err = s.getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating post", "post_id", id, "error", err)
		return nil, err
	}

	if updated != nil {
		s.logger.InfoContext(ctx, "Post updated", "post_id", id, "fields", len(cols))
	}
	return updated, nil
}

func (s *sqlxStore) DeletePost(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM like_boosts WHERE post_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete boost for post %d: %w", id, err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete post %d: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting post", "post_id", id, "error", err)
		return false, err
	}

	s.logger.InfoContext(ctx, "Post delete finished", "post_id", id, "deleted", deleted)
	return deleted, nil
}

func (s *sqlxStore) IncrementLike(ctx context.Context, id int64) (*Post, error) {
	return s.changeLikes(ctx, id, `UPDATE posts SET like_count = like_count + 1 WHERE id = ?`)
}

func (s *sqlxStore) DecrementLike(ctx context.Context, id int64) (*Post, error) {
	return s.changeLikes(ctx, id, `UPDATE posts SET like_count = MAX(like_count - 1, 0) WHERE id = ?`)
}

// changeLikes runs a single-statement counter update; updated_at is left alone.
func (s *sqlxStore) changeLikes(ctx context.Context, id int64, query string) (*Post, error) {
	var post *Post
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("failed to change likes of post %d: %w", id, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return nil
		}
		post, err = s.getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error changing like count", "post_id", id, "error", err)
		return nil, err
	}
	return post, nil
}

func (s *sqlxStore) ListBoosts(ctx context.Context) ([]LikeBoost, error) {
	var boosts []LikeBoost
	query := `SELECT post_id, target_likes, boosted_likes, start_time, end_time FROM like_boosts ORDER BY post_id`
	if err := s.db.SelectContext(ctx, &boosts, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing boosts", "error", err)
		return nil, fmt.Errorf("failed to list boosts: %w", err)
	}
	return boosts, nil
}

func (s *sqlxStore) InsertBoost(ctx context.Context, boost *LikeBoost) (bool, error) {
	if boost == nil {
		return false, fmt.Errorf("cannot insert nil boost")
	}
	if boost.BoostedLikes < 0 || boost.BoostedLikes > boost.TargetLikes {
		return false, fmt.Errorf("invalid boost for post %d: boosted %d, target %d",
			boost.PostID, boost.BoostedLikes, boost.TargetLikes)
	}

	query := `
		INSERT OR IGNORE INTO like_boosts (post_id, target_likes, boosted_likes, start_time, end_time)
		VALUES (:post_id, :target_likes, :boosted_likes, :start_time, :end_time)`

	result, err := s.db.NamedExecContext(ctx, query, boost)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting boost", "post_id", boost.PostID, "error", err)
		return false, fmt.Errorf("failed to insert boost for post %d: %w", boost.PostID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *sqlxStore) BumpBoost(ctx context.Context, postID int64, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("boost delta must be positive, got %d", delta)
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE like_boosts SET boosted_likes = boosted_likes + ?
			WHERE post_id = ? AND boosted_likes + ? <= target_likes`, delta, postID, delta)
		if err != nil {
			return fmt.Errorf("failed to bump boost for post %d: %w", postID, err)
		}
		if affected, err := result.RowsAffected(); err != nil || affected != 1 {
			return fmt.Errorf("post %d delta %d: %w", postID, delta, ErrBoostOverflow)
		}

		result, err = tx.ExecContext(ctx, `UPDATE posts SET like_count = like_count + ? WHERE id = ?`, delta, postID)
		if err != nil {
			return fmt.Errorf("failed to add likes to post %d: %w", postID, err)
		}
		if affected, err := result.RowsAffected(); err != nil || affected != 1 {
			return fmt.Errorf("post %d: %w", postID, ErrPostNotFound)
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Boost bump rejected", "post_id", postID, "delta", delta, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Boost bumped", "post_id", postID, "delta", delta)
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
