package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/visualflow/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSessionNotFound 指定用户下不存在该会话
var ErrSessionNotFound = errors.New("video session not found")

const saveRetries = 3

// Repository reads and writes video_session rows.
type Repository struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewRepository creates a repository over an open pool.
func NewRepository(pool *database.PoolManager, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		pool:   pool,
		logger: logger.With(zap.String("component", "session_repository")),
	}
}

// Find loads the session owned by userID.
func (r *Repository) Find(ctx context.Context, sessionID, userID string) (*VideoSession, error) {
	var s VideoSession
	err := r.pool.DB().WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session_id=%s user_id=%s: %w", sessionID, userID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video session: %w", err)
	}

	r.logger.Debug("loaded video session",
		zap.String("session_id", sessionID),
		zap.Bool("has_topic", s.Topic != ""),
		zap.Int("facts", len(s.ConfirmedFacts)),
	)
	return &s, nil
}

// Save inserts the session or updates every column of an existing row.
func (r *Repository) Save(ctx context.Context, s *VideoSession) error {
	if s == nil || s.ID == "" || s.UserID == "" {
		return fmt.Errorf("session id and user id are required")
	}
	return r.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error
	})
}

// UpdateScript stores the generated script for a session.
func (r *Repository) UpdateScript(ctx context.Context, sessionID, userID, script string) error {
	return r.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		res := tx.Model(&VideoSession{}).
			Where("id = ? AND user_id = ?", sessionID, userID).
			Update("generated_script", script)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}
