package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, activity_id, user_id, comment_text, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		comment.ID, comment.ActivityID, comment.UserID, comment.CommentText, comment.CreatedAt,
	)
	if err != nil {
		if isMissingUser(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ListByActivity はアクティビティのコメントを作成日時昇順で返す。
func (r *PostgresCommentRepo) ListByActivity(ctx context.Context, activityID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.activity_id, c.user_id, COALESCE(u.username, ''), c.comment_text, c.created_at
		 FROM comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.activity_id = $1
		 ORDER BY c.created_at ASC`,
		activityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c := &model.Comment{}
		if err := rows.Scan(&c.ID, &c.ActivityID, &c.UserID, &c.Username, &c.CommentText, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
