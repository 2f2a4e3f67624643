package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresReactionRepo はPostgreSQLを使用したリアクションリポジトリ。
type PostgresReactionRepo struct {
	db *sql.DB
}

// NewPostgresReactionRepo はPostgresReactionRepoを生成する。
func NewPostgresReactionRepo(db *sql.DB) *PostgresReactionRepo {
	return &PostgresReactionRepo{db: db}
}

// FindByActivityAndUser はユーザーのリアクションを取得する。見つからない場合はnilを返す。
func (r *PostgresReactionRepo) FindByActivityAndUser(ctx context.Context, activityID, userID string) (*model.Reaction, error) {
	reaction := &model.Reaction{}
	var reactionType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, activity_id, user_id, reaction_type, created_at
		 FROM reactions WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID,
	).Scan(&reaction.ID, &reaction.ActivityID, &reaction.UserID, &reactionType, &reaction.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reaction: %w", err)
	}
	reaction.ReactionType = model.ReactionType(reactionType)
	return reaction, nil
}

// Replace はユーザーの既存リアクションを削除し、reactionがnilでなければ挿入する。
func (r *PostgresReactionRepo) Replace(ctx context.Context, activityID, userID string, reaction *model.Reaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reactions WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID,
	); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}

	if reaction != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO reactions (id, activity_id, user_id, reaction_type, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			reaction.ID, reaction.ActivityID, reaction.UserID, string(reaction.ReactionType), reaction.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			if isMissingUser(err) {
				return ErrUnknownUser
			}
			return fmt.Errorf("failed to insert reaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountByActivity はリアクション種別ごとの件数を返す。
func (r *PostgresReactionRepo) CountByActivity(ctx context.Context, activityID string) (model.ReactionCounts, error) {
	counts, err := r.CountByActivities(ctx, []string{activityID})
	if err != nil {
		return model.ReactionCounts{}, err
	}
	return counts[activityID], nil
}

// CountByActivities は複数アクティビティのリアクション件数をまとめて返す。
// リアクションのないアクティビティはマップに含まれない。
func (r *PostgresReactionRepo) CountByActivities(ctx context.Context, activityIDs []string) (map[string]model.ReactionCounts, error) {
	result := make(map[string]model.ReactionCounts, len(activityIDs))
	if len(activityIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT activity_id, reaction_type, COUNT(*)
		 FROM reactions
		 WHERE activity_id = ANY($1::uuid[])
		 GROUP BY activity_id, reaction_type`,
		pq.Array(activityIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var activityID, reactionType string
		var n int
		if err := rows.Scan(&activityID, &reactionType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reaction count: %w", err)
		}
		c := result[activityID]
		c.Add(model.ReactionType(reactionType), n)
		result[activityID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reaction counts: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ ReactionRepository = (*PostgresReactionRepo)(nil)
