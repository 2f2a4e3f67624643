package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/stagelog/internal/model"
)

// expiredSessionBatchSize は期限切れセッションを1文で削除する上限件数。
const expiredSessionBatchSize = 1000

// PostgresSessionRepo はCookieセッションをsessionsテーブルに保存する。
// Bearerトークンのセッションは認証プロバイダが管理するためここには保存しない。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションを取得する。期限切れまたは未登録ならnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{Source: model.SessionSourceCookie}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// DeleteByID はログアウト時にセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一定件数ずつ削除し、合計削除件数を返す。
// 長時間のロックを避けるため、1文あたりexpiredSessionBatchSize件に制限する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	for {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM sessions
			 WHERE id IN (
				SELECT id FROM sessions
				WHERE expires_at < now()
				LIMIT $1
			 )`,
			expiredSessionBatchSize,
		)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
		if n < expiredSessionBatchSize {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
