package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `WHERE username = $1`, username)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg string) (*model.User, error) {
	user := &model.User{}
	var username sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, username, created_at, updated_at FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Email, &username, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.Username = username.String

	return user, nil
}

// Upsert はユーザーを作成または更新する。
// ユーザー名が空の場合は既存のユーザー名を維持する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   email = EXCLUDED.email,
		   username = COALESCE(EXCLUDED.username, users.username),
		   updated_at = EXCLUDED.updated_at`,
		user.ID, user.Email, user.Username, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// SearchByUsername はユーザー名の部分一致で検索する。
func (r *PostgresUserRepo) SearchByUsername(ctx context.Context, query, excludeUserID string, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, username, created_at, updated_at
		 FROM users
		 WHERE username ILIKE '%' || $1 || '%' AND id <> $2
		 ORDER BY username ASC
		 LIMIT $3`,
		escapeLike(query), excludeUserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		var username sql.NullString
		if err := rows.Scan(&u.ID, &u.Email, &username, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Username = username.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// HasRole は指定ユーザーがロールを持つかどうかを返す。
func (r *PostgresUserRepo) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user role: %w", err)
	}
	return exists, nil
}

// ListEmailsByRole は指定ロールを持つユーザーのメールアドレス一覧を返す。
func (r *PostgresUserRepo) ListEmailsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.email
		 FROM user_roles ur
		 JOIN users u ON u.id = ur.user_id
		 WHERE ur.role = $1
		 ORDER BY u.email`,
		role,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails by role: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	return emails, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
