package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresFriendshipRepo はPostgreSQLを使用した友達関係リポジトリ。
// friendships.user_id が申請者、friend_id が申請先。
type PostgresFriendshipRepo struct {
	db *sql.DB
}

// NewPostgresFriendshipRepo はPostgresFriendshipRepoを生成する。
func NewPostgresFriendshipRepo(db *sql.DB) *PostgresFriendshipRepo {
	return &PostgresFriendshipRepo{db: db}
}

// Create はエッジを作成する。
func (r *PostgresFriendshipRepo) Create(ctx context.Context, f *model.Friendship) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO friendships (id, user_id, friend_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.RequesterID, f.AddresseeID, string(f.Status), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isMissingUser(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

// FindByID は指定IDのエッジを取得する。見つからない場合はnilを返す。
func (r *PostgresFriendshipRepo) FindByID(ctx context.Context, id string) (*model.Friendship, error) {
	return r.findOne(ctx,
		`SELECT id, user_id, friend_id, status, created_at, updated_at
		 FROM friendships WHERE id = $1`,
		id,
	)
}

// FindBetween は2ユーザー間のエッジを方向を問わず取得する。見つからない場合はnilを返す。
func (r *PostgresFriendshipRepo) FindBetween(ctx context.Context, userA, userB string) (*model.Friendship, error) {
	return r.findOne(ctx,
		`SELECT id, user_id, friend_id, status, created_at, updated_at
		 FROM friendships
		 WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
		 ORDER BY created_at ASC
		 LIMIT 1`,
		userA, userB,
	)
}

func (r *PostgresFriendshipRepo) findOne(ctx context.Context, query string, args ...any) (*model.Friendship, error) {
	f := &model.Friendship{}
	var status string
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &status, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find friendship: %w", err)
	}
	f.Status = model.FriendshipStatus(status)
	return f, nil
}

// UpdateStatus は状態がfromのエッジのみtoに更新する。
func (r *PostgresFriendshipRepo) UpdateStatus(ctx context.Context, id string, from, to model.FriendshipStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE friendships SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update friendship status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete は指定状態のエッジを削除する。
func (r *PostgresFriendshipRepo) Delete(ctx context.Context, id string, status model.FriendshipStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE id = $1 AND status = $2`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete friendship: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListAccepted はユーザーの承認済み友達を相手のユーザー名順で返す。
// 申請者側・申請先側の両方向のエッジを相手ユーザーに解決する。
func (r *PostgresFriendshipRepo) ListAccepted(ctx context.Context, userID string) ([]*model.Friend, error) {
	return r.listFriends(ctx,
		`SELECT f.id, u.id, COALESCE(u.username, ''), f.status, f.created_at
		 FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.user_id = $1 THEN f.friend_id ELSE f.user_id END
		 WHERE (f.user_id = $1 OR f.friend_id = $1) AND f.status = 'accepted'
		 ORDER BY u.username ASC`,
		userID,
	)
}

// ListIncoming はユーザー宛ての申請中エッジを申請者のプロフィール付きで返す。
func (r *PostgresFriendshipRepo) ListIncoming(ctx context.Context, userID string) ([]*model.Friend, error) {
	return r.listFriends(ctx,
		`SELECT f.id, u.id, COALESCE(u.username, ''), f.status, f.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.user_id
		 WHERE f.friend_id = $1 AND f.status = 'pending'
		 ORDER BY f.created_at DESC`,
		userID,
	)
}

// ListOutgoing はユーザーが送った申請中エッジを申請先のプロフィール付きで返す。
func (r *PostgresFriendshipRepo) ListOutgoing(ctx context.Context, userID string) ([]*model.Friend, error) {
	return r.listFriends(ctx,
		`SELECT f.id, u.id, COALESCE(u.username, ''), f.status, f.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = $1 AND f.status = 'pending'
		 ORDER BY f.created_at DESC`,
		userID,
	)
}

func (r *PostgresFriendshipRepo) listFriends(ctx context.Context, query string, userID string) ([]*model.Friend, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var friends []*model.Friend
	for rows.Next() {
		f := &model.Friend{}
		var status string
		if err := rows.Scan(&f.FriendshipID, &f.UserID, &f.Username, &status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		f.Status = model.FriendshipStatus(status)
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friends: %w", err)
	}
	return friends, nil
}

// ListAcceptedIDs は承認済み友達のユーザーID一覧を返す。
func (r *PostgresFriendshipRepo) ListAcceptedIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END
		 FROM friendships
		 WHERE (user_id = $1 OR friend_id = $1) AND status = 'accepted'`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend IDs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friend IDs: %w", err)
	}
	return ids, nil
}

// compile-time interface check
var _ FriendshipRepository = (*PostgresFriendshipRepo)(nil)
