package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したアクティビティリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// FindByID は指定IDのアクティビティを取得する。見つからない場合はnilを返す。
func (r *PostgresActivityRepo) FindByID(ctx context.Context, id string) (*model.Activity, error) {
	a := &model.Activity{}
	var activityType string
	var userShowID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, show_id, activity_type, user_show_id, created_at
		 FROM activities WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.UserID, &a.ShowID, &activityType, &userShowID, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find activity by ID: %w", err)
	}
	a.ActivityType = model.ActivityType(activityType)
	if userShowID.Valid {
		a.UserShowID = &userShowID.String
	}
	return a, nil
}

// ListRecent は新しい順にアクティビティを返す。
// 元のエントリが削除されている場合、エントリ側の列はNULLで返る。
func (r *PostgresActivityRepo) ListRecent(ctx context.Context, limit int, userIDs []string) ([]*model.FeedRow, error) {
	query := `SELECT a.id, a.user_id, a.show_id, a.activity_type, a.user_show_id, a.created_at,
		   COALESCE(u.username, ''), s.id, s.title, s.photo_url,
		   us.rating, us.review, us.city, us.date_seen, us.is_anonymous, us.contains_spoilers
		 FROM activities a
		 JOIN users u ON u.id = a.user_id
		 JOIN shows s ON s.id = a.show_id
		 LEFT JOIN user_shows us ON us.id = a.user_show_id`
	args := []any{limit}
	if userIDs != nil {
		query += ` WHERE a.user_id = ANY($2::uuid[])`
		args = append(args, pq.Array(userIDs))
	}
	query += ` ORDER BY a.created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activities: %w", err)
	}
	defer rows.Close()

	var result []*model.FeedRow
	for rows.Next() {
		row := &model.FeedRow{}
		var (
			activityType string
			userShowID   sql.NullString
			rating       sql.NullFloat64
			review       sql.NullString
			city         sql.NullString
			dateSeen     sql.NullTime
			anonymous    sql.NullBool
			spoilers     sql.NullBool
		)
		if err := rows.Scan(
			&row.ID, &row.UserID, &row.ShowID, &activityType, &userShowID, &row.CreatedAt,
			&row.Username, &row.Show.ID, &row.Show.Title, &row.Show.PhotoURL,
			&rating, &review, &city, &dateSeen, &anonymous, &spoilers,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		row.ActivityType = model.ActivityType(activityType)
		if userShowID.Valid {
			row.UserShowID = &userShowID.String
		}
		if rating.Valid {
			row.EntryRating = &rating.Float64
		}
		if review.Valid {
			row.EntryReview = &review.String
		}
		if city.Valid {
			row.EntryCity = &city.String
		}
		if dateSeen.Valid {
			row.EntryDateSeen = &dateSeen.Time
		}
		if anonymous.Valid {
			row.EntryAnonymous = &anonymous.Bool
		}
		if spoilers.Valid {
			row.EntrySpoilers = &spoilers.Bool
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
