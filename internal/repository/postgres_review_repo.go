package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresReviewRepo はpublic_reviewsビューを参照する公開レビューリポジトリ。
// ビューは非公開メモを含まず、匿名行のuser_idとusernameをNULLにする。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

const publicReviewColumns = `id, show_id, user_id, username, rating, review, city, date_seen,
	is_anonymous, contains_spoilers, created_at`

// FindByID は指定IDの公開レビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.PublicReview, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+publicReviewColumns+` FROM public_reviews WHERE id = $1`,
		id,
	)
	rv, err := scanPublicReview(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find public review: %w", err)
	}
	return rv, nil
}

// ListByShow は演目の公開行を観劇日降順で返す。
func (r *PostgresReviewRepo) ListByShow(ctx context.Context, showID, city string) ([]*model.PublicReview, error) {
	query := `SELECT ` + publicReviewColumns + ` FROM public_reviews WHERE show_id = $1`
	args := []any{showID}
	if city != "" {
		query += ` AND city = $2`
		args = append(args, city)
	}
	query += ` ORDER BY date_seen DESC NULLS LAST, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list public reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*model.PublicReview
	for rows.Next() {
		rv, err := scanPublicReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan public review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate public reviews: %w", err)
	}
	return reviews, nil
}

// ListRatings は演目の評価値（NULLを除く）を返す。
func (r *PostgresReviewRepo) ListRatings(ctx context.Context, showID string) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rating FROM public_reviews WHERE show_id = $1 AND rating IS NOT NULL`,
		showID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return ratings, nil
}

func scanPublicReview(s rowScanner) (*model.PublicReview, error) {
	rv := &model.PublicReview{}
	var (
		userID   sql.NullString
		username sql.NullString
		rating   sql.NullFloat64
		review   sql.NullString
		city     sql.NullString
		dateSeen sql.NullTime
	)
	if err := s.Scan(
		&rv.ID, &rv.ShowID, &userID, &username, &rating, &review, &city, &dateSeen,
		&rv.IsAnonymous, &rv.ContainsSpoilers, &rv.CreatedAt,
	); err != nil {
		return nil, err
	}
	rv.UserID = userID.String
	rv.Username = username.String
	if rating.Valid {
		v := rating.Float64
		rv.Rating = &v
	}
	rv.Review = review.String
	rv.City = city.String
	if dateSeen.Valid {
		d := dateSeen.Time
		rv.DateSeen = &d
	}
	return rv, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
