package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresUserShowRepo はPostgreSQLを使用したユーザー演目記録リポジトリ。
type PostgresUserShowRepo struct {
	db *sql.DB
}

// NewPostgresUserShowRepo はPostgresUserShowRepoを生成する。
func NewPostgresUserShowRepo(db *sql.DB) *PostgresUserShowRepo {
	return &PostgresUserShowRepo{db: db}
}

const userShowColumns = `us.id, us.user_id, us.show_id, us.status, us.date_seen, us.city, us.rating,
	us.review, us.private_notes, us.is_anonymous, us.contains_spoilers, us.created_at, us.updated_at`

// CreateWithActivity はエントリとアクティビティを同一トランザクションで作成する。
func (r *PostgresUserShowRepo) CreateWithActivity(ctx context.Context, entry *model.UserShowEntry, activity *model.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// エントリを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_shows (id, user_id, show_id, status, date_seen, city, rating,
		   review, private_notes, is_anonymous, contains_spoilers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)`,
		entry.ID, entry.UserID, entry.ShowID, string(entry.Status), dateParam(entry.DateSeen), entry.City,
		nullFloat(entry.Rating), entry.Review, entry.PrivateNotes, entry.IsAnonymous, entry.ContainsSpoilers,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isMissingUser(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to insert user show: %w", err)
	}

	// アクティビティを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, show_id, activity_type, user_show_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		activity.ID, activity.UserID, activity.ShowID, string(activity.ActivityType),
		activity.UserShowID, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresUserShowRepo) FindByID(ctx context.Context, id string) (*model.UserShowEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userShowColumns+` FROM user_shows us WHERE us.id = $1`,
		id,
	)
	entry, err := scanUserShow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user show by ID: %w", err)
	}
	return entry, nil
}

// FindByUserAndShow はユーザーIDと演目IDでエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresUserShowRepo) FindByUserAndShow(ctx context.Context, userID, showID string) (*model.UserShowEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userShowColumns+` FROM user_shows us WHERE us.user_id = $1 AND us.show_id = $2`,
		userID, showID,
	)
	entry, err := scanUserShow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user show: %w", err)
	}
	return entry, nil
}

// UpdateDiary は日記フィールドを更新する。空文字列とnilはNULLとして保存する。
func (r *PostgresUserShowRepo) UpdateDiary(ctx context.Context, entry *model.UserShowEntry) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_shows SET
		   rating = $2,
		   review = NULLIF($3, ''),
		   private_notes = NULLIF($4, ''),
		   contains_spoilers = $5,
		   updated_at = $6
		 WHERE id = $1`,
		entry.ID, nullFloat(entry.Rating), entry.Review, entry.PrivateNotes,
		entry.ContainsSpoilers, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update diary entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user show not found: %s", entry.ID)
	}
	return nil
}

// Delete は指定IDのエントリを削除する。
// activities.user_show_id はON DELETE SET NULLによりNULLになる。
func (r *PostgresUserShowRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_shows WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user show: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user show not found: %s", id)
	}
	return nil
}

// ListSeenByUser は観劇日付のある観劇済みエントリを観劇日降順で返す。
func (r *PostgresUserShowRepo) ListSeenByUser(ctx context.Context, userID string, date *time.Time) ([]*model.DiaryEntry, error) {
	query := `SELECT ` + userShowColumns + `, s.id, s.title, s.photo_url
		 FROM user_shows us
		 JOIN shows s ON s.id = us.show_id
		 WHERE us.user_id = $1 AND us.status = 'seen' AND us.date_seen IS NOT NULL`
	args := []any{userID}
	if date != nil {
		query += ` AND us.date_seen = $2::date`
		args = append(args, date.Format("2006-01-02"))
	}
	query += ` ORDER BY us.date_seen DESC, us.created_at DESC`

	return r.listDiary(ctx, query, args...)
}

// ListByUserAndStatus は指定状態のエントリを返す。
func (r *PostgresUserShowRepo) ListByUserAndStatus(ctx context.Context, userID string, status model.EntryStatus) ([]*model.DiaryEntry, error) {
	order := `us.created_at DESC`
	if status == model.EntryStatusSeen {
		order = `us.date_seen DESC NULLS LAST, us.created_at DESC`
	}
	query := `SELECT ` + userShowColumns + `, s.id, s.title, s.photo_url
		 FROM user_shows us
		 JOIN shows s ON s.id = us.show_id
		 WHERE us.user_id = $1 AND us.status = $2
		 ORDER BY ` + order

	return r.listDiary(ctx, query, userID, string(status))
}

func (r *PostgresUserShowRepo) listDiary(ctx context.Context, query string, args ...any) ([]*model.DiaryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list diary entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.DiaryEntry
	for rows.Next() {
		d := &model.DiaryEntry{}
		if err := scanUserShowInto(rows, &d.UserShowEntry, &d.Show.ID, &d.Show.Title, &d.Show.PhotoURL); err != nil {
			return nil, fmt.Errorf("failed to scan diary entry: %w", err)
		}
		entries = append(entries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate diary entries: %w", err)
	}
	return entries, nil
}

func scanUserShow(s rowScanner) (*model.UserShowEntry, error) {
	entry := &model.UserShowEntry{}
	if err := scanUserShowInto(s, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// scanUserShowInto はuserShowColumnsの列と追加の列をスキャンする。
func scanUserShowInto(s rowScanner, entry *model.UserShowEntry, extra ...any) error {
	var (
		status   string
		dateSeen sql.NullTime
		city     sql.NullString
		rating   sql.NullFloat64
		review   sql.NullString
		notes    sql.NullString
	)
	dest := []any{
		&entry.ID, &entry.UserID, &entry.ShowID, &status, &dateSeen, &city, &rating,
		&review, &notes, &entry.IsAnonymous, &entry.ContainsSpoilers, &entry.CreatedAt, &entry.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	entry.Status = model.EntryStatus(status)
	if dateSeen.Valid {
		d := dateSeen.Time
		entry.DateSeen = &d
	}
	entry.City = city.String
	if rating.Valid {
		v := rating.Float64
		entry.Rating = &v
	}
	entry.Review = review.String
	entry.PrivateNotes = notes.String
	return nil
}

// dateParam は日付をDATE列用の文字列に変換する。nilはNULL。
func dateParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// compile-time interface check
var _ UserShowRepository = (*PostgresUserShowRepo)(nil)
