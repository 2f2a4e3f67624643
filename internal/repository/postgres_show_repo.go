package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/stagelog/internal/model"
)

// PostgresShowRepo はPostgreSQLを使用した演目カタログリポジトリ。
type PostgresShowRepo struct {
	db *sql.DB
}

// NewPostgresShowRepo はPostgresShowRepoを生成する。
func NewPostgresShowRepo(db *sql.DB) *PostgresShowRepo {
	return &PostgresShowRepo{db: db}
}

const showColumns = `id, title, photo_url, description, approval_status, created_by, created_at, updated_at`

// Create は演目を作成する。タイトル重複時はErrDuplicateを返す。
func (r *PostgresShowRepo) Create(ctx context.Context, show *model.Show) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shows (`+showColumns+`)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8)`,
		show.ID, show.Title, show.PhotoURL, show.Description, string(show.ApprovalStatus),
		show.CreatedBy, show.CreatedAt, show.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isMissingUser(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to create show: %w", err)
	}
	return nil
}

// FindByID は指定IDの演目を取得する。見つからない場合はnilを返す。
func (r *PostgresShowRepo) FindByID(ctx context.Context, id string) (*model.Show, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = $1`,
		id,
	)
	show, err := scanShow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find show by ID: %w", err)
	}
	return show, nil
}

// ListByStatus は指定状態の演目一覧を返す。
func (r *PostgresShowRepo) ListByStatus(ctx context.Context, status model.ApprovalStatus, search string) ([]*model.Show, error) {
	order := `created_at DESC`
	if status == model.ApprovalApproved {
		order = `title ASC`
	}

	query := `SELECT ` + showColumns + ` FROM shows WHERE approval_status = $1`
	args := []any{string(status)}
	if search != "" {
		query += ` AND title ILIKE '%' || $2 || '%'`
		args = append(args, escapeLike(search))
	}
	query += ` ORDER BY ` + order

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list shows: %w", err)
	}
	defer rows.Close()

	var shows []*model.Show
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan show: %w", err)
		}
		shows = append(shows, show)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shows: %w", err)
	}
	return shows, nil
}

// UpdateApprovalStatus は承認待ちの演目の状態を更新する。
// WHERE句で承認待ちに限定するため、同時に承認と却下が走っても一方のみ成功する。
func (r *PostgresShowRepo) UpdateApprovalStatus(ctx context.Context, id string, status model.ApprovalStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE shows SET approval_status = $2, updated_at = now()
		 WHERE id = $1 AND approval_status = 'pending'`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update approval status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShow(s rowScanner) (*model.Show, error) {
	show := &model.Show{}
	var status string
	var createdBy sql.NullString
	if err := s.Scan(
		&show.ID, &show.Title, &show.PhotoURL, &show.Description, &status,
		&createdBy, &show.CreatedAt, &show.UpdatedAt,
	); err != nil {
		return nil, err
	}
	show.ApprovalStatus = model.ApprovalStatus(status)
	show.CreatedBy = createdBy.String
	return show, nil
}

// compile-time interface check
var _ ShowRepository = (*PostgresShowRepo)(nil)
