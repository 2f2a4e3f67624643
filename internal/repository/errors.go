package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// ErrDuplicate はユニーク制約違反を表す。
// 呼び出し側はerrors.Isで判定し、ドメインごとの重複エラーに変換する。
var ErrDuplicate = errors.New("duplicate key")

// ErrUnknownUser は書き込み主体のユーザー行が存在しないことを表す。
// プロフィール未作成のBearerトークン利用者が該当する。
var ErrUnknownUser = errors.New("referenced user does not exist")

const (
	// pgUniqueViolation はPostgreSQLのunique_violationエラーコード。
	pgUniqueViolation = "23505"
	// pgForeignKeyViolation はPostgreSQLのforeign_key_violationエラーコード。
	pgForeignKeyViolation = "23503"
)

// isUniqueViolation はerrがユニーク制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

// isMissingUser はerrが書き込み主体（user_id/created_by）への外部キー違反かどうかを判定する。
// friend_idなど相手側ユーザーの欠落は対象外。
func isMissingUser(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgForeignKeyViolation {
		return false
	}
	return strings.HasSuffix(pqErr.Constraint, "_user_id_fkey") ||
		strings.HasSuffix(pqErr.Constraint, "_created_by_fkey")
}

// escapeLike はLIKE/ILIKEパターン中のワイルドカードをエスケープする。
func escapeLike(s string) string {
	var b []rune
	for _, r := range s {
		switch r {
		case '\\', '%', '_':
			b = append(b, '\\')
		}
		b = append(b, r)
	}
	return string(b)
}
