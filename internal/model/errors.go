package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, diary, social, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeDuplicateTitle     = "DUPLICATE_TITLE"
	ErrCodeDuplicateEntry     = "DUPLICATE_ENTRY"
	ErrCodeDuplicateRequest   = "DUPLICATE_REQUEST"
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeShowNotFound       = "SHOW_NOT_FOUND"
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
	ErrCodeActivityNotFound   = "ACTIVITY_NOT_FOUND"
	ErrCodeFriendshipNotFound = "FRIENDSHIP_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeReviewNotFound     = "REVIEW_NOT_FOUND"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeImportFailed       = "IMPORT_FAILED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFInvalid        = "CSRF_TOKEN_INVALID"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s が不正です: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの形式が不正です。",
		Category: "validation",
		Action:   "JSON形式で送信してください。",
	}
}

// NewDuplicateTitleError は同名の演目が既に存在する場合のエラーを生成する。
func NewDuplicateTitleError(title string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTitle,
		Message:  fmt.Sprintf("同じタイトルの演目が既に登録されています: %s", title),
		Category: "catalog",
		Action:   "カタログを検索して既存の演目を利用してください。",
	}
}

// NewDuplicateEntryError は同じ演目の記録が既に存在する場合のエラーを生成する。
func NewDuplicateEntryError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEntry,
		Message:  "この演目は既に記録されています。",
		Category: "diary",
		Action:   "既存の記録を編集するか、削除してから登録し直してください。",
	}
}

// NewDuplicateRequestError は友達関係が既に存在する場合のエラーを生成する。
func NewDuplicateRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRequest,
		Message:  "このユーザーとの友達申請または友達関係が既に存在します。",
		Category: "social",
		Action:   "友達一覧または申請一覧を確認してください。",
	}
}

// NewAuthRequiredError は未認証エラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作は許可されていません: %s", reason),
		Category: "auth",
		Action:   "権限を持つユーザーで操作してください。",
	}
}

// NewShowNotFoundError は演目未検出エラーを生成する。
func NewShowNotFoundError(showID string) *APIError {
	return &APIError{
		Code:     ErrCodeShowNotFound,
		Message:  fmt.Sprintf("指定された演目が見つかりません: %s", showID),
		Category: "catalog",
		Action:   "演目IDを確認してください。",
	}
}

// NewEntryNotFoundError は日記エントリ未検出エラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定された記録が見つかりません: %s", entryID),
		Category: "diary",
		Action:   "記録IDを確認してください。",
	}
}

// NewActivityNotFoundError はアクティビティ未検出エラーを生成する。
func NewActivityNotFoundError(activityID string) *APIError {
	return &APIError{
		Code:     ErrCodeActivityNotFound,
		Message:  fmt.Sprintf("指定されたアクティビティが見つかりません: %s", activityID),
		Category: "social",
		Action:   "フィードを再読み込みしてください。",
	}
}

// NewFriendshipNotFoundError は友達関係未検出エラーを生成する。
func NewFriendshipNotFoundError(friendshipID string) *APIError {
	return &APIError{
		Code:     ErrCodeFriendshipNotFound,
		Message:  fmt.Sprintf("指定された友達関係が見つかりません: %s", friendshipID),
		Category: "social",
		Action:   "友達一覧を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", reviewID),
		Category: "catalog",
		Action:   "レビュー一覧を再読み込みしてください。",
	}
}

// NewInvalidTransitionError は状態遷移が許可されない場合のエラーを生成する。
func NewInvalidTransitionError(from, to string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("%s から %s への変更はできません。", from, to),
		Category: "validation",
		Action:   "現在の状態を確認してください。",
	}
}

// NewInvalidCredentialsError は認証情報の誤りを表すエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewImportFailedError はカタログ取り込み失敗エラーを生成する。
func NewImportFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImportFailed,
		Message:  fmt.Sprintf("フィードの取り込みに失敗しました: %s", reason),
		Category: "catalog",
		Action:   "URLが正しいRSS/Atomフィードか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
