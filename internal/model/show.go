// Package model はドメインモデルを定義する。
package model

import "time"

// Show はカタログに登録された演目を表す。
type Show struct {
	ID             string
	Title          string
	PhotoURL       string
	Description    string
	ApprovalStatus ApprovalStatus
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ApprovalStatus は演目の承認状態を表す。
type ApprovalStatus string

const (
	// ApprovalPending は承認待ちの状態。
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved は承認済みの状態。カタログに公開される。
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected は却下された状態。
	ApprovalRejected ApprovalStatus = "rejected"
)

// IsTerminal は遷移不可能な最終状態かどうかを返す。
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ShowSummary はフィードや日記に埋め込む演目の要約。
type ShowSummary struct {
	ID       string
	Title    string
	PhotoURL string
}
