package model

import "time"

// EntryStatus はユーザーと演目の関係状態を表す。
type EntryStatus string

const (
	// EntryStatusSeen は観劇済み。
	EntryStatusSeen EntryStatus = "seen"
	// EntryStatusWantToSee は観たい。
	EntryStatusWantToSee EntryStatus = "want_to_see"
)

// Valid は定義済みの状態かどうかを返す。
func (s EntryStatus) Valid() bool {
	return s == EntryStatusSeen || s == EntryStatusWantToSee
}

// UserShowEntry はユーザーごとの演目記録（日記エントリ）を表す。
// (UserID, ShowID) の組はユニーク。
type UserShowEntry struct {
	ID               string
	UserID           string
	ShowID           string
	Status           EntryStatus
	DateSeen         *time.Time
	City             string
	Rating           *float64 // nilは未評価
	Review           string
	PrivateNotes     string // 本人以外には返さない
	IsAnonymous      bool
	ContainsSpoilers bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DiaryEntry は演目の要約を結合した日記エントリ。
type DiaryEntry struct {
	UserShowEntry
	Show ShowSummary
}
