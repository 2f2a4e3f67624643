package model

import "time"

// FriendshipStatus は友達関係の状態を表す。
type FriendshipStatus string

const (
	// FriendshipPending は申請中。
	FriendshipPending FriendshipStatus = "pending"
	// FriendshipAccepted は承認済み。
	FriendshipAccepted FriendshipStatus = "accepted"
)

// Friendship は有向の友達関係エッジを表す。
// RequesterIDが申請者、AddresseeIDが申請先。
type Friendship struct {
	ID          string
	RequesterID string
	AddresseeID string
	Status      FriendshipStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Involves は指定ユーザーが当事者かどうかを返す。
func (f *Friendship) Involves(userID string) bool {
	return f.RequesterID == userID || f.AddresseeID == userID
}

// Counterpart は当事者から見た相手のユーザーIDを返す。
func (f *Friendship) Counterpart(userID string) string {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// Friend は友達関係エッジと相手ユーザーのプロフィールを結合したもの。
type Friend struct {
	FriendshipID string
	UserID       string
	Username     string
	Status       FriendshipStatus
	CreatedAt    time.Time
}
