package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/hitoshi/stagelog/internal/database"
	"github.com/hitoshi/stagelog/internal/model"
)

// setupIntegrationDB はテスト用データベースにマイグレーションを適用して返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func setupIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	cleanupSQL := `
		DROP VIEW IF EXISTS public_reviews;
		DROP TABLE IF EXISTS friendships, comments, reactions, activities, user_shows,
			shows, sessions, user_roles, users, schema_migrations CASCADE;
	`
	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, username string) *model.User {
	t.Helper()
	now := time.Now()
	u := &model.User{ID: uuid.NewString(), Email: username + "@example.com", Username: username, CreatedAt: now, UpdatedAt: now}
	if err := NewPostgresUserRepo(db).Upsert(context.Background(), u); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	return u
}

func createTestShow(t *testing.T, db *sql.DB, title string, status model.ApprovalStatus, createdBy string) *model.Show {
	t.Helper()
	now := time.Now()
	s := &model.Show{
		ID: uuid.NewString(), Title: title, PhotoURL: "https://example.com/p.jpg",
		ApprovalStatus: status, CreatedBy: createdBy, CreatedAt: now, UpdatedAt: now,
	}
	if err := NewPostgresShowRepo(db).Create(context.Background(), s); err != nil {
		t.Fatalf("演目作成に失敗: %v", err)
	}
	return s
}

func createSeenEntry(t *testing.T, db *sql.DB, userID, showID string, rating *float64, review string, anonymous bool) (*model.UserShowEntry, *model.Activity) {
	t.Helper()
	now := time.Now()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	entry := &model.UserShowEntry{
		ID: uuid.NewString(), UserID: userID, ShowID: showID, Status: model.EntryStatusSeen,
		DateSeen: &date, City: "London", Rating: rating, Review: review, PrivateNotes: "secret",
		IsAnonymous: anonymous, CreatedAt: now, UpdatedAt: now,
	}
	activityType := model.ActivityTypeSeen
	if review != "" {
		activityType = model.ActivityTypeReview
	}
	activity := &model.Activity{
		ID: uuid.NewString(), UserID: userID, ShowID: showID, ActivityType: activityType,
		UserShowID: &entry.ID, CreatedAt: now,
	}
	if err := NewPostgresUserShowRepo(db).CreateWithActivity(context.Background(), entry, activity); err != nil {
		t.Fatalf("エントリ作成に失敗: %v", err)
	}
	return entry, activity
}

func ptrFloat(v float64) *float64 { return &v }

func TestIntegration_ShowTitleUnique(t *testing.T) {
	db := setupIntegrationDB(t)
	u := createTestUser(t, db, "alice")
	createTestShow(t, db, "Hamilton", model.ApprovalPending, u.ID)

	now := time.Now()
	dup := &model.Show{ID: uuid.NewString(), Title: "Hamilton", PhotoURL: "https://x", ApprovalStatus: model.ApprovalPending, CreatedAt: now, UpdatedAt: now}
	err := NewPostgresShowRepo(db).Create(context.Background(), dup)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// 大文字小文字が異なるタイトルは別の演目として登録できる
	lower := &model.Show{ID: uuid.NewString(), Title: "hamilton", PhotoURL: "https://x", ApprovalStatus: model.ApprovalPending, CreatedAt: now, UpdatedAt: now}
	if err := NewPostgresShowRepo(db).Create(context.Background(), lower); err != nil {
		t.Fatalf("case-different title should be accepted: %v", err)
	}
}

func TestIntegration_UpdateApprovalStatus_OnlyFromPending(t *testing.T) {
	db := setupIntegrationDB(t)
	repo := NewPostgresShowRepo(db)
	show := createTestShow(t, db, "Cats", model.ApprovalPending, "")

	ok, err := repo.UpdateApprovalStatus(context.Background(), show.ID, model.ApprovalApproved)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateApprovalStatus(context.Background(), show.ID, model.ApprovalRejected)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("approved show must not transition again")
	}

	shows, err := repo.ListByStatus(context.Background(), model.ApprovalApproved, "at")
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(shows) != 1 || shows[0].Title != "Cats" {
		t.Errorf("ListByStatus returned %+v", shows)
	}
}

func TestIntegration_CreateWithActivity_DuplicateEntry(t *testing.T) {
	db := setupIntegrationDB(t)
	u := createTestUser(t, db, "bob")
	show := createTestShow(t, db, "Wicked", model.ApprovalApproved, "")
	createSeenEntry(t, db, u.ID, show.ID, nil, "", false)

	now := time.Now()
	entry := &model.UserShowEntry{ID: uuid.NewString(), UserID: u.ID, ShowID: show.ID, Status: model.EntryStatusWantToSee, CreatedAt: now, UpdatedAt: now}
	activity := &model.Activity{ID: uuid.NewString(), UserID: u.ID, ShowID: show.ID, ActivityType: model.ActivityTypeWantToSee, UserShowID: &entry.ID, CreatedAt: now}
	err := NewPostgresUserShowRepo(db).CreateWithActivity(context.Background(), entry, activity)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// 失敗したトランザクションのアクティビティは残らない
	found, err := NewPostgresActivityRepo(db).FindByID(context.Background(), activity.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found != nil {
		t.Error("activity from rolled-back transaction must not exist")
	}
}

func TestIntegration_DeleteEntry_KeepsActivityReactionsComments(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "carol")
	other := createTestUser(t, db, "dave")
	show := createTestShow(t, db, "Les Mis", model.ApprovalApproved, "")
	entry, activity := createSeenEntry(t, db, u.ID, show.ID, ptrFloat(4), "Moving", false)

	now := time.Now()
	if err := NewPostgresReactionRepo(db).Replace(ctx, activity.ID, other.ID, &model.Reaction{
		ID: uuid.NewString(), ActivityID: activity.ID, UserID: other.ID, ReactionType: model.ReactionClap, CreatedAt: now,
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := NewPostgresCommentRepo(db).Create(ctx, &model.Comment{
		ID: uuid.NewString(), ActivityID: activity.ID, UserID: other.ID, CommentText: "Agreed", CreatedAt: now,
	}); err != nil {
		t.Fatalf("Create comment: %v", err)
	}

	if err := NewPostgresUserShowRepo(db).Delete(ctx, entry.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := NewPostgresActivityRepo(db).FindByID(ctx, activity.ID)
	if err != nil || got == nil {
		t.Fatalf("activity should survive: got=%v err=%v", got, err)
	}
	if got.UserShowID != nil {
		t.Errorf("UserShowID = %v, want nil", *got.UserShowID)
	}

	counts, err := NewPostgresReactionRepo(db).CountByActivity(ctx, activity.ID)
	if err != nil {
		t.Fatalf("CountByActivity: %v", err)
	}
	if counts.Clap != 1 {
		t.Errorf("Clap = %d, want 1", counts.Clap)
	}
	comments, err := NewPostgresCommentRepo(db).ListByActivity(ctx, activity.ID)
	if err != nil {
		t.Fatalf("ListByActivity: %v", err)
	}
	if len(comments) != 1 || comments[0].Username != "dave" {
		t.Errorf("comments = %+v", comments)
	}

	rows, err := NewPostgresActivityRepo(db).ListRecent(ctx, 50, nil)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(rows) != 1 || rows[0].EntryReview != nil {
		t.Errorf("feed row for orphaned activity should have no entry fields: %+v", rows)
	}
}

func TestIntegration_PublicReviews_AnonymityAndNotes(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	named := createTestUser(t, db, "erin")
	anon := createTestUser(t, db, "frank")
	show := createTestShow(t, db, "Company", model.ApprovalApproved, "")
	createSeenEntry(t, db, named.ID, show.ID, ptrFloat(3), "Fine", false)
	createSeenEntry(t, db, anon.ID, show.ID, ptrFloat(5), "Superb", true)

	reviews, err := NewPostgresReviewRepo(db).ListByShow(ctx, show.ID, "")
	if err != nil {
		t.Fatalf("ListByShow: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("len(reviews) = %d, want 2", len(reviews))
	}
	for _, rv := range reviews {
		if rv.IsAnonymous && (rv.Username != "" || rv.UserID != "") {
			t.Errorf("anonymous row leaks identity: %+v", rv)
		}
	}

	ratings, err := NewPostgresReviewRepo(db).ListRatings(ctx, show.ID)
	if err != nil {
		t.Fatalf("ListRatings: %v", err)
	}
	if len(ratings) != 2 {
		t.Errorf("len(ratings) = %d, want 2", len(ratings))
	}

	var hasNotes bool
	err = db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'public_reviews' AND column_name = 'private_notes')`).Scan(&hasNotes)
	if err != nil {
		t.Fatalf("column query: %v", err)
	}
	if hasNotes {
		t.Error("public_reviews must not expose private_notes")
	}
}

func TestIntegration_Friendship_FindBetweenEitherDirection(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "gina")
	b := createTestUser(t, db, "hank")
	repo := NewPostgresFriendshipRepo(db)

	now := time.Now()
	f := &model.Friendship{ID: uuid.NewString(), RequesterID: a.ID, AddresseeID: b.ID, Status: model.FriendshipPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, f); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindBetween(ctx, b.ID, a.ID)
	if err != nil || got == nil || got.ID != f.ID {
		t.Fatalf("FindBetween reverse: got=%v err=%v", got, err)
	}

	ok, err := repo.UpdateStatus(ctx, f.ID, model.FriendshipPending, model.FriendshipAccepted)
	if err != nil || !ok {
		t.Fatalf("UpdateStatus: ok=%v err=%v", ok, err)
	}
	friends, err := repo.ListAccepted(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListAccepted: %v", err)
	}
	if len(friends) != 1 || friends[0].UserID != a.ID {
		t.Errorf("friends = %+v", friends)
	}
}

func TestIntegration_Friendship_ReverseCreateIsDuplicate(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ivy")
	b := createTestUser(t, db, "jack")
	repo := NewPostgresFriendshipRepo(db)

	now := time.Now()
	forward := &model.Friendship{ID: uuid.NewString(), RequesterID: a.ID, AddresseeID: b.ID, Status: model.FriendshipPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, forward); err != nil {
		t.Fatalf("Create forward: %v", err)
	}

	reverse := &model.Friendship{ID: uuid.NewString(), RequesterID: b.ID, AddresseeID: a.ID, Status: model.FriendshipPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, reverse); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create reverse err = %v, want ErrDuplicate", err)
	}
}

func TestIntegration_Sessions_ExpiryAndCleanup(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	repo := NewPostgresSessionRepo(db)
	u := createTestUser(t, db, "sleepy")

	now := time.Now()
	live := &model.Session{ID: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := repo.Create(ctx, live); err != nil {
		t.Fatalf("セッション作成に失敗: %v", err)
	}
	for i := 0; i < 3; i++ {
		expired := &model.Session{ID: uuid.NewString(), UserID: u.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)}
		if err := repo.Create(ctx, expired); err != nil {
			t.Fatalf("期限切れセッション作成に失敗: %v", err)
		}
	}

	got, err := repo.FindByID(ctx, "live")
	if err != nil || got == nil {
		t.Fatalf("FindByID(live) = %v, %v", got, err)
	}
	if got.Source != model.SessionSourceCookie || got.UserID != u.ID {
		t.Errorf("session = %+v, want cookie session of %s", got, u.ID)
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}

	if err := repo.DeleteByID(ctx, "live"); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if got, _ := repo.FindByID(ctx, "live"); got != nil {
		t.Errorf("session should be gone after DeleteByID, got %+v", got)
	}
}

func TestIntegration_Friendship_CreateByUnknownUser(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	b := createTestUser(t, db, "kate")
	repo := NewPostgresFriendshipRepo(db)

	now := time.Now()
	f := &model.Friendship{ID: uuid.NewString(), RequesterID: uuid.NewString(), AddresseeID: b.ID, Status: model.FriendshipPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, f); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Create err = %v, want ErrUnknownUser", err)
	}
}
