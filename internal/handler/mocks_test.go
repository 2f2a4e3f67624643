package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/stagelog/internal/catalog"
	"github.com/hitoshi/stagelog/internal/diary"
	"github.com/hitoshi/stagelog/internal/engagement"
	"github.com/hitoshi/stagelog/internal/middleware"
	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/review"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signUpFn               func(ctx context.Context, email, password, username string) (*model.User, error)
	signInFn               func(ctx context.Context, email, password string) (*model.Session, error)
	signOutFn              func(ctx context.Context, sessionID string) error
	requestPasswordResetFn func(ctx context.Context, email string) error
	updatePasswordFn       func(ctx context.Context, accessToken, newPassword string) error
	currentUserFn          func(ctx context.Context, userID string) (*model.User, error)
	isAdminFn              func(ctx context.Context, userID string) (bool, error)
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password, username string) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, username)
	}
	return &model.User{}, nil
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return &model.Session{}, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.requestPasswordResetFn != nil {
		return m.requestPasswordResetFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, accessToken, newPassword)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockAuthService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if m.isAdminFn != nil {
		return m.isAdminFn(ctx, userID)
	}
	return false, nil
}

// mockCatalogService はCatalogServiceInterfaceのモック実装。
type mockCatalogService struct {
	submitShowFn        func(ctx context.Context, in catalog.SubmitShowInput, submitterID string) (*model.Show, error)
	approveShowFn       func(ctx context.Context, showID string) (*model.Show, error)
	rejectShowFn        func(ctx context.Context, showID string) (*model.Show, error)
	listApprovedShowsFn func(ctx context.Context, search string) ([]*model.Show, error)
	listPendingShowsFn  func(ctx context.Context) ([]*model.Show, error)
	getShowFn           func(ctx context.Context, viewerID, showID string) (*model.Show, error)
}

func (m *mockCatalogService) SubmitShow(ctx context.Context, in catalog.SubmitShowInput, submitterID string) (*model.Show, error) {
	if m.submitShowFn != nil {
		return m.submitShowFn(ctx, in, submitterID)
	}
	return &model.Show{Title: in.Title, ApprovalStatus: model.ApprovalPending}, nil
}

func (m *mockCatalogService) ApproveShow(ctx context.Context, showID string) (*model.Show, error) {
	if m.approveShowFn != nil {
		return m.approveShowFn(ctx, showID)
	}
	return &model.Show{ID: showID, ApprovalStatus: model.ApprovalApproved}, nil
}

func (m *mockCatalogService) RejectShow(ctx context.Context, showID string) (*model.Show, error) {
	if m.rejectShowFn != nil {
		return m.rejectShowFn(ctx, showID)
	}
	return &model.Show{ID: showID, ApprovalStatus: model.ApprovalRejected}, nil
}

func (m *mockCatalogService) ListApprovedShows(ctx context.Context, search string) ([]*model.Show, error) {
	if m.listApprovedShowsFn != nil {
		return m.listApprovedShowsFn(ctx, search)
	}
	return []*model.Show{}, nil
}

func (m *mockCatalogService) ListPendingShows(ctx context.Context) ([]*model.Show, error) {
	if m.listPendingShowsFn != nil {
		return m.listPendingShowsFn(ctx)
	}
	return []*model.Show{}, nil
}

func (m *mockCatalogService) GetShow(ctx context.Context, viewerID, showID string) (*model.Show, error) {
	if m.getShowFn != nil {
		return m.getShowFn(ctx, viewerID, showID)
	}
	return &model.Show{ID: showID, ApprovalStatus: model.ApprovalApproved}, nil
}

// mockImporter はImporterInterfaceのモック実装。
type mockImporter struct {
	importFeedFn func(ctx context.Context, feedURL, adminID string) (*catalog.ImportResult, error)
}

func (m *mockImporter) ImportFeed(ctx context.Context, feedURL, adminID string) (*catalog.ImportResult, error) {
	if m.importFeedFn != nil {
		return m.importFeedFn(ctx, feedURL, adminID)
	}
	return &catalog.ImportResult{}, nil
}

// mockReviewService はReviewServiceInterfaceのモック実装。
type mockReviewService struct {
	getReviewsForShowFn func(ctx context.Context, sessionID, showID, city string) (*review.ReviewPage, error)
	averageRatingFn     func(ctx context.Context, showID string) (model.RatingSummary, error)
	toggleRevealFn      func(ctx context.Context, sessionID, reviewID string) (review.Presented, error)
}

func (m *mockReviewService) GetReviewsForShow(ctx context.Context, sessionID, showID, city string) (*review.ReviewPage, error) {
	if m.getReviewsForShowFn != nil {
		return m.getReviewsForShowFn(ctx, sessionID, showID, city)
	}
	return &review.ReviewPage{}, nil
}

func (m *mockReviewService) AverageRating(ctx context.Context, showID string) (model.RatingSummary, error) {
	if m.averageRatingFn != nil {
		return m.averageRatingFn(ctx, showID)
	}
	return model.RatingSummary{}, nil
}

func (m *mockReviewService) ToggleReveal(ctx context.Context, sessionID, reviewID string) (review.Presented, error) {
	if m.toggleRevealFn != nil {
		return m.toggleRevealFn(ctx, sessionID, reviewID)
	}
	return review.Presented{ID: reviewID}, nil
}

// mockDiaryService はDiaryServiceInterfaceのモック実装。
type mockDiaryService struct {
	markSeenFn         func(ctx context.Context, userID, showID string, in diary.MarkSeenInput) (*model.UserShowEntry, error)
	markWantToSeeFn    func(ctx context.Context, userID, showID string) (*model.UserShowEntry, error)
	updateDiaryEntryFn func(ctx context.Context, userID, entryID string, in diary.UpdateDiaryInput) (*model.UserShowEntry, error)
	deleteDiaryEntryFn func(ctx context.Context, userID, entryID string) error
	listDiaryFn        func(ctx context.Context, userID string, date *time.Time) ([]*model.DiaryEntry, error)
	listMyShowsFn      func(ctx context.Context, userID string, status model.EntryStatus) ([]*model.DiaryEntry, error)
}

func (m *mockDiaryService) MarkSeen(ctx context.Context, userID, showID string, in diary.MarkSeenInput) (*model.UserShowEntry, error) {
	if m.markSeenFn != nil {
		return m.markSeenFn(ctx, userID, showID, in)
	}
	return &model.UserShowEntry{UserID: userID, ShowID: showID, Status: model.EntryStatusSeen}, nil
}

func (m *mockDiaryService) MarkWantToSee(ctx context.Context, userID, showID string) (*model.UserShowEntry, error) {
	if m.markWantToSeeFn != nil {
		return m.markWantToSeeFn(ctx, userID, showID)
	}
	return &model.UserShowEntry{UserID: userID, ShowID: showID, Status: model.EntryStatusWantToSee}, nil
}

func (m *mockDiaryService) UpdateDiaryEntry(ctx context.Context, userID, entryID string, in diary.UpdateDiaryInput) (*model.UserShowEntry, error) {
	if m.updateDiaryEntryFn != nil {
		return m.updateDiaryEntryFn(ctx, userID, entryID, in)
	}
	return &model.UserShowEntry{ID: entryID, UserID: userID, Status: model.EntryStatusSeen}, nil
}

func (m *mockDiaryService) DeleteDiaryEntry(ctx context.Context, userID, entryID string) error {
	if m.deleteDiaryEntryFn != nil {
		return m.deleteDiaryEntryFn(ctx, userID, entryID)
	}
	return nil
}

func (m *mockDiaryService) ListDiary(ctx context.Context, userID string, date *time.Time) ([]*model.DiaryEntry, error) {
	if m.listDiaryFn != nil {
		return m.listDiaryFn(ctx, userID, date)
	}
	return []*model.DiaryEntry{}, nil
}

func (m *mockDiaryService) ListMyShows(ctx context.Context, userID string, status model.EntryStatus) ([]*model.DiaryEntry, error) {
	if m.listMyShowsFn != nil {
		return m.listMyShowsFn(ctx, userID, status)
	}
	return []*model.DiaryEntry{}, nil
}

// mockEngagementService はEngagementServiceInterfaceのモック実装。
type mockEngagementService struct {
	listRecentActivityFn func(ctx context.Context, viewerID string, q engagement.FeedQuery) ([]*model.FeedItem, error)
	reactFn              func(ctx context.Context, activityID, userID string, reactionType model.ReactionType) (*engagement.ReactResult, error)
	reactionCountsFn     func(ctx context.Context, activityID string) (model.ReactionCounts, error)
	commentFn            func(ctx context.Context, activityID, userID, text string) (*model.Comment, error)
	listCommentsFn       func(ctx context.Context, activityID string) ([]*model.Comment, error)
}

func (m *mockEngagementService) ListRecentActivity(ctx context.Context, viewerID string, q engagement.FeedQuery) ([]*model.FeedItem, error) {
	if m.listRecentActivityFn != nil {
		return m.listRecentActivityFn(ctx, viewerID, q)
	}
	return []*model.FeedItem{}, nil
}

func (m *mockEngagementService) React(ctx context.Context, activityID, userID string, reactionType model.ReactionType) (*engagement.ReactResult, error) {
	if m.reactFn != nil {
		return m.reactFn(ctx, activityID, userID, reactionType)
	}
	return &engagement.ReactResult{}, nil
}

func (m *mockEngagementService) ReactionCounts(ctx context.Context, activityID string) (model.ReactionCounts, error) {
	if m.reactionCountsFn != nil {
		return m.reactionCountsFn(ctx, activityID)
	}
	return model.ReactionCounts{}, nil
}

func (m *mockEngagementService) Comment(ctx context.Context, activityID, userID, text string) (*model.Comment, error) {
	if m.commentFn != nil {
		return m.commentFn(ctx, activityID, userID, text)
	}
	return &model.Comment{ActivityID: activityID, UserID: userID, CommentText: text}, nil
}

func (m *mockEngagementService) ListComments(ctx context.Context, activityID string) ([]*model.Comment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, activityID)
	}
	return []*model.Comment{}, nil
}

// mockFriendshipService はFriendshipServiceInterfaceのモック実装。
type mockFriendshipService struct {
	sendRequestFn          func(ctx context.Context, fromUserID, toUserID string) (*model.Friendship, error)
	acceptRequestFn        func(ctx context.Context, callerID, friendshipID string) (*model.Friendship, error)
	rejectRequestFn        func(ctx context.Context, callerID, friendshipID string) error
	removeFriendFn         func(ctx context.Context, callerID, friendshipID string) error
	listFriendsFn          func(ctx context.Context, userID string) ([]*model.Friend, error)
	listIncomingRequestsFn func(ctx context.Context, userID string) ([]*model.Friend, error)
	listOutgoingRequestsFn func(ctx context.Context, userID string) ([]*model.Friend, error)
	searchUsersFn          func(ctx context.Context, query, excludeUserID string) ([]*model.User, error)
}

func (m *mockFriendshipService) SendRequest(ctx context.Context, fromUserID, toUserID string) (*model.Friendship, error) {
	if m.sendRequestFn != nil {
		return m.sendRequestFn(ctx, fromUserID, toUserID)
	}
	return &model.Friendship{RequesterID: fromUserID, AddresseeID: toUserID, Status: model.FriendshipPending}, nil
}

func (m *mockFriendshipService) AcceptRequest(ctx context.Context, callerID, friendshipID string) (*model.Friendship, error) {
	if m.acceptRequestFn != nil {
		return m.acceptRequestFn(ctx, callerID, friendshipID)
	}
	return &model.Friendship{ID: friendshipID, AddresseeID: callerID, Status: model.FriendshipAccepted}, nil
}

func (m *mockFriendshipService) RejectRequest(ctx context.Context, callerID, friendshipID string) error {
	if m.rejectRequestFn != nil {
		return m.rejectRequestFn(ctx, callerID, friendshipID)
	}
	return nil
}

func (m *mockFriendshipService) RemoveFriend(ctx context.Context, callerID, friendshipID string) error {
	if m.removeFriendFn != nil {
		return m.removeFriendFn(ctx, callerID, friendshipID)
	}
	return nil
}

func (m *mockFriendshipService) ListFriends(ctx context.Context, userID string) ([]*model.Friend, error) {
	if m.listFriendsFn != nil {
		return m.listFriendsFn(ctx, userID)
	}
	return []*model.Friend{}, nil
}

func (m *mockFriendshipService) ListIncomingRequests(ctx context.Context, userID string) ([]*model.Friend, error) {
	if m.listIncomingRequestsFn != nil {
		return m.listIncomingRequestsFn(ctx, userID)
	}
	return []*model.Friend{}, nil
}

func (m *mockFriendshipService) ListOutgoingRequests(ctx context.Context, userID string) ([]*model.Friend, error) {
	if m.listOutgoingRequestsFn != nil {
		return m.listOutgoingRequestsFn(ctx, userID)
	}
	return []*model.Friend{}, nil
}

func (m *mockFriendshipService) SearchUsers(ctx context.Context, query, excludeUserID string) ([]*model.User, error) {
	if m.searchUsersFn != nil {
		return m.searchUsersFn(ctx, query, excludeUserID)
	}
	return []*model.User{}, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withSession はテスト用にリクエストコンテキストにセッションを注入するヘルパー。
func withSession(r *http.Request, sessionID, userID string) *http.Request {
	ctx := middleware.ContextWithSession(r.Context(), &model.Session{ID: sessionID, UserID: userID})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディを任意の型にデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// assertErrorCode はステータスコードとエラーコードを検証するヘルパー。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d", w.Code, wantStatus)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != wantCode {
		t.Errorf("code = %q, want %q", body["code"], wantCode)
	}
}

func floatPtr(f float64) *float64 { return &f }
