package handler

import (
	"github.com/hitoshi/stagelog/internal/auth"
	"github.com/hitoshi/stagelog/internal/catalog"
	"github.com/hitoshi/stagelog/internal/diary"
	"github.com/hitoshi/stagelog/internal/engagement"
	"github.com/hitoshi/stagelog/internal/friendship"
	"github.com/hitoshi/stagelog/internal/middleware"
	"github.com/hitoshi/stagelog/internal/review"
)

// ドメインサービスはアダプタなしでハンドラーインターフェースを満たす。
// シグネチャがずれた場合はここでコンパイルエラーになる。

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*auth.Service)(nil)
var _ middleware.RoleChecker = (*auth.Service)(nil)
var _ middleware.TokenVerifier = (*auth.JWTVerifier)(nil)
var _ CatalogServiceInterface = (*catalog.Service)(nil)
var _ ImporterInterface = (*catalog.Importer)(nil)
var _ ReviewServiceInterface = (*review.Service)(nil)
var _ DiaryServiceInterface = (*diary.Service)(nil)
var _ EngagementServiceInterface = (*engagement.Service)(nil)
var _ FriendshipServiceInterface = (*friendship.Service)(nil)
