package auth

import (
	"context"
	"fmt"
	"strings"

	supabaseauth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

// SupabaseProvider はSupabase Authを使うIdentityProvider実装。
type SupabaseProvider struct {
	client supabaseauth.Client
}

// NewSupabaseProvider はSupabaseProviderを生成する。
// projectURLはhttps://<ref>.supabase.coの形式で、/auth/v1を付けて使う。
func NewSupabaseProvider(projectURL, anonKey string) *SupabaseProvider {
	client := supabaseauth.New("", anonKey).
		WithCustomAuthURL(strings.TrimRight(projectURL, "/") + "/auth/v1")
	return &SupabaseProvider{client: client}
}

// SignUp はSupabaseにユーザーを登録する。ユーザー名はuser_metadataにも保存する。
// auth-goはcontextを受け取らないため、ctxはキャンセル確認のみに使う。
func (p *SupabaseProvider) SignUp(ctx context.Context, email, password, username string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     map[string]interface{}{"username": username},
	})
	if err != nil {
		return nil, fmt.Errorf("supabase signup failed: %w", err)
	}
	return &Identity{
		UserID:      resp.User.ID.String(),
		Email:       resp.User.Email,
		AccessToken: resp.AccessToken,
	}, nil
}

// SignIn はパスワードグラントでトークンを取得する。
// Supabaseは資格情報の誤りと未確認メールを区別せず4xxで返すため、4xxは全てErrInvalidCredentialsとする。
func (p *SupabaseProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.client.SignInWithEmailPassword(email, password)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("supabase sign in failed: %w", err)
	}
	return &Identity{
		UserID:      resp.User.ID.String(),
		Email:       resp.User.Email,
		AccessToken: resp.AccessToken,
	}, nil
}

// SendPasswordReset はパスワード再設定メールを送る。
func (p *SupabaseProvider) SendPasswordReset(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.Recover(types.RecoverRequest{Email: email}); err != nil {
		return fmt.Errorf("supabase recover failed: %w", err)
	}
	return nil
}

// UpdatePassword はアクセストークンの持ち主のパスワードを変更する。
func (p *SupabaseProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.client.WithToken(accessToken).UpdateUser(types.UpdateUserRequest{
		Password: &newPassword,
	})
	if err != nil {
		if isClientError(err) {
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return fmt.Errorf("supabase update user failed: %w", err)
	}
	return nil
}

// isClientError はauth-goのエラーが4xx応答によるものかを判定する。
// auth-goはステータスコードをエラーメッセージにのみ含める。
func isClientError(err error) bool {
	return strings.Contains(err.Error(), "response status code 4")
}

var _ IdentityProvider = (*SupabaseProvider)(nil)
