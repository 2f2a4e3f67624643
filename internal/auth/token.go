package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/stagelog/internal/middleware"
	"github.com/hitoshi/stagelog/internal/model"
)

// accessClaims はSupabaseのアクセストークンのクレーム。
type accessClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// JWTVerifier はSupabaseのアクセストークン（HS256）を検証する。
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier はJWTVerifierを生成する。
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// VerifyToken は署名と有効期限を検証し、トークンが表すセッションを返す。
// セッションIDにはsession_idクレーム、無ければsubを使う。
func (v *JWTVerifier) VerifyToken(tokenString string) (*model.Session, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid access token: missing subject")
	}

	sessionID := claims.SessionID
	if sessionID == "" {
		sessionID = claims.Subject
	}
	session := &model.Session{
		ID:     sessionID,
		UserID: claims.Subject,
		Source: model.SessionSourceBearer,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time
	} else {
		session.CreatedAt = time.Now()
	}
	return session, nil
}

var _ middleware.TokenVerifier = (*JWTVerifier)(nil)
