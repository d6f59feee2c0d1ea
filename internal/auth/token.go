// Package auth はリクエストから識別情報の主張を取り出す。
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/stockroom/internal/model"
)

// 資格情報エラーのメッセージ
const (
	MsgInvalidToken = "Invalid token, please log in again !"
	MsgExpiredToken = "Your token has expired, please log in again !"
)

// TokenClaims はBearerトークンに含まれる識別情報。
// subが外部ID、emailがメールアドレスになる。
type TokenClaims struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier はHS256で署名されたBearerトークンを検証する。
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify はトークンを検証して識別情報を返す。
// 検証に失敗した場合は原因のjwtエラーを包んだCredentialErrorを返す。
func (v *TokenVerifier) Verify(tokenString string) (model.IdentityClaims, error) {
	claims := &TokenClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.IdentityClaims{}, model.NewCredentialError(MsgExpiredToken, err)
		}
		return model.IdentityClaims{}, model.NewCredentialError(MsgInvalidToken, err)
	}
	if claims.Subject == "" {
		return model.IdentityClaims{}, model.NewCredentialError(MsgInvalidToken,
			fmt.Errorf("%w: missing subject", jwt.ErrTokenInvalidClaims))
	}

	return model.IdentityClaims{
		ExternalID:   claims.Subject,
		Email:        claims.Email,
		FirstName:    claims.GivenName,
		LastName:     claims.FamilyName,
		ProfileImage: claims.Picture,
	}, nil
}

// Sign はクレームに署名したトークンを生成する。
func (v *TokenVerifier) Sign(claims TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
