package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/stockroom/internal/model"
)

// ClaimsExtractor はリクエストから識別情報の主張を取り出す。
type ClaimsExtractor interface {
	FromRequest(r *http.Request) (model.IdentityClaims, error)
}

// UserResolver は識別情報の主張からユーザーを解決する。
type UserResolver interface {
	Resolve(ctx context.Context, claims model.IdentityClaims) (*model.User, error)
}

// NewIdentityMiddleware はリクエストの識別情報からユーザーを解決し、
// コンテキストに注入するミドルウェアを返す。
// 主張の欠落や無効なトークン、無効化済みアカウントはerrsを通じてエラー応答する。
func NewIdentityMiddleware(extractor ClaimsExtractor, resolver UserResolver, errs *ErrorNormalizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractor.FromRequest(r)
			if err != nil {
				errs.Write(w, r, err)
				return
			}

			user, err := resolver.Resolve(r.Context(), claims)
			if err != nil {
				errs.Write(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}
