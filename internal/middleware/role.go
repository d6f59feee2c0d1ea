package middleware

import (
	"net/http"

	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/rbac"
)

// RequireRole は解決済みユーザーが指定ロールを持つ場合のみ後段へ進めるミドルウェアを返す。
// ID解決ミドルウェアの後に配置する。
func RequireRole(role model.Role, errs *ErrorNormalizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				errs.Write(w, r, model.NewAuthInputError("User ID and Email required"))
				return
			}
			if err := rbac.RequireRole(user, role); err != nil {
				errs.Write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
