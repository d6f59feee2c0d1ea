package middleware

import (
	"net/http"
	"strings"

	"github.com/hitoshi/stockroom/internal/auth"
)

// corsAllowHeaders はブラウザからの送信を許可するリクエストヘッダー。識別情報ヘッダーを含む。
var corsAllowHeaders = strings.Join([]string{
	"Content-Type",
	"Authorization",
	auth.HeaderUserID,
	auth.HeaderUserEmail,
	auth.HeaderUserFirstName,
	auth.HeaderUserLastName,
	auth.HeaderUserProfileImage,
}, ", ")

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// ワイルドカード(*)の場合は資格情報付きリクエストを許可しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			if allowedOrigin != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
