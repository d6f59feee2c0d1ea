// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/stockroom/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストに解決済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// logStateContextKey はアクセスログ用の可変状態を格納するためのキー。
	logStateContextKey = contextKey("log_state")
)

// UserFromContext はリクエストコンテキストから解決済みユーザーを取得する。
// ID解決ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if state, ok := ctx.Value(logStateContextKey).(*logState); ok {
		state.userID = user.ExternalID
	}
	return context.WithValue(ctx, userContextKey, user)
}

// logState はアクセスログミドルウェアが後段から受け取る情報。
type logState struct {
	userID string
}
