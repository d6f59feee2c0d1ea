package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	pkgerrors "github.com/pkg/errors"
)

// NewRecoveryMiddleware はハンドラー内のpanicを回収して500を返すミドルウェアを生成する。
// 応答後にonFatalを呼び出す。呼び出し側はこれを受けてプロセスを停止する。
// http.ErrAbortHandlerは接続中断の合図なので再度panicさせる。
func NewRecoveryMiddleware(errs *ErrorNormalizer, onFatal func(rec any)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				errs.Write(w, r, pkgerrors.Errorf("panic: %v", rec))

				if onFatal != nil {
					onFatal(rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
