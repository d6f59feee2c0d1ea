package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/stockroom/internal/model"
)

// MsgRateLimited はレート制限超過時のメッセージ。
const MsgRateLimited = "Too many requests from this IP, please try again in an hour!"

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Requests        int           // Window内に許可するリクエスト数（バーストサイズも兼ねる）
	Window          time.Duration // 補充の単位期間
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// クライアントIPごとに1時間あたり200リクエスト。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Requests:        200,
		Window:          time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// limit は1秒あたりの補充レートを返す。
func (c RateLimiterConfig) limit() rate.Limit {
	return rate.Limit(float64(c.Requests) / c.Window.Seconds())
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
type RateLimiter struct {
	config RateLimiterConfig
	errs   *ErrorNormalizer

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, errs *ErrorNormalizer) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		errs:     errs,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware はクライアントIPごとのレート制限ミドルウェアを返す。
// 超過時は429とRetry-Afterヘッダーを返す。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !rl.limiterFor(ip).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
				rl.errs.Write(w, r, model.NewRateLimitedError(MsgRateLimited))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// limiterFor はクライアントのリミッターを取得または作成する。
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok := rl.limiters[key]; ok {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(rl.config.limit(), rl.config.Requests)
	rl.limiters[key] = &clientLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

// retryAfterSeconds は1リクエスト分が補充されるまでの推定秒数を返す。
func (rl *RateLimiter) retryAfterSeconds() int {
	sec := int(math.Ceil(1.0 / float64(rl.config.limit())))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はWindowを超えてアクセスのないエントリを削除する。
// その時点でリミッターは満杯まで補充されているため、削除しても制限は緩まない。
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > rl.config.Window {
			delete(rl.limiters, key)
		}
	}
}

// clientIP は接続元IPを返す。プロキシヘッダーは信頼しない。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
