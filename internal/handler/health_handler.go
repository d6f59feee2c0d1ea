package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker はデータベースの疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthPingTimeout はヘルスチェック時のDB疎通確認の上限時間。
const healthPingTimeout = 2 * time.Second

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db  HealthChecker
	now func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。dbがnilの場合はDisconnectedとして扱う。
func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now}
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// Check はプロセスとDBの状態を返す。DBに接続できない場合は503。
// GET /api/health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Database:  "Connected",
	}
	status := http.StatusOK

	if h.db == nil {
		resp.Database = "Disconnected"
		status = http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Database = "Disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
