package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/stockroom/internal/auth"
	"github.com/hitoshi/stockroom/internal/middleware"
	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/user"
)

// IdentitySyncer はIdPとの同期でユーザーを作成・更新する。
type IdentitySyncer interface {
	Sync(ctx context.Context, claims model.IdentityClaims) (*model.User, error)
}

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context, params user.ListParams) (*user.Page, error)
	Get(ctx context.Context, caller *model.User, id string) (*model.User, error)
	UpdateRole(ctx context.Context, id string, role string) (*model.User, error)
	Deactivate(ctx context.Context, caller *model.User, id string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	syncer  IdentitySyncer
	service UserServiceInterface
	errs    *middleware.ErrorNormalizer
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(syncer IdentitySyncer, service UserServiceInterface, errs *middleware.ErrorNormalizer) *UserHandler {
	return &UserHandler{
		syncer:  syncer,
		service: service,
		errs:    errs,
	}
}

// updateRoleRequest はロール変更リクエストのボディ。
type updateRoleRequest struct {
	Role string `json:"role"`
}

// Sync はIdPのユーザー情報をボディから受け取り、作成または更新する。
// POST /api/users/sync
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	req, err := auth.DecodeSyncRequest(r)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	u, err := h.syncer.Sync(r.Context(), req.Claims())
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toSyncedUserResponse(u),
	})
}

// Me は呼び出し元自身のプロフィールを返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserProfileResponse(caller))
}

// GetUser はユーザーのプロフィールを返す。管理者以外は自分自身のみ。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserProfileResponse(u))
}

// ListUsers は有効なユーザーをページ単位で返す。
// GET /api/users?page=&limit=&search=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// 数値でない値は0として既定値に任せる
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.service.List(r.Context(), user.ListParams{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	users := make([]userSummaryResponse, 0, len(result.Users))
	for _, u := range result.Users {
		users = append(users, toUserSummaryResponse(u))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":       users,
		"totalPages":  result.TotalPages,
		"currentPage": result.CurrentPage,
		"total":       result.Total,
	})
}

// UpdateRole はユーザーのロールを変更する。
// PATCH /api/users/{id}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	// 解析できないボディは空のロールとして検証で弾く
	_ = json.NewDecoder(r.Body).Decode(&req)

	u, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userRoleResponse{
		ID:      u.ExternalID,
		Email:   u.Email,
		Role:    u.Role,
		IsAdmin: u.IsAdmin(),
	})
}

// DeleteUser はユーザーを無効化する。自分自身は対象にできない。
// DELETE /api/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

func (h *UserHandler) caller(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, err := middleware.UserFromContext(r.Context())
	if err != nil {
		h.errs.Write(w, r, model.NewAuthInputError("User ID and Email required"))
		return nil, false
	}
	return u, true
}
