package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/stockroom/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// userProfileResponse はユーザー本人または管理者が参照するプロフィール。
type userProfileResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         model.Role `json:"role"`
	IsAdmin      bool       `json:"isAdmin"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	ProfileImage string     `json:"profileImage"`
	LastLogin    *time.Time `json:"lastLogin"`
}

// syncedUserResponse は同期エンドポイントが返すユーザー情報。
type syncedUserResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         model.Role `json:"role"`
	IsAdmin      bool       `json:"isAdmin"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	ProfileImage string     `json:"profileImage"`
}

// userSummaryResponse はユーザー一覧の1件分。
type userSummaryResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      model.Role `json:"role"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin"`
	CreatedAt time.Time  `json:"createdAt"`
}

// userRoleResponse はロール変更後に返す情報。
type userRoleResponse struct {
	ID      string     `json:"id"`
	Email   string     `json:"email"`
	Role    model.Role `json:"role"`
	IsAdmin bool       `json:"isAdmin"`
}

// productResponse は商品のAPIレスポンス。画像がない場合はimageを省略する。
type productResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Image       string              `json:"image,omitempty"`
	Description string              `json:"description"`
	Price       float64             `json:"price"`
	Stock       int64               `json:"stock"`
	Category    string              `json:"category"`
	Status      model.ProductStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// listTotalsResponse は一覧に添える集計値。平均単価は含まない。
type listTotalsResponse struct {
	TotalProducts       int64   `json:"totalProducts"`
	TotalStockUnits     int64   `json:"totalStockUnits"`
	TotalInventoryValue float64 `json:"totalInventoryValue"`
}

// totalsResponse は集計エンドポイントの集計値。
type totalsResponse struct {
	TotalProducts       int64   `json:"totalProducts"`
	TotalStockUnits     int64   `json:"totalStockUnits"`
	TotalInventoryValue float64 `json:"totalInventoryValue"`
	AverageProductPrice float64 `json:"averageProductPrice"`
}

func toUserProfileResponse(u *model.User) userProfileResponse {
	return userProfileResponse{
		ID:           u.ExternalID,
		Email:        u.Email,
		Role:         u.Role,
		IsAdmin:      u.IsAdmin(),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfileImage: u.ProfileImage,
		LastLogin:    u.LastLogin,
	}
}

func toSyncedUserResponse(u *model.User) syncedUserResponse {
	return syncedUserResponse{
		ID:           u.ExternalID,
		Email:        u.Email,
		Role:         u.Role,
		IsAdmin:      u.IsAdmin(),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfileImage: u.ProfileImage,
	}
}

func toUserSummaryResponse(u *model.User) userSummaryResponse {
	return userSummaryResponse{
		ID:        u.ExternalID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Image:       p.Image,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
