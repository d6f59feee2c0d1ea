// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"log/slog"

	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/rbac"
	"github.com/hitoshi/stockroom/internal/repository"
)

// 一覧取得の既定値
const (
	DefaultPageLimit = 10
	DefaultMaxLimit  = 100
)

// Page はユーザー一覧の1ページ分の結果。
type Page struct {
	Users       []*model.User
	Total       int
	TotalPages  int
	CurrentPage int
}

// ListParams は一覧取得の条件。0以下の値は既定値に置き換える。
type ListParams struct {
	Page   int
	Limit  int
	Search string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	maxLimit int
}

// NewService はServiceの新しいインスタンスを生成する。
// maxLimitは一覧取得で1ページに返す件数の上限で、0以下の場合はDefaultMaxLimitを使う。
func NewService(userRepo repository.UserRepository, maxLimit int) *Service {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Service{userRepo: userRepo, maxLimit: maxLimit}
}

// List は有効なユーザーを新しい順にページ単位で返す。
func (s *Service) List(ctx context.Context, params ListParams) (*Page, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	users, total, err := s.userRepo.List(ctx, repository.ListUsersParams{
		Search: params.Search,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return nil, model.NewStorageError("ユーザー一覧の取得に失敗しました", err)
	}

	return &Page{
		Users:       users,
		Total:       total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
	}, nil
}

// Get はユーザーを取得する。管理者以外は自分自身のみ参照できる。
func (s *Service) Get(ctx context.Context, caller *model.User, id string) (*model.User, error) {
	target, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && target.ExternalID != caller.ExternalID {
		return nil, model.NewAuthorizationError("Access denied")
	}
	return target, nil
}

// UpdateRole はユーザーのロールを変更する。呼び出し元が管理者であることは前段で保証する。
func (s *Service) UpdateRole(ctx context.Context, id string, role string) (*model.User, error) {
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return nil, err
	}

	target, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.userRepo.UpdateRole(ctx, target.ID, parsed)
	if err != nil {
		return nil, model.NewStorageError("ロールの更新に失敗しました", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("ユーザーのロールを変更しました",
		slog.String("user_id", updated.ExternalID),
		slog.String("role", string(updated.Role)),
	)
	return updated, nil
}

// Deactivate はユーザーを無効化する。自分自身は無効化できない。
func (s *Service) Deactivate(ctx context.Context, caller *model.User, id string) error {
	target, err := s.findActive(ctx, id)
	if err != nil {
		return err
	}
	if target.ID == caller.ID {
		return model.NewAuthorizationError("Cannot delete your own account")
	}

	ok, err := s.userRepo.Deactivate(ctx, target.ID)
	if err != nil {
		return model.NewStorageError("ユーザーの無効化に失敗しました", err)
	}
	if !ok {
		return model.NewUserNotFoundError()
	}

	slog.Info("ユーザーを無効化しました",
		slog.String("user_id", target.ExternalID),
		slog.String("by", caller.ExternalID),
	)
	return nil
}

// PromoteAdmin は指定メールアドレスの有効なユーザーを管理者に昇格し、昇格した件数を返す。
func (s *Service) PromoteAdmin(ctx context.Context, email string) (int64, error) {
	if email == "" {
		return 0, model.NewValidationError("email", "Admin email is not configured")
	}
	n, err := s.userRepo.PromoteByEmail(ctx, email)
	if err != nil {
		return 0, model.NewStorageError("管理者への昇格に失敗しました", err)
	}
	return n, nil
}

func (s *Service) findActive(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindActive(ctx, id)
	if err != nil {
		return nil, model.NewStorageError("ユーザーの取得に失敗しました", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
