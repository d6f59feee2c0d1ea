// Package identity は外部IdPの識別情報からユーザーを解決・作成する。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/stockroom/internal/metrics"
	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/repository"
)

// ResolutionRecorder はID解決結果の記録先。
type ResolutionRecorder interface {
	RecordIdentityResolution(outcome string)
}

// Resolver は識別情報の主張からユーザーを解決する。
// 1回の呼び出しで行う永続化はINSERTまたはUPDATEのいずれか1回のみ。
type Resolver struct {
	users      repository.UserRepository
	adminEmail string
	recorder   ResolutionRecorder
	now        func() time.Time
}

// NewResolver はResolverを生成する。
// adminEmailと完全一致するメールアドレスで新規作成されたユーザーは管理者になる。
// recorderはnilでもよい。
func NewResolver(users repository.UserRepository, adminEmail string, recorder ResolutionRecorder) *Resolver {
	return &Resolver{
		users:      users,
		adminEmail: adminEmail,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Resolve は認証チェック用の解決を行う。
// 既存ユーザーの場合はログイン日時のみを記録し、プロフィールは変更しない。
// 無効化済みのユーザーはログイン記録後にAuthorizationErrorを返す。
func (r *Resolver) Resolve(ctx context.Context, claims model.IdentityClaims) (*model.User, error) {
	user, err := r.resolve(ctx, claims, false)
	if err != nil {
		return nil, err
	}
	return r.rejectInactive(user)
}

// Sync はIdPとの同期用の解決を行う。
// 既存ユーザーのプロフィールは主張の値で上書きされる（空文字を含む、後勝ち）。
// 無効化済みのユーザーはResolveと同様に記録後にAuthorizationErrorを返す。
func (r *Resolver) Sync(ctx context.Context, claims model.IdentityClaims) (*model.User, error) {
	user, err := r.resolve(ctx, claims, true)
	if err != nil {
		return nil, err
	}
	return r.rejectInactive(user)
}

func (r *Resolver) rejectInactive(user *model.User) (*model.User, error) {
	if !user.IsActive {
		r.record(metrics.OutcomeRejected)
		return nil, model.NewAuthorizationError("This account has been deactivated")
	}
	return user, nil
}

func (r *Resolver) resolve(ctx context.Context, claims model.IdentityClaims, refreshProfile bool) (*model.User, error) {
	if claims.ExternalID == "" || claims.Email == "" {
		if refreshProfile {
			return nil, model.NewAuthInputError("clerkId and email required")
		}
		return nil, model.NewAuthInputError("User ID and Email required")
	}

	existing, err := r.users.FindByExternalID(ctx, claims.ExternalID)
	if err != nil {
		return nil, model.NewStorageError("ユーザーの検索に失敗しました", err)
	}

	now := r.now()

	if existing == nil {
		user := &model.User{
			ExternalID: claims.ExternalID,
			Email:      claims.Email,
			Role:       r.roleFor(claims.Email),
			IsActive:   true,
			LastLogin:  &now,
		}
		if refreshProfile {
			user.FirstName = claims.FirstName
			user.LastName = claims.LastName
			user.FullName = model.JoinFullName(claims.FirstName, claims.LastName)
			user.ProfileImage = claims.ProfileImage
		}
		// 同時作成の競合は一意制約違反としてそのまま返す
		if err := r.users.Create(ctx, user); err != nil {
			return nil, model.NewStorageError("ユーザーの作成に失敗しました", err)
		}

		slog.Info("ユーザーを作成しました",
			slog.String("user_id", user.ExternalID),
			slog.String("role", string(user.Role)),
		)
		r.record(metrics.OutcomeCreated)
		return user, nil
	}

	var profile *repository.ProfileUpdate
	if refreshProfile {
		profile = &repository.ProfileUpdate{
			FirstName:    claims.FirstName,
			LastName:     claims.LastName,
			FullName:     model.JoinFullName(claims.FirstName, claims.LastName),
			ProfileImage: claims.ProfileImage,
		}
	}

	user, err := r.users.RecordLogin(ctx, existing.ID, now, profile)
	if err != nil {
		return nil, model.NewStorageError("ログイン情報の更新に失敗しました", err)
	}
	if user == nil {
		return nil, model.NewStorageError("ログイン情報の更新に失敗しました",
			fmt.Errorf("user %s disappeared during update", existing.ID))
	}

	r.record(metrics.OutcomeRefreshed)
	return user, nil
}

// roleFor は新規作成時のロールを決める。比較は大文字小文字を区別する。
func (r *Resolver) roleFor(email string) model.Role {
	if r.adminEmail != "" && email == r.adminEmail {
		return model.RoleAdmin
	}
	return model.RoleUser
}

func (r *Resolver) record(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordIdentityResolution(outcome)
	}
}
