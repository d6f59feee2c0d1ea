// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/stockroom/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByExternalID は外部IDでユーザーを取得する。無効化済みのユーザーも対象。
	// 見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// FindActive は有効なユーザーを外部IDで検索する。
	// idがUUID形式の場合は内部IDとの一致も対象にする。見つからない場合はnilを返す。
	FindActive(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを1回のINSERTで作成し、採番されたIDとタイムスタンプをuserに設定する。
	Create(ctx context.Context, user *model.User) error

	// RecordLogin は最終ログイン日時の更新とログイン履歴への追記を1回のUPDATEで行う。
	// profileがnilでない場合はプロフィール項目も同じ文で上書きする。
	// 対象が存在しない場合はnilを返す。
	RecordLogin(ctx context.Context, id string, at time.Time, profile *ProfileUpdate) (*model.User, error)

	// List は有効なユーザーを作成日時の降順で返す。totalは条件に一致する全件数。
	List(ctx context.Context, params ListUsersParams) (users []*model.User, total int, err error)

	// UpdateRole は有効なユーザーのロールを更新する。見つからない場合はnilを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error)

	// Deactivate は有効なユーザーを無効化（論理削除）する。
	// 対象が存在しない場合はfalseを返す。
	Deactivate(ctx context.Context, id string) (bool, error)

	// PromoteByEmail は指定メールアドレスの有効なユーザーを管理者に昇格し、更新件数を返す。
	PromoteByEmail(ctx context.Context, email string) (int64, error)
}

// ProfileUpdate は同期時に上書きするプロフィール項目。空文字もそのまま保存する。
type ProfileUpdate struct {
	FirstName    string
	LastName     string
	FullName     string
	ProfileImage string
}

// ListUsersParams はユーザー一覧取得の条件。
type ListUsersParams struct {
	// Search はフルネームまたはメールアドレスの部分一致（大文字小文字を区別しない）。
	Search string
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
}

// Offset はPageとLimitから読み飛ばす件数を返す。
func (p ListUsersParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// ProductRepository は商品データの永続化インターフェース。
type ProductRepository interface {
	// Create は商品を作成し、採番されたIDと既定値、タイムスタンプをproductに設定する。
	Create(ctx context.Context, product *model.Product) error

	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)

	// ListAll は全商品を作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.Product, error)

	// Update は指定フィールドのみを1回のUPDATEで更新する。
	// 値の範囲はテーブルのCHECK制約でも再検証される。見つからない場合はnilを返す。
	Update(ctx context.Context, id string, patch model.ProductPatch) (*model.Product, error)

	// Delete は商品を物理削除し、削除した商品を返す。見つからない場合はnilを返す。
	Delete(ctx context.Context, id string) (*model.Product, error)

	// Totals は商品数、在庫数、在庫金額の合計を1回のクエリで集計する。
	// AverageProductPriceは設定しない。
	Totals(ctx context.Context) (model.ProductTotals, error)
}
