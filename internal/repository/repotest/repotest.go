// Package repotest はテスト専用のインメモリリポジトリ実装を提供する。
// 一意制約や論理削除の扱いはPostgreSQL実装に合わせており、制約違反は*pq.Errorとして返す。
// _test.goからのみ利用し、appで本番の依存として組み立ててはならない。
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/repository"
)

// UserRepo はインメモリのUserRepository。
type UserRepo struct {
	mu    sync.Mutex
	users []*model.User

	// Writes は書き込み系メソッドの呼び出し回数。
	Writes int
	// Err が設定されている場合、すべてのメソッドがこのエラーを返す。
	Err error
}

// NewUserRepo は空のUserRepoを生成する。
func NewUserRepo() *UserRepo {
	return &UserRepo{}
}

// Seed はユーザーを直接登録する。IDが空の場合は採番する。
func (r *UserRepo) Seed(users ...*model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		c := *u
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Role == "" {
			c.Role = model.RoleUser
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		r.users = append(r.users, &c)
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.LoginHistory = append([]time.Time(nil), u.LoginHistory...)
	return &c
}

func (r *UserRepo) find(pred func(*model.User) bool) *model.User {
	for _, u := range r.users {
		if pred(u) {
			return u
		}
	}
	return nil
}

// FindByExternalID は外部IDでユーザーを取得する。
func (r *UserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if u := r.find(func(u *model.User) bool { return u.ExternalID == externalID }); u != nil {
		return cloneUser(u), nil
	}
	return nil, nil
}

// FindActive は有効なユーザーを外部IDまたは内部IDで取得する。
func (r *UserRepo) FindActive(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	_, parseErr := uuid.Parse(id)
	if u := r.find(func(u *model.User) bool { return u.IsActive && parseErr == nil && u.ID == id }); u != nil {
		return cloneUser(u), nil
	}
	if u := r.find(func(u *model.User) bool { return u.IsActive && u.ExternalID == id }); u != nil {
		return cloneUser(u), nil
	}
	return nil, nil
}

// Create はユーザーを作成する。外部IDとメールアドレスの重複は一意制約違反を返す。
func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return r.Err
	}
	if r.find(func(u *model.User) bool { return u.ExternalID == user.ExternalID }) != nil {
		return &pq.Error{Code: "23505", Constraint: "users_external_id_key", Detail: "Key (external_id)=(" + user.ExternalID + ") already exists."}
	}
	if r.find(func(u *model.User) bool { return u.Email == user.Email }) != nil {
		return &pq.Error{Code: "23505", Constraint: "users_email_key", Detail: "Key (email)=(" + user.Email + ") already exists."}
	}

	now := time.Now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LoginHistory = nil
	if user.LastLogin != nil {
		user.LoginHistory = []time.Time{*user.LastLogin}
	}
	r.users = append(r.users, cloneUser(user))
	return nil
}

// RecordLogin はログイン記録とプロフィール上書きを行う。
func (r *UserRepo) RecordLogin(ctx context.Context, id string, at time.Time, profile *repository.ProfileUpdate) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return nil, r.Err
	}
	u := r.find(func(u *model.User) bool { return u.ID == id })
	if u == nil {
		return nil, nil
	}
	u.LastLogin = &at
	u.LoginHistory = append(u.LoginHistory, at)
	if profile != nil {
		u.FirstName = profile.FirstName
		u.LastName = profile.LastName
		u.FullName = profile.FullName
		u.ProfileImage = profile.ProfileImage
	}
	u.UpdatedAt = time.Now()
	return cloneUser(u), nil
}

// List は有効なユーザーを作成日時の降順で返す。
func (r *UserRepo) List(ctx context.Context, params repository.ListUsersParams) ([]*model.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, 0, r.Err
	}

	search := strings.ToLower(params.Search)
	matched := []*model.User{}
	for _, u := range r.users {
		if !u.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.FullName), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := params.Offset()
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateRole は有効なユーザーのロールを更新する。
func (r *UserRepo) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return nil, r.Err
	}
	u := r.find(func(u *model.User) bool { return u.ID == id && u.IsActive })
	if u == nil {
		return nil, nil
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return cloneUser(u), nil
}

// Deactivate は有効なユーザーを無効化する。
func (r *UserRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return false, r.Err
	}
	u := r.find(func(u *model.User) bool { return u.ID == id && u.IsActive })
	if u == nil {
		return false, nil
	}
	u.IsActive = false
	u.UpdatedAt = time.Now()
	return true, nil
}

// PromoteByEmail は指定メールアドレスの有効なユーザーを管理者に昇格する。
func (r *UserRepo) PromoteByEmail(ctx context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for _, u := range r.users {
		if u.Email == email && u.IsActive && u.Role != model.RoleAdmin {
			u.Role = model.RoleAdmin
			n++
		}
	}
	return n, nil
}

// ProductRepo はインメモリのProductRepository。
type ProductRepo struct {
	mu       sync.Mutex
	products []*model.Product

	// Writes は書き込み系メソッドの呼び出し回数。
	Writes int
	// Err が設定されている場合、すべてのメソッドがこのエラーを返す。
	Err error
}

// NewProductRepo は空のProductRepoを生成する。
func NewProductRepo() *ProductRepo {
	return &ProductRepo{}
}

// Create は商品を作成する。
func (r *ProductRepo) Create(ctx context.Context, product *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return r.Err
	}
	now := time.Now()
	product.ID = uuid.NewString()
	if product.Status == "" {
		product.Status = model.ProductStatusActive
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	c := *product
	r.products = append(r.products, &c)
	return nil
}

// FindByID は指定IDの商品を取得する。
func (r *ProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, p := range r.products {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

// ListAll は全商品を作成日時の降順で返す。
func (r *ProductRepo) ListAll(ctx context.Context) ([]*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*model.Product, 0, len(r.products))
	for i := len(r.products) - 1; i >= 0; i-- {
		c := *r.products[i]
		out = append(out, &c)
	}
	return out, nil
}

// Update は指定フィールドのみを更新する。
func (r *ProductRepo) Update(ctx context.Context, id string, patch model.ProductPatch) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return nil, r.Err
	}
	for _, p := range r.products {
		if p.ID != id {
			continue
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}
		if patch.Image != nil {
			p.Image = *patch.Image
		}
		p.UpdatedAt = time.Now()
		c := *p
		return &c, nil
	}
	return nil, nil
}

// Delete は商品を削除し、削除前の内容を返す。
func (r *ProductRepo) Delete(ctx context.Context, id string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.Err != nil {
		return nil, r.Err
	}
	for i, p := range r.products {
		if p.ID == id {
			r.products = append(r.products[:i], r.products[i+1:]...)
			return p, nil
		}
	}
	return nil, nil
}

// Totals は商品数、在庫数、在庫金額の合計を集計する。
func (r *ProductRepo) Totals(ctx context.Context) (model.ProductTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return model.ProductTotals{}, r.Err
	}
	var t model.ProductTotals
	for _, p := range r.products {
		t.TotalProducts++
		t.TotalStockUnits += p.Stock
		t.TotalInventoryValue += p.Price * float64(p.Stock)
	}
	return t, nil
}

var (
	_ repository.UserRepository    = (*UserRepo)(nil)
	_ repository.ProductRepository = (*ProductRepo)(nil)
)
