package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hitoshi/stockroom/internal/model"
)

const productColumns = `id, name, description, price, stock, category, status, image, created_at, updated_at`

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p      model.Product
		status string
		image  sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Category,
		&status, &image, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.ProductStatus(status)
	p.Image = image.String
	return &p, nil
}

// Create は商品を作成する。Statusが空の場合はテーブルの既定値が使われる。
func (r *PostgresProductRepo) Create(ctx context.Context, product *model.Product) error {
	created, err := scanProduct(r.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, price, stock, category, status, image)
		 VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6, ''), 'active'), NULLIF($7, ''))
		 RETURNING `+productColumns,
		product.Name, product.Description, product.Price, product.Stock, product.Category,
		string(product.Status), product.Image,
	))
	if err != nil {
		return errors.Wrap(err, "failed to insert product")
	}

	*product = *created
	return nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find product by ID")
	}
	return product, nil
}

// ListAll は全商品を作成日時の降順で返す。
func (r *PostgresProductRepo) ListAll(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	defer rows.Close()

	products := []*model.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate products")
	}

	return products, nil
}

// Update は指定フィールドのみを更新する。nilのフィールドは既存値を維持する。
func (r *PostgresProductRepo) Update(ctx context.Context, id string, patch model.ProductPatch) (*model.Product, error) {
	var status sql.NullString
	if patch.Status != nil {
		status = sql.NullString{String: string(*patch.Status), Valid: true}
	}

	product, err := scanProduct(r.db.QueryRowContext(ctx,
		`UPDATE products SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			price = COALESCE($4, price),
			stock = COALESCE($5, stock),
			category = COALESCE($6, category),
			status = COALESCE($7, status),
			image = COALESCE($8, image),
			updated_at = clock_timestamp()
		 WHERE id = $1
		 RETURNING `+productColumns,
		id, nullString(patch.Name), nullString(patch.Description), nullFloat(patch.Price),
		nullInt(patch.Stock), nullString(patch.Category), status, nullString(patch.Image),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update product")
	}
	return product, nil
}

// Delete は商品を物理削除し、削除前の内容を返す。
func (r *PostgresProductRepo) Delete(ctx context.Context, id string) (*model.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx,
		`DELETE FROM products WHERE id = $1 RETURNING `+productColumns,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete product")
	}
	return product, nil
}

// Totals は商品数、在庫数、在庫金額の合計を集計する。
func (r *PostgresProductRepo) Totals(ctx context.Context) (model.ProductTotals, error) {
	var totals model.ProductTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(sum(stock), 0)::bigint, COALESCE(sum(price * stock), 0) FROM products`,
	).Scan(&totals.TotalProducts, &totals.TotalStockUnits, &totals.TotalInventoryValue)
	if err != nil {
		return model.ProductTotals{}, errors.Wrap(err, "failed to aggregate product totals")
	}
	return totals, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
