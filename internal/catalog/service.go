package catalog

import (
	"context"
	"log/slog"
	"math"

	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/repository"
)

// 商品変更操作のラベル
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MutationRecorder は商品変更操作の記録先。
type MutationRecorder interface {
	RecordProductMutation(operation string)
}

// Service は商品カタログの変更と参照を行うサービス層。
// 入力はValidateCreate/ValidateUpdateで検証済みであることを前提とする。
type Service struct {
	repo     repository.ProductRepository
	recorder MutationRecorder
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(repo repository.ProductRepository, recorder MutationRecorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// Insert は検証済みの商品を作成する。
func (s *Service) Insert(ctx context.Context, product model.Product) (*model.Product, error) {
	if err := s.repo.Create(ctx, &product); err != nil {
		return nil, model.NewStorageError("商品の作成に失敗しました", err)
	}

	slog.Info("商品を作成しました",
		slog.String("product_id", product.ID),
		slog.String("category", product.Category),
	)
	s.record(OpInsert)
	return &product, nil
}

// GetByID は商品を取得する。
func (s *Service) GetByID(ctx context.Context, id string) (*model.Product, error) {
	id, err := ValidateID(id)
	if err != nil {
		return nil, err
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewStorageError("商品の取得に失敗しました", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError()
	}
	return product, nil
}

// ListAll は全商品を新しい順に返し、同じ商品集合から算出した集計値を添える。
func (s *Service) ListAll(ctx context.Context) ([]*model.Product, model.ProductTotals, error) {
	products, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, model.ProductTotals{}, model.NewStorageError("商品一覧の取得に失敗しました", err)
	}

	var totals model.ProductTotals
	for _, p := range products {
		totals.TotalProducts++
		totals.TotalStockUnits += p.Stock
		totals.TotalInventoryValue += p.Price * float64(p.Stock)
	}
	totals.TotalInventoryValue = round2(totals.TotalInventoryValue)

	return products, totals, nil
}

// Update は商品を部分更新する。更新対象が空の場合はEmptyUpdateErrorを返す。
func (s *Service) Update(ctx context.Context, id string, patch model.ProductPatch) (*model.Product, error) {
	id, err := ValidateID(id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, model.NewEmptyUpdateError()
	}

	product, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, model.NewStorageError("商品の更新に失敗しました", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError()
	}

	slog.Info("商品を更新しました", slog.String("product_id", product.ID))
	s.record(OpUpdate)
	return product, nil
}

// Delete は商品を削除し、削除した商品を返す。
func (s *Service) Delete(ctx context.Context, id string) (*model.Product, error) {
	id, err := ValidateID(id)
	if err != nil {
		return nil, err
	}

	product, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, model.NewStorageError("商品の削除に失敗しました", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError()
	}

	slog.Info("商品を削除しました", slog.String("product_id", product.ID))
	s.record(OpDelete)
	return product, nil
}

// Totals は全商品の集計値を返す。平均単価は在庫金額を在庫数で割った値で、在庫がない場合は0。
func (s *Service) Totals(ctx context.Context) (model.ProductTotals, error) {
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return model.ProductTotals{}, model.NewStorageError("商品集計に失敗しました", err)
	}

	if totals.TotalStockUnits > 0 {
		totals.AverageProductPrice = round2(totals.TotalInventoryValue / float64(totals.TotalStockUnits))
	}
	totals.TotalInventoryValue = round2(totals.TotalInventoryValue)
	return totals, nil
}

func (s *Service) record(op string) {
	if s.recorder != nil {
		s.recorder.RecordProductMutation(op)
	}
}

// round2 は小数第2位に丸める。
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
