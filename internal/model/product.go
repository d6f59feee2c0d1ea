package model

import "time"

// ProductStatus は商品の販売状態を表す。
type ProductStatus string

const (
	// ProductStatusActive は販売中。
	ProductStatusActive ProductStatus = "active"
	// ProductStatusOutOfStock は在庫切れ。
	ProductStatusOutOfStock ProductStatus = "out of stock"
)

// Valid は定義済みの状態かどうかを返す。
func (s ProductStatus) Valid() bool {
	return s == ProductStatusActive || s == ProductStatusOutOfStock
}

// ProductCategories は商品カテゴリの固定集合。
var ProductCategories = []string{"electronics", "clothing", "food", "books", "furniture", "other"}

// IsProductCategory はカテゴリが固定集合に含まれるかを返す。
func IsProductCategory(category string) bool {
	for _, c := range ProductCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Product は在庫カタログの商品を表す。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Stock       int64
	Category    string
	Status      ProductStatus
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductTotals は商品集合から算出される集計値。永続化されない。
type ProductTotals struct {
	TotalProducts       int64
	TotalStockUnits     int64
	TotalInventoryValue float64
	AverageProductPrice float64
}

// ProductPatch は商品の部分更新内容。nilのフィールドは変更しない。
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Stock       *int64
	Category    *string
	Status      *ProductStatus
	Image       *string
}

// IsEmpty は更新対象のフィールドが1つもないかどうかを返す。
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil &&
		p.Category == nil && p.Status == nil && p.Image == nil
}
