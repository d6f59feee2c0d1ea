// Package catalog は商品カタログの入力検証と変更操作を提供する。
package catalog

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/stockroom/internal/model"
)

// 文字数の上限（前後の空白を除いた値で判定する）
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

// 検証エラーのメッセージ
const (
	msgName           = "Valid product name is required"
	msgNameTooLong    = "Product name cannot exceed 100 characters"
	msgDescription    = "Valid description is required"
	msgDescTooLong    = "Description cannot exceed 500 characters"
	msgPrice          = "Valid price (>= 0) is required"
	msgStock          = "Valid stock (integer >= 0) is required"
	msgCategory       = "Valid category is required"
	msgStatus         = "Status must be either 'active' or 'out of stock'"
	msgInvalidProduct = "Invalid product ID format"
)

var msgCategoryNotInSet = "Category must be one of: " + strings.Join(model.ProductCategories, ", ")

// ValidateCreate は商品作成の入力を検証し、整形済みの商品を返す。
// name, description, price, stock, categoryは必須、statusは省略時activeになる。
// 最初に失敗したフィールドのエラーを返す。
func ValidateCreate(raw map[string]any) (model.Product, error) {
	var p model.Product
	var err error

	if p.Name, err = validateName(raw["name"]); err != nil {
		return model.Product{}, err
	}
	if p.Description, err = validateDescription(raw["description"]); err != nil {
		return model.Product{}, err
	}
	if p.Price, err = validatePrice(raw["price"]); err != nil {
		return model.Product{}, err
	}
	if p.Stock, err = validateStock(raw["stock"]); err != nil {
		return model.Product{}, err
	}
	if p.Category, err = validateCategory(raw["category"]); err != nil {
		return model.Product{}, err
	}

	p.Status = model.ProductStatusActive
	if v, ok := raw["status"]; ok && v != nil && v != "" {
		if p.Status, err = validateStatus(v); err != nil {
			return model.Product{}, err
		}
	}

	return p, nil
}

// ValidateUpdate は商品更新の入力を検証し、部分更新の内容を返す。
// すべてのフィールドは省略可能だが、指定されたフィールドは作成時と同じ規則で検証する。
// withImageは画像の差し替えを伴うかどうかで、それ自体も更新対象として数える。
// 更新対象が1つもない場合はEmptyUpdateErrorを返す。
func ValidateUpdate(raw map[string]any, withImage bool) (model.ProductPatch, error) {
	var patch model.ProductPatch

	if v, ok := raw["name"]; ok {
		name, err := validateName(v)
		if err != nil {
			return model.ProductPatch{}, err
		}
		patch.Name = &name
	}
	if v, ok := raw["description"]; ok {
		desc, err := validateDescription(v)
		if err != nil {
			return model.ProductPatch{}, err
		}
		patch.Description = &desc
	}
	if v, ok := raw["price"]; ok {
		price, err := validatePrice(v)
		if err != nil {
			return model.ProductPatch{}, err
		}
		patch.Price = &price
	}
	if v, ok := raw["stock"]; ok {
		stock, err := validateStock(v)
		if err != nil {
			return model.ProductPatch{}, err
		}
		patch.Stock = &stock
	}
	if v, ok := raw["category"]; ok {
		category, err := validateCategory(v)
		if err != nil {
			return model.ProductPatch{}, err
		}
		patch.Category = &category
	}
	if v, ok := raw["status"]; ok {
		status, err := validateStatus(v)
		if err != nil {
			return model.ProductPatch{}, err
		}
		patch.Status = &status
	}

	if patch.IsEmpty() && !withImage {
		return model.ProductPatch{}, model.NewEmptyUpdateError()
	}
	return patch, nil
}

// ValidateID は商品IDの形式を検証し、正規化したIDを返す。
func ValidateID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", model.NewInvalidIdentifierError(msgInvalidProduct)
	}
	return parsed.String(), nil
}

func validateName(v any) (string, error) {
	return validateText("name", v, MaxNameLength, msgName, msgNameTooLong)
}

func validateDescription(v any) (string, error) {
	return validateText("description", v, MaxDescriptionLength, msgDescription, msgDescTooLong)
}

func validateText(field string, v any, max int, msgRequired, msgTooLong string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", model.NewValidationError(field, msgRequired)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", model.NewValidationError(field, msgRequired)
	}
	if utf8.RuneCountInString(s) > max {
		return "", model.NewValidationError(field, msgTooLong)
	}
	return s, nil
}

func validatePrice(v any) (float64, error) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, model.NewValidationError("price", msgPrice)
	}
	return f, nil
}

func validateStock(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, model.NewValidationError("stock", msgStock)
	}
	return int64(f), nil
}

func validateCategory(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", model.NewValidationError("category", msgCategory)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", model.NewValidationError("category", msgCategory)
	}
	if !model.IsProductCategory(s) {
		return "", model.NewValidationError("category", msgCategoryNotInSet)
	}
	return s, nil
}

func validateStatus(v any) (model.ProductStatus, error) {
	s, ok := v.(string)
	if !ok || !model.ProductStatus(s).Valid() {
		return "", model.NewValidationError("status", msgStatus)
	}
	return model.ProductStatus(s), nil
}
