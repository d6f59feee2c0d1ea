package catalog

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/hitoshi/stockroom/internal/model"
)

func validRaw() map[string]any {
	return map[string]any{
		"name":        "Widget",
		"description": "A widget",
		"price":       9.99,
		"stock":       float64(3),
		"category":    "electronics",
	}
}

func with(raw map[string]any, key string, value any) map[string]any {
	raw[key] = value
	return raw
}

func without(raw map[string]any, key string) map[string]any {
	delete(raw, key)
	return raw
}

// assertValidation は指定メッセージのValidationErrorであることを検証する。
func assertValidation(t *testing.T, err error, wantMsg string) {
	t.Helper()
	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("AppErrorが返されなかった: %v", err)
	}
	if appErr.Kind != model.KindValidation {
		t.Errorf("Kind = %q, want %q", appErr.Kind, model.KindValidation)
	}
	if appErr.Message != wantMsg {
		t.Errorf("Message = %q, want %q", appErr.Message, wantMsg)
	}
}

func TestValidateCreate_Valid(t *testing.T) {
	p, err := ValidateCreate(validRaw())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "Widget" || p.Price != 9.99 || p.Stock != 3 || p.Category != "electronics" {
		t.Errorf("unexpected product: %+v", p)
	}
	if p.Status != model.ProductStatusActive {
		t.Errorf("Status = %q, want active", p.Status)
	}
}

func TestValidateCreate_Trims(t *testing.T) {
	raw := validRaw()
	raw["name"] = "  Lamp  "
	raw["description"] = "\tDesk lamp\n"
	raw["category"] = " furniture "

	p, err := ValidateCreate(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "Lamp" || p.Description != "Desk lamp" || p.Category != "furniture" {
		t.Errorf("trim not applied: %+v", p)
	}
}

func TestValidateCreate_LengthBoundaries(t *testing.T) {
	// 前後の空白を除いた長さで判定する
	p, err := ValidateCreate(with(validRaw(), "name", "  "+strings.Repeat("a", 100)+"  "))
	if err != nil {
		t.Fatalf("100文字の名前が拒否された: %v", err)
	}
	if len(p.Name) != 100 {
		t.Errorf("len(Name) = %d", len(p.Name))
	}

	_, err = ValidateCreate(with(validRaw(), "name", strings.Repeat("a", 101)))
	assertValidation(t, err, "Product name cannot exceed 100 characters")

	if _, err := ValidateCreate(with(validRaw(), "description", strings.Repeat("d", 500))); err != nil {
		t.Fatalf("500文字の説明が拒否された: %v", err)
	}
	_, err = ValidateCreate(with(validRaw(), "description", strings.Repeat("d", 501)))
	assertValidation(t, err, "Description cannot exceed 500 characters")

	// マルチバイト文字は文字数で数える
	if _, err := ValidateCreate(with(validRaw(), "name", strings.Repeat("商", 100))); err != nil {
		t.Errorf("100文字のマルチバイト名が拒否された: %v", err)
	}
}

func TestValidateCreate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantMsg string
	}{
		{"name欠落", without(validRaw(), "name"), "Valid product name is required"},
		{"name空白のみ", with(validRaw(), "name", "   "), "Valid product name is required"},
		{"name数値", with(validRaw(), "name", float64(5)), "Valid product name is required"},
		{"description欠落", without(validRaw(), "description"), "Valid description is required"},
		{"price欠落", without(validRaw(), "price"), "Valid price (>= 0) is required"},
		{"price負", with(validRaw(), "price", -0.01), "Valid price (>= 0) is required"},
		{"price文字列", with(validRaw(), "price", "9.99"), "Valid price (>= 0) is required"},
		{"priceNaN", with(validRaw(), "price", math.NaN()), "Valid price (>= 0) is required"},
		{"priceInf", with(validRaw(), "price", math.Inf(1)), "Valid price (>= 0) is required"},
		{"stock小数", with(validRaw(), "stock", 2.5), "Valid stock (integer >= 0) is required"},
		{"stock負", with(validRaw(), "stock", float64(-1)), "Valid stock (integer >= 0) is required"},
		{"stock欠落", without(validRaw(), "stock"), "Valid stock (integer >= 0) is required"},
		{"category欠落", without(validRaw(), "category"), "Valid category is required"},
		{"category空", with(validRaw(), "category", " "), "Valid category is required"},
		{"category集合外", with(validRaw(), "category", "weapons"),
			"Category must be one of: electronics, clothing, food, books, furniture, other"},
		{"status不正", with(validRaw(), "status", "archived"), "Status must be either 'active' or 'out of stock'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateCreate(tt.raw)
			assertValidation(t, err, tt.wantMsg)
		})
	}
}

func TestValidateCreate_ShortCircuitsInFieldOrder(t *testing.T) {
	raw := map[string]any{"price": float64(-1), "stock": 1.5}
	_, err := ValidateCreate(raw)
	assertValidation(t, err, "Valid product name is required")

	raw = map[string]any{"name": "ok", "description": "ok", "price": float64(-1), "stock": 1.5}
	_, err = ValidateCreate(raw)
	assertValidation(t, err, "Valid price (>= 0) is required")
}

func TestValidateCreate_ExplicitStatus(t *testing.T) {
	p, err := ValidateCreate(with(validRaw(), "status", "out of stock"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != model.ProductStatusOutOfStock {
		t.Errorf("Status = %q", p.Status)
	}
}

func TestValidateUpdate(t *testing.T) {
	patch, err := ValidateUpdate(map[string]any{"stock": float64(7), "name": " New "}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.Stock == nil || *patch.Stock != 7 || patch.Name == nil || *patch.Name != "New" {
		t.Errorf("unexpected patch: %+v", patch)
	}
	if patch.Price != nil || patch.Category != nil {
		t.Error("未指定のフィールドが設定されている")
	}
}

func TestValidateUpdate_Empty(t *testing.T) {
	_, err := ValidateUpdate(map[string]any{"unknown": "x"}, false)
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindEmptyUpdate {
		t.Fatalf("EmptyUpdateErrorが返されなかった: %v", err)
	}
	if appErr.Message != "No valid fields provided for update" {
		t.Errorf("Message = %q", appErr.Message)
	}
}

func TestValidateUpdate_ImageOnly(t *testing.T) {
	patch, err := ValidateUpdate(map[string]any{}, true)
	if err != nil {
		t.Fatalf("画像のみの更新が拒否された: %v", err)
	}
	if !patch.IsEmpty() {
		t.Errorf("patch should carry no fields yet: %+v", patch)
	}
}

func TestValidateUpdate_InvalidField(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantMsg string
	}{
		{"name null", map[string]any{"name": nil}, "Valid product name is required"},
		{"price負", map[string]any{"price": float64(-5)}, "Valid price (>= 0) is required"},
		{"status空", map[string]any{"status": ""}, "Status must be either 'active' or 'out of stock'"},
		{"category集合外", map[string]any{"category": "toys"},
			"Category must be one of: electronics, clothing, food, books, furniture, other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUpdate(tt.raw, true)
			assertValidation(t, err, tt.wantMsg)
		})
	}
}

func TestValidateID(t *testing.T) {
	id, err := ValidateID("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "6f9619ff-8b86-d011-b42d-00c04fc964ff" {
		t.Errorf("id = %q", id)
	}

	for _, bad := range []string{"", "123", "not-a-uuid", "507f1f77bcf86cd799439011"} {
		_, err := ValidateID(bad)
		var appErr *model.AppError
		if !errors.As(err, &appErr) || appErr.Kind != model.KindInvalidIdentifier {
			t.Errorf("ValidateID(%q) = %v, want InvalidIdentifierError", bad, err)
			continue
		}
		if appErr.Message != "Invalid product ID format" || appErr.StatusCode() != 400 {
			t.Errorf("ValidateID(%q) = %q/%d", bad, appErr.Message, appErr.StatusCode())
		}
	}
}
