package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/stockroom/internal/catalog"
	"github.com/hitoshi/stockroom/internal/middleware"
	"github.com/hitoshi/stockroom/internal/model"
)

// ProductServiceInterface は商品ハンドラーが必要とするサービスインターフェース。
type ProductServiceInterface interface {
	Insert(ctx context.Context, product model.Product) (*model.Product, error)
	GetByID(ctx context.Context, id string) (*model.Product, error)
	ListAll(ctx context.Context) ([]*model.Product, model.ProductTotals, error)
	Update(ctx context.Context, id string, patch model.ProductPatch) (*model.Product, error)
	Delete(ctx context.Context, id string) (*model.Product, error)
	Totals(ctx context.Context) (model.ProductTotals, error)
}

// ImageStore は商品画像の保存先。
type ImageStore interface {
	Save(contentType string, src io.Reader) (string, error)
	Remove(publicPath string) error
	MaxBytes() int64
}

// multipartMemory はマルチパート解析時にメモリへ保持する上限。超過分は一時ファイルになる。
const multipartMemory = 1 << 20

// ProductHandler は商品カタログのHTTPハンドラー。
type ProductHandler struct {
	service ProductServiceInterface
	images  ImageStore
	errs    *middleware.ErrorNormalizer
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(service ProductServiceInterface, images ImageStore, errs *middleware.ErrorNormalizer) *ProductHandler {
	return &ProductHandler{
		service: service,
		images:  images,
		errs:    errs,
	}
}

// ListProducts は全商品と集計値を返す。
// GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, totals, err := h.service.ListAll(r.Context())
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	items := make([]productResponse, 0, len(products))
	for _, p := range products {
		items = append(items, toProductResponse(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"results": len(items),
		"data": map[string]any{
			"products": items,
			"totals": listTotalsResponse{
				TotalProducts:       totals.TotalProducts,
				TotalStockUnits:     totals.TotalStockUnits,
				TotalInventoryValue: totals.TotalInventoryValue,
			},
		},
	})
}

// Totals は全商品の集計値を返す。
// GET /api/products/totals
func (h *ProductHandler) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Totals(r.Context())
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data": map[string]any{
			"totals": totalsResponse(totals),
		},
	})
}

// GetProduct は商品を1件返す。
// GET /api/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]any{"product": toProductResponse(product)},
	})
}

// CreateProduct は商品を作成する。JSONまたはmultipart/form-data（画像はimageフィールド）を受け付ける。
// POST /api/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	raw, file, err := h.readInput(w, r)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	defer cleanupMultipart(r)

	product, err := catalog.ValidateCreate(raw)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	if file != nil {
		path, err := h.storeImage(file)
		if err != nil {
			h.errs.Write(w, r, err)
			return
		}
		product.Image = path
	}

	created, err := h.service.Insert(r.Context(), product)
	if err != nil {
		h.discardImage(product.Image)
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"message": "Product inserted successfully",
		"data":    map[string]any{"product": toProductResponse(created)},
	})
}

// UpdateProduct は商品を部分更新する。画像の差し替えも更新として扱う。
// PUT /api/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := catalog.ValidateID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	raw, file, err := h.readInput(w, r)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	defer cleanupMultipart(r)

	patch, err := catalog.ValidateUpdate(raw, file != nil)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	if file != nil {
		path, err := h.storeImage(file)
		if err != nil {
			h.errs.Write(w, r, err)
			return
		}
		patch.Image = &path
	}

	updated, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		if patch.Image != nil {
			h.discardImage(*patch.Image)
		}
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Product updated successfully",
		"data":    map[string]any{"product": toProductResponse(updated)},
	})
}

// DeleteProduct は商品を削除する。
// DELETE /api/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Product deleted successfully",
		"data": map[string]any{
			"deletedProduct": map[string]string{
				"id":   deleted.ID,
				"name": deleted.Name,
			},
		},
	})
}

// readInput はリクエストボディを検証前の値に変換する。
// JSONの数値はfloat64になる。マルチパートのprice/stockは数値として解釈できればfloat64に変換する。
func (h *ProductHandler) readInput(w http.ResponseWriter, r *http.Request) (map[string]any, *multipart.FileHeader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.readMultipart(w, r)
	}

	raw := map[string]any{}
	if r.Body == nil {
		return raw, nil, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, model.NewValidationError("body", "Invalid request body")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil, nil
}

func (h *ProductHandler) readMultipart(w http.ResponseWriter, r *http.Request) (map[string]any, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.images.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, model.NewValidationError("image", "Image exceeds the maximum upload size")
		}
		return nil, nil, model.NewValidationError("body", "Invalid request body")
	}

	raw := map[string]any{}
	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		raw[key] = values[0]
	}
	for _, key := range []string{"price", "stock"} {
		if s, ok := raw[key].(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				raw[key] = f
			}
		}
	}

	var file *multipart.FileHeader
	if files := r.MultipartForm.File["image"]; len(files) > 0 {
		file = files[0]
	}
	return raw, file, nil
}

func (h *ProductHandler) storeImage(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", model.NewValidationError("image", "Invalid image upload")
	}
	defer f.Close()
	return h.images.Save(fh.Header.Get("Content-Type"), f)
}

// discardImage は保存済みの画像を後続の失敗時に削除する。
func (h *ProductHandler) discardImage(path string) {
	if path == "" {
		return
	}
	if err := h.images.Remove(path); err != nil {
		slog.Warn("failed to remove orphaned image",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}
