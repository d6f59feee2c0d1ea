// Package cleanup は商品から参照されなくなった画像ファイルの定期削除ジョブを提供する。
// 画像の差し替えや商品の削除で残ったファイルが対象になる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/stockroom/internal/model"
	"github.com/hitoshi/stockroom/internal/upload"
)

// ProductLister は現存する商品の一覧を返す。
type ProductLister interface {
	ListAll(ctx context.Context) ([]*model.Product, error)
}

// CleanupJob は未参照の商品画像を削除するジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	products    ProductLister
	dir         string
	logger      *slog.Logger
	GracePeriod time.Duration // 更新からこの期間内のファイルは対象外（デフォルト: 1時間）
	now         func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(products ProductLister, dir string, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		products:    products,
		dir:         dir,
		logger:      logger,
		GracePeriod: time.Hour,
		now:         time.Now,
	}
}

// Run は未参照の画像ファイルを削除し、削除した件数を返す。
// アップロード直後でまだ商品に紐付いていないファイルを消さないよう、GracePeriod内のファイルは残す。
func (j *CleanupJob) Run(ctx context.Context) (int, error) {
	start := time.Now()

	products, err := j.products.ListAll(ctx)
	if err != nil {
		j.logger.Error("画像クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}

	referenced := make(map[string]struct{}, len(products))
	for _, p := range products {
		if strings.HasPrefix(p.Image, upload.PublicPrefix) {
			referenced[path.Base(p.Image)] = struct{}{}
		}
	}

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, fmt.Errorf("画像ディレクトリの読み込みに失敗: %w", err)
	}

	cutoff := j.now().Add(-j.GracePeriod)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "product-") {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("画像ファイルの削除に失敗しました",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	j.logger.Info("画像クリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("referenced_count", len(referenced)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deleted, nil
}

// Start は起動直後に1回実行し、以後intervalごとに実行する。ctxのキャンセルで終了する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
