// Package upload は商品画像のローカル保存を提供する。
package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hitoshi/stockroom/internal/model"
)

// PublicPrefix は保存した画像を配信するURLパスの接頭辞。
const PublicPrefix = "/productImg/"

// 利用者向けメッセージ
const (
	MsgNotImage = "Please upload only images"
	MsgTooLarge = "Image exceeds the maximum upload size"
)

// sniffLen は形式判定に使う先頭バイト数。
const sniffLen = 512

// rasterExtensions は受け付ける判定結果と保存時の拡張子。
// SVGなどスクリプトを含み得る形式は判定結果がtext/xmlなどになるため含まれない。
var rasterExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
}

// LocalImageStore は画像をローカルディレクトリに保存する。
type LocalImageStore struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewLocalImageStore は保存先ディレクトリを作成してLocalImageStoreを返す。
func NewLocalImageStore(dir string, maxBytes int64) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create upload dir %s", dir)
	}
	return &LocalImageStore{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir は保存先ディレクトリを返す。
func (s *LocalImageStore) Dir() string {
	return s.dir
}

// MaxBytes は1ファイルあたりの上限バイト数を返す。
func (s *LocalImageStore) MaxBytes() int64 {
	return s.maxBytes
}

// Save は画像を product-<unixms>.<ext> として保存し、配信用パスを返す。
// 宣言されたMIMEタイプがimage/*であることに加え、先頭バイトから判定した形式が
// ラスター画像であることを要求する。拡張子は判定した形式から決める。
// 画像以外と上限超過はバリデーションエラーになる。
func (s *LocalImageStore) Save(contentType string, src io.Reader) (string, error) {
	if !isDeclaredImage(contentType) {
		return "", model.NewValidationError("image", MsgNotImage)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", errors.Wrap(err, "failed to read image")
	}
	head = head[:n]

	ext, ok := rasterExtensions[http.DetectContentType(head)]
	if !ok {
		return "", model.NewValidationError("image", MsgNotImage)
	}

	ms := s.now().UnixMilli()
	name := fmt.Sprintf("product-%d.%s", ms, ext)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		// 同一ミリ秒の衝突
		name = fmt.Sprintf("product-%d-%s.%s", ms, uuid.NewString()[:8], ext)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to create image file")
	}

	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), src), s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "failed to write image file")
	}
	if written > s.maxBytes {
		os.Remove(f.Name())
		return "", model.NewValidationError("image", MsgTooLarge)
	}

	return PublicPrefix + name, nil
}

// Remove は配信用パスで指定された画像を削除する。存在しない場合は何もしない。
func (s *LocalImageStore) Remove(publicPath string) error {
	if !strings.HasPrefix(publicPath, PublicPrefix) {
		return nil
	}
	name := path.Base(publicPath)
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove image file")
	}
	return nil
}

// isDeclaredImage はクライアントが宣言したMIMEタイプがimage/*かどうかを返す。
func isDeclaredImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "image/")
}
