package upload

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/stockroom/internal/model"
)

func newTestStore(t *testing.T, maxBytes int64) *LocalImageStore {
	t.Helper()
	s, err := NewLocalImageStore(filepath.Join(t.TempDir(), "productImg"), maxBytes)
	if err != nil {
		t.Fatalf("NewLocalImageStore() error = %v", err)
	}
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return s
}

// 形式判定に使う各形式の先頭バイト
const (
	pngMagic  = "\x89PNG\r\n\x1a\n"
	jpegMagic = "\xff\xd8\xff\xe0"
	gifMagic  = "GIF89a"
	webpMagic = "RIFF\x00\x00\x00\x00WEBPVP8 "
)

func TestSave_StoresImage(t *testing.T) {
	s := newTestStore(t, 1024)

	p, err := s.Save("image/png", strings.NewReader(pngMagic+"png-bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if p != "/productImg/product-1700000000123.png" {
		t.Errorf("path = %q", p)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "product-1700000000123.png"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != pngMagic+"png-bytes" {
		t.Errorf("content = %q", data)
	}
}

// TestSave_SameMillisecond は同一ミリ秒の保存でも上書きしないことを検証する。
func TestSave_SameMillisecond(t *testing.T) {
	s := newTestStore(t, 1024)

	first, err := s.Save("image/jpeg", strings.NewReader(jpegMagic+"a"))
	if err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	second, err := s.Save("image/jpeg", strings.NewReader(jpegMagic+"b"))
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if first == second {
		t.Fatalf("paths collide: %q", first)
	}
	if !strings.HasPrefix(second, "/productImg/product-1700000000123-") || !strings.HasSuffix(second, ".jpeg") {
		t.Errorf("second path = %q", second)
	}
}

func TestSave_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantMsg     string
	}{
		{"画像以外", "application/pdf", "x", MsgNotImage},
		{"不正なMIME", "not a type", "x", MsgNotImage},
		{"空", "", "x", MsgNotImage},
		{"空ボディ", "image/png", "", MsgNotImage},
		{"SVGはスクリプトを含み得る", "image/svg+xml", `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`, MsgNotImage},
		{"画像を名乗るHTML", "image/png", "<html><script>alert(1)</script></html>", MsgNotImage},
		{"上限超過", "image/png", pngMagic + "ABC", MsgTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 10)
			_, err := s.Save(tt.contentType, strings.NewReader(tt.body))

			var appErr *model.AppError
			if !errors.As(err, &appErr) || appErr.Kind != model.KindValidation {
				t.Fatalf("error = %v, want validation error", err)
			}
			if appErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", appErr.Message, tt.wantMsg)
			}

			entries, _ := os.ReadDir(s.Dir())
			if len(entries) != 0 {
				t.Errorf("rejected upload left %d files", len(entries))
			}
		})
	}
}

func TestSave_ExactlyMaxBytes(t *testing.T) {
	s := newTestStore(t, 10)
	if _, err := s.Save("image/gif", strings.NewReader(gifMagic+"0123")); err != nil {
		t.Errorf("Save() at the limit error = %v", err)
	}
}

// TestSave_ExtensionFromContent は拡張子が宣言ではなく内容から決まることを検証する。
func TestSave_ExtensionFromContent(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantExt     string
	}{
		{"JPEG宣言のPNG", "image/jpeg", pngMagic + "x", ".png"},
		{"パラメータ付きWebP", "image/webp; charset=utf8", webpMagic + "x", ".webp"},
		{"未知のサブタイプのGIF", "image/x-custom", gifMagic + "x", ".gif"},
		{"BMP", "image/bmp", "BMxxxx", ".bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 1024)
			p, err := s.Save(tt.contentType, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if filepath.Ext(p) != tt.wantExt {
				t.Errorf("path = %q, want extension %q", p, tt.wantExt)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t, 1024)
	p, err := s.Save("image/png", strings.NewReader(pngMagic))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Remove(p); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), filepath.Base(p))); !os.IsNotExist(err) {
		t.Errorf("file still exists: %v", err)
	}

	// 存在しないファイルや外部URLは無視する
	if err := s.Remove(p); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
	if err := s.Remove("https://cdn.example.com/a.png"); err != nil {
		t.Errorf("Remove(external) error = %v", err)
	}
	if err := s.Remove("/productImg/../../etc/passwd"); err != nil {
		t.Errorf("Remove(traversal) error = %v", err)
	}
}
