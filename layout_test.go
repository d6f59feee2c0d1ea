package stockroom_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const repotestImportPath = "github.com/hitoshi/stockroom/internal/repository/repotest"

// TestRepotestImportedOnlyByTests はインメモリリポジトリが本番コードから参照されないことを検証する。
func TestRepotestImportedOnlyByTests(t *testing.T) {
	fset := token.NewFileSet()
	for _, root := range []string{"cmd", "internal"} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			if strings.HasPrefix(filepath.ToSlash(path), "internal/repository/repotest/") {
				return nil
			}

			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return err
			}
			for _, imp := range f.Imports {
				if p, _ := strconv.Unquote(imp.Path.Value); p == repotestImportPath {
					t.Errorf("%s imports %s; it is for tests only", path, repotestImportPath)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("failed to walk %s: %v", root, err)
		}
	}
}
