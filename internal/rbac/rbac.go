// Package rbac はロールによるアクセス制御を提供する。
package rbac

import (
	"fmt"
	"strings"

	"github.com/hitoshi/stockroom/internal/model"
)

// RequireRole はユーザーが要求ロールを持つかを判定する。
// 永続化層は参照せず、解決済みのユーザーのみで判定する。
func RequireRole(user *model.User, required model.Role) error {
	if user == nil || user.Role != required {
		return model.NewAuthorizationError(deniedMessage(required))
	}
	return nil
}

// ParseRole は文字列をロールに変換する。前後の空白は無視する。
func ParseRole(s string) (model.Role, error) {
	role := model.Role(strings.TrimSpace(s))
	if !role.Valid() {
		return "", model.NewValidationError("role", "Invalid role")
	}
	return role, nil
}

func deniedMessage(required model.Role) string {
	if required == model.RoleAdmin {
		return "Admin access required"
	}
	return fmt.Sprintf("%s access required", required)
}
