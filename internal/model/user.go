// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザーのロール。
	RoleUser Role = "user"
	// RoleAdmin は管理者のロール。
	RoleAdmin Role = "admin"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User はサービス利用ユーザーを表す。
// 外部IdPのIDとメールアドレスでそれぞれ一意に識別される。
type User struct {
	ID           string
	ExternalID   string
	Email        string
	FirstName    string
	LastName     string
	FullName     string
	ProfileImage string
	Role         Role
	IsActive     bool
	LastLogin    *time.Time
	LoginHistory []time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin は管理者ロールかどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// JoinFullName は姓名からフルネームを組み立てる。
func JoinFullName(firstName, lastName string) string {
	return strings.TrimSpace(firstName + " " + lastName)
}

// IdentityClaims は外部IdPが主張する呼び出し元の識別情報。
// このサービスでは検証済みとして扱う。
type IdentityClaims struct {
	ExternalID   string
	Email        string
	FirstName    string
	LastName     string
	ProfileImage string
}
