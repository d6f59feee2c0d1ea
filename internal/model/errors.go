package model

import (
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// ErrorKind はアプリケーションエラーの分類を表す。
type ErrorKind string

// 定義済みエラー分類
const (
	KindAuthInput         ErrorKind = "AUTH_INPUT"
	KindCredential        ErrorKind = "CREDENTIAL"
	KindAuthorization     ErrorKind = "AUTHORIZATION"
	KindValidation        ErrorKind = "VALIDATION"
	KindInvalidIdentifier ErrorKind = "INVALID_IDENTIFIER"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindEmptyUpdate       ErrorKind = "EMPTY_UPDATE"
	KindRateLimited       ErrorKind = "RATE_LIMITED"
	KindStorage           ErrorKind = "STORAGE"
	KindUnexpected        ErrorKind = "UNEXPECTED"
)

// AppError はアプリケーション全体で使う統一エラー型。
// Kindによってステータスコードと呼び出し元への開示可否が決まる。
type AppError struct {
	Kind    ErrorKind
	Message string
	Field   string // バリデーション対象のフィールド名（該当する場合のみ）
	Err     error  // 原因となったエラー

	origin error // 生成箇所のスタックトレースを保持する
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *AppError) Unwrap() error {
	return e.Err
}

// StackTrace は生成箇所のスタックトレースを返す。コンストラクタを経由せずに生成した場合はnil。
func (e *AppError) StackTrace() pkgerrors.StackTrace {
	st, ok := e.origin.(interface{ StackTrace() pkgerrors.StackTrace })
	if !ok {
		return nil
	}
	frames := st.StackTrace()
	if len(frames) > 1 {
		// newAppError自身のフレームを除く
		frames = frames[1:]
	}
	return frames
}

// newAppError は生成箇所のスタックトレースを記録したAppErrorを返す。
func newAppError(kind ErrorKind, field, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Field:   field,
		Err:     cause,
		origin:  pkgerrors.New(message),
	}
}

// StatusCode はKindに対応するHTTPステータスコードを返す。
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindAuthInput, KindCredential:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation, KindInvalidIdentifier, KindEmptyUpdate:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsOperational は呼び出し元にメッセージを開示してよい想定内のエラーかを返す。
// ストレージ障害と分類不能なエラーは開示しない。
func (e *AppError) IsOperational() bool {
	return e.Kind != KindStorage && e.Kind != KindUnexpected
}

// NewAuthInputError は識別情報が欠けている場合のエラーを生成する。
func NewAuthInputError(message string) *AppError {
	return newAppError(KindAuthInput, "", message, nil)
}

// NewCredentialError は資格情報（トークン）が無効または期限切れの場合のエラーを生成する。
func NewCredentialError(message string, cause error) *AppError {
	return newAppError(KindCredential, "", message, cause)
}

// NewAuthorizationError はロール不一致や自己操作違反のエラーを生成する。
func NewAuthorizationError(message string) *AppError {
	return newAppError(KindAuthorization, "", message, nil)
}

// NewValidationError はフィールド単位のバリデーションエラーを生成する。
func NewValidationError(field, message string) *AppError {
	return newAppError(KindValidation, field, message, nil)
}

// NewInvalidIdentifierError は識別子の形式が不正な場合のエラーを生成する。
func NewInvalidIdentifierError(message string) *AppError {
	return newAppError(KindInvalidIdentifier, "", message, nil)
}

// NewNotFoundError は対象が存在しない場合のエラーを生成する。
func NewNotFoundError(message string) *AppError {
	return newAppError(KindNotFound, "", message, nil)
}

// NewEmptyUpdateError は更新対象フィールドが一つもない場合のエラーを生成する。
func NewEmptyUpdateError() *AppError {
	return newAppError(KindEmptyUpdate, "", "No valid fields provided for update", nil)
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError(message string) *AppError {
	return newAppError(KindRateLimited, "", message, nil)
}

// NewStorageError はストレージ層の失敗を包むエラーを生成する。
func NewStorageError(message string, cause error) *AppError {
	return newAppError(KindStorage, "", message, cause)
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *AppError {
	return NewNotFoundError("User not found")
}

// NewProductNotFoundError は商品が見つからない場合のエラーを生成する。
func NewProductNotFoundError() *AppError {
	return NewNotFoundError("Product not found")
}
