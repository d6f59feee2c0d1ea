package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"

	"github.com/hitoshi/stockroom/internal/model"
)

// ErrorMode はエラーレスポンスの開示方針。
type ErrorMode int

const (
	// ModeSafe は運用上想定されたエラーのみメッセージを返し、それ以外は汎用メッセージにする。
	ModeSafe ErrorMode = iota
	// ModeVerbose はスタックトレースと原因を含めて返す。開発環境専用。
	ModeVerbose
)

// MsgUnexpected は想定外エラー時に返す汎用メッセージ。
const MsgUnexpected = "Something went very wrong!"

// ModeForEnvironment は実行環境名から開示方針を決める。developmentのみ詳細表示になる。
func ModeForEnvironment(env string) ErrorMode {
	if strings.EqualFold(env, "development") {
		return ModeVerbose
	}
	return ModeSafe
}

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// statusは4xxで"fail"、5xxで"error"になる。
type ErrorResponseBody struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Stack   string       `json:"stack,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail は詳細表示時に添える原因情報。
type ErrorDetail struct {
	Kind       string `json:"kind"`
	Cause      string `json:"cause"`
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// ErrorNormalizer は内部エラーを統一形式のレスポンスに変換する。
type ErrorNormalizer struct {
	mode   ErrorMode
	logger *slog.Logger
}

// NewErrorNormalizer はErrorNormalizerを生成する。loggerがnilの場合はslog.Default()を使う。
func NewErrorNormalizer(mode ErrorMode, logger *slog.Logger) *ErrorNormalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorNormalizer{mode: mode, logger: logger}
}

// Mode は開示方針を返す。
func (n *ErrorNormalizer) Mode() ErrorMode {
	return n.mode
}

// classified は分類済みのエラー。
type classified struct {
	status      int
	message     string
	kind        model.ErrorKind
	operational bool
}

// Normalize はエラーをステータスコードとレスポンスボディに変換する。
// 分類は次の順で行う: 不正な識別子、一意制約違反、スキーマ検証違反、資格情報エラー、
// 運用上想定されたAppError、それ以外（500）。
func (n *ErrorNormalizer) Normalize(err error) (int, ErrorResponseBody) {
	c := classify(err)

	body := ErrorResponseBody{
		Status:  statusLabel(c.status),
		Message: c.message,
	}

	if n.mode == ModeVerbose {
		if !c.operational {
			body.Message = err.Error()
		}
		body.Stack = stackOf(err)
		if body.Stack == "" {
			// 生成箇所のスタックを持たないエラーは正規化時点のスタックで代用する
			body.Stack = string(debug.Stack())
		}
		body.Error = detailOf(err, c.kind)
	}

	return c.status, body
}

// Write は正規化したエラーレスポンスを書き込む。5xxは詳細をログに記録する。
func (n *ErrorNormalizer) Write(w http.ResponseWriter, r *http.Request, err error) {
	status, body := n.Normalize(err)

	if status >= http.StatusInternalServerError {
		n.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("stack", stackOf(err)),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func classify(err error) classified {
	var appErr *model.AppError
	isApp := errors.As(err, &appErr)
	var pqErr *pq.Error
	isPQ := errors.As(err, &pqErr)

	// 1. 不正な識別子
	if isApp && appErr.Kind == model.KindInvalidIdentifier {
		return classified{http.StatusBadRequest, appErr.Message, appErr.Kind, true}
	}
	if isPQ && pqErr.Code == "22P02" {
		return classified{http.StatusBadRequest, castMessage(pqErr), model.KindInvalidIdentifier, true}
	}

	// 2. 一意制約違反
	if isPQ && pqErr.Code == "23505" {
		msg := fmt.Sprintf("Duplicate field value: %s. Please use another value!", duplicateField(pqErr))
		return classified{http.StatusBadRequest, msg, model.KindValidation, true}
	}

	// 3. スキーマ検証違反
	if isApp && appErr.Kind == model.KindValidation {
		return classified{http.StatusBadRequest, appErr.Message, appErr.Kind, true}
	}
	if isPQ {
		switch pqErr.Code {
		case "23514", "23502", "22001":
			return classified{http.StatusBadRequest, "Invalid input data. " + schemaMessage(pqErr), model.KindValidation, true}
		}
	}

	// 4. 資格情報エラー
	if errors.Is(err, jwt.ErrTokenExpired) {
		return classified{http.StatusUnauthorized, "Your token has expired, please log in again !", model.KindCredential, true}
	}
	if isApp && appErr.Kind == model.KindCredential {
		return classified{http.StatusUnauthorized, appErr.Message, appErr.Kind, true}
	}
	if isJWTError(err) {
		return classified{http.StatusUnauthorized, "Invalid token, please log in again !", model.KindCredential, true}
	}

	// 5. 運用上想定されたエラー
	if isApp && appErr.IsOperational() {
		return classified{appErr.StatusCode(), appErr.Message, appErr.Kind, true}
	}

	kind := model.KindUnexpected
	if isApp {
		kind = appErr.Kind
	}
	return classified{http.StatusInternalServerError, MsgUnexpected, kind, false}
}

func isJWTError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusLabel(status int) string {
	if status >= http.StatusInternalServerError {
		return "error"
	}
	return "fail"
}

var (
	quotedValue = regexp.MustCompile(`"((?:\\.|[^"\\])*)"`)
	keyDetail   = regexp.MustCompile(`^Key \(([^)]+)\)=`)
	typeName    = regexp.MustCompile(`for type ([a-z ]+):`)
)

// castMessage は型変換エラーを "Invalid <type>: <value>." の形にする。
func castMessage(e *pq.Error) string {
	value := ""
	if m := quotedValue.FindStringSubmatch(e.Message); m != nil {
		value = m[1]
	}
	typ := "id"
	if m := typeName.FindStringSubmatch(e.Message); m != nil && m[1] != "uuid" {
		typ = m[1]
	}
	return fmt.Sprintf("Invalid %s: %s.", typ, value)
}

// duplicateField は一意制約違反の対象列名を返す。
func duplicateField(e *pq.Error) string {
	if m := keyDetail.FindStringSubmatch(e.Detail); m != nil {
		return m[1]
	}
	if e.Constraint != "" {
		return e.Constraint
	}
	return "unknown"
}

// constraintMessages はCHECK制約名ごとの利用者向けメッセージ。
var constraintMessages = map[string]string{
	"products_name_check":        "Product name is required",
	"products_description_check": "Description is required",
	"products_price_check":       "Price cannot be negative",
	"products_stock_check":       "Stock cannot be negative",
	"products_category_check":    "Category must be one of: " + strings.Join(model.ProductCategories, ", "),
	"products_status_check":      "Status must be either 'active' or 'out of stock'",
	"users_role_check":           "Role must be either 'user' or 'admin'",
}

func schemaMessage(e *pq.Error) string {
	switch e.Code {
	case "23514":
		if msg, ok := constraintMessages[e.Constraint]; ok {
			return msg
		}
	case "23502":
		if e.Column != "" {
			return capitalize(e.Column) + " is required"
		}
	case "22001":
		return "Value exceeds the maximum length"
	}
	return e.Message
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stackTracer はpkg/errorsが付与するスタックトレースを持つエラー。
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stackOf はエラーチェーンの最も内側で捕捉されたスタックトレースを返す。
func stackOf(err error) string {
	var st pkgerrors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if s, ok := e.(stackTracer); ok {
			if t := s.StackTrace(); len(t) > 0 {
				st = t
			}
		}
	}
	if st == nil {
		return ""
	}
	return strings.TrimPrefix(fmt.Sprintf("%+v", st), "\n")
}

func detailOf(err error, kind model.ErrorKind) *ErrorDetail {
	d := &ErrorDetail{Kind: string(kind), Cause: err.Error()}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.Code = string(pqErr.Code)
		d.Constraint = pqErr.Constraint
	}
	return d
}
