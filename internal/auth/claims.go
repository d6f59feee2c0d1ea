package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/stockroom/internal/model"
)

// 識別情報を運ぶリクエストヘッダー
const (
	HeaderUserID           = "user-id"
	HeaderUserEmail        = "user-email"
	HeaderUserFirstName    = "user-first-name"
	HeaderUserLastName     = "user-last-name"
	HeaderUserProfileImage = "user-profile-image"
)

// Extractor はリクエストから識別情報の主張を取り出す。
type Extractor struct {
	verifier *TokenVerifier
}

// NewExtractor はExtractorを生成する。
// verifierがnilの場合はAuthorizationヘッダーを参照しない。
func NewExtractor(verifier *TokenVerifier) *Extractor {
	return &Extractor{verifier: verifier}
}

// FromRequest はリクエストヘッダーから識別情報を取り出す。
// Bearerトークンが有効に設定されていて提示された場合はそれを優先する。
// 主張の欠落はここでは判定せず、解決時にAuthInputErrorとなる。
func (e *Extractor) FromRequest(r *http.Request) (model.IdentityClaims, error) {
	if e.verifier != nil {
		if token, ok := bearerToken(r); ok {
			return e.verifier.Verify(token)
		}
	}

	return model.IdentityClaims{
		ExternalID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Email:        strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		FirstName:    r.Header.Get(HeaderUserFirstName),
		LastName:     r.Header.Get(HeaderUserLastName),
		ProfileImage: r.Header.Get(HeaderUserProfileImage),
	}, nil
}

// SyncRequest は同期エンドポイントのリクエストボディ。
type SyncRequest struct {
	ClerkID      string `json:"clerkId"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ProfileImage string `json:"profileImage"`
}

// Claims はリクエストボディの内容を識別情報に変換する。
func (s SyncRequest) Claims() model.IdentityClaims {
	return model.IdentityClaims{
		ExternalID:   strings.TrimSpace(s.ClerkID),
		Email:        strings.TrimSpace(s.Email),
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		ProfileImage: s.ProfileImage,
	}
}

// DecodeSyncRequest は同期エンドポイントのボディを読み取る。
// 不正なJSONは主張の欠落として扱う。
func DecodeSyncRequest(r *http.Request) (SyncRequest, error) {
	var req SyncRequest
	if r.Body == nil {
		return req, model.NewAuthInputError("clerkId and email required")
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return SyncRequest{}, model.NewAuthInputError("clerkId and email required")
	}
	return req, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
