package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/nbhdcity/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteError はエラーをカテゴリに応じたHTTPステータスに変換して書き込む。
// APIError以外のエラーは500として処理する。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, StatusForCategory(apiErr.Category), apiErr)
}

// StatusForCategory はエラーカテゴリをHTTPステータスコードに対応付ける。
func StatusForCategory(category string) int {
	switch category {
	case model.CategoryAuth:
		return http.StatusUnauthorized
	case model.CategoryValidation:
		return http.StatusBadRequest
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryConflict:
		return http.StatusConflict
	case model.CategoryTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
