// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/nbhdcity/internal/middleware"
	"github.com/hitoshi/nbhdcity/internal/model"
)

// timestampLayout はAPIレスポンスのタイムスタンプ表現。ストア内の表現と揃える。
const timestampLayout = time.RFC3339

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError はエラーをHTTPレスポンスに変換する。
// カテゴリ未分類のエラーは詳細をログのみに残し500を返す。
func writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if apiErr.Category == model.CategorySystem {
		slog.Error("system error",
			slog.String("code", apiErr.Code),
			slog.String("error", apiErr.Error()),
		)
	}
	middleware.WriteErrorResponse(w, middleware.StatusForCategory(apiErr.Category), apiErr)
}

// pageParams はクエリ文字列からカーソルとリミットを取り出す。
// limitが不正または未指定の場合は0を返し、サービス層のデフォルトに委ねる。
func pageParams(r *http.Request) (cursor string, limit int) {
	cursor = r.URL.Query().Get("cursor")
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	return cursor, limit
}

// callerID は認証ミドルウェアがコンテキストに注入したユーザーIDを取り出す。
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return "", false
	}
	return userID, true
}
