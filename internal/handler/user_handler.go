package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	CreateProfile(ctx context.Context, userID, handle string, input user.ProfileInput) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, input user.ProfileInput) (*model.User, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]*model.User, error)
	List(ctx context.Context, cursor string, limit int) (*model.Page[model.User], error)
}

// UserHandler はユーザープロフィール関連のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// userResponse はユーザープロフィールのAPIレスポンス表現。
type userResponse struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Email       string `json:"email"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Bio:         u.Bio,
		Location:    u.Location,
		Email:       u.Email,
		CreatedAt:   u.CreatedAt.Format(timestampLayout),
		UpdatedAt:   u.UpdatedAt.Format(timestampLayout),
	}
}

// Me は呼び出しユーザーのプロフィールを返す。
// 未作成（オンボーディング前）の場合は404。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// CreateProfile はプロフィールを新規作成する（オンボーディング）。
// POST /api/users/me/profile
func (h *UserHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var input user.ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	u, err := h.service.CreateProfile(r.Context(), userID, deriveHandle(userID), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /api/users/me/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var input user.ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GetUser は任意ユーザーのプロフィールを返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Batch は複数ユーザーのプロフィールをまとめて返す。
// 見つからなかったIDはレスポンスに含まれない。
// POST /api/users/batch
func (h *UserHandler) Batch(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	users, err := h.service.GetUsers(r.Context(), req.UserIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make(map[string]userResponse, len(users))
	for id, u := range users {
		resp[id] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// List はユーザーの一覧を作成日時の新しい順で返す。
// GET /api/users?cursor&limit
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	cursor, limit := pageParams(r)
	page, err := h.service.List(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	users := make([]userResponse, 0, len(page.Items))
	for i := range page.Items {
		users = append(users, toUserResponse(&page.Items[i]))
	}
	writeJSON(w, http.StatusOK, struct {
		Users      []userResponse `json:"users"`
		NextCursor string         `json:"next_cursor,omitempty"`
	}{Users: users, NextCursor: page.NextCursor})
}

// deriveHandle はDIDからフォールバック用のハンドルを導出する。
// ログイン時に正規のハンドルが設定済みであればそちらが優先される。
func deriveHandle(userID string) string {
	if i := strings.LastIndex(userID, ":"); i >= 0 && i+1 < len(userID) {
		return userID[i+1:]
	}
	return userID
}
