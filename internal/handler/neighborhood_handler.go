package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/neighborhood"
)

// NeighborhoodServiceInterface は近隣ハンドラーが必要とするサービスインターフェース。
type NeighborhoodServiceInterface interface {
	Create(ctx context.Context, userID, name, description string) (*model.Neighborhood, error)
	Update(ctx context.Context, nbhdID string, name, description *string) (*model.Neighborhood, error)
	Get(ctx context.Context, nbhdID string) (*neighborhood.Detail, error)
	List(ctx context.Context, cursor string, limit int) (*model.Page[model.Neighborhood], error)
	Join(ctx context.Context, nbhdID, userID string) (*model.Membership, error)
	Leave(ctx context.Context, nbhdID, userID string) error
	ListByUser(ctx context.Context, userID, cursor string, limit int) (*model.Page[model.Neighborhood], error)
}

// NeighborhoodHandler は近隣関連のHTTPハンドラー。
type NeighborhoodHandler struct {
	service NeighborhoodServiceInterface
}

// NewNeighborhoodHandler はNeighborhoodHandlerを生成する。
func NewNeighborhoodHandler(service NeighborhoodServiceInterface) *NeighborhoodHandler {
	return &NeighborhoodHandler{service: service}
}

// neighborhoodResponse は近隣のAPIレスポンス表現。
type neighborhoodResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
	MemberCount int    `json:"member_count"`
}

// neighborhoodPageResponse は近隣一覧ページのAPIレスポンス表現。
type neighborhoodPageResponse struct {
	Neighborhoods []neighborhoodResponse `json:"neighborhoods"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
}

func toNeighborhoodResponse(n *model.Neighborhood) neighborhoodResponse {
	return neighborhoodResponse{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		CreatedBy:   n.CreatedBy,
		CreatedAt:   n.CreatedAt.Format(timestampLayout),
		MemberCount: n.MemberCount,
	}
}

func toNeighborhoodPageResponse(page *model.Page[model.Neighborhood]) neighborhoodPageResponse {
	resp := neighborhoodPageResponse{
		Neighborhoods: make([]neighborhoodResponse, 0, len(page.Items)),
		NextCursor:    page.NextCursor,
	}
	for i := range page.Items {
		resp.Neighborhoods = append(resp.Neighborhoods, toNeighborhoodResponse(&page.Items[i]))
	}
	return resp
}

// Create は近隣を作成する。
// POST /api/neighborhoods
func (h *NeighborhoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	nbhd, err := h.service.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNeighborhoodResponse(nbhd))
}

// Update は近隣の名前・説明を更新する。
// PATCH /api/neighborhoods/{id}
func (h *NeighborhoodHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	nbhd, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNeighborhoodResponse(nbhd))
}

// Get は近隣の詳細（メンバー一覧付き）を返す。
// GET /api/neighborhoods/{id}
func (h *NeighborhoodHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	type memberResponse struct {
		UserID      string `json:"user_id"`
		Handle      string `json:"handle"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
		JoinedAt    string `json:"joined_at"`
	}
	members := make([]memberResponse, 0, len(detail.Members))
	for _, m := range detail.Members {
		members = append(members, memberResponse{
			UserID:      m.UserID,
			Handle:      m.Handle,
			DisplayName: m.DisplayName,
			Avatar:      m.Avatar,
			JoinedAt:    m.JoinedAt.Format(timestampLayout),
		})
	}

	resp := struct {
		neighborhoodResponse
		Members []memberResponse `json:"members"`
	}{
		neighborhoodResponse: toNeighborhoodResponse(&detail.Neighborhood),
		Members:              members,
	}
	writeJSON(w, http.StatusOK, resp)
}

// List は近隣の一覧を作成日時の新しい順で返す。
// GET /api/neighborhoods?cursor&limit
func (h *NeighborhoodHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor, limit := pageParams(r)

	page, err := h.service.List(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNeighborhoodPageResponse(page))
}

// Join は呼び出しユーザーを近隣に参加させる。
// POST /api/neighborhoods/{id}/join
func (h *NeighborhoodHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	membership, err := h.service.Join(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		NeighborhoodID string `json:"neighborhood_id"`
		UserID         string `json:"user_id"`
		JoinedAt       string `json:"joined_at"`
	}{
		NeighborhoodID: membership.NeighborhoodID,
		UserID:         membership.UserID,
		JoinedAt:       membership.JoinedAt.Format(timestampLayout),
	})
}

// Leave は呼び出しユーザーを近隣から脱退させる。
// DELETE /api/neighborhoods/{id}/leave
func (h *NeighborhoodHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.service.Leave(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMine は呼び出しユーザーが所属する近隣の一覧を返す。
// GET /api/users/me/neighborhoods?cursor&limit
func (h *NeighborhoodHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	cursor, limit := pageParams(r)
	page, err := h.service.ListByUser(r.Context(), userID, cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNeighborhoodPageResponse(page))
}
