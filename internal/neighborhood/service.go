// Package neighborhood は近隣の作成・参加・退会のドメインロジックを提供する。
package neighborhood

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/nbhdcity/internal/metrics"
	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/repository"
	"github.com/hitoshi/nbhdcity/internal/security"
)

// 入力値の上限。格納前にサービス層で検証する。
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	defaultPageSize      = 20
	maxPageSize          = 100
)

// MemberView は近隣詳細に含めるメンバー表示用の情報。
// メンバーシップ行にプロフィール行を突き合わせた結果を表す。
type MemberView struct {
	UserID      string    `json:"user_id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Detail は近隣のメタデータとメンバー一覧。
type Detail struct {
	Neighborhood model.Neighborhood `json:"neighborhood"`
	Members      []MemberView       `json:"members"`
}

// Service は近隣のサービス層。
// 入力検証とサニタイズを通してからリポジトリに委譲する。
type Service struct {
	nbhdRepo  repository.NeighborhoodRepository
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizerService
	collector metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	nbhdRepo repository.NeighborhoodRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		nbhdRepo:  nbhdRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		collector: collector,
	}
}

// Create は近隣を新規作成する。名前の一意性は大文字小文字を区別せず、
// 衝突時はNAME_CONFLICTを返す。作成者は自動的にはメンバーにならない。
func (s *Service) Create(ctx context.Context, userID, name, description string) (*model.Neighborhood, error) {
	name, err := s.validateName(name)
	if err != nil {
		return nil, err
	}
	description, err = s.validateDescription(description)
	if err != nil {
		return nil, err
	}

	nbhd, err := s.nbhdRepo.Create(ctx, name, description, userID)
	if err != nil {
		if model.IsConflict(err) {
			s.collector.RecordNameConflict()
		}
		return nil, err
	}

	s.collector.RecordNeighborhoodCreated()
	slog.Info("neighborhood created",
		slog.String("neighborhood_id", nbhd.ID),
		slog.String("name", nbhd.Name),
		slog.String("created_by", userID),
	)
	return nbhd, nil
}

// Update は近隣の名前と説明を更新する。nilのフィールドは変更しない。
// 名前変更時も作成時と同じ一意性制約が適用される。
func (s *Service) Update(ctx context.Context, nbhdID string, name, description *string) (*model.Neighborhood, error) {
	if name == nil && description == nil {
		return nil, model.NewValidationError("更新するフィールドがありません")
	}

	if name != nil {
		validated, err := s.validateName(*name)
		if err != nil {
			return nil, err
		}
		name = &validated
	}
	if description != nil {
		validated, err := s.validateDescription(*description)
		if err != nil {
			return nil, err
		}
		description = &validated
	}

	nbhd, err := s.nbhdRepo.Update(ctx, nbhdID, name, description)
	if err != nil {
		if model.IsConflict(err) {
			s.collector.RecordNameConflict()
		}
		return nil, err
	}
	return nbhd, nil
}

// Get は近隣の詳細（メタデータ + メンバー一覧）を取得する。
// メンバーのプロフィールをバッチ取得してハンドル等を埋める。
func (s *Service) Get(ctx context.Context, nbhdID string) (*Detail, error) {
	detail, err := s.nbhdRepo.GetWithMembers(ctx, nbhdID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(detail.Members))
	for _, m := range detail.Members {
		userIDs = append(userIDs, m.UserID)
	}

	profiles, err := s.userRepo.FindBatch(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load member profiles: %w", err)
	}

	members := make([]MemberView, 0, len(detail.Members))
	for _, m := range detail.Members {
		view := MemberView{UserID: m.UserID, JoinedAt: m.JoinedAt}
		if p, ok := profiles[m.UserID]; ok {
			view.Handle = p.Handle
			view.DisplayName = p.DisplayName
			view.Avatar = p.Avatar
		}
		members = append(members, view)
	}

	return &Detail{
		Neighborhood: detail.Neighborhood,
		Members:      members,
	}, nil
}

// List は近隣を作成日時の新しい順にページングして返す。
func (s *Service) List(ctx context.Context, cursor string, limit int) (*model.Page[model.Neighborhood], error) {
	return s.nbhdRepo.List(ctx, cursor, clampLimit(limit))
}

// Join はユーザーを近隣に参加させる。既にメンバーの場合も成功を返す（冪等）。
func (s *Service) Join(ctx context.Context, nbhdID, userID string) (*model.Membership, error) {
	membership, err := s.nbhdRepo.Join(ctx, nbhdID, userID)
	if err != nil {
		return nil, err
	}

	s.collector.RecordJoin()
	slog.Info("user joined neighborhood",
		slog.String("neighborhood_id", nbhdID),
		slog.String("user_id", userID),
	)
	return membership, nil
}

// Leave はユーザーを近隣から退会させる。メンバーでない場合はNOT_MEMBER。
func (s *Service) Leave(ctx context.Context, nbhdID, userID string) error {
	if err := s.nbhdRepo.Leave(ctx, nbhdID, userID); err != nil {
		return err
	}

	s.collector.RecordLeave()
	slog.Info("user left neighborhood",
		slog.String("neighborhood_id", nbhdID),
		slog.String("user_id", userID),
	)
	return nil
}

// ListByUser はユーザーが所属する近隣を参加日時の新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID, cursor string, limit int) (*model.Page[model.Neighborhood], error) {
	return s.nbhdRepo.ListByUser(ctx, userID, cursor, clampLimit(limit))
}

func (s *Service) validateName(name string) (string, error) {
	name = s.sanitizer.Sanitize(name)
	if name == "" {
		return "", model.NewValidationError("近隣名は必須です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewValidationError(fmt.Sprintf("近隣名は%d文字以内で指定してください", maxNameLength))
	}
	// 予約キーのプレフィックス区切りと衝突するため#は使用不可
	if strings.Contains(name, "#") {
		return "", model.NewValidationError("近隣名に#は使用できません")
	}
	return name, nil
}

func (s *Service) validateDescription(description string) (string, error) {
	description = s.sanitizer.Sanitize(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", model.NewValidationError(fmt.Sprintf("説明は%d文字以内で指定してください", maxDescriptionLength))
	}
	return description, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
