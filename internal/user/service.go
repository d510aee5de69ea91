// Package user はユーザープロフィールのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/repository"
	"github.com/hitoshi/nbhdcity/internal/security"
)

// 入力値の上限。
const (
	maxDisplayNameLength = 100
	maxBioLength         = 1000
	maxLocationLength    = 100
	maxEmailLength       = 254
	maxBatchSize         = 100
	defaultPageSize      = 20
	maxPageSize          = 100
)

// ProfileInput はプロフィール作成・更新の入力。
// nilのフィールドは「変更しない」を意味する。
type ProfileInput struct {
	DisplayName *string `json:"display_name"`
	Avatar      *string `json:"avatar"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
	Email       *string `json:"email"`
}

// Service はユーザープロフィールのサービス層。
type Service struct {
	repo      repository.UserRepository
	sanitizer security.TextSanitizerService
	urlGuard  security.URLGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.UserRepository, sanitizer security.TextSanitizerService, urlGuard security.URLGuardService) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, urlGuard: urlGuard}
}

// GetProfile は自分のプロフィールを取得する。未作成の場合はUSER_NOT_FOUND。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// CreateProfile はプロフィールを新規作成する。
// ログイン時にハンドルだけの行がアップサートされているため、
// 表示名が既に設定済みの場合をPROFILE_EXISTSとして扱う。
func (s *Service) CreateProfile(ctx context.Context, userID, handle string, input ProfileInput) (*model.User, error) {
	fields, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.DisplayName != "" {
		return nil, model.NewProfileExistsError(userID)
	}

	if existing == nil {
		u := &model.User{ID: userID, Handle: handle}
		applyFields(u, fields)
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, err
		}
		slog.Info("profile created", slog.String("user_id", userID))
		return u, nil
	}

	updated, err := s.repo.Update(ctx, userID, fields)
	if err != nil {
		return nil, err
	}
	slog.Info("profile created", slog.String("user_id", userID))
	return updated, nil
}

// UpdateProfile はプロフィールを部分更新する。nilのフィールドは変更しない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (*model.User, error) {
	fields, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}
	if fields.DisplayName == nil && fields.Avatar == nil && fields.Bio == nil &&
		fields.Location == nil && fields.Email == nil {
		return nil, model.NewValidationError("更新するフィールドがありません")
	}

	return s.repo.Update(ctx, userID, fields)
}

// GetUsers は複数ユーザーのプロフィールをまとめて取得する。
// 見つからないIDは結果から黙って除外される。最大100件。
func (s *Service) GetUsers(ctx context.Context, userIDs []string) (map[string]*model.User, error) {
	if len(userIDs) == 0 {
		return map[string]*model.User{}, nil
	}
	if len(userIDs) > maxBatchSize {
		return nil, model.NewValidationError(fmt.Sprintf("一度に取得できるのは%d件までです", maxBatchSize))
	}
	return s.repo.FindBatch(ctx, userIDs)
}

// List は登録ユーザーを作成日時の新しい順にページングして返す。
func (s *Service) List(ctx context.Context, cursor string, limit int) (*model.Page[model.User], error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.List(ctx, cursor, limit)
}

func (s *Service) validateInput(input ProfileInput) (repository.UserProfileUpdate, error) {
	var fields repository.UserProfileUpdate

	if input.DisplayName != nil {
		v := s.sanitizer.Sanitize(*input.DisplayName)
		if utf8.RuneCountInString(v) > maxDisplayNameLength {
			return fields, model.NewValidationError(fmt.Sprintf("表示名は%d文字以内で指定してください", maxDisplayNameLength))
		}
		fields.DisplayName = &v
	}
	if input.Bio != nil {
		v := s.sanitizer.Sanitize(*input.Bio)
		if utf8.RuneCountInString(v) > maxBioLength {
			return fields, model.NewValidationError(fmt.Sprintf("自己紹介は%d文字以内で指定してください", maxBioLength))
		}
		fields.Bio = &v
	}
	if input.Location != nil {
		v := s.sanitizer.Sanitize(*input.Location)
		if utf8.RuneCountInString(v) > maxLocationLength {
			return fields, model.NewValidationError(fmt.Sprintf("場所は%d文字以内で指定してください", maxLocationLength))
		}
		fields.Location = &v
	}
	if input.Avatar != nil {
		v := strings.TrimSpace(*input.Avatar)
		if v != "" {
			if err := s.urlGuard.ValidateUserURL(v); err != nil {
				return fields, model.NewValidationError(fmt.Sprintf("アバターURLが無効です: %v", err))
			}
		}
		fields.Avatar = &v
	}
	if input.Email != nil {
		v := strings.TrimSpace(*input.Email)
		if v != "" && !isPlausibleEmail(v) {
			return fields, model.NewValidationError("メールアドレスの形式が不正です")
		}
		fields.Email = &v
	}

	return fields, nil
}

// isPlausibleEmail はメールアドレスの形式を簡易検証する。
// 厳密なRFC検証はせず、明白な入力ミスだけを弾く。
func isPlausibleEmail(email string) bool {
	if len(email) > maxEmailLength {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}

func applyFields(u *model.User, fields repository.UserProfileUpdate) {
	if fields.DisplayName != nil {
		u.DisplayName = *fields.DisplayName
	}
	if fields.Avatar != nil {
		u.Avatar = *fields.Avatar
	}
	if fields.Bio != nil {
		u.Bio = *fields.Bio
	}
	if fields.Location != nil {
		u.Location = *fields.Location
	}
	if fields.Email != nil {
		u.Email = *fields.Email
	}
}
