// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// フロントエンドが分岐できる安定したエラーコードと原因カテゴリを含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, conflict, transient, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ。リポジトリ・サービス層の失敗分類に使用する。
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryConflict   = "conflict"
	CategoryTransient  = "transient"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeNeighborhoodNotFound   = "NBHD_NOT_FOUND"
	ErrCodeNameConflict           = "NAME_CONFLICT"
	ErrCodeNotMember              = "NOT_MEMBER"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeProfileExists          = "PROFILE_EXISTS"
	ErrCodeUnauthenticated        = "UNAUTHENTICATED"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeProviderExchangeFailed = "PROVIDER_EXCHANGE_FAILED"
	ErrCodeConcurrentUpdate       = "CONCURRENT_UPDATE"
	ErrCodeStoreUnavailable       = "STORE_UNAVAILABLE"
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeInvalidCursor          = "INVALID_CURSOR"
)

// NewNeighborhoodNotFoundError は近隣未検出エラーを生成する。
func NewNeighborhoodNotFoundError(nbhdID string) *APIError {
	return &APIError{
		Code:     ErrCodeNeighborhoodNotFound,
		Message:  fmt.Sprintf("指定された近隣が見つかりません: %s", nbhdID),
		Category: CategoryNotFound,
		Action:   "近隣IDを確認してください。",
	}
}

// NewNameConflictError は近隣名の重複エラーを生成する。
// 名前の比較は大文字小文字を区別しない。
func NewNameConflictError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeNameConflict,
		Message:  fmt.Sprintf("この名前の近隣は既に存在します: %s", name),
		Category: CategoryConflict,
		Action:   "別の名前を指定してください。",
	}
}

// NewNotMemberError は非メンバーの退会操作エラーを生成する。
func NewNotMemberError(nbhdID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotMember,
		Message:  fmt.Sprintf("この近隣のメンバーではありません: %s", nbhdID),
		Category: CategoryConflict,
		Action:   "参加している近隣に対してのみ退会できます。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザープロフィールが見つかりません。",
		Category: CategoryNotFound,
		Action:   "オンボーディングを完了してください。",
	}
}

// NewProfileExistsError はプロフィール重複作成エラーを生成する。
func NewProfileExistsError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileExists,
		Message:  fmt.Sprintf("ユーザープロフィールは既に存在します: %s", userID),
		Category: CategoryConflict,
		Action:   "プロフィールの更新にはPUT /api/users/meを使用してください。",
	}
}

// NewUnauthenticatedError は認証失敗エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証に失敗しました。セッショントークンが無効か期限切れです。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewInvalidStateError はOAuthハンドシェイクトークンの検証失敗エラーを生成する。
// 未知・期限切れ・使用済みのいずれの場合も同じエラーを返す。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "OAuthのstateパラメータが無効です。",
		Category: CategoryAuth,
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewProviderExchangeFailedError はIdPとのコード交換失敗エラーを生成する。
func NewProviderExchangeFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderExchangeFailed,
		Message:  fmt.Sprintf("BlueSkyとの認証に失敗しました: %s", reason),
		Category: CategoryAuth,
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewConcurrentUpdateError は同一近隣への同時更新の競合エラーを生成する。
// 最新状態を読み直してから再試行すれば成功しうる。
func NewConcurrentUpdateError(nbhdID string) *APIError {
	return &APIError{
		Code:     ErrCodeConcurrentUpdate,
		Message:  fmt.Sprintf("他の更新と競合しました: %s", nbhdID),
		Category: CategoryConflict,
		Action:   "最新の状態を取得してから再度お試しください。",
	}
}

// NewStoreUnavailableError はデータストアの一時的な障害エラーを生成する。
// リトライで回復する可能性がある。
func NewStoreUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  fmt.Sprintf("データストアが一時的に利用できません: %v", err),
		Category: CategoryTransient,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力が無効です: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCursorError は無効なページネーションカーソルエラーを生成する。
func NewInvalidCursorError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  "ページネーションカーソルが無効です。",
		Category: CategoryValidation,
		Action:   "カーソルなしで先頭ページから取得し直してください。",
	}
}

// categoryOf はエラーからAPIErrorのカテゴリを取り出す。該当しない場合は空文字列。
func categoryOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return ""
}

// IsNotFound は参照先エンティティが存在しないエラーかを判定する。
func IsNotFound(err error) bool { return categoryOf(err) == CategoryNotFound }

// IsConflict は一意性・状態違反エラーかを判定する。
func IsConflict(err error) bool { return categoryOf(err) == CategoryConflict }

// IsTransient はリトライ可能なインフラ障害かを判定する。
func IsTransient(err error) bool { return categoryOf(err) == CategoryTransient }

// IsAuth は認証関連の失敗かを判定する。
func IsAuth(err error) bool { return categoryOf(err) == CategoryAuth }

// IsValidation は入力検証の失敗かを判定する。
func IsValidation(err error) bool { return categoryOf(err) == CategoryValidation }
