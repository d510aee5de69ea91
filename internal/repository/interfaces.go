// Package repository はデータ永続化のインターフェースとDynamoDB実装を提供する。
package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hitoshi/nbhdcity/internal/model"
)

// DynamoAPI はリポジトリが必要とするDynamoDB操作のインターフェース。
// *dynamodb.Clientの部分集合として定義し、テストではフェイクに差し替える。
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// RetryRecorder は一時障害リトライの発生を記録するインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。nilの場合は記録しない。
type RetryRecorder interface {
	RecordStoreRetry()
}

// NeighborhoodRepository は近隣とメンバーシップの永続化インターフェース。
// 一意性・冪等性の整合性ロジックは実装側が条件付き書き込みで担保する。
type NeighborhoodRepository interface {
	// Create は近隣を新規作成する。小文字化した名前が既に使用されている場合は
	// NAME_CONFLICTを返す。名前予約とメタデータ行は単一のアトミックな
	// トランザクションで書き込まれる。
	Create(ctx context.Context, name, description, createdBy string) (*model.Neighborhood, error)

	// Update は近隣のメタデータを更新する。名前変更時は旧予約の解放と
	// 新予約の獲得を同一トランザクションで行う。
	Update(ctx context.Context, nbhdID string, name, description *string) (*model.Neighborhood, error)

	// GetWithMembers は近隣のメタデータと全メンバー行を1回のレンジクエリで取得する。
	// 近隣が存在しない場合はNBHD_NOT_FOUNDを返す。
	GetWithMembers(ctx context.Context, nbhdID string) (*model.NeighborhoodDetail, error)

	// List は全近隣を作成日時の降順（新しい順）でページ取得する。
	// cursorが空の場合は先頭から取得する。サーバー側にカーソル状態は保持しない。
	List(ctx context.Context, cursor string, limit int) (*model.Page[model.Neighborhood], error)

	// Join はメンバーシップ行を作成し、member_countをアトミックに+1する。
	// 冪等: 既にメンバーの場合も成功を返し、カウントは二重加算されない。
	// 近隣が存在しない場合はNBHD_NOT_FOUNDを返す。
	Join(ctx context.Context, nbhdID, userID string) (*model.Membership, error)

	// Leave はメンバーシップ行を削除し、member_countをアトミックに-1する。
	// メンバーでない場合はNOT_MEMBERを返し、カウントは減算されない。
	Leave(ctx context.Context, nbhdID, userID string) error

	// ListByUser はユーザーが所属する近隣を参加日時の降順でページ取得する。
	ListByUser(ctx context.Context, userID, cursor string, limit int) (*model.Page[model.Neighborhood], error)
}

// UserProfileUpdate はプロフィール部分更新のフィールド集合。
// nilフィールドは変更せず、既存の値を維持する。
type UserProfileUpdate struct {
	DisplayName *string
	Avatar      *string
	Bio         *string
	Location    *string
	Email       *string
}

// UserRepository はユーザープロフィールの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID string) (*model.User, error)

	// Create はプロフィールを新規作成する。既に存在する場合はPROFILE_EXISTSを返す。
	Create(ctx context.Context, user *model.User) error

	// EnsureExists はプロフィールが無ければ最小構成で作成する（初回ログイン時の遅延作成）。
	// 既に存在する場合は何も変更せず成功する。
	EnsureExists(ctx context.Context, userID, handle string) error

	// Update はプロフィールを部分更新する。存在しない場合はUSER_NOT_FOUNDを返す。
	Update(ctx context.Context, userID string, fields UserProfileUpdate) (*model.User, error)

	// FindBatch は複数ユーザーのプロフィールをまとめて取得する（最大100件）。
	// 見つかったものだけをIDをキーとするマップで返す。
	FindBatch(ctx context.Context, userIDs []string) (map[string]*model.User, error)

	// List は全ユーザーを作成日時の降順でページ取得する。
	List(ctx context.Context, cursor string, limit int) (*model.Page[model.User], error)
}

// HandshakeStateStore はOAuthハンドシェイク状態の保管インターフェース。
// 単一プロセス構成ではメモリ実装、複数インスタンス構成では共有ストア実装を注入する。
type HandshakeStateStore interface {
	// Put はハンドシェイク状態を保存する。
	Put(ctx context.Context, state *model.HandshakeState) error

	// Consume は状態を取得すると同時に削除する（単回使用）。
	// 未知・期限切れ・消費済みのトークンに対してはnilを返す。
	Consume(ctx context.Context, token string) (*model.HandshakeState, error)
}
