package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/keys"
	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/store"
)

// ddbNeighborhood は近隣メタデータ行のDynamoDB上の構造。
type ddbNeighborhood struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	ID          string `dynamodbav:"id"`
	Name        string `dynamodbav:"name"`
	NameLower   string `dynamodbav:"name_lower"`
	Description string `dynamodbav:"description"`
	CreatedBy   string `dynamodbav:"created_by"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
	MemberCount int    `dynamodbav:"member_count"`
	EntityType  string `dynamodbav:"entity_type"`
}

// ddbNameReservation は近隣名の一意性予約行。
// この行の条件付き作成がグローバル一意性を担保する唯一の機構。
type ddbNameReservation struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	NeighborhoodID string `dynamodbav:"neighborhood_id"`
}

// ddbMembership はメンバーシップ行のDynamoDB上の構造。
// user_id/joined_atはGSI3のキー属性を兼ねる。
type ddbMembership struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	UserID         string `dynamodbav:"user_id"`
	NeighborhoodID string `dynamodbav:"neighborhood_id"`
	JoinedAt       string `dynamodbav:"joined_at"`
	EntityType     string `dynamodbav:"entity_type"`
}

// ddbUser はユーザープロフィール行のDynamoDB上の構造。
type ddbUser struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	UserID      string `dynamodbav:"user_id"`
	Handle      string `dynamodbav:"handle"`
	DisplayName string `dynamodbav:"display_name"`
	Avatar      string `dynamodbav:"avatar"`
	Bio         string `dynamodbav:"bio"`
	Location    string `dynamodbav:"location"`
	Email       string `dynamodbav:"email"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
	EntityType  string `dynamodbav:"entity_type"`
}

// ddbHandshakeState はOAuthハンドシェイク状態行のDynamoDB上の構造。
// TTL属性によりストア側でも期限切れエントリが削除される。
type ddbHandshakeState struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	RedirectTarget string `dynamodbav:"redirect_target"`
	CreatedAt      string `dynamodbav:"created_at"`
	ExpiresAt      string `dynamodbav:"expires_at"`
	TTL            int64  `dynamodbav:"ttl"`
}

// isoLayout は全行のタイムスタンプ表現。
// created_at/joined_atはGSIのレンジキーとして辞書順（バイト順）で比較されるため、
// 末尾のゼロを省略するRFC3339Nanoでは時刻順と辞書順が一致しない。
// 固定幅のナノ秒9桁で常に同じ長さに揃える。
const isoLayout = "2006-01-02T15:04:05.000000000Z"

// nowISO は現在時刻をUTCの固定幅ISO形式で返す。
func nowISO() string {
	return formatISO(time.Now())
}

// formatISO は時刻をUTCの固定幅ISO形式に変換する。
func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// parseISO はRFC3339タイムスタンプをtime.Timeに変換する。
// 解釈できない場合はゼロ値を返す（行の欠損属性を致命扱いにしない）。
func parseISO(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d *ddbNeighborhood) toModel() model.Neighborhood {
	return model.Neighborhood{
		ID:          d.ID,
		Name:        d.Name,
		NameLower:   d.NameLower,
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   parseISO(d.CreatedAt),
		UpdatedAt:   parseISO(d.UpdatedAt),
		MemberCount: d.MemberCount,
	}
}

func (d *ddbMembership) toModel() model.Membership {
	return model.Membership{
		NeighborhoodID: d.NeighborhoodID,
		UserID:         d.UserID,
		JoinedAt:       parseISO(d.JoinedAt),
	}
}

func (d *ddbUser) toModel() model.User {
	return model.User{
		ID:          d.UserID,
		Handle:      d.Handle,
		DisplayName: d.DisplayName,
		Avatar:      d.Avatar,
		Bio:         d.Bio,
		Location:    d.Location,
		Email:       d.Email,
		CreatedAt:   parseISO(d.CreatedAt),
		UpdatedAt:   parseISO(d.UpdatedAt),
	}
}

func newDDBUser(u *model.User, createdAt string) ddbUser {
	return ddbUser{
		PK:          keys.UserPK(u.ID),
		SK:          keys.ProfileSK,
		UserID:      u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Bio:         u.Bio,
		Location:    u.Location,
		Email:       u.Email,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		EntityType:  keys.EntityTypeUser,
	}
}

// conditionalCheckFailed はトランザクションのキャンセル理由コード。
const conditionalCheckFailed = "ConditionalCheckFailed"

// transactCancellation はTransactWriteItemsのキャンセル理由を取り出す。
// トランザクションキャンセル以外のエラーの場合はnil, falseを返す。
func transactCancellation(err error) ([]types.CancellationReason, bool) {
	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		return cancelled.CancellationReasons, true
	}
	return nil, false
}

// reasonFailed はキャンセル理由のi番目が条件チェック失敗かを判定する。
func reasonFailed(reasons []types.CancellationReason, i int) bool {
	if i >= len(reasons) || reasons[i].Code == nil {
		return false
	}
	return *reasons[i].Code == conditionalCheckFailed
}

// wrapStoreError は生のストアエラーをエラークラスに変換する。
// 一時障害はSTORE_UNAVAILABLE（リトライ可能）、それ以外はそのままラップする。
func wrapStoreError(op string, err error) error {
	if store.IsTransient(err) {
		return model.NewStoreUnavailableError(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
