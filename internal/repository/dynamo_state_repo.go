package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/keys"
	"github.com/hitoshi/nbhdcity/internal/model"
)

// DynamoStateStore はHandshakeStateStoreのDynamoDB実装。
// 複数プロセス構成ではこちらを使う。TTL属性により期限切れ行は
// ストア側でも掃除されるが、期限判定はConsume時のアプリ側チェックが正。
type DynamoStateStore struct {
	db        DynamoAPI
	tableName string
}

// NewDynamoStateStore はDynamoStateStoreを生成する。
func NewDynamoStateStore(db DynamoAPI, tableName string) *DynamoStateStore {
	return &DynamoStateStore{db: db, tableName: tableName}
}

// Put はハンドシェイク状態行を書き込む。
func (s *DynamoStateStore) Put(ctx context.Context, state *model.HandshakeState) error {
	item, err := attributevalue.MarshalMap(ddbHandshakeState{
		PK:             keys.StatePK(state.Token),
		SK:             keys.StateSK,
		RedirectTarget: state.RedirectTarget,
		CreatedAt:      formatISO(state.CreatedAt),
		ExpiresAt:      formatISO(state.ExpiresAt),
		TTL:            state.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal handshake state: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return wrapStoreError("put handshake state", err)
	}
	return nil
}

// Consume は状態行を条件付き削除で取り出す。削除の成功がトークンの
// 単回使用を担保する。未知・使用済み・期限切れはいずれも(nil, nil)。
func (s *DynamoStateStore) Consume(ctx context.Context, token string) (*model.HandshakeState, error) {
	out, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.StatePK(token)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.StateSK},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return nil, nil
		}
		return nil, wrapStoreError("consume handshake state", err)
	}

	var row ddbHandshakeState
	if err := attributevalue.UnmarshalMap(out.Attributes, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handshake state: %w", err)
	}

	state := &model.HandshakeState{
		Token:          token,
		RedirectTarget: row.RedirectTarget,
		CreatedAt:      parseISO(row.CreatedAt),
		ExpiresAt:      parseISO(row.ExpiresAt),
	}
	if time.Now().After(state.ExpiresAt) {
		return nil, nil
	}
	return state, nil
}

// compile-time interface check
var _ HandshakeStateStore = (*DynamoStateStore)(nil)
