package repository

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/keys"
	"github.com/hitoshi/nbhdcity/internal/model"
)

func newTestState(token string, ttl time.Duration) *model.HandshakeState {
	now := time.Now()
	return &model.HandshakeState{
		Token:          token,
		RedirectTarget: "/neighborhoods",
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestMemoryStateStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewMemoryStateStore()
	defer store.Stop()

	ctx := context.Background()
	if err := store.Put(ctx, newTestState("tok-1", time.Minute)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	first, err := store.Consume(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if first == nil || first.RedirectTarget != "/neighborhoods" {
		t.Fatalf("unexpected state: %+v", first)
	}

	second, err := store.Consume(ctx, "tok-1")
	if err != nil {
		t.Fatalf("second Consume failed: %v", err)
	}
	if second != nil {
		t.Error("token must be single-use")
	}
}

func TestMemoryStateStore_ExpiredReturnsNil(t *testing.T) {
	store := NewMemoryStateStore()
	defer store.Stop()

	ctx := context.Background()
	if err := store.Put(ctx, newTestState("tok-old", -time.Second)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	state, err := store.Consume(ctx, "tok-old")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state != nil {
		t.Error("expired token must not be accepted")
	}
}

func TestMemoryStateStore_UnknownReturnsNil(t *testing.T) {
	store := NewMemoryStateStore()
	defer store.Stop()

	state, err := store.Consume(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state != nil {
		t.Error("unknown token must not be accepted")
	}
}

func TestMemoryStateStore_CleanupRemovesExpired(t *testing.T) {
	store := NewMemoryStateStore()
	defer store.Stop()

	ctx := context.Background()
	_ = store.Put(ctx, newTestState("tok-live", time.Minute))
	_ = store.Put(ctx, newTestState("tok-dead", -time.Second))

	store.cleanup()

	store.mu.Lock()
	_, liveOK := store.states["tok-live"]
	_, deadOK := store.states["tok-dead"]
	store.mu.Unlock()

	if !liveOK {
		t.Error("live entry must survive cleanup")
	}
	if deadOK {
		t.Error("expired entry must be removed by cleanup")
	}
}

func TestDynamoStateStore_ConsumeDeletesConditionally(t *testing.T) {
	now := time.Now().UTC()
	row, _ := attributevalue.MarshalMap(ddbHandshakeState{
		PK: keys.StatePK("tok-1"), SK: keys.StateSK,
		RedirectTarget: "/neighborhoods/riverside",
		CreatedAt:      now.Format(time.RFC3339Nano),
		ExpiresAt:      now.Add(time.Minute).Format(time.RFC3339Nano),
		TTL:            now.Add(time.Minute).Unix(),
	})

	mock := &mockDynamoAPI{
		DeleteItemFunc: func(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			if aws.ToString(params.ConditionExpression) != "attribute_exists(PK)" {
				t.Errorf("consume must be a conditional delete, got %q", aws.ToString(params.ConditionExpression))
			}
			if params.ReturnValues != types.ReturnValueAllOld {
				t.Errorf("consume must return the old item, got %v", params.ReturnValues)
			}
			return &dynamodb.DeleteItemOutput{Attributes: row}, nil
		},
	}
	store := NewDynamoStateStore(mock, testTable)

	state, err := store.Consume(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state == nil || state.RedirectTarget != "/neighborhoods/riverside" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestDynamoStateStore_AlreadyConsumedReturnsNil(t *testing.T) {
	mock := &mockDynamoAPI{
		DeleteItemFunc: func(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("gone")}
		},
	}
	store := NewDynamoStateStore(mock, testTable)

	state, err := store.Consume(context.Background(), "tok-used")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state != nil {
		t.Error("consumed token must not be accepted twice")
	}
}

func TestDynamoStateStore_ExpiredRowReturnsNil(t *testing.T) {
	past := time.Now().UTC().Add(-time.Minute)
	row, _ := attributevalue.MarshalMap(ddbHandshakeState{
		PK: keys.StatePK("tok-old"), SK: keys.StateSK,
		RedirectTarget: "/",
		CreatedAt:      past.Add(-10 * time.Minute).Format(time.RFC3339Nano),
		ExpiresAt:      past.Format(time.RFC3339Nano),
		TTL:            past.Unix(),
	})
	mock := &mockDynamoAPI{
		DeleteItemFunc: func(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			return &dynamodb.DeleteItemOutput{Attributes: row}, nil
		},
	}
	store := NewDynamoStateStore(mock, testTable)

	// DynamoDBのTTL削除は遅延するため、期限判定はアプリ側で行う
	state, err := store.Consume(context.Background(), "tok-old")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if state != nil {
		t.Error("expired row must not be accepted even before TTL reaping")
	}
}

func TestDynamoStateStore_PutSetsTTLAttribute(t *testing.T) {
	var captured *dynamodb.PutItemInput
	mock := &mockDynamoAPI{
		PutItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = params
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	store := NewDynamoStateStore(mock, testTable)

	state := newTestState("tok-1", 10*time.Minute)
	if err := store.Put(context.Background(), state); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := captured.Item[keys.AttrTTL].(*types.AttributeValueMemberN); !ok {
		t.Errorf("expected numeric ttl attribute, got %v", captured.Item[keys.AttrTTL])
	}
	if pk, ok := captured.Item[keys.AttrPK].(*types.AttributeValueMemberS); !ok || pk.Value != "STATE#tok-1" {
		t.Errorf("PK = %v, want STATE#tok-1", captured.Item[keys.AttrPK])
	}
}
