package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/keys"
	"github.com/hitoshi/nbhdcity/internal/model"
)

func TestUserFindByID_MissingReturnsNil(t *testing.T) {
	repo := NewDynamoUserRepo(&mockDynamoAPI{}, testTable, nil)

	user, err := repo.FindByID(context.Background(), "did:plc:nobody")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for missing user, got %+v", user)
	}
}

func TestUserFindByID_Found(t *testing.T) {
	item, _ := attributevalue.MarshalMap(ddbUser{
		PK: keys.UserPK("did:plc:alice"), SK: keys.ProfileSK,
		UserID: "did:plc:alice", Handle: "alice.bsky.social",
		DisplayName: "Alice", CreatedAt: "2026-08-01T09:00:00Z",
		UpdatedAt: "2026-08-01T09:00:00Z", EntityType: keys.EntityTypeUser,
	})
	mock := &mockDynamoAPI{
		GetItemFunc: func(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			if pk, ok := params.Key[keys.AttrPK].(*types.AttributeValueMemberS); !ok || pk.Value != "USER#did:plc:alice" {
				t.Errorf("unexpected key: %v", params.Key)
			}
			return &dynamodb.GetItemOutput{Item: item}, nil
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	user, err := repo.FindByID(context.Background(), "did:plc:alice")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if user == nil || user.Handle != "alice.bsky.social" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestUserCreate_ProfileExists(t *testing.T) {
	mock := &mockDynamoAPI{
		PutItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			if aws.ToString(params.ConditionExpression) != "attribute_not_exists(PK)" {
				t.Errorf("create must be conditional, got %q", aws.ToString(params.ConditionExpression))
			}
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	err := repo.Create(context.Background(), &model.User{ID: "did:plc:alice", Handle: "alice.bsky.social"})
	if !model.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestUserEnsureExists_PreservesCreatedAt(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoAPI{
		UpdateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	if err := repo.EnsureExists(context.Background(), "did:plc:alice", "alice.bsky.social"); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	expr := aws.ToString(captured.UpdateExpression)
	if !strings.Contains(expr, "if_not_exists(created_at") {
		t.Errorf("created_at must survive re-login, expression = %q", expr)
	}
	if !strings.Contains(expr, "handle = :handle") {
		t.Errorf("handle must be refreshed, expression = %q", expr)
	}
}

func TestUserUpdate_PartialFields(t *testing.T) {
	updated, _ := attributevalue.MarshalMap(ddbUser{
		PK: keys.UserPK("did:plc:alice"), SK: keys.ProfileSK,
		UserID: "did:plc:alice", Handle: "alice.bsky.social",
		DisplayName: "Alice", Bio: "hello",
		CreatedAt: "2026-08-01T09:00:00Z", UpdatedAt: "2026-08-10T09:00:00Z",
	})

	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoAPI{
		UpdateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{Attributes: updated}, nil
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	bio := "hello"
	user, err := repo.Update(context.Background(), "did:plc:alice", UserProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if user.Bio != "hello" {
		t.Errorf("bio = %q", user.Bio)
	}

	expr := aws.ToString(captured.UpdateExpression)
	if !strings.Contains(expr, "#bio = :bio") {
		t.Errorf("expected bio in expression, got %q", expr)
	}
	if strings.Contains(expr, ":display_name") || strings.Contains(expr, ":email") {
		t.Errorf("nil fields must not appear in expression: %q", expr)
	}
}

func TestUserUpdate_NotFound(t *testing.T) {
	mock := &mockDynamoAPI{
		UpdateItemFunc: func(_ context.Context, _ *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	bio := "hello"
	_, err := repo.Update(context.Background(), "did:plc:nobody", UserProfileUpdate{Bio: &bio})
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestUserFindBatch_DeduplicatesAndMapsByID(t *testing.T) {
	alice, _ := attributevalue.MarshalMap(ddbUser{
		PK: keys.UserPK("did:plc:alice"), SK: keys.ProfileSK,
		UserID: "did:plc:alice", Handle: "alice.bsky.social",
		CreatedAt: "2026-08-01T09:00:00Z", UpdatedAt: "2026-08-01T09:00:00Z",
	})

	var requested int
	mock := &mockDynamoAPI{
		BatchGetItemFunc: func(_ context.Context, params *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
			requested = len(params.RequestItems[testTable].Keys)
			return &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{
					testTable: {alice},
				},
			}, nil
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	result, err := repo.FindBatch(context.Background(), []string{"did:plc:alice", "did:plc:alice", "did:plc:gone"})
	if err != nil {
		t.Fatalf("FindBatch failed: %v", err)
	}
	if requested != 2 {
		t.Errorf("requested keys = %d, want 2 (duplicates removed)", requested)
	}
	if len(result) != 1 {
		t.Fatalf("result size = %d, want 1 (missing IDs omitted)", len(result))
	}
	if result["did:plc:alice"].Handle != "alice.bsky.social" {
		t.Errorf("unexpected user: %+v", result["did:plc:alice"])
	}
}

func TestUserFindBatch_Empty(t *testing.T) {
	called := false
	mock := &mockDynamoAPI{
		BatchGetItemFunc: func(_ context.Context, _ *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
			called = true
			return &dynamodb.BatchGetItemOutput{}, nil
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	result, err := repo.FindBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("FindBatch failed: %v", err)
	}
	if len(result) != 0 || called {
		t.Error("empty input must not hit the store")
	}
}

func TestUserList_QueriesUserIndex(t *testing.T) {
	mock := &mockDynamoAPI{
		QueryFunc: func(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			if aws.ToString(params.IndexName) != keys.IndexByEntityType {
				t.Errorf("index = %q, want %q", aws.ToString(params.IndexName), keys.IndexByEntityType)
			}
			v := params.ExpressionAttributeValues[":type"].(*types.AttributeValueMemberS)
			if v.Value != keys.EntityTypeUser {
				t.Errorf("entity_type = %q, want user", v.Value)
			}
			return &dynamodb.QueryOutput{}, nil
		},
	}
	repo := NewDynamoUserRepo(mock, testTable, nil)

	page, err := repo.List(context.Background(), "", 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.NextCursor != "" {
		t.Errorf("expected empty cursor on final page, got %q", page.NextCursor)
	}
}
