package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/keys"
	"github.com/hitoshi/nbhdcity/internal/model"
)

// batchGetLimit はBatchGetItemの1リクエストあたりのキー数上限。
const batchGetLimit = 100

// DynamoUserRepo はUserRepositoryのDynamoDB実装。
type DynamoUserRepo struct {
	db        DynamoAPI
	tableName string
	recorder  RetryRecorder
}

// NewDynamoUserRepo はDynamoUserRepoを生成する。
// recorderはnil可（リトライメトリクスを記録しない）。
func NewDynamoUserRepo(db DynamoAPI, tableName string, recorder RetryRecorder) *DynamoUserRepo {
	return &DynamoUserRepo{db: db, tableName: tableName, recorder: recorder}
}

// FindByID はユーザープロフィールを取得する。存在しない場合は(nil, nil)を返す。
// 認証フローでは「未登録」が正常系のため、エラーにはしない。
func (r *DynamoUserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := withRetryOnce(ctx, r.recorder, func() error {
		out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				keys.AttrPK: &types.AttributeValueMemberS{Value: keys.UserPK(userID)},
				keys.AttrSK: &types.AttributeValueMemberS{Value: keys.ProfileSK},
			},
		})
		if err != nil {
			return wrapStoreError("get user", err)
		}
		if out.Item == nil {
			user = nil
			return nil
		}

		var row ddbUser
		if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
			return fmt.Errorf("failed to unmarshal user: %w", err)
		}
		u := row.toModel()
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create はプロフィール行を条件付きで作成する。既に存在する場合はPROFILE_EXISTS。
func (r *DynamoUserRepo) Create(ctx context.Context, user *model.User) error {
	timestamp := nowISO()
	item, err := attributevalue.MarshalMap(newDDBUser(user, timestamp))
	if err != nil {
		return fmt.Errorf("failed to marshal user item: %w", err)
	}

	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return model.NewProfileExistsError(user.ID)
		}
		return wrapStoreError("create user", err)
	}

	user.CreatedAt = parseISO(timestamp)
	user.UpdatedAt = user.CreatedAt
	return nil
}

// EnsureExists はログイン完了時にプロフィール行をアップサートする。
// 初回ログインなら行が作られ、2回目以降はhandleだけが最新化される。
// if_not_exists(created_at)により作成日時は初回の値が維持される。
func (r *DynamoUserRepo) EnsureExists(ctx context.Context, userID, handle string) error {
	timestamp := nowISO()

	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.UserPK(userID)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.ProfileSK},
		},
		UpdateExpression: aws.String(
			"SET handle = :handle, updated_at = :now, " +
				"user_id = if_not_exists(user_id, :uid), " +
				"entity_type = if_not_exists(entity_type, :type), " +
				"created_at = if_not_exists(created_at, :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":handle": &types.AttributeValueMemberS{Value: handle},
			":now":    &types.AttributeValueMemberS{Value: timestamp},
			":uid":    &types.AttributeValueMemberS{Value: userID},
			":type":   &types.AttributeValueMemberS{Value: keys.EntityTypeUser},
		},
	})
	if err != nil {
		return wrapStoreError("ensure user", err)
	}
	return nil
}

// Update は指定されたフィールドのみを更新する。nilのフィールドは変更しない。
// プロフィール行が存在しない場合はUSER_NOT_FOUND。
func (r *DynamoUserRepo) Update(ctx context.Context, userID string, fields UserProfileUpdate) (*model.User, error) {
	updateExpr := "SET updated_at = :now"
	exprValues := map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberS{Value: nowISO()},
	}
	exprNames := map[string]string{}

	set := func(attr, placeholder string, v *string) {
		if v == nil {
			return
		}
		// 予約語衝突を避けるため属性名は一律プレースホルダー経由にする
		nameToken := "#" + attr
		exprNames[nameToken] = attr
		updateExpr += ", " + nameToken + " = " + placeholder
		exprValues[placeholder] = &types.AttributeValueMemberS{Value: *v}
	}
	set("display_name", ":display_name", fields.DisplayName)
	set("avatar", ":avatar", fields.Avatar)
	set("bio", ":bio", fields.Bio)
	set("location", ":location", fields.Location)
	set("email", ":email", fields.Email)

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.UserPK(userID)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.ProfileSK},
		},
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeValues: exprValues,
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(exprNames) > 0 {
		input.ExpressionAttributeNames = exprNames
	}

	out, err := r.db.UpdateItem(ctx, input)
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, wrapStoreError("update user", err)
	}

	var row ddbUser
	if err := attributevalue.UnmarshalMap(out.Attributes, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated user: %w", err)
	}
	u := row.toModel()
	return &u, nil
}

// FindBatch は複数ユーザーのプロフィールをまとめて取得する。
// 結果はユーザーIDをキーとするマップで、見つからなかったIDは含まれない。
// リクエストは100件ずつに分割し、未処理キーは続けて取得する。
func (r *DynamoUserRepo) FindBatch(ctx context.Context, userIDs []string) (map[string]*model.User, error) {
	result := make(map[string]*model.User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	// 重複IDはキー重複でBatchGetItemがエラーになるため除去する
	seen := make(map[string]bool, len(userIDs))
	unique := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	for start := 0; start < len(unique); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(unique) {
			end = len(unique)
		}

		requestKeys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range unique[start:end] {
			requestKeys = append(requestKeys, map[string]types.AttributeValue{
				keys.AttrPK: &types.AttributeValueMemberS{Value: keys.UserPK(id)},
				keys.AttrSK: &types.AttributeValueMemberS{Value: keys.ProfileSK},
			})
		}

		for len(requestKeys) > 0 {
			out, err := r.db.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					r.tableName: {Keys: requestKeys},
				},
			})
			if err != nil {
				return nil, wrapStoreError("batch get users", err)
			}

			var rows []ddbUser
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[r.tableName], &rows); err != nil {
				return nil, fmt.Errorf("failed to unmarshal users: %w", err)
			}
			for i := range rows {
				u := rows[i].toModel()
				result[u.ID] = &u
			}

			requestKeys = nil
			if unprocessed, ok := out.UnprocessedKeys[r.tableName]; ok {
				requestKeys = unprocessed.Keys
			}
		}
	}

	return result, nil
}

// List はGSI1を新しい順にクエリして登録ユーザーのページを返す。
func (r *DynamoUserRepo) List(ctx context.Context, cursor string, limit int) (*model.Page[model.User], error) {
	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var page *model.Page[model.User]
	err = withRetryOnce(ctx, r.recorder, func() error {
		out, err := r.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(keys.IndexByEntityType),
			KeyConditionExpression: aws.String("entity_type = :type"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":type": &types.AttributeValueMemberS{Value: keys.EntityTypeUser},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(limit)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return wrapStoreError("list users", err)
		}

		var rows []ddbUser
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
			return fmt.Errorf("failed to unmarshal users: %w", err)
		}

		items := make([]model.User, 0, len(rows))
		for i := range rows {
			items = append(items, rows[i].toModel())
		}
		page = &model.Page[model.User]{
			Items:      items,
			NextCursor: encodeCursor(out.LastEvaluatedKey),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// compile-time interface check
var _ UserRepository = (*DynamoUserRepo)(nil)
