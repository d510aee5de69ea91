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
	"github.com/google/uuid"

	"github.com/hitoshi/nbhdcity/internal/keys"
	"github.com/hitoshi/nbhdcity/internal/model"
	"github.com/hitoshi/nbhdcity/internal/store"
)

// DynamoNeighborhoodRepo はNeighborhoodRepositoryのDynamoDB実装。
// 一意性と冪等性はすべて条件付き書き込みで担保し、明示的なロックは取らない。
type DynamoNeighborhoodRepo struct {
	db        DynamoAPI
	tableName string
	recorder  RetryRecorder
}

// NewDynamoNeighborhoodRepo はDynamoNeighborhoodRepoを生成する。
// recorderはnil可（リトライメトリクスを記録しない）。
func NewDynamoNeighborhoodRepo(db DynamoAPI, tableName string, recorder RetryRecorder) *DynamoNeighborhoodRepo {
	return &DynamoNeighborhoodRepo{db: db, tableName: tableName, recorder: recorder}
}

// withRetryOnce は一時障害に対して1回だけバックオフ付きでリトライする。
// リトライ発生時はrecorderに記録する。冪等な操作（読み取り・Join）でのみ使用すること。
func withRetryOnce(ctx context.Context, recorder RetryRecorder, fn func() error) error {
	err := fn()
	if err == nil || !model.IsTransient(err) {
		return err
	}

	if recorder != nil {
		recorder.RecordStoreRetry()
	}

	select {
	case <-time.After(store.CalculateBackoff(0)):
	case <-ctx.Done():
		return model.NewStoreUnavailableError(ctx.Err())
	}

	return fn()
}

// Create は名前予約行とメタデータ行を単一トランザクションで書き込む。
// 予約行の条件付き作成（attribute_not_exists）が失敗した場合はNAME_CONFLICT。
// トランザクションは全体が成功するか全体が失敗するかのどちらかであり、
// 予約だけが残留する「ゴースト」状態は発生しない。
func (r *DynamoNeighborhoodRepo) Create(ctx context.Context, name, description, createdBy string) (*model.Neighborhood, error) {
	nbhdID := uuid.New().String()
	timestamp := nowISO()

	meta := ddbNeighborhood{
		PK:          keys.NeighborhoodPK(nbhdID),
		SK:          keys.MetadataSK,
		ID:          nbhdID,
		Name:        name,
		NameLower:   keys.NameLower(name),
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   timestamp,
		UpdatedAt:   timestamp,
		MemberCount: 0,
		EntityType:  keys.EntityTypeNeighborhood,
	}

	metaItem, err := attributevalue.MarshalMap(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal neighborhood item: %w", err)
	}

	reservationItem, err := attributevalue.MarshalMap(ddbNameReservation{
		PK:             keys.NamePK(name),
		SK:             keys.NameSK,
		NeighborhoodID: nbhdID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal name reservation item: %w", err)
	}

	_, err = r.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                reservationItem,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item:      metaItem,
				},
			},
		},
	})
	if err != nil {
		if reasons, ok := transactCancellation(err); ok {
			if reasonFailed(reasons, 0) {
				return nil, model.NewNameConflictError(name)
			}
		}
		return nil, wrapStoreError("create neighborhood", err)
	}

	nbhd := meta.toModel()
	return &nbhd, nil
}

// Update は近隣のメタデータを更新する。
// 名前変更時は旧予約の削除と新予約の条件付き作成、メタデータ更新を
// 同一トランザクションで行い、一意性を維持したまま付け替える。
func (r *DynamoNeighborhoodRepo) Update(ctx context.Context, nbhdID string, name, description *string) (*model.Neighborhood, error) {
	current, err := r.getMetadata(ctx, nbhdID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, model.NewNeighborhoodNotFoundError(nbhdID)
	}

	if name == nil || keys.NamePK(*name) == keys.NamePK(current.Name) {
		// 予約の付け替えが不要なケース（説明のみ、または大文字小文字だけの変更）
		return r.updateMetadataOnly(ctx, nbhdID, current, name, description)
	}

	return r.rename(ctx, nbhdID, current, *name, description)
}

func (r *DynamoNeighborhoodRepo) updateMetadataOnly(ctx context.Context, nbhdID string, current *ddbNeighborhood, name, description *string) (*model.Neighborhood, error) {
	updateExpr := "SET updated_at = :updated_at"
	exprValues := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: nowISO()},
	}
	exprNames := map[string]string{}

	if name != nil {
		updateExpr += ", #name = :name, name_lower = :name_lower"
		exprNames["#name"] = "name"
		exprValues[":name"] = &types.AttributeValueMemberS{Value: *name}
		exprValues[":name_lower"] = &types.AttributeValueMemberS{Value: current.NameLower}
	}
	if description != nil {
		updateExpr += ", description = :description"
		exprValues[":description"] = &types.AttributeValueMemberS{Value: *description}
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MetadataSK},
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
			return nil, model.NewNeighborhoodNotFoundError(nbhdID)
		}
		return nil, wrapStoreError("update neighborhood", err)
	}

	var updated ddbNeighborhood
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated neighborhood: %w", err)
	}
	nbhd := updated.toModel()
	return &nbhd, nil
}

func (r *DynamoNeighborhoodRepo) rename(ctx context.Context, nbhdID string, current *ddbNeighborhood, newName string, description *string) (*model.Neighborhood, error) {
	newReservation, err := attributevalue.MarshalMap(ddbNameReservation{
		PK:             keys.NamePK(newName),
		SK:             keys.NameSK,
		NeighborhoodID: nbhdID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal name reservation item: %w", err)
	}

	updateExpr := "SET #name = :name, name_lower = :name_lower, updated_at = :updated_at"
	exprValues := map[string]types.AttributeValue{
		":name":         &types.AttributeValueMemberS{Value: newName},
		":name_lower":   &types.AttributeValueMemberS{Value: keys.NameLower(newName)},
		":updated_at":   &types.AttributeValueMemberS{Value: nowISO()},
		":expected_old": &types.AttributeValueMemberS{Value: current.NameLower},
	}
	if description != nil {
		updateExpr += ", description = :description"
		exprValues[":description"] = &types.AttributeValueMemberS{Value: *description}
	}

	_, err = r.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                newReservation,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NamePK(current.NameLower)},
						keys.AttrSK: &types.AttributeValueMemberS{Value: keys.NameSK},
					},
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
						keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MetadataSK},
					},
					UpdateExpression:          aws.String(updateExpr),
					ExpressionAttributeNames:  map[string]string{"#name": "name"},
					ExpressionAttributeValues: exprValues,
					// 読み取り時のname_lowerから変わっていないことを条件に含める。
					// 条件がないと同一近隣への同時リネームが両方コミットしてしまい、
					// 敗者側の新予約行が誰も保持しない名前のゴーストロックとして残る。
					ConditionExpression: aws.String("attribute_exists(PK) AND name_lower = :expected_old"),
				},
			},
		},
	})
	if err != nil {
		if reasons, ok := transactCancellation(err); ok {
			if reasonFailed(reasons, 0) {
				return nil, model.NewNameConflictError(newName)
			}
			if reasonFailed(reasons, 2) {
				// メタデータ条件の失敗は「消えた」か「別のリネームに先を越された」かの
				// どちらか。読み直して振り分ける。
				meta, getErr := r.getMetadata(ctx, nbhdID)
				if getErr == nil && meta == nil {
					return nil, model.NewNeighborhoodNotFoundError(nbhdID)
				}
				return nil, model.NewConcurrentUpdateError(nbhdID)
			}
		}
		return nil, wrapStoreError("rename neighborhood", err)
	}

	return r.GetNeighborhood(ctx, nbhdID)
}

// GetNeighborhood はメタデータ行のみを取得する。存在しない場合はNBHD_NOT_FOUND。
func (r *DynamoNeighborhoodRepo) GetNeighborhood(ctx context.Context, nbhdID string) (*model.Neighborhood, error) {
	var meta *ddbNeighborhood
	err := withRetryOnce(ctx, r.recorder, func() error {
		var err error
		meta, err = r.getMetadata(ctx, nbhdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, model.NewNeighborhoodNotFoundError(nbhdID)
	}
	nbhd := meta.toModel()
	return &nbhd, nil
}

func (r *DynamoNeighborhoodRepo) getMetadata(ctx context.Context, nbhdID string) (*ddbNeighborhood, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MetadataSK},
		},
	})
	if err != nil {
		return nil, wrapStoreError("get neighborhood", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var meta ddbNeighborhood
	if err := attributevalue.UnmarshalMap(out.Item, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal neighborhood: %w", err)
	}
	return &meta, nil
}

// GetWithMembers は近隣パーティション全体を1回のレンジクエリで取得し、
// メタデータ行とメンバー行に振り分ける。一時障害は1回リトライする。
func (r *DynamoNeighborhoodRepo) GetWithMembers(ctx context.Context, nbhdID string) (*model.NeighborhoodDetail, error) {
	var detail *model.NeighborhoodDetail
	err := withRetryOnce(ctx, r.recorder, func() error {
		var err error
		detail, err = r.queryPartition(ctx, nbhdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (r *DynamoNeighborhoodRepo) queryPartition(ctx context.Context, nbhdID string) (*model.NeighborhoodDetail, error) {
	detail := &model.NeighborhoodDetail{}
	found := false

	var startKey map[string]types.AttributeValue
	for {
		out, err := r.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, wrapStoreError("query neighborhood partition", err)
		}

		for _, item := range out.Items {
			sk := stringAttr(item, keys.AttrSK)
			switch {
			case sk == keys.MetadataSK:
				var meta ddbNeighborhood
				if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
					return nil, fmt.Errorf("failed to unmarshal neighborhood: %w", err)
				}
				detail.Neighborhood = meta.toModel()
				found = true
			case keys.IsMemberSK(sk):
				var member ddbMembership
				if err := attributevalue.UnmarshalMap(item, &member); err != nil {
					return nil, fmt.Errorf("failed to unmarshal membership: %w", err)
				}
				detail.Members = append(detail.Members, member.toModel())
			}
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	if !found {
		return nil, model.NewNeighborhoodNotFoundError(nbhdID)
	}
	return detail, nil
}

// List はGSI1を新しい順にクエリしてページを返す。一時障害は1回リトライする。
func (r *DynamoNeighborhoodRepo) List(ctx context.Context, cursor string, limit int) (*model.Page[model.Neighborhood], error) {
	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var page *model.Page[model.Neighborhood]
	err = withRetryOnce(ctx, r.recorder, func() error {
		out, err := r.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(keys.IndexByEntityType),
			KeyConditionExpression: aws.String("entity_type = :type"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":type": &types.AttributeValueMemberS{Value: keys.EntityTypeNeighborhood},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(limit)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return wrapStoreError("list neighborhoods", err)
		}

		var rows []ddbNeighborhood
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
			return fmt.Errorf("failed to unmarshal neighborhoods: %w", err)
		}

		items := make([]model.Neighborhood, 0, len(rows))
		for i := range rows {
			items = append(items, rows[i].toModel())
		}
		page = &model.Page[model.Neighborhood]{
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

// Join はメンバーシップ行の条件付き作成とmember_countのアトミックな+1を
// 単一トランザクションで行う。既にメンバーの場合は成功扱い（冪等）とし、
// カウントは二重加算されない。一時障害は1回リトライする（操作自体が冪等のため安全）。
func (r *DynamoNeighborhoodRepo) Join(ctx context.Context, nbhdID, userID string) (*model.Membership, error) {
	var membership *model.Membership
	err := withRetryOnce(ctx, r.recorder, func() error {
		var err error
		membership, err = r.joinOnce(ctx, nbhdID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

func (r *DynamoNeighborhoodRepo) joinOnce(ctx context.Context, nbhdID, userID string) (*model.Membership, error) {
	timestamp := nowISO()

	member := ddbMembership{
		PK:             keys.NeighborhoodPK(nbhdID),
		SK:             keys.MemberSK(userID),
		UserID:         userID,
		NeighborhoodID: nbhdID,
		JoinedAt:       timestamp,
		EntityType:     keys.EntityTypeMembership,
	}
	memberItem, err := attributevalue.MarshalMap(member)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal membership item: %w", err)
	}

	_, err = r.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                memberItem,
					ConditionExpression: aws.String("attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
						keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MetadataSK},
					},
					UpdateExpression: aws.String("ADD member_count :one"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one": &types.AttributeValueMemberN{Value: "1"},
					},
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		if reasons, ok := transactCancellation(err); ok {
			if reasonFailed(reasons, 0) {
				// 既にメンバー: 冪等に成功を返す。既存行を読み戻して返却する。
				return r.getMembership(ctx, nbhdID, userID)
			}
			if reasonFailed(reasons, 1) {
				return nil, model.NewNeighborhoodNotFoundError(nbhdID)
			}
		}
		return nil, wrapStoreError("join neighborhood", err)
	}

	m := member.toModel()
	return &m, nil
}

func (r *DynamoNeighborhoodRepo) getMembership(ctx context.Context, nbhdID, userID string) (*model.Membership, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MemberSK(userID)},
		},
	})
	if err != nil {
		return nil, wrapStoreError("get membership", err)
	}
	if out.Item == nil {
		// 作成競合の直後に退会された稀なケース。メンバーだった事実に基づき成功扱い。
		return &model.Membership{NeighborhoodID: nbhdID, UserID: userID}, nil
	}

	var member ddbMembership
	if err := attributevalue.UnmarshalMap(out.Item, &member); err != nil {
		return nil, fmt.Errorf("failed to unmarshal membership: %w", err)
	}
	m := member.toModel()
	return &m, nil
}

// Leave はメンバーシップ行の条件付き削除とmember_countのアトミックな-1を
// 単一トランザクションで行う。メンバーでない場合はNOT_MEMBERを返し、
// カウントは一切減算されない。リトライはしない（二重減算を避けるため）。
func (r *DynamoNeighborhoodRepo) Leave(ctx context.Context, nbhdID, userID string) error {
	_, err := r.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
						keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MemberSK(userID)},
					},
					ConditionExpression: aws.String("attribute_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(nbhdID)},
						keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MetadataSK},
					},
					UpdateExpression: aws.String("ADD member_count :minus_one"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":minus_one": &types.AttributeValueMemberN{Value: "-1"},
					},
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		if reasons, ok := transactCancellation(err); ok {
			if reasonFailed(reasons, 0) {
				return model.NewNotMemberError(nbhdID)
			}
			if reasonFailed(reasons, 1) {
				return model.NewNeighborhoodNotFoundError(nbhdID)
			}
		}
		return wrapStoreError("leave neighborhood", err)
	}
	return nil
}

// ListByUser はGSI3でユーザーの所属を参加日時の降順に取得し、
// 各近隣のメタデータをBatchGetItemでまとめて読み戻す。
func (r *DynamoNeighborhoodRepo) ListByUser(ctx context.Context, userID, cursor string, limit int) (*model.Page[model.Neighborhood], error) {
	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var page *model.Page[model.Neighborhood]
	err = withRetryOnce(ctx, r.recorder, func() error {
		out, err := r.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(keys.IndexByUser),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(limit)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return wrapStoreError("list user memberships", err)
		}

		var memberships []ddbMembership
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &memberships); err != nil {
			return fmt.Errorf("failed to unmarshal memberships: %w", err)
		}

		neighborhoods, err := r.batchGetMetadata(ctx, memberships)
		if err != nil {
			return err
		}

		page = &model.Page[model.Neighborhood]{
			Items:      neighborhoods,
			NextCursor: encodeCursor(out.LastEvaluatedKey),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// batchGetMetadata はメンバーシップ行の近隣IDからメタデータ行をまとめて取得する。
// GSI3の並び（参加日時の降順）を維持して返す。削除済みの近隣は読み飛ばす。
func (r *DynamoNeighborhoodRepo) batchGetMetadata(ctx context.Context, memberships []ddbMembership) ([]model.Neighborhood, error) {
	if len(memberships) == 0 {
		return []model.Neighborhood{}, nil
	}

	requestKeys := make([]map[string]types.AttributeValue, 0, len(memberships))
	for _, m := range memberships {
		requestKeys = append(requestKeys, map[string]types.AttributeValue{
			keys.AttrPK: &types.AttributeValueMemberS{Value: keys.NeighborhoodPK(m.NeighborhoodID)},
			keys.AttrSK: &types.AttributeValueMemberS{Value: keys.MetadataSK},
		})
	}

	byID := make(map[string]model.Neighborhood, len(memberships))
	for len(requestKeys) > 0 {
		out, err := r.db.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				r.tableName: {Keys: requestKeys},
			},
		})
		if err != nil {
			return nil, wrapStoreError("batch get neighborhoods", err)
		}

		var rows []ddbNeighborhood
		if err := attributevalue.UnmarshalListOfMaps(out.Responses[r.tableName], &rows); err != nil {
			return nil, fmt.Errorf("failed to unmarshal neighborhoods: %w", err)
		}
		for i := range rows {
			byID[rows[i].ID] = rows[i].toModel()
		}

		// 未処理キーが返された場合は続けて取得する
		requestKeys = nil
		if unprocessed, ok := out.UnprocessedKeys[r.tableName]; ok {
			requestKeys = unprocessed.Keys
		}
	}

	ordered := make([]model.Neighborhood, 0, len(memberships))
	for _, m := range memberships {
		if nbhd, ok := byID[m.NeighborhoodID]; ok {
			ordered = append(ordered, nbhd)
		}
	}
	return ordered, nil
}

// stringAttr はアイテムから文字列属性を取り出す。欠損時は空文字列。
func stringAttr(item map[string]types.AttributeValue, name string) string {
	if av, ok := item[name].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}

// compile-time interface check
var _ NeighborhoodRepository = (*DynamoNeighborhoodRepo)(nil)
