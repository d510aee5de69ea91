package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/keys"
)

// tableWaitTimeout はCreateTable後にテーブルがACTIVEになるまでの待機上限。
const tableWaitTimeout = 2 * time.Minute

// EnsureTable はテーブルとGSIを作成する。主にDynamoDB Localでのローカル開発用。
// 本番のテーブルはインフラ側でプロビジョニングされる前提のため、
// 既にテーブルが存在する場合は何もしない。
// ハンドシェイク状態行の自動削除のため、ttl属性のTTLを有効化する。
func EnsureTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		slog.Info("table already exists", slog.String("table", tableName))
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table: %w", err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(keys.AttrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(keys.AttrSK), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(keys.AttrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(keys.AttrSK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(keys.AttrEntityType), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(keys.AttrCreatedAt), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(keys.AttrUserID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(keys.AttrJoinedAt), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				// 作成日時順の全件リスト（近隣・ユーザー）
				IndexName: aws.String(keys.IndexByEntityType),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(keys.AttrEntityType), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(keys.AttrCreatedAt), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				// ユーザーの所属一覧（参加日時順）
				IndexName: aws.String(keys.IndexByUser),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(keys.AttrUserID), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(keys.AttrJoinedAt), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, tableWaitTimeout); err != nil {
		return fmt.Errorf("table did not become active: %w", err)
	}

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(keys.AttrTTL),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		// DynamoDB LocalはTTL設定をサポートしないバージョンがあるため致命扱いにしない
		slog.Warn("failed to enable TTL", slog.String("error", err.Error()))
	}

	slog.Info("table created", slog.String("table", tableName))
	return nil
}
