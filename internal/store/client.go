// Package store はDynamoDBクライアントの生成とストア障害の分類を提供する。
package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Options はDynamoDBクライアントの接続設定。
type Options struct {
	Region string
	// EndpointURL はDynamoDB Localなどローカルエミュレーション用の接続先。
	// 空の場合はAWSの標準エンドポイントを使用する。
	EndpointURL string
}

// Open はDynamoDBクライアントを生成する。
// クライアント生成は接続を試行しないため、実際の疎通確認にはPingを使用すること。
func Open(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
	})

	return client, nil
}

// Ping はテーブルの存在を確認し、ストアとの疎通を検証する。
func Ping(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", tableName, err)
	}
	return nil
}
