package store

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const (
	// initialBackoff はリトライ時の初回遅延。
	initialBackoff = 200 * time.Millisecond
	// maxBackoff はリトライ遅延の上限。
	maxBackoff = 2 * time.Second
)

// transientErrorCodes はリトライで回復しうるAWSエラーコード。
var transientErrorCodes = map[string]bool{
	"ThrottlingException":                    true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"TransactionInProgressException":         true,
}

// IsTransient はエラーが一時的なストア障害（リトライ安全）かを分類する。
// スロットリング、DynamoDB内部エラー、ネットワーク障害、タイムアウトが該当する。
// 条件付き書き込みの失敗（ConditionalCheckFailed）は一時障害ではない。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return true
	}
	var internal *types.InternalServerError
	if errors.As(err, &internal) {
		return true
	}
	var limit *types.RequestLimitExceeded
	if errors.As(err, &limit) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientErrorCodes[apiErr.ErrorCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// CalculateBackoff は試行回数に基づいてリトライ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大2秒。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
