package repository

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/nbhdcity/internal/model"
)

// encodeCursor はDynamoDBのLastEvaluatedKeyを不透明なカーソル文字列に変換する。
// キーが空（最終ページ）の場合は空文字列を返す。
// 本システムのキー属性はすべて文字列型のため、S属性のみを扱う。
func encodeCursor(lastKey map[string]types.AttributeValue) string {
	if len(lastKey) == 0 {
		return ""
	}

	flat := make(map[string]string, len(lastKey))
	for name, av := range lastKey {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		flat[name] = s.Value
	}

	raw, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeCursor は不透明なカーソル文字列をExclusiveStartKeyに復元する。
// 空文字列はカーソルなし（先頭ページ）としてnilを返す。
// 解読できないカーソルにはINVALID_CURSORを返す。
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, model.NewInvalidCursorError()
	}

	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, model.NewInvalidCursorError()
	}
	if len(flat) == 0 {
		return nil, model.NewInvalidCursorError()
	}

	key := make(map[string]types.AttributeValue, len(flat))
	for name, value := range flat {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}
