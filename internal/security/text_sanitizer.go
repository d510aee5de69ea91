// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は近隣の説明文やプロフィールのbio等、
// ユーザー入力のプレーンテキストをサニタイズする。
// これらのフィールドはHTMLとして解釈されることを想定しないため、
// bluemondayのStrictPolicyで全タグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキストのサニタイズ機能のインターフェースを定義する。
// 保存前のユーザー入力すべてに適用される。
type TextSanitizerService interface {
	// Sanitize は入力からHTMLタグをすべて除去し、前後の空白を取り除く。
	// scriptタグや属性を含む一切のマークアップが除去される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可せず、テキストノードのみを残す。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグをすべて除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
