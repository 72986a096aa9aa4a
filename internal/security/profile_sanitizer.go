// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はユーザー入力のプロフィールテキスト（表示名など）を
// サニタイズし、XSS攻撃などのセキュリティリスクから保護する。
// bluemondayライブラリのStrictPolicyにより、HTMLタグを一切含まない
// プレーンテキストのみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロフィールテキストのサニタイズ機能のインターフェースを定義する。
// 登録時・フェデレーションログイン時の表示名保存前に使用される。
type ProfileSanitizerService interface {
	// Sanitize はプロフィールテキストをサニタイズしてプレーンテキストを返す。
	// HTMLタグはすべて除去され、エンティティはデコードされ、前後の空白は除去される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのHTMLタグを除去し、テキストのみを残す。
// on*イベント属性やscriptタグを含む入力もプレーンテキスト化される。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はプロフィールテキストをサニタイズしてプレーンテキストを返す。
// StrictPolicyの出力はHTMLエスケープ済みのため、保存用にエンティティを元に戻す。
func (s *profileSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
