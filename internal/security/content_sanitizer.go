// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はレビュー、メモ、コメント、演目説明などユーザーが入力する
// 自由記述からHTMLを取り除き、プレーンテキストとして保存できる形にする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText は全てのHTMLタグを除去したプレーンテキストを返す。
	// 文字参照はデコードし、前後の空白を取り除く。
	// 同一入力に対して常に同一出力を返す。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはゴルーチンセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// script、styleなどの要素は中身ごと除去され、その他のタグは中身のテキストのみ残る。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は文字参照の多重エスケープを剥がす回数の上限。
const maxSanitizePasses = 8

// SanitizeText は全てのHTMLタグを除去したプレーンテキストを返す。
// 文字参照をデコードした結果がタグになる場合があるため、出力が変化しなくなるまで繰り返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := s.pass(text)
		if next == text {
			return text
		}
		text = next
	}
	// 上限まで収束しない入力は山括弧を残さない
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(text))
}

// pass はbluemondayでタグを除去し、エスケープされたテキストを元に戻す。
func (s *textSanitizer) pass(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}
