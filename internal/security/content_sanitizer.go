// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はGraph APIから取得した投稿本文・コメント本文を保存可能な形に正規化する。
// Graph APIの本文はプレーンテキストであり、山括弧を含めて内容は一切書き換えない。
package security

import (
	"strings"
)

// TextSanitizer は保存前の正規化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は保存できない文字だけを取り除いたテキストを返す。
	// PostgreSQLのTEXT型はNUL文字と不正なUTF-8を受け付けないため、これらのみ除去する。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。状態を持たないため並行に使用できる。
type textSanitizer struct{}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return textSanitizer{}
}

// Sanitize は保存できない文字だけを取り除いたテキストを返す。
func (textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := strings.ToValidUTF8(raw, "")
	return strings.ReplaceAll(text, "\x00", "")
}
