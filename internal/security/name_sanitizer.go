// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はアップロードされたファイルの元の名前からマークアップを除去する。
// 元の名前はアップロード応答としてUIにそのまま表示されるため、
// bluemondayのStrictPolicyでタグをすべて取り除いてから返す。
// 乱数トークンの生成もこのパッケージが担う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer はファイル名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// SanitizeName はファイル名からHTMLタグを除去し、前後の空白を取り除いて返す。
	// タグ除去後に空になった場合は空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(name string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
// すべてのタグと属性を許可しないStrictPolicyを使用する。
func NewNameSanitizer() NameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は多重にエンティティ化された入力を展開する回数の上限。
const maxSanitizePasses = 4

// angleBrackets は最終結果に残った山括弧を取り除く。
var angleBrackets = strings.NewReplacer("<", "", ">", "")

// SanitizeName はファイル名からHTMLタグを除去する。
// エンティティを展開してからポリシーを適用し、変化がなくなるまで繰り返す。
// 展開によって山括弧が現れることがあるため、結果には山括弧を残さない。
func (s *nameSanitizer) SanitizeName(name string) string {
	cur := name
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(html.UnescapeString(cur)))
		if next == cur {
			break
		}
		cur = next
	}
	return strings.TrimSpace(angleBrackets.Replace(cur))
}
