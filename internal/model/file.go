package model

import (
	"strings"
	"time"
)

// スロットに保存されるファイルの正規名
const (
	CanonicalCSV = "cfip.csv"
	CanonicalTXT = "cfip.txt"
)

// StoredFile はスロットに保存された唯一のファイルを表す。
// Contentはメタデータのみを扱う経路（Stat）では空のまま返される。
type StoredFile struct {
	OriginalName  string
	CanonicalName string
	SizeBytes     int64
	Content       []byte
	ModifiedAt    time.Time
}

// CanonicalNameFor は元のファイル名から正規名を導出する。
// 拡張子 .csv（大文字小文字を区別しない）は cfip.csv、それ以外は cfip.txt になる。
func CanonicalNameFor(originalName string) string {
	if strings.HasSuffix(strings.ToLower(originalName), ".csv") {
		return CanonicalCSV
	}
	return CanonicalTXT
}

// HasAllowedExtension は元のファイル名の拡張子が .csv または .txt かを判定する。
func HasAllowedExtension(originalName string) bool {
	lower := strings.ToLower(originalName)
	return strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".txt")
}

// IsCanonicalName はnameが正規名のいずれかと完全一致するかを判定する。
func IsCanonicalName(name string) bool {
	return name == CanonicalCSV || name == CanonicalTXT
}
