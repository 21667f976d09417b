package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes はセッショントークンとAPIキーの乱数バイト数（256bit）。
const tokenBytes = 32

// NewRandomToken は暗号論的乱数から64文字の16進文字列を生成する。
func NewRandomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
