package model

import "time"

// Account はキャビネットに登録された唯一の管理者アカウントを表す。
// パスワードは平文で保持される（既知の欠陥。DESIGN.md参照）。
type Account struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	SessionToken string `json:"token,omitempty"`
}

// APIKey は機械間連携用の唯一のAPIキーを表す。
type APIKey struct {
	Value     string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// Principal は認証ガードを通過したリクエストの主体を表す。
type Principal struct {
	Kind     string // "session" または "api_key"
	Username string // セッション認証の場合のみ設定される
}

// 認証主体の種別
const (
	PrincipalSession = "session"
	PrincipalAPIKey  = "api_key"
)
