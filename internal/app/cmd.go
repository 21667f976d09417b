package app

import "strings"

// Command はcabinetバイナリの起動モード。
type Command string

const (
	// CommandServe はHTTPサーバーを起動する。既定のモード。
	CommandServe Command = "serve"
	// CommandMigrate はPostgreSQLのスキーマを最新にする。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// シェルのないdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 大文字小文字と前後の空白は無視する。空または未知の場合はCommandServe。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[strings.ToLower(strings.TrimSpace(args[0]))]; ok {
		return cmd
	}
	return CommandServe
}

// needsConfig は設定の読み込みとバックエンドの初期化が必要かを返す。
// healthcheckはSERVER_PORTだけで動く。
func (c Command) needsConfig() bool {
	return c != CommandHealthcheck
}
