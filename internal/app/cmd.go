package app

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。引数なしの場合もこれになる。
	CommandServe Command = "serve"
	// CommandWorker はセッション掃除と通知配送のワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// ErrUnknownCommand はサポート外のサブコマンドが指定されたことを表す。
var ErrUnknownCommand = errors.New("unknown command")

var commandSummaries = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "期限切れセッションの掃除と通知キューの配送を行う"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "起動中のサーバーのヘルスチェックを行う"},
	{CommandHelp, "この使い方を表示する"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch args[0] {
	case "serve":
		return CommandServe, nil
	case "worker":
		return CommandWorker, nil
	case "migrate":
		return CommandMigrate, nil
	case "healthcheck":
		return CommandHealthcheck, nil
	case "help", "-h", "--help":
		return CommandHelp, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}
}

// String はサブコマンド名を返す。
func (c Command) String() string {
	return string(c)
}

// writeUsage はサブコマンドの一覧をwに書き込む。wがnilなら標準エラー出力。
func writeUsage(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, "usage: stagelog <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, s := range commandSummaries {
		fmt.Fprintf(w, "  %-12s %s\n", s.cmd, s.summary)
	}
}
