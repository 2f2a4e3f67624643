// Command stagelog は観劇記録サービスのAPIサーバーとワーカーを起動する。
//
//	stagelog serve        APIサーバー（デフォルト）
//	stagelog worker       セッション掃除と通知配送
//	stagelog migrate      DBマイグレーション
//	stagelog healthcheck  コンテナ用ヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/stagelog/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "stagelog: %v\n", err)
		os.Exit(1)
	}
}
