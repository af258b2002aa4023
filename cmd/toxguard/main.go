// Command toxguard はFacebookコメントの毒性モデレーションAPIサーバーを起動する。
//
// 使い方:
//
//	toxguard [serve|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/toxguard/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "toxguard: %v\n", err)
		os.Exit(1)
	}
}
