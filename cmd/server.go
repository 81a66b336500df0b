// Package main はYomitoriサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"yomitori/internal/camera"
	"yomitori/internal/config"
	"yomitori/internal/decode"
	"yomitori/internal/scan"
	"yomitori/internal/server"
	"yomitori/internal/session"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス (YAML)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Yomitori")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// フレームソースとセッションを組み立てる
	devices := camera.ResolveDevices(cfg.DeviceMap())
	source := camera.NewV4L2Source(devices, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	decoder := decode.NewSignatureDecoder()
	controller := session.NewController(source, decoder, func() scan.Cadence {
		return scan.NewTickerCadence(cfg.Scan.TickInterval.Std())
	})

	// サーバーを作成
	srv := server.New(cfg, controller)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	log.Printf("Yomitori サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
