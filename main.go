package main

import (
	"context"
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
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
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
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
		os.Exit(1)
	}
}
