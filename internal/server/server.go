package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"yomitori/internal/config"
	"yomitori/internal/session"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	controller *session.Controller
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, controller *session.Controller) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:     cfg,
		controller: controller,
		engine:     engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout.Std(),
			WriteTimeout: cfg.Server.WriteTimeout.Std(),
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	// APIエンドポイント
	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/session", s.handleSession)
		api.POST("/session/start", s.handleStart)
		api.POST("/session/stop", s.handleStop)
		api.POST("/session/switch-facing", s.handleSwitchFacing)
		api.POST("/session/torch", s.handleToggleTorch)
		api.POST("/session/clear", s.handleClearDetection)
		api.GET("/session/preview", s.handlePreview)
	}
}

// Start はサーバーを起動する
// コンテキストのキャンセルまたはシグナル受信でシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// セッションも停止し、開いているカメラストリームを確実に解放する
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// セッションの後始末（Stop は常に成功する）
	if err := s.controller.Stop(ctx); err != nil {
		log.Printf("セッションの停止に失敗しました: %v", err)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
