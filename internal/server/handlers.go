package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"yomitori/internal/scan"
	"yomitori/internal/session"
)

// healthResponse はヘルスチェックのレスポンス
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// statusResponse はシステム状態のレスポンス
type statusResponse struct {
	Status    string           `json:"status"`
	Server    serverInfo       `json:"server"`
	Session   session.Snapshot `json:"session"`
	Timestamp time.Time        `json:"timestamp"`
}

// serverInfo はサーバー情報
type serverInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// errorResponse はエラーレスポンス
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// startRequest はセッション開始のリクエストボディ
type startRequest struct {
	Facing string `json:"facing"`
	Torch  bool   `json:"torch"`
}

// torchResponse はトーチ操作の結果
// トーチは装飾的な機能であり、失敗してもセッション状態は変わらない
type torchResponse struct {
	Applied bool             `json:"applied"`
	Reason  string           `json:"reason,omitempty"`
	Session session.Snapshot `json:"session"`
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Status: "running",
		Server: serverInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Session:   s.controller.Snapshot(),
		Timestamp: time.Now(),
	})
}

// handleSession は現在のセッション状態を返す
func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

// handleStart はセッション開始エンドポイントの実装
func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "リクエストボディを解析できません",
			Timestamp: time.Now(),
		})
		return
	}

	facing := scan.Facing(req.Facing)
	if facing == "" {
		facing = scan.FacingBack
	}
	if facing != scan.FacingBack && facing != scan.FacingFront {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_facing",
			Message:   "向きは back または front を指定してください",
			Timestamp: time.Now(),
		})
		return
	}

	err := s.controller.Start(c.Request.Context(), scan.ScanRequest{
		Facing: facing,
		Torch:  req.Torch,
	})
	if err != nil {
		s.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.controller.Snapshot())
}

// handleStop はセッション停止エンドポイントの実装
func (s *Server) handleStop(c *gin.Context) {
	// Stop は任意の状態から安全に呼び出せる
	_ = s.controller.Stop(c.Request.Context())
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

// handleSwitchFacing はカメラ切り替えエンドポイントの実装
func (s *Server) handleSwitchFacing(c *gin.Context) {
	if err := s.controller.SwitchFacing(c.Request.Context()); err != nil {
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

// handleToggleTorch はトーチ切り替えエンドポイントの実装
// 失敗は no-op として観測され、HTTPとしては常に成功を返す
func (s *Server) handleToggleTorch(c *gin.Context) {
	err := s.controller.ToggleTorch(c.Request.Context())

	response := torchResponse{
		Applied: err == nil,
		Session: s.controller.Snapshot(),
	}
	switch {
	case errors.Is(err, scan.ErrUnsupported):
		response.Reason = "unsupported"
	case errors.Is(err, scan.ErrApplyFailed):
		response.Reason = "apply_failed"
	case err != nil:
		response.Reason = "apply_failed"
	}

	c.JSON(http.StatusOK, response)
}

// handleClearDetection は検出解消エンドポイントの実装
func (s *Server) handleClearDetection(c *gin.Context) {
	_ = s.controller.ClearDetection(c.Request.Context())
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

// handlePreview はMJPEGプレビューストリーミングエンドポイントの実装
func (s *Server) handlePreview(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case <-ticker.C:
			frame, err := s.controller.PreviewFrame()
			if err != nil {
				// フレームがまだない場合は次の周期を待つ
				continue
			}

			if _, err := writer.Write([]byte("--frame\r\n")); err != nil {
				return
			}
			if _, err := writer.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame.Pixels); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

// writeSessionError はセッションエラーをHTTPレスポンスに変換する
func (s *Server) writeSessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch scan.KindOf(err) {
	case scan.ErrorKindPermissionDenied:
		status = http.StatusForbidden
		code = "permission_denied"
	case scan.ErrorKindDeviceUnavailable:
		status = http.StatusServiceUnavailable
		code = "device_unavailable"
	case scan.ErrorKindConstraintUnsatisfiable:
		status = http.StatusBadRequest
		code = "constraint_unsatisfiable"
	}

	c.JSON(status, errorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}
