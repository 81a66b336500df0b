package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"yomitori/internal/scan"
)

// V4L2Source はV4L2デバイスを使った scan.FrameSource 実装
//
// 1インスタンスにつき同時に開けるストリームは最大1つ。
// ストリーミング中は最新フレームのみを保持し、NextFrame は
// ノンブロッキングでそのコピーを返す。
type V4L2Source struct {
	// 向きとデバイスパスの対応（設定または自動検出から）
	devices map[scan.Facing]string
	width   int
	height  int
	fps     int

	mu        sync.RWMutex
	capturer  *V4L2Capturer
	caps      scan.DeviceCapabilities
	opened    bool
	torchCtrl string
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// 最新フレーム保持用
	latestMu    sync.RWMutex
	latestFrame []byte
	latestAt    time.Time
	streamErr   error
}

// NewV4L2Source は新しいV4L2Sourceを作成する
func NewV4L2Source(devices map[scan.Facing]string, width, height, fps int) *V4L2Source {
	return &V4L2Source{
		devices: devices,
		width:   width,
		height:  height,
		fps:     fps,
	}
}

// Open はストリームを確保し、能力を返す
// 既に開いているストリームは先に閉じられる
func (s *V4L2Source) Open(ctx context.Context, req scan.ScanRequest) (scan.DeviceCapabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		s.closeLocked()
	}

	device, exists := s.devices[req.Facing]
	if !exists {
		return scan.DeviceCapabilities{}, fmt.Errorf(
			"向き %s に対応するデバイスがありません: %w", req.Facing, scan.ErrConstraintUnsatisfiable)
	}

	if err := probeDevice(device); err != nil {
		return scan.DeviceCapabilities{}, err
	}

	capturer := NewV4L2Capturer(device, s.width, s.height, s.fps)
	if !capturer.IsDeviceAvailable(ctx) {
		return scan.DeviceCapabilities{}, fmt.Errorf(
			"デバイス %s が応答しません: %w", device, scan.ErrDeviceUnavailable)
	}

	// ストリーミングを開始
	streamCtx, cancel := context.WithCancel(context.Background())
	frameChan := make(chan []byte, 10)
	errorChan := make(chan error, 5)

	capturer.StartStream(streamCtx, frameChan, errorChan)

	s.wg.Add(1)
	go s.collectFrames(streamCtx, frameChan, errorChan)

	if name := capturer.DeviceName(ctx); name != "" {
		log.Printf("カメラを開きました: %s (%s)", name, device)
	}

	s.capturer = capturer
	s.cancel = cancel
	s.opened = true
	s.torchCtrl = capturer.TorchControl(ctx)
	s.caps = scan.DeviceCapabilities{
		SupportsTorch: s.torchCtrl != "",
		Facing:        req.Facing,
	}

	// 要求されたトーチ状態をベストエフォートで適用する
	if req.Torch && s.torchCtrl != "" {
		_ = capturer.SetTorch(ctx, s.torchCtrl, true)
	}

	return s.caps, nil
}

// Close はストリームを解放する。冪等であり複数回呼び出しても安全
func (s *V4L2Source) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	s.closeLocked()
	return nil
}

// closeLocked は解放処理の本体（mu 保持前提）
func (s *V4L2Source) closeLocked() {
	s.cancel()
	s.wg.Wait()

	s.opened = false
	s.capturer = nil
	s.torchCtrl = ""

	s.latestMu.Lock()
	s.latestFrame = nil
	s.latestAt = time.Time{}
	s.streamErr = nil
	s.latestMu.Unlock()
}

// NextFrame は最新フレームのコピーを返す。ノンブロッキング
// まだフレームが生成されていない場合は ErrNotReady、
// ストリームが障害で停止した場合は分類済みのエラーを返す
func (s *V4L2Source) NextFrame() (scan.Frame, error) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()

	if s.streamErr != nil {
		return scan.Frame{}, fmt.Errorf("%w: %v", scan.ErrDeviceUnavailable, s.streamErr)
	}

	if s.latestFrame == nil {
		return scan.Frame{}, scan.ErrNotReady
	}

	pixels := make([]byte, len(s.latestFrame))
	copy(pixels, s.latestFrame)

	return scan.Frame{
		Width:     s.width,
		Height:    s.height,
		Pixels:    pixels,
		Timestamp: s.latestAt,
	}, nil
}

// SetTorch はトーチの点灯状態を変更する
func (s *V4L2Source) SetTorch(ctx context.Context, enabled bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened || s.torchCtrl == "" {
		return scan.ErrUnsupported
	}

	if err := s.capturer.SetTorch(ctx, s.torchCtrl, enabled); err != nil {
		return fmt.Errorf("%w: %v", scan.ErrApplyFailed, err)
	}
	return nil
}

// Capabilities は現在開いているストリームの能力を返す
// Open成功前の値は未定義
func (s *V4L2Source) Capabilities() scan.DeviceCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// collectFrames はストリームから最新フレームを取り込み続ける
// 古いフレームは上書きされ、キューは形成されない
// キャプチャのエラーは記録され、以後の NextFrame で観測される
func (s *V4L2Source) collectFrames(ctx context.Context, frameChan <-chan []byte, errorChan <-chan error) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errorChan:
			log.Printf("ストリームで障害が発生しました: %v", err)
			s.latestMu.Lock()
			s.streamErr = err
			s.latestMu.Unlock()
			return

		case frame, ok := <-frameChan:
			if !ok {
				return
			}

			s.latestMu.Lock()
			s.latestFrame = frame
			s.latestAt = time.Now()
			s.latestMu.Unlock()
		}
	}
}
