package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"yomitori/internal/scan"
)

// Controller はスキャンセッションのライフサイクルを制御する
//
// SessionState と単一の FrameSource を所有し、UIからのコマンドを
// スキャンループとハードウェア操作に変換する。コマンドは cmdMu で
// 直列化され、同一セッションに対して同時に処理されることはない。
type Controller struct {
	id      string
	source  scan.FrameSource
	decoder scan.Decoder
	loop    *scan.Loop

	// コマンド直列化用。開始中に発行された switchFacing 等は
	// 実行中のコマンドが確定するまで待つ
	cmdMu sync.Mutex

	// 観測状態用
	mu        sync.RWMutex
	state     State
	payload   *scan.Payload
	errKind   scan.ErrorKind
	caps      scan.DeviceCapabilities
	request   scan.ScanRequest
	opened    bool
	listeners map[int]chan Snapshot
	nextSub   int
}

// NewController は新しいセッションコントローラーを作成する
func NewController(source scan.FrameSource, decoder scan.Decoder, newCadence scan.CadenceFactory) *Controller {
	c := &Controller{
		id:        uuid.New().String(),
		source:    source,
		decoder:   decoder,
		state:     StateIdle,
		listeners: make(map[int]chan Snapshot),
	}
	c.loop = scan.NewLoop(decoder, newCadence, c.handleDetect, c.handleStreamError)
	return c
}

// ID はセッションの一意識別子を返す
func (c *Controller) ID() string {
	return c.id
}

// Start はセッションを開始する
//
// 異なる構成でストリームが開いている場合は先に閉じてから再オープンする。
// 向きが同じ場合は再オープンせず、トーチの差分のみライブ適用する。
// 失敗時は Error 状態に遷移し、確保済みのリソースは解放される。
func (c *Controller) Start(ctx context.Context, req scan.ScanRequest) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	return c.startLocked(ctx, req)
}

// Stop はセッションを停止する
// 任意の状態から安全に呼び出せる。常に成功し、状態は Idle になる
func (c *Controller) Stop(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stopLocked(ctx)
	return nil
}

// SwitchFacing は現在と反対の向きでセッションを再開始する
// ライブ再構成ではなく、停止してからの完全な再開始（close 1回 + open 1回）
func (c *Controller) SwitchFacing(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.RLock()
	req := scan.ScanRequest{
		Facing: c.request.Facing.Opposite(),
		Torch:  c.request.Torch,
	}
	c.mu.RUnlock()

	c.stopLocked(ctx)
	return c.startLocked(ctx, req)
}

// ToggleTorch はトーチの点灯状態を反転する
//
// 開いているストリームに対するライブ操作であり、セッション状態は
// 変更しない。能力がない場合は ErrUnsupported、ハードウェアが拒否
// した場合は ErrApplyFailed を返し、いずれも前の状態を維持する
func (c *Controller) ToggleTorch(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.RLock()
	opened := c.opened
	supports := c.caps.SupportsTorch
	next := !c.request.Torch
	c.mu.RUnlock()

	if !opened || !supports {
		return scan.ErrUnsupported
	}

	if err := c.source.SetTorch(ctx, next); err != nil {
		return err
	}

	c.mu.Lock()
	c.request.Torch = next
	c.mu.Unlock()
	c.publish()
	return nil
}

// ClearDetection は検出状態を解消する（Detected -> Idle）
// 検出状態でない場合は何もしない
func (c *Controller) ClearDetection(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.RLock()
	detected := c.state == StateDetected
	c.mu.RUnlock()

	if !detected {
		return nil
	}

	c.stopLocked(ctx)
	return nil
}

// Snapshot は現在のセッション状態のコピーを返す
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe は状態変化の購読を開始する
// 返されたチャンネルは直近の状態で初期化され、解除関数で購読を終了する
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	ch := make(chan Snapshot, 8)
	ch <- c.snapshotLocked()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = ch
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		if sub, exists := c.listeners[id]; exists {
			delete(c.listeners, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, unsubscribe
}

// PreviewFrame は開いているストリームの最新フレームを返す
// プレビュー配信用の読み取り専用操作であり、デコード経路には影響しない
func (c *Controller) PreviewFrame() (scan.Frame, error) {
	c.mu.RLock()
	opened := c.opened
	c.mu.RUnlock()

	if !opened {
		return scan.Frame{}, fmt.Errorf("ストリームが開いていません: %w", scan.ErrNotReady)
	}
	return c.source.NextFrame()
}

// startLocked は開始処理の本体（cmdMu 保持前提）
func (c *Controller) startLocked(ctx context.Context, req scan.ScanRequest) error {
	c.mu.RLock()
	opened := c.opened
	current := c.request
	c.mu.RUnlock()

	// 同じ向きで開いている場合は再オープンせず、トーチのみライブ適用する
	// （ハードウェアの向きはストリームごとに固定のため、向きの変更は完全な再オープン）
	if opened && current.Facing == req.Facing {
		if current.Torch != req.Torch {
			// ベストエフォート: 失敗しても開始自体は妨げない
			if err := c.source.SetTorch(ctx, req.Torch); err == nil {
				c.mu.Lock()
				c.request.Torch = req.Torch
				c.mu.Unlock()
			}
		}
		return c.resumeLocked()
	}

	// 別の構成で開いている場合は先に閉じる
	c.stopLocked(ctx)

	c.mu.Lock()
	c.state = StateStarting
	c.payload = nil
	c.errKind = scan.ErrorKindNone
	c.request = req
	c.mu.Unlock()
	c.publish()

	caps, err := c.source.Open(ctx, req)
	if err != nil {
		// 確保途中のリソースも確実に解放する（Close は冪等）
		_ = c.source.Close(ctx)

		kind := scan.KindOf(err)
		c.mu.Lock()
		c.state = StateError
		c.errKind = kind
		c.opened = false
		c.mu.Unlock()
		c.publish()
		return fmt.Errorf("セッションの開始に失敗: %w", err)
	}

	// 最初のティックで検出が起きても Detected が Scanning で
	// 上書きされないよう、状態遷移をループ開始より先に確定させる
	c.mu.Lock()
	c.opened = true
	c.caps = caps
	c.state = StateScanning
	c.mu.Unlock()
	c.publish()

	if err := c.loop.Start(c.source); err != nil {
		// ループが開始できない場合はストリームを残さない
		_ = c.source.Close(ctx)
		c.mu.Lock()
		c.state = StateError
		c.errKind = scan.KindOf(err)
		c.opened = false
		c.mu.Unlock()
		c.publish()
		return fmt.Errorf("スキャンループの開始に失敗: %w", err)
	}

	return nil
}

// resumeLocked は開いたままのストリーム上でループを再開する（cmdMu 保持前提）
// 検出後に start が再発行された場合の経路
func (c *Controller) resumeLocked() error {
	c.loop.Stop()

	c.mu.Lock()
	c.state = StateScanning
	c.payload = nil
	c.errKind = scan.ErrorKindNone
	c.mu.Unlock()
	c.publish()

	if err := c.loop.Start(c.source); err != nil {
		c.mu.Lock()
		c.state = StateError
		c.errKind = scan.KindOf(err)
		c.mu.Unlock()
		c.publish()
		return fmt.Errorf("スキャンループの再開に失敗: %w", err)
	}

	return nil
}

// stopLocked は停止処理の本体（cmdMu 保持前提）
// ループ停止 -> ストリーム解放 -> Idle の順で常に成功する
func (c *Controller) stopLocked(ctx context.Context) {
	c.loop.Stop()

	c.mu.RLock()
	opened := c.opened
	c.mu.RUnlock()

	if opened {
		_ = c.source.Close(ctx)
	}

	c.mu.Lock()
	c.opened = false
	c.state = StateIdle
	c.payload = nil
	c.errKind = scan.ErrorKindNone
	c.mu.Unlock()
	c.publish()
}

// handleStreamError はループからのストリーム障害通知を受け取る
// ループは通知の時点で既に終了済み。ストリームを解放し Error 状態へ遷移する
func (c *Controller) handleStreamError(err error) {
	_ = c.source.Close(context.Background())

	c.mu.Lock()
	c.opened = false
	c.state = StateError
	c.errKind = scan.KindOf(err)
	c.payload = nil
	c.mu.Unlock()
	c.publish()
}

// handleDetect はループからの検出通知を受け取る
// ループは通知の時点で既に中断済み
func (c *Controller) handleDetect(payload scan.Payload) {
	c.mu.Lock()
	p := payload
	c.payload = &p
	c.state = StateDetected
	c.mu.Unlock()
	c.publish()
}

// snapshotLocked はスナップショットを構築する（mu 保持前提）
func (c *Controller) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		ID:           c.id,
		State:        c.state,
		ErrorKind:    c.errKind,
		Capabilities: c.caps,
		Request:      c.request,
	}
	if c.payload != nil {
		p := *c.payload
		snapshot.Payload = &p
	}
	return snapshot
}

// publish は現在の状態を全購読者に配信する
// チャンネルが詰まっている場合は最も古いスナップショットを破棄する
// 送信は mu 保持中に行うため、購読解除によるクローズと競合しない
func (c *Controller) publish() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := c.snapshotLocked()
	for _, ch := range c.listeners {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
