package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"yomitori/internal/scan"
)

// countingDecoder はデコード試行回数を記録するテスト用デコーダー
type countingDecoder struct {
	mu    sync.Mutex
	calls int
	match string
}

func (d *countingDecoder) Decode(frame scan.Frame) (scan.Payload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++

	if d.match != "" && string(frame.Pixels) == d.match {
		return scan.Payload{Data: d.match, CapturedAt: frame.Timestamp}, true
	}
	return scan.Payload{}, false
}

func (d *countingDecoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// newTestController はモック一式でコントローラーを組み立てる
func newTestController(supportsTorch bool, match string) (*Controller, *scan.MockFrameSource, *countingDecoder, *scan.ManualCadence) {
	source := scan.NewMockFrameSource(supportsTorch)
	decoder := &countingDecoder{match: match}
	cadence := scan.NewManualCadence()
	controller := NewController(source, decoder, func() scan.Cadence { return cadence })
	return controller, source, decoder, cadence
}

// waitForState は指定された状態のスナップショットが配信されるまで待つ
func waitForState(t *testing.T, ch <-chan Snapshot, state State) Snapshot {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-ch:
			if snapshot.State == state {
				return snapshot
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for state %s", state)
		}
	}
}

func TestController_ScanScenario(t *testing.T) {
	ctx := context.Background()
	controller, source, decoder, cadence := newTestController(true, "XYZ")

	stateCh, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	// ティック1〜3: NotReady、ティック4: None、ティック5: 検出
	source.QueueNotReady(3)
	source.QueueFrame(scan.Frame{Width: 640, Height: 480, Pixels: []byte("ABC")})
	source.QueueFrame(scan.Frame{Width: 640, Height: 480, Pixels: []byte("XYZ")})

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack, Torch: false}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snapshot := waitForState(t, stateCh, StateScanning)
	if !snapshot.Capabilities.SupportsTorch {
		t.Error("Expected capabilities to report torch support")
	}
	if snapshot.Capabilities.Facing != scan.FacingBack {
		t.Errorf("Expected back facing capabilities, got %s", snapshot.Capabilities.Facing)
	}

	for i := 0; i < 5; i++ {
		cadence.Tick()
	}

	snapshot = waitForState(t, stateCh, StateDetected)
	if snapshot.Payload == nil || snapshot.Payload.Data != "XYZ" {
		t.Fatalf("Expected detected payload XYZ, got %+v", snapshot.Payload)
	}

	// NotReadyのティックではデコードしない: 試行はティック4と5の2回のみ
	if decoder.Calls() != 2 {
		t.Errorf("Expected exactly 2 decode calls, got %d", decoder.Calls())
	}

	// 検出後はフレーム取得もデコードも行われない
	calls := source.NextFrameCalls()
	if cadence.TryTick(50 * time.Millisecond) {
		t.Error("Expected no further ticks after detection")
	}
	if source.NextFrameCalls() != calls {
		t.Error("NextFrame was called after detection")
	}
}

func TestController_StreamErrorRaisesError(t *testing.T) {
	ctx := context.Background()
	controller, source, decoder, cadence := newTestController(false, "")

	stateCh, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForState(t, stateCh, StateScanning)

	// ストリーミング中のデバイス切断を模擬する
	source.SetFrameError(fmt.Errorf("capture pipeline died: %w", scan.ErrDeviceUnavailable))
	cadence.Tick()

	snapshot := waitForState(t, stateCh, StateError)
	if snapshot.ErrorKind != scan.ErrorKindDeviceUnavailable {
		t.Errorf("Expected device_unavailable kind, got %s", snapshot.ErrorKind)
	}

	// ストリームは解放され、ループのティックは受け付けられない
	if source.IsOpen() {
		t.Error("Expected stream to be closed after stream error")
	}
	if cadence.TryTick(50 * time.Millisecond) {
		t.Error("Expected no further ticks after stream error")
	}
	if decoder.Calls() != 0 {
		t.Errorf("Expected 0 decode calls, got %d", decoder.Calls())
	}

	// デバイス復旧後の新しい開始でセッションは回復する
	source.SetFrameError(nil)
	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Fresh start after stream error failed: %v", err)
	}
	waitForState(t, stateCh, StateScanning)
}

func TestController_DetectOnFirstTick(t *testing.T) {
	ctx := context.Background()
	controller, source, _, cadence := newTestController(false, "XYZ")

	stateCh, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	source.QueueFrame(scan.Frame{Pixels: []byte("XYZ")})

	// 開始処理と並行して最初のティックを供給する
	tickDone := make(chan struct{})
	go func() {
		cadence.Tick()
		close(tickDone)
	}()

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-tickDone

	waitForState(t, stateCh, StateDetected)

	// 最初のティックでの検出が後から Scanning で上書きされない
	time.Sleep(50 * time.Millisecond)
	snapshot := controller.Snapshot()
	if snapshot.State != StateDetected {
		t.Errorf("Expected detected state to be stable, got %s", snapshot.State)
	}
	if snapshot.Payload == nil || snapshot.Payload.Data != "XYZ" {
		t.Errorf("Expected payload XYZ, got %+v", snapshot.Payload)
	}
}

func TestController_StartFailurePermissionDenied(t *testing.T) {
	ctx := context.Background()
	controller, source, decoder, cadence := newTestController(false, "")

	source.SetOpenError(scan.ErrPermissionDenied)

	err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack})
	if !errors.Is(err, scan.ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}

	snapshot := controller.Snapshot()
	if snapshot.State != StateError {
		t.Errorf("Expected error state, got %s", snapshot.State)
	}
	if snapshot.ErrorKind != scan.ErrorKindPermissionDenied {
		t.Errorf("Expected permission_denied kind, got %s", snapshot.ErrorKind)
	}

	// ループのティックは一度もスケジュールされない
	if cadence.TryTick(50 * time.Millisecond) {
		t.Error("Expected no ticks to be scheduled after failed start")
	}
	if decoder.Calls() != 0 {
		t.Errorf("Expected 0 decode calls, got %d", decoder.Calls())
	}
	if source.NextFrameCalls() != 0 {
		t.Errorf("Expected 0 NextFrame calls, got %d", source.NextFrameCalls())
	}
	if source.IsOpen() {
		t.Error("Expected stream to be closed after failed start")
	}
}

func TestController_StopIdempotent(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(false, "")

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := controller.Stop(ctx); err != nil {
		t.Fatalf("First Stop failed: %v", err)
	}
	if err := controller.Stop(ctx); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	snapshot := controller.Snapshot()
	if snapshot.State != StateIdle {
		t.Errorf("Expected idle state after double stop, got %s", snapshot.State)
	}
	if source.CloseCount() != 1 {
		t.Errorf("Expected exactly 1 close, got %d", source.CloseCount())
	}
}

func TestController_NoDoubleAcquire(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(false, "")

	req := scan.ScanRequest{Facing: scan.FacingBack}

	if err := controller.Start(ctx, req); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// 同じ向きでの再開始は再オープンしない
	if err := controller.Start(ctx, req); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if err := controller.SwitchFacing(ctx); err != nil {
		t.Fatalf("SwitchFacing failed: %v", err)
	}
	if err := controller.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if source.MaxConcurrentOpen() != 1 {
		t.Errorf("Expected at most 1 concurrent open stream, got %d", source.MaxConcurrentOpen())
	}
	if source.OpenCount() != 2 {
		t.Errorf("Expected 2 opens (initial + switch), got %d", source.OpenCount())
	}
}

func TestController_SwitchFacing(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(false, "")

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := controller.SwitchFacing(ctx); err != nil {
		t.Fatalf("SwitchFacing failed: %v", err)
	}

	expected := []string{"open:back", "close", "open:front"}
	events := source.Events()
	if len(events) != len(expected) {
		t.Fatalf("Expected events %v, got %v", expected, events)
	}
	for i, event := range expected {
		if events[i] != event {
			t.Errorf("Event %d: expected %s, got %s", i, event, events[i])
		}
	}

	snapshot := controller.Snapshot()
	if snapshot.Request.Facing != scan.FacingFront {
		t.Errorf("Expected front facing request, got %s", snapshot.Request.Facing)
	}
	if snapshot.State != StateScanning {
		t.Errorf("Expected scanning state after switch, got %s", snapshot.State)
	}
}

func TestController_SwitchFacingWhileStarting(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(false, "")

	source.SetOpenDelay(100 * time.Millisecond)

	// 開始が確定する前に切り替えを発行する
	startDone := make(chan error, 1)
	go func() {
		startDone <- controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack})
	}()

	// Start がコマンドロックを取得してオープン中になるまで待つ
	time.Sleep(20 * time.Millisecond)

	if err := controller.SwitchFacing(ctx); err != nil {
		t.Fatalf("SwitchFacing failed: %v", err)
	}

	if err := <-startDone; err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 切り替えは実行中の開始が確定した後に処理される:
	// close 1回 + 新しい向きの open 1回
	expected := []string{"open:back", "close", "open:front"}
	events := source.Events()
	if len(events) != len(expected) {
		t.Fatalf("Expected events %v, got %v", expected, events)
	}
	for i, event := range expected {
		if events[i] != event {
			t.Errorf("Event %d: expected %s, got %s", i, event, events[i])
		}
	}

	if source.MaxConcurrentOpen() != 1 {
		t.Errorf("Expected at most 1 concurrent open stream, got %d", source.MaxConcurrentOpen())
	}
}

func TestController_ToggleTorchUnsupported(t *testing.T) {
	ctx := context.Background()
	controller, _, _, _ := newTestController(false, "")

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := controller.ToggleTorch(ctx)
	if !errors.Is(err, scan.ErrUnsupported) {
		t.Fatalf("Expected ErrUnsupported, got %v", err)
	}

	// 装飾的な失敗はセッション状態に影響しない
	snapshot := controller.Snapshot()
	if snapshot.State != StateScanning {
		t.Errorf("Expected scanning state to be retained, got %s", snapshot.State)
	}
}

func TestController_ToggleTorchApplyFailed(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(true, "")

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source.SetTorchError(scan.ErrApplyFailed)

	err := controller.ToggleTorch(ctx)
	if !errors.Is(err, scan.ErrApplyFailed) {
		t.Fatalf("Expected ErrApplyFailed, got %v", err)
	}

	// 前の状態が維持される
	snapshot := controller.Snapshot()
	if snapshot.State != StateScanning {
		t.Errorf("Expected scanning state to be retained, got %s", snapshot.State)
	}
	if snapshot.Request.Torch {
		t.Error("Expected torch request to remain off after apply failure")
	}
}

func TestController_ToggleTorchSuccess(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(true, "")

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := controller.ToggleTorch(ctx); err != nil {
		t.Fatalf("ToggleTorch failed: %v", err)
	}
	if !source.TorchEnabled() {
		t.Error("Expected torch to be enabled")
	}

	if err := controller.ToggleTorch(ctx); err != nil {
		t.Fatalf("Second ToggleTorch failed: %v", err)
	}
	if source.TorchEnabled() {
		t.Error("Expected torch to be disabled again")
	}

	// トーチ操作で再オープンは発生しない
	if source.OpenCount() != 1 {
		t.Errorf("Expected 1 open, got %d", source.OpenCount())
	}
}

func TestController_ClearDetection(t *testing.T) {
	ctx := context.Background()
	controller, source, _, cadence := newTestController(false, "XYZ")

	stateCh, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	source.QueueFrame(scan.Frame{Pixels: []byte("XYZ")})

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cadence.Tick()
	waitForState(t, stateCh, StateDetected)

	if err := controller.ClearDetection(ctx); err != nil {
		t.Fatalf("ClearDetection failed: %v", err)
	}

	snapshot := controller.Snapshot()
	if snapshot.State != StateIdle {
		t.Errorf("Expected idle state after clear, got %s", snapshot.State)
	}
	if snapshot.Payload != nil {
		t.Error("Expected payload to be cleared")
	}
	if source.IsOpen() {
		t.Error("Expected stream to be closed after clear")
	}

	// 検出状態でない場合は何もしない
	if err := controller.ClearDetection(ctx); err != nil {
		t.Fatalf("ClearDetection on idle failed: %v", err)
	}
	if source.CloseCount() != 1 {
		t.Errorf("Expected exactly 1 close, got %d", source.CloseCount())
	}
}

func TestController_RestartAfterDetect(t *testing.T) {
	ctx := context.Background()
	controller, source, _, cadence := newTestController(false, "XYZ")

	stateCh, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	source.QueueFrame(scan.Frame{Pixels: []byte("XYZ")})

	req := scan.ScanRequest{Facing: scan.FacingBack}
	if err := controller.Start(ctx, req); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cadence.Tick()
	waitForState(t, stateCh, StateDetected)

	// 検出後の再開始: ストリームは開いたままループだけ再開する
	source.QueueFrame(scan.Frame{Pixels: []byte("XYZ")})
	if err := controller.Start(ctx, req); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}

	snapshot := waitForState(t, stateCh, StateScanning)
	if snapshot.Payload != nil {
		t.Error("Expected payload to be cleared on restart")
	}
	if source.OpenCount() != 1 {
		t.Errorf("Expected no reopen on same-facing restart, got %d opens", source.OpenCount())
	}

	cadence.Tick()
	waitForState(t, stateCh, StateDetected)
}

func TestController_StopWhileStartPending(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(false, "")

	source.SetOpenDelay(100 * time.Millisecond)

	startDone := make(chan error, 1)
	go func() {
		startDone <- controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack})
	}()

	time.Sleep(20 * time.Millisecond)

	// 保留中の開始が確定した後、ストリームは完全に閉じられる
	if err := controller.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := <-startDone; err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if source.IsOpen() {
		t.Error("Expected stream to be fully closed")
	}
	if source.OpenCount() != 1 || source.CloseCount() != 1 {
		t.Errorf("Expected 1 open and 1 close, got %d opens and %d closes",
			source.OpenCount(), source.CloseCount())
	}

	snapshot := controller.Snapshot()
	if snapshot.State != StateIdle {
		t.Errorf("Expected idle state, got %s", snapshot.State)
	}
}

func TestController_ErrorClearedByFreshStart(t *testing.T) {
	ctx := context.Background()
	controller, source, _, _ := newTestController(false, "")

	source.SetOpenError(scan.ErrDeviceUnavailable)

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err == nil {
		t.Fatal("Expected start to fail")
	}

	if controller.Snapshot().State != StateError {
		t.Fatalf("Expected error state, got %s", controller.Snapshot().State)
	}

	// デバイスが復旧した後の新しい開始でエラー状態が解消される
	source.SetOpenError(nil)

	if err := controller.Start(ctx, scan.ScanRequest{Facing: scan.FacingBack}); err != nil {
		t.Fatalf("Fresh start failed: %v", err)
	}

	snapshot := controller.Snapshot()
	if snapshot.State != StateScanning {
		t.Errorf("Expected scanning state, got %s", snapshot.State)
	}
	if snapshot.ErrorKind != scan.ErrorKindNone {
		t.Errorf("Expected error kind to be cleared, got %s", snapshot.ErrorKind)
	}
}
