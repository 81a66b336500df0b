package scan

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockFrameSource はテスト用のモック FrameSource 実装
// 呼び出し履歴を記録し、NextFrame の結果をスクリプトとして供給できる
type MockFrameSource struct {
	mu sync.Mutex

	caps  DeviceCapabilities
	open  bool
	torch bool

	// NextFrame のスクリプト（先頭から順に消費される）
	// nil エントリは NotReady を表す
	script []*Frame

	// テスト制御用
	openErr   error
	torchErr  error
	frameErr  error
	openDelay time.Duration

	// 呼び出し記録
	events         []string
	openCount      int
	closeCount     int
	nextFrameCalls int
	concurrentOpen int
	maxOpen        int
}

// NewMockFrameSource は新しい MockFrameSource を作成する
func NewMockFrameSource(supportsTorch bool) *MockFrameSource {
	return &MockFrameSource{
		caps: DeviceCapabilities{
			SupportsTorch: supportsTorch,
			Facing:        FacingUnknown,
		},
	}
}

// Open はストリームの確保を記録する
func (m *MockFrameSource) Open(ctx context.Context, req ScanRequest) (DeviceCapabilities, error) {
	m.mu.Lock()
	delay := m.openDelay
	m.mu.Unlock()

	// Open は中断可能な操作（ハードウェアのネゴシエーションを模擬）
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return DeviceCapabilities{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		m.events = append(m.events, fmt.Sprintf("open-failed:%s", req.Facing))
		return DeviceCapabilities{}, m.openErr
	}

	m.open = true
	m.torch = req.Torch
	m.openCount++
	m.concurrentOpen++
	if m.concurrentOpen > m.maxOpen {
		m.maxOpen = m.concurrentOpen
	}
	m.caps.Facing = req.Facing
	m.events = append(m.events, fmt.Sprintf("open:%s", req.Facing))

	return m.caps, nil
}

// Close はストリームの解放を記録する。冪等
func (m *MockFrameSource) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil
	}

	m.open = false
	m.closeCount++
	m.concurrentOpen--
	m.events = append(m.events, "close")
	return nil
}

// NextFrame はスクリプトから次の結果を返す
// スクリプトが空の場合は NotReady
func (m *MockFrameSource) NextFrame() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextFrameCalls++

	if len(m.script) == 0 {
		if m.frameErr != nil {
			return Frame{}, m.frameErr
		}
		return Frame{}, ErrNotReady
	}

	next := m.script[0]
	m.script = m.script[1:]

	if next == nil {
		return Frame{}, ErrNotReady
	}
	return *next, nil
}

// SetTorch はトーチ操作を記録する
func (m *MockFrameSource) SetTorch(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.caps.SupportsTorch {
		return ErrUnsupported
	}
	if m.torchErr != nil {
		return m.torchErr
	}

	m.torch = enabled
	m.events = append(m.events, fmt.Sprintf("torch:%t", enabled))
	return nil
}

// Capabilities は現在の能力を返す
func (m *MockFrameSource) Capabilities() DeviceCapabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

// QueueNotReady はテスト用に NotReady 結果を n 回分キューする
func (m *MockFrameSource) QueueNotReady(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.script = append(m.script, nil)
	}
}

// QueueFrame はテスト用にフレームをキューする
func (m *MockFrameSource) QueueFrame(frame Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := frame
	m.script = append(m.script, &f)
}

// SetOpenError はテスト用に Open 失敗を設定する
func (m *MockFrameSource) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetFrameError はテスト用にストリーム障害を設定する
// スクリプトの消費後、NextFrame は NotReady の代わりにこのエラーを返す
func (m *MockFrameSource) SetFrameError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameErr = err
}

// SetTorchError はテスト用に SetTorch 失敗を設定する
func (m *MockFrameSource) SetTorchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.torchErr = err
}

// SetOpenDelay はテスト用に Open の遅延を設定する
func (m *MockFrameSource) SetOpenDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openDelay = d
}

// Events は記録されたイベント列のコピーを返す
func (m *MockFrameSource) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]string, len(m.events))
	copy(events, m.events)
	return events
}

// OpenCount は Open 成功回数を返す
func (m *MockFrameSource) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

// CloseCount は Close 実行回数を返す
func (m *MockFrameSource) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// NextFrameCalls は NextFrame の呼び出し回数を返す
func (m *MockFrameSource) NextFrameCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextFrameCalls
}

// MaxConcurrentOpen は同時に開いていたストリーム数の最大値を返す
func (m *MockFrameSource) MaxConcurrentOpen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpen
}

// IsOpen はストリームが開いているかを返す
func (m *MockFrameSource) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// TorchEnabled は現在のトーチ状態を返す
func (m *MockFrameSource) TorchEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.torch
}
