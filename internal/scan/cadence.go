package scan

import "time"

// Cadence はスキャンループへティックを供給する
// ホスト環境の描画レートに相当するケイデンスを抽象化し、
// テストでは手動供給によって決定的な進行を可能にする
type Cadence interface {
	// C はティックを受信するチャンネルを返す
	C() <-chan time.Time

	// Stop はティックの供給を停止する
	Stop()
}

// CadenceFactory はループの実行ごとに新しい Cadence を生成する
type CadenceFactory func() Cadence

// TickerCadence は time.Ticker を使った本番用の Cadence 実装
type TickerCadence struct {
	ticker *time.Ticker
}

// NewTickerCadence は指定間隔でティックを供給する Cadence を作成する
func NewTickerCadence(interval time.Duration) *TickerCadence {
	return &TickerCadence{ticker: time.NewTicker(interval)}
}

// C はティックチャンネルを返す
func (c *TickerCadence) C() <-chan time.Time {
	return c.ticker.C
}

// Stop はティッカーを停止する
func (c *TickerCadence) Stop() {
	c.ticker.Stop()
}

// ManualCadence はテスト用の手動 Cadence 実装
// バッファなしチャンネルを使うため、Tick はループが前のティックを
// 処理し終えて受信可能になるまでブロックする
type ManualCadence struct {
	ch chan time.Time
}

// NewManualCadence は新しい ManualCadence を作成する
func NewManualCadence() *ManualCadence {
	return &ManualCadence{ch: make(chan time.Time)}
}

// C はティックチャンネルを返す
func (m *ManualCadence) C() <-chan time.Time {
	return m.ch
}

// Stop は何もしない（チャンネルは再利用可能なまま残す）
func (m *ManualCadence) Stop() {}

// Tick は1ティックを供給する。ループが受信するまでブロックする
func (m *ManualCadence) Tick() {
	m.ch <- time.Now()
}

// TryTick はタイムアウト付きで1ティックの供給を試みる
// ループが受信しなかった場合（停止・中断済みなど）は false を返す
func (m *ManualCadence) TryTick(timeout time.Duration) bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(timeout):
		return false
	}
}
