package session

import "yomitori/internal/scan"

// State はセッションの状態を表す
type State string

const (
	StateIdle     State = "idle"     // ストリームなし、スキャンなし
	StateStarting State = "starting" // ストリーム確保中
	StateScanning State = "scanning" // スキャンループが動作中
	StateDetected State = "detected" // 検出済み、ループは中断中
	StateError    State = "error"    // 開始に失敗、新しい start 待ち
)

// Snapshot はセッション状態の観測用スナップショット
// Controller の外に出る値は常にコピーであり、観測者が変更することはできない
type Snapshot struct {
	ID           string                  `json:"id"`
	State        State                   `json:"state"`
	Payload      *scan.Payload           `json:"payload,omitempty"`
	ErrorKind    scan.ErrorKind          `json:"error_kind,omitempty"`
	Capabilities scan.DeviceCapabilities `json:"capabilities"`
	Request      scan.ScanRequest        `json:"request"`
}
