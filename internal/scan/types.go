package scan

import (
	"context"
	"time"
)

// Facing はストリームが束縛される物理カメラの向きを表す
type Facing string

const (
	FacingBack    Facing = "back"    // 背面カメラ
	FacingFront   Facing = "front"   // 前面カメラ
	FacingUnknown Facing = "unknown" // 未確定（Open成功前など）
)

// Opposite は反対側の向きを返す
// 未確定の場合は背面を既定とする
func (f Facing) Opposite() Facing {
	switch f {
	case FacingBack:
		return FacingFront
	case FacingFront:
		return FacingBack
	default:
		return FacingBack
	}
}

// Frame はカメラから取得した1枚のスナップショットを表す
// 生成後は不変であり、デコード呼び出しを超えて保持してはならない
type Frame struct {
	Width     int       // 画像幅
	Height    int       // 画像高さ
	Pixels    []byte    // ピクセルバッファ（ソース固有のエンコード）
	Timestamp time.Time // キャプチャ時刻
}

// DeviceCapabilities は現在開いているストリームの能力を表す
// Open成功時に取得され、次のOpenまでキャッシュされる
type DeviceCapabilities struct {
	SupportsTorch bool   `json:"supports_torch"` // トーチ（継続点灯ライト）制御が可能か
	Facing        Facing `json:"facing"`         // ストリームが束縛されている向き
}

// ScanRequest は要求されるストリーム構成を表す
// 現在の構成と比較して再オープンの要否を判断する
type ScanRequest struct {
	Facing Facing `json:"facing"` // 要求する向き
	Torch  bool   `json:"torch"`  // トーチ点灯を要求するか
}

// Payload はフレームから抽出されたデコード結果を表す
// 生成後は不変
type Payload struct {
	Data       string    `json:"data"`        // デコードされた内容
	CapturedAt time.Time `json:"captured_at"` // 元フレームのキャプチャ時刻
}

// Decoder はフレームからペイロードを抽出する外部コラボレーター
// 純粋関数であること：共有可変状態を持たず、フレームを呼び出しを超えて保持しない
type Decoder interface {
	// Decode はフレームのデコードを試行する
	// 検出できた場合のみ ok が true となる
	Decode(frame Frame) (payload Payload, ok bool)
}

// DecoderFunc は関数を Decoder として使うためのアダプター
type DecoderFunc func(Frame) (Payload, bool)

// Decode は f(frame) を呼び出す
func (f DecoderFunc) Decode(frame Frame) (Payload, bool) {
	return f(frame)
}

// FrameSource はカメラデバイスを抽象化するインターフェース
//
// 1インスタンスにつき同時に開けるハードウェアストリームは最大1つ。
// Open は既に開いているストリームを先に閉じてから新しいストリームを確保する。
type FrameSource interface {
	// Open はストリームを確保し、能力を返す
	// 失敗時は ErrDeviceUnavailable / ErrPermissionDenied / ErrConstraintUnsatisfiable
	// のいずれかにラップされたエラーを返す
	Open(ctx context.Context, req ScanRequest) (DeviceCapabilities, error)

	// Close はハードウェアリソースを解放する
	// 冪等であり、複数回呼び出しても安全
	Close(ctx context.Context) error

	// NextFrame は最新フレームを返す。ノンブロッキングであること
	// まだフレームが生成されていない場合は ErrNotReady を返す
	NextFrame() (Frame, error)

	// SetTorch はトーチの点灯状態を変更する
	// 能力がない場合は ErrUnsupported、ハードウェアが拒否した場合は ErrApplyFailed
	SetTorch(ctx context.Context, enabled bool) error

	// Capabilities は現在開いているストリームの能力を返す
	// Open成功前の値は未定義
	Capabilities() DeviceCapabilities
}
