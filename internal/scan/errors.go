package scan

import "errors"

// ErrorKind はスキャンセッションで発生するエラーの種別を表す
type ErrorKind string

const (
	// ErrorKindNone はエラーなしを表す
	ErrorKindNone ErrorKind = ""
	// ErrorKindPermissionDenied はカメラアクセスの拒否（その開始に対して致命的）
	ErrorKindPermissionDenied ErrorKind = "permission_denied"
	// ErrorKindDeviceUnavailable はデバイス不在・使用中（後で再試行可能）
	ErrorKindDeviceUnavailable ErrorKind = "device_unavailable"
	// ErrorKindConstraintUnsatisfiable は要求された向き・解像度を満たせない
	ErrorKindConstraintUnsatisfiable ErrorKind = "constraint_unsatisfiable"
	// ErrorKindUnsupported はトーチ等の任意機能の不在（非致命的）
	ErrorKindUnsupported ErrorKind = "unsupported"
	// ErrorKindApplyFailed はライブ設定変更のハードウェア拒否（非致命的、前の状態を維持）
	ErrorKindApplyFailed ErrorKind = "apply_failed"
)

// センチネルエラー
// FrameSource 実装はこれらを %w でラップして返す
var (
	ErrDeviceUnavailable       = errors.New("デバイスが利用できません")
	ErrPermissionDenied        = errors.New("カメラへのアクセスが拒否されました")
	ErrConstraintUnsatisfiable = errors.New("要求された構成を満たせません")
	ErrUnsupported             = errors.New("サポートされていない機能です")
	ErrApplyFailed             = errors.New("設定の適用がハードウェアに拒否されました")

	// ErrNotReady はデバイスがまだフレームを生成していないことを示す
	ErrNotReady = errors.New("フレームがまだ取得されていません")

	// ErrAlreadyRunning は実行中のループへの Start 呼び出しを示す
	ErrAlreadyRunning = errors.New("スキャンループは既に実行中です")
)

// KindOf はエラーを ErrorKind に分類する
// 分類できないハードウェア/IOエラーは再試行可能なデバイス障害として扱う
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrPermissionDenied):
		return ErrorKindPermissionDenied
	case errors.Is(err, ErrConstraintUnsatisfiable):
		return ErrorKindConstraintUnsatisfiable
	case errors.Is(err, ErrUnsupported):
		return ErrorKindUnsupported
	case errors.Is(err, ErrApplyFailed):
		return ErrorKindApplyFailed
	default:
		return ErrorKindDeviceUnavailable
	}
}

// Fatal はそのエラー種別がセッションを Error 状態へ遷移させるかを返す
// トーチ等の装飾的な失敗はセッション状態に影響しない
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrorKindPermissionDenied, ErrorKindDeviceUnavailable, ErrorKindConstraintUnsatisfiable:
		return true
	default:
		return false
	}
}
