// Package camera はV4L2デバイスを scan.FrameSource として提供する
//
// # 責務
// - V4L2デバイスからのリアルタイムフレーム取得
// - カメラの向き（前面/背面）とデバイスパスの対応付け
// - トーチ（LEDライト）コントロールの検出と制御
// - デバイスの可用性検査とオープン失敗の分類
//
// # 仕様
// - V4L2 Capturer: ffmpeg経由でのMJPEGストリーミングキャプチャ
// - 最新フレームのみを保持し、古いフレームは暗黙に破棄される
// - トーチ制御は v4l2-ctl のコントロール経由（torch / flash_led_mode）
// - Thread-safe な操作をサポート
//
// # 前提要件
//   - v4l-utils: デバイス情報の取得とトーチ制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//     Red Hat/Fedora: sudo dnf install v4l-utils
//   - ffmpeg: フレームキャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Red Hat/Fedora: sudo dnf install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
