// Package scan はフレーム取得とデコードのスケジューリングコアを担う
//
// # 責務
// - カメラデバイスを抽象化する FrameSource 契約の定義
// - デコーダー（外部コラボレーター）契約の定義
// - ティック駆動のスキャンループ状態機械の実装
// - スキャンセッションで発生するエラー種別の分類
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラバックエンドに依存せずスキャンループを駆動したい
// - フレーム単位のデコード試行を一定のケイデンスに制限したい
// - 検出・停止・再開のライフサイクルを決定的にテストしたい
//
// # 仕様
// - ScanLoop: Stopped -> Running -> (Stopped | Suspended) の状態遷移
// - 1ティックにつき最大1回のデコード試行（重複実行なし）
// - フレームキューは持たず、常に最新フレームのみを消費する
// - デコード成功でループは一時停止し、再開は呼び出し側の明示的な操作
// - Thread-safe な操作をサポート
package scan
