// Package session はスキャンセッションのライフサイクル制御を担う
//
// # 責務
// - セッション状態機械（Idle/Starting/Scanning/Detected/Error）の所有
// - UIコマンド（start/stop/switchFacing/toggleTorch/clearDetection）の仲介
// - FrameSource のスコープ付きリソース管理（確保と確実な解放）
// - 状態変化の観測者への公開
//
// # 仕様
// - セッションごとに開くストリームは常に最大1つ
// - コマンドは発行順に直列処理され、同時に実行されることはない
// - 向きの変更はストリームの完全な再オープンを伴う
// - トーチ操作は装飾的であり、セッション状態を変更しない
// - Error 状態は新しい start によってのみ解消される
package session
