// Package server は、HTTPサーバーとセッションコマンドのAPIを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// スキャンセッションへのコマンド仲介、プレビュー配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - セッションコマンド（start/stop/switch/torch/clear）の受け付け
//   - セッション状態の公開
//   - MJPEGプレビューストリームの配信
//   - グレースフルシャットダウンとセッションの後始末
//
// 仕様:
//   - gin-gonic/gin を使用
//   - シャットダウン時は必ずセッションを停止しストリームを解放する
//   - 複数クライアントの同時接続をサポート
package server
