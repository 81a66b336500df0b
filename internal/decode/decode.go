// Package decode は動作確認用の決定的なデコーダー実装を提供する
//
// 本物のQR/バーコードリーダーは外部コラボレーターであり、このパッケージは
// その代替ではない。SignatureDecoder は scan.Decoder 契約（純粋関数、
// フレームを保持しない、決定的）を満たす最小の実装で、実機を使わない
// 動作確認とエンドツーエンドの配線に使う。
package decode

import (
	"bytes"

	"yomitori/internal/scan"
)

// signature はフレーム中で検出対象となるマーカー
var signature = []byte("YMT1:")

// maxPayloadLen はペイロードの最大長（バイト）
const maxPayloadLen = 256

// SignatureDecoder はシグネチャマーカーを検出するデコーダー
// フレームのピクセルバッファ中の "YMT1:" に続く NUL 終端までの
// バイト列をペイロードとして抽出する
type SignatureDecoder struct{}

// NewSignatureDecoder は新しい SignatureDecoder を作成する
func NewSignatureDecoder() *SignatureDecoder {
	return &SignatureDecoder{}
}

// Decode はフレームからシグネチャ付きペイロードの抽出を試行する
func (d *SignatureDecoder) Decode(frame scan.Frame) (scan.Payload, bool) {
	idx := bytes.Index(frame.Pixels, signature)
	if idx == -1 {
		return scan.Payload{}, false
	}

	data := frame.Pixels[idx+len(signature):]
	if end := bytes.IndexByte(data, 0x00); end != -1 {
		data = data[:end]
	}
	if len(data) > maxPayloadLen {
		data = data[:maxPayloadLen]
	}
	if len(data) == 0 {
		// 空のペイロードは検出として扱わない
		return scan.Payload{}, false
	}

	return scan.Payload{
		Data:       string(data),
		CapturedAt: frame.Timestamp,
	}, true
}
