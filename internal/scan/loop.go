package scan

import (
	"errors"
	"sync"
)

// Status はスキャンループの動作状態を表す
type Status string

const (
	StatusStopped   Status = "stopped"   // ループは停止中
	StatusRunning   Status = "running"   // ループはティックを処理中
	StatusSuspended Status = "suspended" // 検出によりループは中断中（明示的な再開待ち）
)

// Loop はティック駆動のスキャンループ状態機械
//
// 1ティックにつき最大1回のデコード試行を行う。ティックは単一の
// ゴルーチンで逐次処理されるため、デコード呼び出しが重複することはない。
// フレームキューは持たず、FrameSource が保持する最新フレームのみを消費する
// （古いフレームは暗黙に破棄され、バックプレッシャーは発生しない）。
type Loop struct {
	decoder    Decoder
	newCadence CadenceFactory
	onDetect   func(Payload)
	onError    func(error)

	mu     sync.RWMutex
	status Status
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLoop は新しいスキャンループを作成する
// onDetect はデコード成功時、onError はストリーム障害時に
// ループのゴルーチンから一度だけ呼ばれる
func NewLoop(decoder Decoder, newCadence CadenceFactory, onDetect func(Payload), onError func(error)) *Loop {
	return &Loop{
		decoder:    decoder,
		newCadence: newCadence,
		onDetect:   onDetect,
		onError:    onError,
		status:     StatusStopped,
	}
}

// Start はループを開始する（Stopped/Suspended -> Running）
// 既に実行中の場合は ErrAlreadyRunning を返す
func (l *Loop) Start(source FrameSource) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status == StatusRunning {
		return ErrAlreadyRunning
	}

	// 中断からの再開時、前のゴルーチンの終了を確実に待つ
	l.wg.Wait()

	l.stopCh = make(chan struct{})
	cadence := l.newCadence()

	l.wg.Add(1)
	go l.run(source, cadence, l.stopCh)

	l.status = StatusRunning
	return nil
}

// Stop はループを停止する（任意の状態 -> Stopped）
// 保留中のティックはキャンセルされる。冪等であり複数回呼び出しても安全
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.status == StatusStopped {
		l.mu.Unlock()
		return
	}

	// 中断済みの場合、ゴルーチンは終了しているが stopCh は開いたまま
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	l.mu.Unlock()

	l.wg.Wait()

	l.mu.Lock()
	l.status = StatusStopped
	l.mu.Unlock()
}

// GetStatus は現在の状態を返す
func (l *Loop) GetStatus() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// run はティック処理の本体
// 検出が起きるか停止されるまで1ティックずつ逐次処理する
func (l *Loop) run(source FrameSource, cadence Cadence, stopCh chan struct{}) {
	defer l.wg.Done()
	defer cadence.Stop()

	for {
		select {
		case <-stopCh:
			return

		case <-cadence.C():
			frame, err := source.NextFrame()
			if err != nil {
				// NotReady: デコードせず次のティックを待つ
				if errors.Is(err, ErrNotReady) {
					continue
				}

				// ストリーム障害: ループを終了し、呼び出し側へ通知する
				l.mu.Lock()
				l.status = StatusStopped
				l.mu.Unlock()

				if l.onError != nil {
					l.onError(err)
				}
				return
			}

			payload, ok := l.decoder.Decode(frame)
			if !ok {
				continue
			}

			// 検出: ループを中断し、ペイロードを一度だけ通知する
			// 再開は呼び出し側の明示的な Start による
			l.mu.Lock()
			l.status = StatusSuspended
			l.mu.Unlock()

			if l.onDetect != nil {
				l.onDetect(payload)
			}
			return
		}
	}
}
