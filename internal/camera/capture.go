package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// トーチとして扱うV4L2コントロール名（優先順）
var torchControls = []string{"torch", "flash_led_mode", "led1_mode"}

// V4L2Capturer はシェルコマンドを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// IsDeviceAvailable はV4L2デバイスが利用可能かチェックする
func (c *V4L2Capturer) IsDeviceAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", c.devicePath, "--info")
	err := cmd.Run()
	return err == nil
}

// DeviceName はv4l2-ctlを使って実際のデバイス名を取得する
// 取得できない場合は空文字列を返す
func (c *V4L2Capturer) DeviceName(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", c.devicePath, "--info")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return parseCardType(string(output))
}

// TorchControl はデバイスが持つトーチ相当のコントロール名を返す
// 見つからない場合は空文字列（トーチ非サポート）
func (c *V4L2Capturer) TorchControl(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", c.devicePath, "--list-ctrls")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return parseTorchControl(string(output))
}

// SetTorch はトーチコントロールの値を設定する
func (c *V4L2Capturer) SetTorch(ctx context.Context, control string, enabled bool) error {
	value := "0"
	if enabled {
		// flash_led_mode 系は 2 がトーチモード、boolean 系は 1 が点灯
		if control == "torch" {
			value = "1"
		} else {
			value = "2"
		}
	}

	cmd := exec.CommandContext(ctx, "v4l2-ctl",
		"--device", c.devicePath,
		"--set-ctrl", fmt.Sprintf("%s=%s", control, value),
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("コントロール %s の設定に失敗: %w", control, err)
	}
	return nil
}

// StartStream は連続キャプチャ用のストリームを開始する
// コンテキストのキャンセルまでJPEGフレームを frameChan へ送り続ける
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errorChan <- fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
		return
	}

	if err := cmd.Start(); err != nil {
		errorChan <- fmt.Errorf("ffmpegの起動に失敗: %w", err)
		return
	}

	go func() {
		defer func() {
			_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
		}()

		buffer := make([]byte, 1024*1024)
		frameBuffer := bytes.Buffer{}

		for {
			select {
			case <-ctx.Done():
				return
			default:
				n, err := stdout.Read(buffer)
				if err != nil {
					if err.Error() != "EOF" {
						select {
						case errorChan <- fmt.Errorf("フレーム読み取りエラー: %w", err):
						case <-ctx.Done():
						}
					}
					return
				}

				frameBuffer.Write(buffer[:n])

				// JPEGマーカーを探してフレームを分割
				data := frameBuffer.Bytes()
				for {
					startIdx := bytes.Index(data, []byte{0xFF, 0xD8})
					if startIdx == -1 {
						break
					}

					endIdx := bytes.Index(data[startIdx+2:], []byte{0xFF, 0xD9})
					if endIdx == -1 {
						// 完全なフレームがまだない
						if startIdx > 0 {
							frameBuffer.Reset()
							frameBuffer.Write(data[startIdx:])
						}
						break
					}

					endIdx += startIdx + 2 + 2
					frame := make([]byte, endIdx)
					copy(frame, data[:endIdx])

					select {
					case frameChan <- frame:
					case <-ctx.Done():
						return
					}

					remaining := data[endIdx:]
					frameBuffer.Reset()
					if len(remaining) > 0 {
						frameBuffer.Write(remaining)
						data = frameBuffer.Bytes()
					} else {
						break
					}
				}
			}
		}
	}()
}

// parseCardType はv4l2-ctlの出力からカメラ名を抽出する
func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Card type") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

// parseTorchControl はv4l2-ctlのコントロール一覧からトーチ相当の
// コントロール名を抽出する。見つからない場合は空文字列
func parseTorchControl(output string) string {
	for _, control := range torchControls {
		for _, line := range strings.Split(output, "\n") {
			fields := strings.Fields(line)
			if len(fields) > 0 && fields[0] == control {
				return control
			}
		}
	}
	return ""
}
