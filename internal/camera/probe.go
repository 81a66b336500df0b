package camera

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"yomitori/internal/scan"
)

// probeDevice はデバイスのオープン可否を検査し、失敗を scan のエラー種別に分類する
func probeDevice(device string) error {
	if _, err := os.Stat(device); err != nil {
		return fmt.Errorf("デバイス %s が見つかりません: %w", device, scan.ErrDeviceUnavailable)
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("デバイス %s を開く権限がありません: %w", device, scan.ErrPermissionDenied)
		}
		return fmt.Errorf("デバイス %s を開けません: %w", device, scan.ErrDeviceUnavailable)
	}
	defer func() {
		_ = file.Close()
	}()

	if !isV4L2Device(device) {
		return fmt.Errorf("デバイス %s はビデオデバイスではありません: %w", device, scan.ErrDeviceUnavailable)
	}

	return nil
}

// isV4L2Device はデバイスパスがV4L2デバイスの形式かチェックする
// 簡易実装：実際にはV4L2のioctl呼び出しで確認する
func isV4L2Device(device string) bool {
	matched, _ := regexp.MatchString(`^/dev/video\d+$`, device)
	return matched
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// DiscoverDevices はシステム内のビデオデバイスをスキャンして番号順に返す
func DiscoverDevices() ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	var devices []string
	for _, match := range matches {
		if isV4L2Device(match) {
			devices = append(devices, match)
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return extractDeviceNumber(devices[i]) < extractDeviceNumber(devices[j])
	})

	return devices, nil
}

// ResolveDevices は設定された対応を検証し、必要なら自動検出で補う
// 設定されたデバイスが1つも存在しない場合、システムをスキャンして
// 見つかったデバイスから対応を再構築する
func ResolveDevices(configured map[scan.Facing]string) map[scan.Facing]string {
	for _, device := range configured {
		if _, err := os.Stat(device); err == nil {
			return configured
		}
	}

	discovered, err := DiscoverDevices()
	if err != nil || len(discovered) == 0 {
		return configured
	}

	log.Printf("設定されたデバイスが見つからないため自動検出に切り替えます: %v", discovered)
	return BuildDeviceMap(discovered)
}

// BuildDeviceMap はデバイス一覧から向きとデバイスパスの対応を構築する
// 最も小さい番号のデバイスを背面、次を前面として扱う
// （組み込みLinux機器の一般的な配列に合わせた既定値）
func BuildDeviceMap(devices []string) map[scan.Facing]string {
	deviceMap := make(map[scan.Facing]string)

	if len(devices) > 0 {
		deviceMap[scan.FacingBack] = devices[0]
	}
	if len(devices) > 1 {
		deviceMap[scan.FacingFront] = devices[1]
	}

	return deviceMap
}
