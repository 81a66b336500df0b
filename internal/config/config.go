package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"yomitori/internal/scan"
)

// Duration はYAML中の "10s" や "33ms" 形式の時間表記を扱う
type Duration time.Duration

// UnmarshalYAML は文字列表記またはナノ秒整数を解釈する
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("無効な時間表記: %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// Std は標準の time.Duration に変換する
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Scan   ScanConfig   `yaml:"scan"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	BackDevice  string `yaml:"back_device"`  // 背面カメラのデバイスパス
	FrontDevice string `yaml:"front_device"` // 前面カメラのデバイスパス

	FPS    int `yaml:"fps"`    // フレームレート (fps)
	Width  int `yaml:"width"`  // 画像幅
	Height int `yaml:"height"` // 画像高さ
}

// ScanConfig はスキャンループの設定
type ScanConfig struct {
	// TickInterval はデコード試行のケイデンス
	// ホスト環境の描画レート相当（既定: 約30fps）
	TickInterval Duration `yaml:"tick_interval"`
}

// Load は環境変数とデフォルト値から設定を読み込む
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("PORT", 8080),
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			BackDevice:  getEnvOrDefault("CAMERA_BACK_DEVICE", "/dev/video0"),
			FrontDevice: getEnvOrDefault("CAMERA_FRONT_DEVICE", "/dev/video1"),
			FPS:         getEnvAsIntOrDefault("CAMERA_FPS", 15),
			Width:       getEnvAsIntOrDefault("CAMERA_WIDTH", 1280),
			Height:      getEnvAsIntOrDefault("CAMERA_HEIGHT", 720),
		},
		Scan: ScanConfig{
			TickInterval: Duration(33 * time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadFile はYAMLファイルから設定を読み込む
// ファイルに書かれていない項目はデフォルト値のまま残る
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}

	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Camera.Width)
	}

	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Camera.Height)
	}

	if c.Scan.TickInterval <= 0 {
		return fmt.Errorf("無効なティック間隔: %v", c.Scan.TickInterval)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DeviceMap は設定から向きとデバイスパスの対応を構築する
func (c *Config) DeviceMap() map[scan.Facing]string {
	deviceMap := make(map[scan.Facing]string)
	if c.Camera.BackDevice != "" {
		deviceMap[scan.FacingBack] = c.Camera.BackDevice
	}
	if c.Camera.FrontDevice != "" {
		deviceMap[scan.FacingFront] = c.Camera.FrontDevice
	}
	return deviceMap
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
