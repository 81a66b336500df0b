package camera

import "testing"

const sampleDeviceInfo = `Driver Info:
	Driver name      : uvcvideo
	Card type        : Integrated Camera: Integrated C
	Bus info         : usb-0000:00:14.0-8
	Driver version   : 6.5.13
`

const sampleControlsWithTorch = `User Controls

                     brightness 0x00980900 (int)    : min=0 max=255 step=1 default=128 value=128
                       contrast 0x00980901 (int)    : min=0 max=255 step=1 default=32 value=32

Flash Controls

                 flash_led_mode 0x009c0901 (menu)   : min=0 max=2 default=0 value=0
`

const sampleControlsNoTorch = `User Controls

                     brightness 0x00980900 (int)    : min=0 max=255 step=1 default=128 value=128
                       contrast 0x00980901 (int)    : min=0 max=255 step=1 default=32 value=32
`

func TestParseCardType(t *testing.T) {
	name := parseCardType(sampleDeviceInfo)
	if name != "Integrated Camera: Integrated C" {
		t.Errorf("Unexpected card type: %q", name)
	}

	if parseCardType("no card info here") != "" {
		t.Error("Expected empty card type for unrelated output")
	}
}

func TestParseTorchControl(t *testing.T) {
	if control := parseTorchControl(sampleControlsWithTorch); control != "flash_led_mode" {
		t.Errorf("Expected flash_led_mode control, got %q", control)
	}

	if control := parseTorchControl(sampleControlsNoTorch); control != "" {
		t.Errorf("Expected no torch control, got %q", control)
	}
}

func TestNewV4L2Capturer(t *testing.T) {
	capturer := NewV4L2Capturer("/dev/video0", 1280, 720, 15)

	if capturer.devicePath != "/dev/video0" {
		t.Errorf("Unexpected device path: %s", capturer.devicePath)
	}
	if capturer.width != 1280 || capturer.height != 720 {
		t.Errorf("Unexpected resolution: %dx%d", capturer.width, capturer.height)
	}
	if capturer.fps != 15 {
		t.Errorf("Unexpected fps: %d", capturer.fps)
	}
}
