package decode

import (
	"strings"
	"testing"
	"time"

	"yomitori/internal/scan"
)

func TestSignatureDecoder_Decode(t *testing.T) {
	decoder := NewSignatureDecoder()
	capturedAt := time.Now()

	testCases := []struct {
		name     string
		pixels   []byte
		expected string
		ok       bool
	}{
		{
			name:     "signature at start",
			pixels:   []byte("YMT1:hello"),
			expected: "hello",
			ok:       true,
		},
		{
			name:     "signature mid-buffer",
			pixels:   append([]byte{0xFF, 0xD8, 0x00}, []byte("YMT1:ticket-42")...),
			expected: "ticket-42",
			ok:       true,
		},
		{
			name:     "nul terminated payload",
			pixels:   []byte("YMT1:abc\x00trailing"),
			expected: "abc",
			ok:       true,
		},
		{
			name:   "no signature",
			pixels: []byte("plain frame data"),
			ok:     false,
		},
		{
			name:   "empty payload",
			pixels: []byte("YMT1:"),
			ok:     false,
		},
		{
			name:   "empty frame",
			pixels: nil,
			ok:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame := scan.Frame{Pixels: tc.pixels, Timestamp: capturedAt}

			payload, ok := decoder.Decode(frame)
			if ok != tc.ok {
				t.Fatalf("Expected ok=%t, got %t", tc.ok, ok)
			}
			if !ok {
				return
			}

			if payload.Data != tc.expected {
				t.Errorf("Expected payload %q, got %q", tc.expected, payload.Data)
			}
			if !payload.CapturedAt.Equal(capturedAt) {
				t.Error("Expected payload to carry the frame capture timestamp")
			}
		})
	}
}

func TestSignatureDecoder_TruncatesLongPayload(t *testing.T) {
	decoder := NewSignatureDecoder()

	long := strings.Repeat("a", maxPayloadLen+50)
	frame := scan.Frame{Pixels: []byte("YMT1:" + long)}

	payload, ok := decoder.Decode(frame)
	if !ok {
		t.Fatal("Expected detection for long payload")
	}
	if len(payload.Data) != maxPayloadLen {
		t.Errorf("Expected payload truncated to %d bytes, got %d", maxPayloadLen, len(payload.Data))
	}
}

func TestSignatureDecoder_Deterministic(t *testing.T) {
	decoder := NewSignatureDecoder()
	frame := scan.Frame{Pixels: []byte("YMT1:stable")}

	first, ok := decoder.Decode(frame)
	if !ok {
		t.Fatal("Expected detection")
	}

	// 同じフレームに対する結果は常に同一
	for i := 0; i < 10; i++ {
		payload, ok := decoder.Decode(frame)
		if !ok || payload.Data != first.Data {
			t.Fatalf("Expected deterministic result, got ok=%t payload=%q", ok, payload.Data)
		}
	}
}
