package render

import (
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
)

const defaultQRCodeSizePx = 128

// FrameStamp returns a QR code encoding a frame's sequence number and vsync
// timestamp, so a camera pointed at the screen can measure latency.
func FrameStamp(seq uint64, frameStartNanos int64, sizePx int) (image.Image, error) {
	return GenerateQRCodeImage(fmt.Sprintf("f=%d;t=%d", seq, frameStartNanos), sizePx)
}

// GenerateQRCodeImage returns a borderless QR code image for payload.
// If payload is empty, it returns (nil, nil).
func GenerateQRCodeImage(payload string, sizePx int) (image.Image, error) {
	if payload == "" {
		return nil, nil
	}
	if sizePx <= 0 {
		sizePx = defaultQRCodeSizePx
	}

	qrCode, err := qrcode.New(payload, qrcode.Low)
	if err != nil {
		return nil, err
	}
	qrCode.DisableBorder = true

	return qrCode.Image(sizePx), nil
}
