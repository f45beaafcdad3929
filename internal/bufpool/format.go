package bufpool

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/gogpu/gputypes"
)

// SupportedFormat reports whether a pool can be created with format.
func SupportedFormat(format gputypes.TextureFormat) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// ParseFormat maps a format name such as "bgra8unorm" to its texture format.
func ParseFormat(name string) (gputypes.TextureFormat, error) {
	for _, f := range Formats {
		if strings.EqualFold(name, f.String()) {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %q", ErrFormat, name)
}

// StoredColor returns c as it must be written into a buffer of format.
// Drawing with the result through the image.RGBA API yields the right bytes.
func StoredColor(format gputypes.TextureFormat, c color.RGBA) color.RGBA {
	if format == gputypes.TextureFormatBGRA8Unorm {
		c.R, c.B = c.B, c.R
	}
	return c
}

// ToRGBA returns the pixels of b in RGBA byte order. Buffers already in
// DefaultFormat are returned as is; others are converted into scratch, which
// is reallocated when it does not match b's size.
func ToRGBA(b *Buffer, scratch *image.RGBA) *image.RGBA {
	if b.Format == DefaultFormat {
		return b.Image
	}
	if scratch == nil || scratch.Bounds() != b.Image.Bounds() {
		scratch = image.NewRGBA(b.Image.Bounds())
	}
	src, dst := b.Image.Pix, scratch.Pix
	for i := 0; i+3 < len(src) && i+3 < len(dst); i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], src[i+3]
	}
	return scratch
}
