package render

import "image/color"

// Global render configuration for colors and the logical canvas.
var (
	// Background fills the canvas behind hidden targets.
	Background = color.RGBA{R: 0x10, G: 0x10, B: 0x14, A: 0xFF}
	// Foreground is used for HUD text.
	Foreground = color.RGBA{R: 0xFF, G: 0xDC, B: 0x00, A: 0xFF} // #ffdc00
	// HUDBackground sits behind HUD text.
	HUDBackground = color.RGBA{R: 0x20, G: 0x00, B: 0x40, A: 0xE0}
	// OverlayBorder outlines overlay targets in debug builds.
	OverlayBorder = color.RGBA{A: 0xFF}

	// Logical canvas size; scaled to the framebuffer.
	CanvasWidth  = 1280
	CanvasHeight = 720
)
