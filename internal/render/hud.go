package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/rook-computer/fbembed/internal/state"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const hudPadding = 8

// HUD draws the session status as a few lines of text.
type HUD struct {
	face font.Face
}

// NewHUD loads the Go Regular face at sizePt. When the font cannot be parsed
// it falls back to basicfont and reports the error.
func NewHUD(sizePt float64) (*HUD, error) {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return &HUD{face: basicfont.Face7x13}, fmt.Errorf("parse hud font: %w", err)
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{Size: sizePt, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return &HUD{face: basicfont.Face7x13}, fmt.Errorf("hud font face: %w", err)
	}
	return &HUD{face: face}, nil
}

// Height is the pixel height needed to show every status line.
func (h *HUD) Height() int {
	lineHeight := h.face.Metrics().Height.Ceil()
	return len(StatusLines(state.State{}))*lineHeight + 2*hudPadding
}

// Draw fills dst with the HUD background and the status lines for snap.
func (h *HUD) Draw(dst *image.RGBA, snap state.State) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, &image.Uniform{C: HUDBackground}, image.Point{}, draw.Src)

	metrics := h.face.Metrics()
	lineHeight := metrics.Height.Ceil()
	baseline := bounds.Min.Y + hudPadding + metrics.Ascent.Ceil()
	textColor := color.RGBA{R: Foreground.R, G: Foreground.G, B: Foreground.B, A: 0xFF}
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(textColor), Face: h.face}
	for _, line := range StatusLines(snap) {
		if baseline > bounds.Max.Y {
			break
		}
		drawer.Dot = fixed.P(bounds.Min.X+hudPadding, baseline)
		drawer.DrawString(line)
		baseline += lineHeight
	}
}

// StatusLines renders snap as human readable lines.
func StatusLines(snap state.State) []string {
	renderer := snap.Renderer
	if renderer == "" {
		renderer = "none"
	}
	surface := "no surface"
	if snap.Surface.Available && snap.Phase.HasSurface() {
		surface = fmt.Sprintf("surface %dx%d %s alpha %.2f", snap.Surface.Width, snap.Surface.Height, snap.Surface.Format, snap.Surface.Alpha)
	}
	return []string{
		fmt.Sprintf("%s | renderer %s | %s", snap.Phase, renderer, surface),
		fmt.Sprintf("frames %d/%d (seq %d) | empty %d | recycled %d",
			snap.Frames.Presented, snap.Frames.Rendered, snap.Frames.LastSeq, snap.Frames.Empty, snap.Frames.Recycled),
		fmt.Sprintf("vsync %.2fms | ticks %d | requested %d | answered %d | discarded %d",
			float64(snap.Vsync.PeriodNanos)/1e6, snap.Vsync.Ticks, snap.Vsync.Requested, snap.Vsync.Answered, snap.Vsync.Discarded),
	}
}
