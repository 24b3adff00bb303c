package builder

import (
	"math"
	"testing"

	"certCanvas/internal/design"
)

func TestRenderedCanvasSize(t *testing.T) {
	canvas := design.Canvas{Width: 1200, Height: 850}

	size := RenderedCanvasSize(canvas, 0.5)
	if size.Width != 600 || size.Height != 425 {
		t.Fatalf("rendered size = %+v, want 600x425", size)
	}
}

func TestPixelToPercent_DividesByRenderedSize(t *testing.T) {
	// 缩放 50%：逻辑 1200x850 渲染为 600x425。
	rendered := Size{Width: 600, Height: 425}

	pos := PixelToPercent(Point{X: 300, Y: 212.5}, rendered)
	if pos.X != 50 || pos.Y != 50 {
		t.Fatalf("position = %+v, want (50, 50)", pos)
	}
}

func TestPixelToPercent_ClampsToCanvas(t *testing.T) {
	rendered := Size{Width: 600, Height: 425}

	pos := PixelToPercent(Point{X: -40, Y: 900}, rendered)
	if pos.X != 0 || pos.Y != 100 {
		t.Fatalf("position = %+v, want (0, 100)", pos)
	}
}

func TestPixelToPercent_ZeroSizeIsSafe(t *testing.T) {
	pos := PixelToPercent(Point{X: 100, Y: 100}, Size{})
	if pos.X != 0 || pos.Y != 0 {
		t.Fatalf("position = %+v, want origin", pos)
	}
}

func TestPercentToPixel_InvertsConversion(t *testing.T) {
	rendered := Size{Width: 930, Height: 612}

	for _, pos := range []design.Position{
		{X: 0, Y: 0},
		{X: 50, Y: 20},
		{X: 100, Y: 100},
		{X: 33.3, Y: 66.6},
	} {
		p := PercentToPixel(pos, rendered)
		back := PixelToPercent(p, rendered)
		if math.Abs(back.X-pos.X) > 1e-9 || math.Abs(back.Y-pos.Y) > 1e-9 {
			t.Errorf("round trip %+v -> %+v -> %+v", pos, p, back)
		}
	}
}
