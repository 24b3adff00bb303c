// Package builder 把连续的指针输入翻译成对设计稿的离散修改，
// 并维护编辑会话自身的状态：工具模式、选中元素、缩放、拖拽。
package builder

import "certCanvas/internal/design"

// Point 是屏幕像素坐标。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size 是屏幕上实际渲染出的画布尺寸（逻辑尺寸 × 缩放）。
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RenderedCanvasSize 计算画布在给定缩放下的屏幕渲染尺寸。
func RenderedCanvasSize(canvas design.Canvas, zoom float64) Size {
	return Size{
		Width:  float64(canvas.Width) * zoom,
		Height: float64(canvas.Height) * zoom,
	}
}

// PixelToPercent 把屏幕像素坐标换算成画布百分比坐标。
// 分母必须是渲染尺寸而不是逻辑尺寸，否则缩放后拖拽会漂移。
// 这是整个编辑器唯一一处像素→百分比换算，调用方不得内联重算。
func PixelToPercent(p Point, rendered Size) design.Position {
	var pos design.Position
	if rendered.Width > 0 {
		pos.X = p.X / rendered.Width * 100
	}
	if rendered.Height > 0 {
		pos.Y = p.Y / rendered.Height * 100
	}
	pos.X = design.ClampPercent(pos.X)
	pos.Y = design.ClampPercent(pos.Y)
	return pos
}

// PercentToPixel 是 PixelToPercent 的逆换算，用于把存储位置还原到屏幕。
func PercentToPixel(pos design.Position, rendered Size) Point {
	return Point{
		X: pos.X / 100 * rendered.Width,
		Y: pos.Y / 100 * rendered.Height,
	}
}
