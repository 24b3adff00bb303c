package design

import "sort"

// Kind 区分画布上不同类型的元素。
type Kind string

const (
	KindStaticText   Kind = "static-text"
	KindDynamicField Kind = "dynamic-field"
	KindImage        Kind = "image"
	KindShape        Kind = "shape"
)

// Valid 判断 Kind 是否为已知的元素类型。
func (k Kind) Valid() bool {
	switch k {
	case KindStaticText, KindDynamicField, KindImage, KindShape:
		return true
	}
	return false
}

// Canvas 描述证书底板：逻辑尺寸与背景。
// 逻辑尺寸与屏幕缩放无关，元素位置按百分比存储，改动尺寸不会移动元素。
type Canvas struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	BackgroundColor string `json:"background_color"`
	BackgroundImage string `json:"background_image,omitempty"`
}

// Position 以画布宽高的百分比（0-100）表示元素锚点位置。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style 描述元素的可视属性。字段均为画布坐标系的值，
// 屏幕渲染与打印渲染各自按目标尺寸换算。
type Style struct {
	FontFamily string  `json:"font_family,omitempty"`
	FontSizePt float64 `json:"font_size_pt,omitempty"`
	FontWeight string  `json:"font_weight,omitempty"`
	Color      string  `json:"color,omitempty"`
	Align      string  `json:"align,omitempty"`
	MaxWidth   float64 `json:"max_width,omitempty"`
	LineHeight float64 `json:"line_height,omitempty"`
	Opacity    float64 `json:"opacity,omitempty"`
	Rotation   float64 `json:"rotation,omitempty"`
}

// Element 是画布上的一个元素。Content 仅对 static-text 有效，
// FieldKey 仅对 dynamic-field 有效。
type Element struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Position Position `json:"position"`
	Style    Style    `json:"style"`
	Content  string   `json:"content,omitempty"`
	FieldKey FieldKey `json:"field_key,omitempty"`
	ZIndex   int      `json:"z_index,omitempty"`
}

// Document 是一份完整的证书模板设计稿，即持久化与渲染的单位。
type Document struct {
	Canvas   Canvas    `json:"canvas"`
	Elements []Element `json:"elements"`
}

const (
	DefaultCanvasWidth  = 1200
	DefaultCanvasHeight = 850
	DefaultBackground   = "#ffffff"

	DefaultFontFamily = "Georgia"
	DefaultFontSizePt = 16.0
	DefaultFontWeight = "normal"
	DefaultColor      = "#1f2937"
	DefaultAlign      = "center"
	DefaultLineHeight = 1.2
	DefaultOpacity    = 1.0
)

// NewDocument 返回一份空白设计稿，使用默认画布尺寸与白色背景。
func NewDocument() Document {
	return Document{
		Canvas: Canvas{
			Width:           DefaultCanvasWidth,
			Height:          DefaultCanvasHeight,
			BackgroundColor: DefaultBackground,
		},
		Elements: nil,
	}
}

// applyStyleDefaults 补齐未指定的样式字段。
// AddElement 与 Unmarshal 使用同一套默认值，保证旧数据反序列化后行为一致。
func applyStyleDefaults(s Style) Style {
	if s.FontFamily == "" {
		s.FontFamily = DefaultFontFamily
	}
	if s.FontSizePt <= 0 {
		s.FontSizePt = DefaultFontSizePt
	}
	if s.FontWeight == "" {
		s.FontWeight = DefaultFontWeight
	}
	if s.Color == "" {
		s.Color = DefaultColor
	}
	if s.Align == "" {
		s.Align = DefaultAlign
	}
	if s.LineHeight <= 0 {
		s.LineHeight = DefaultLineHeight
	}
	if s.Opacity <= 0 || s.Opacity > 1 {
		s.Opacity = DefaultOpacity
	}
	return s
}

// ClampPercent 把坐标限制在 [0, 100]，画布是封闭的。
func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// PaintOrder 返回按绘制顺序排列的元素副本：z_index 升序，
// 相同（含都未设置）时保持追加顺序。
func (d *Document) PaintOrder() []Element {
	out := make([]Element, len(d.Elements))
	copy(out, d.Elements)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ZIndex < out[j].ZIndex
	})
	return out
}

// ElementByID 按 id 查找元素；元素身份永远以 id 为准，与切片顺序无关。
func (d *Document) ElementByID(id string) (*Element, bool) {
	for i := range d.Elements {
		if d.Elements[i].ID == id {
			return &d.Elements[i], true
		}
	}
	return nil, false
}
