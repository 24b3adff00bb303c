package design

import (
	"errors"
	"fmt"
)

var (
	// ErrKindMismatch 表示操作对该元素类型不适用（例如给 dynamic-field 改文本）。
	ErrKindMismatch = errors.New("operation not valid for element kind")
	// ErrInvalidKind 表示未知的元素类型。
	ErrInvalidKind = errors.New("invalid element kind")
	// ErrInvalidFieldKey 表示 field_key 不在动态字段目录枚举内。
	ErrInvalidFieldKey = errors.New("field key not in merge field catalog")
)

// Store 持有当前编辑中的 Document，并提供以 id 为身份的元素级增删改。
// 所有修改都是 (当前文档, 输入) 的确定性函数；选区状态由 builder.Session 维护。
type Store struct {
	doc   Document
	newID func() string
}

// NewStore 以给定文档初始化 Store。
func NewStore(doc Document) *Store {
	return &Store{doc: doc, newID: NewElementID}
}

// Document 返回当前文档的副本，元素切片独立，调用方可安全持有。
func (s *Store) Document() Document {
	out := s.doc
	out.Elements = make([]Element, len(s.doc.Elements))
	copy(out.Elements, s.doc.Elements)
	return out
}

// ElementInput 是 AddElement 的入参；ID 由 Store 分配，调用方无法指定。
type ElementInput struct {
	Kind     Kind
	Position Position
	Style    Style
	Content  string
	FieldKey FieldKey
	ZIndex   int
}

// AddElement 分配新 id、补齐样式默认值并追加元素。
// 画布顺序即追加顺序，除非 z_index 显式覆盖。
func (s *Store) AddElement(in ElementInput) (Element, error) {
	if !in.Kind.Valid() {
		return Element{}, fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	if in.Kind == KindDynamicField && !in.FieldKey.Valid() {
		return Element{}, fmt.Errorf("%w: %q", ErrInvalidFieldKey, in.FieldKey)
	}

	el := Element{
		ID:       s.newID(),
		Kind:     in.Kind,
		Position: Position{X: ClampPercent(in.Position.X), Y: ClampPercent(in.Position.Y)},
		Style:    applyStyleDefaults(in.Style),
		ZIndex:   in.ZIndex,
	}
	switch in.Kind {
	case KindStaticText:
		el.Content = in.Content
	case KindDynamicField:
		el.FieldKey = in.FieldKey
	case KindImage, KindShape:
		el.Content = in.Content
	}

	s.doc.Elements = append(s.doc.Elements, el)
	return el, nil
}

// UpdatePosition 把元素移动到新的百分比位置，两轴各自夹到 [0, 100]。
// id 不存在时静默忽略：拖拽过程中元素可能刚被删除。
func (s *Store) UpdatePosition(id string, pos Position) {
	el, ok := s.doc.ElementByID(id)
	if !ok {
		return
	}
	el.Position.X = ClampPercent(pos.X)
	el.Position.Y = ClampPercent(pos.Y)
}

// StylePatch 是 UpdateStyle 的入参，nil 字段保持原值。
type StylePatch struct {
	FontFamily *string  `json:"font_family,omitempty"`
	FontSizePt *float64 `json:"font_size_pt,omitempty"`
	FontWeight *string  `json:"font_weight,omitempty"`
	Color      *string  `json:"color,omitempty"`
	Align      *string  `json:"align,omitempty"`
	MaxWidth   *float64 `json:"max_width,omitempty"`
	LineHeight *float64 `json:"line_height,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty"`
	Rotation   *float64 `json:"rotation,omitempty"`
}

// UpdateStyle 把补丁浅合并进元素样式，未指定的字段不动。
func (s *Store) UpdateStyle(id string, patch StylePatch) {
	el, ok := s.doc.ElementByID(id)
	if !ok {
		return
	}
	if patch.FontFamily != nil {
		el.Style.FontFamily = *patch.FontFamily
	}
	if patch.FontSizePt != nil {
		el.Style.FontSizePt = *patch.FontSizePt
	}
	if patch.FontWeight != nil {
		el.Style.FontWeight = *patch.FontWeight
	}
	if patch.Color != nil {
		el.Style.Color = *patch.Color
	}
	if patch.Align != nil {
		el.Style.Align = *patch.Align
	}
	if patch.MaxWidth != nil {
		el.Style.MaxWidth = *patch.MaxWidth
	}
	if patch.LineHeight != nil {
		el.Style.LineHeight = *patch.LineHeight
	}
	if patch.Opacity != nil {
		el.Style.Opacity = *patch.Opacity
	}
	if patch.Rotation != nil {
		el.Style.Rotation = *patch.Rotation
	}
}

// UpdateContent 替换 static-text 元素的文本。
func (s *Store) UpdateContent(id, text string) error {
	el, ok := s.doc.ElementByID(id)
	if !ok {
		return nil
	}
	if el.Kind != KindStaticText {
		return fmt.Errorf("%w: %s", ErrKindMismatch, el.Kind)
	}
	el.Content = text
	return nil
}

// RemoveElement 按 id 删除元素，返回是否真的删掉了。
func (s *Store) RemoveElement(id string) bool {
	for i := range s.doc.Elements {
		if s.doc.Elements[i].ID == id {
			s.doc.Elements = append(s.doc.Elements[:i], s.doc.Elements[i+1:]...)
			return true
		}
	}
	return false
}

// CanvasPatch 是 SetCanvas 的入参，nil 字段保持原值。
type CanvasPatch struct {
	Width           *int    `json:"width,omitempty"`
	Height          *int    `json:"height,omitempty"`
	BackgroundColor *string `json:"background_color,omitempty"`
	BackgroundImage *string `json:"background_image,omitempty"`
}

// SetCanvas 浅合并画布属性。宽高必须为正；
// 改动尺寸不会触碰任何元素位置（百分比坐标天然分辨率无关）。
func (s *Store) SetCanvas(patch CanvasPatch) error {
	if patch.Width != nil && *patch.Width <= 0 {
		return fmt.Errorf("canvas width must be positive, got %d", *patch.Width)
	}
	if patch.Height != nil && *patch.Height <= 0 {
		return fmt.Errorf("canvas height must be positive, got %d", *patch.Height)
	}

	if patch.Width != nil {
		s.doc.Canvas.Width = *patch.Width
	}
	if patch.Height != nil {
		s.doc.Canvas.Height = *patch.Height
	}
	if patch.BackgroundColor != nil {
		s.doc.Canvas.BackgroundColor = *patch.BackgroundColor
	}
	if patch.BackgroundImage != nil {
		s.doc.Canvas.BackgroundImage = *patch.BackgroundImage
	}
	return nil
}

// PaintOrder 返回按绘制顺序排列的元素副本：z_index 升序，
// 相同（含都未设置）时保持追加顺序。
func (s *Store) PaintOrder() []Element {
	return s.doc.PaintOrder()
}
