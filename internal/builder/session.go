package builder

import "certCanvas/internal/design"

// Tool 是工具栏的工具模式。
type Tool string

const (
	ToolSelect  Tool = "select"
	ToolAddText Tool = "add-text"
)

// 缩放只影响屏幕渲染与像素换算，永远不落库。
const (
	MinZoom     = 0.3
	MaxZoom     = 1.5
	DefaultZoom = 1.0
)

// dragState 记录一次进行中的拖拽。
// offset 是按下瞬间指针相对元素锚点的像素偏移，整个拖拽期间复用；
// 每次移动都重算的话元素会跳到光标下，丢失原始抓取点。
type dragState struct {
	elementID string
	offset    Point
}

// Session 是一次编辑会话：一个用户、一份文档、一个标签页。
// 所有方法都在同一个事件循环里同步调用，Session 自身不加锁。
type Session struct {
	store    *design.Store
	catalog  design.Catalog
	tool     Tool
	selected string
	zoom     float64
	drag     *dragState
}

// NewSession 围绕给定文档建立会话，初始工具为 Select、缩放 1.0、无选中。
func NewSession(doc design.Document) *Session {
	return &Session{
		store:   design.NewStore(doc),
		catalog: design.DefaultCatalog(),
		tool:    ToolSelect,
		zoom:    DefaultZoom,
	}
}

// Store 暴露底层文档仓库（样式、文本、画布修改直接走 Store）。
func (s *Session) Store() *design.Store { return s.store }

// Document 返回当前文档快照。
func (s *Session) Document() design.Document { return s.store.Document() }

// Tool 返回当前工具模式。
func (s *Session) Tool() Tool { return s.tool }

// SetTool 切换工具模式，切换会取消进行中的拖拽。
func (s *Session) SetTool(tool Tool) {
	switch tool {
	case ToolSelect, ToolAddText:
		s.tool = tool
		s.drag = nil
	}
}

// Selected 返回选中元素的 id，空串表示无选中。
func (s *Session) Selected() string { return s.selected }

// Select 选中一个元素。选中动作总是把工具切回 Select：
// AddText 模式下点到已有元素时是选中而不是新建。
func (s *Session) Select(id string) {
	if _, ok := s.elementExists(id); !ok {
		return
	}
	s.selected = id
	s.tool = ToolSelect
}

// ClearSelection 清空选中。
func (s *Session) ClearSelection() { s.selected = "" }

// Zoom 返回当前缩放因子。
func (s *Session) Zoom() float64 { return s.zoom }

// SetZoom 设置缩放，夹在 [MinZoom, MaxZoom]。
func (s *Session) SetZoom(zoom float64) {
	if zoom < MinZoom {
		zoom = MinZoom
	}
	if zoom > MaxZoom {
		zoom = MaxZoom
	}
	s.zoom = zoom
}

// renderedSize 返回当前缩放下的画布渲染尺寸。
func (s *Session) renderedSize() Size {
	doc := s.store.Document()
	return RenderedCanvasSize(doc.Canvas, s.zoom)
}

// PointerDown 处理指针按下。Select 模式按在元素上时开始拖拽，
// 记录指针相对元素屏幕锚点的偏移；按在空白处清空选中。
func (s *Session) PointerDown(pointer Point, elementID string) {
	if s.tool != ToolSelect {
		return
	}
	if elementID == "" {
		s.selected = ""
		return
	}
	el, ok := s.elementExists(elementID)
	if !ok {
		return
	}

	s.selected = elementID
	anchor := PercentToPixel(el.Position, s.renderedSize())
	s.drag = &dragState{
		elementID: elementID,
		offset:    Point{X: pointer.X - anchor.X, Y: pointer.Y - anchor.Y},
	}
}

// PointerMove 处理拖拽中的指针移动：新锚点 = 指针位置 − 按下时的偏移，
// 再按渲染尺寸换算成百分比并夹回画布。非拖拽状态下是 no-op。
func (s *Session) PointerMove(pointer Point) {
	if s.drag == nil {
		return
	}
	anchor := Point{
		X: pointer.X - s.drag.offset.X,
		Y: pointer.Y - s.drag.offset.Y,
	}
	s.store.UpdatePosition(s.drag.elementID, PixelToPercent(anchor, s.renderedSize()))
}

// PointerUp 结束拖拽。指针离开画布时调用方也应当调它。
func (s *Session) PointerUp() { s.drag = nil }

// Dragging 返回是否有进行中的拖拽。
func (s *Session) Dragging() bool { return s.drag != nil }

// CanvasClick 处理画布空白处的点击。AddText 模式下在点击点新建
// 一个 static-text 元素（偏移为 0，直接用点击点换算），新元素自动选中，
// 工具切回 Select。其它模式下点击空白只清空选中。
func (s *Session) CanvasClick(pointer Point) (design.Element, bool) {
	if s.tool != ToolAddText {
		s.selected = ""
		return design.Element{}, false
	}

	el, err := s.store.AddElement(design.ElementInput{
		Kind:     design.KindStaticText,
		Position: PixelToPercent(pointer, s.renderedSize()),
		Content:  defaultTextContent,
	})
	if err != nil {
		return design.Element{}, false
	}

	s.selected = el.ID
	s.tool = ToolSelect
	return el, true
}

// AddDynamicField 在画布中心附近放置一个动态字段元素并选中它。
func (s *Session) AddDynamicField(key design.FieldKey) (design.Element, bool) {
	el, err := s.store.AddElement(design.ElementInput{
		Kind:     design.KindDynamicField,
		Position: design.Position{X: 50, Y: 50},
		FieldKey: key,
	})
	if err != nil {
		return design.Element{}, false
	}
	s.selected = el.ID
	s.tool = ToolSelect
	return el, true
}

// DeleteSelected 删除当前选中的元素并清空选中。
// 无选中时是 no-op 而不是错误，方便前端无脑转发 Delete 键。
func (s *Session) DeleteSelected() bool {
	if s.selected == "" {
		return false
	}
	removed := s.store.RemoveElement(s.selected)
	if s.drag != nil && s.drag.elementID == s.selected {
		s.drag = nil
	}
	s.selected = ""
	return removed
}

// PreviewContent 返回元素在编辑器里应显示的文本（动态字段用示例值）。
func (s *Session) PreviewContent(el design.Element) string {
	return design.ResolvePreviewContent(el, s.catalog)
}

func (s *Session) elementExists(id string) (design.Element, bool) {
	doc := s.store.Document()
	for _, el := range doc.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return design.Element{}, false
}

const defaultTextContent = "双击编辑文字"
