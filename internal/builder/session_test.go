package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certCanvas/internal/design"
)

func newTestSession(t *testing.T) (*Session, design.Element) {
	t.Helper()
	s := NewSession(design.NewDocument())
	el, err := s.Store().AddElement(design.ElementInput{
		Kind:     design.KindStaticText,
		Position: design.Position{X: 50, Y: 50},
		Content:  "drag me",
	})
	require.NoError(t, err)
	return s, el
}

func TestSession_InitialState(t *testing.T) {
	s := NewSession(design.NewDocument())

	assert.Equal(t, ToolSelect, s.Tool())
	assert.Equal(t, DefaultZoom, s.Zoom())
	assert.Empty(t, s.Selected())
	assert.False(t, s.Dragging())
}

func TestSetZoom_ClampsToRange(t *testing.T) {
	s := NewSession(design.NewDocument())

	s.SetZoom(0.1)
	assert.Equal(t, MinZoom, s.Zoom())

	s.SetZoom(3.0)
	assert.Equal(t, MaxZoom, s.Zoom())

	s.SetZoom(0.75)
	assert.Equal(t, 0.75, s.Zoom())
}

func TestDrag_PreservesGrabOffset(t *testing.T) {
	s, el := newTestSession(t)

	// 默认缩放 1.0：画布 1200x850，元素锚点在屏幕 (600, 425)。
	// 在锚点右下 (620, 445) 按下，抓取偏移 (20, 20)。
	s.PointerDown(Point{X: 620, Y: 445}, el.ID)
	require.True(t, s.Dragging())
	assert.Equal(t, el.ID, s.Selected())

	// 指针移到 (320, 245)：新锚点 = 指针 − 偏移 = (300, 225)。
	s.PointerMove(Point{X: 320, Y: 245})

	doc := s.Document()
	got, ok := doc.ElementByID(el.ID)
	require.True(t, ok)
	assert.InDelta(t, 300.0/1200*100, got.Position.X, 1e-9)
	assert.InDelta(t, 225.0/850*100, got.Position.Y, 1e-9)

	s.PointerUp()
	assert.False(t, s.Dragging())
}

func TestDrag_AccountsForZoom(t *testing.T) {
	s, el := newTestSession(t)

	// 缩放 50%：画布渲染为 600x425，锚点在屏幕 (300, 212.5)。
	s.SetZoom(0.5)
	s.PointerDown(Point{X: 300, Y: 212.5}, el.ID)
	require.True(t, s.Dragging())

	// 指针移到屏幕 (150, 106.25)，即渲染尺寸的 25%。
	s.PointerMove(Point{X: 150, Y: 106.25})

	doc := s.Document()
	got, _ := doc.ElementByID(el.ID)
	assert.InDelta(t, 25, got.Position.X, 1e-9)
	assert.InDelta(t, 25, got.Position.Y, 1e-9)
}

func TestPointerMove_WithoutDragIsNoop(t *testing.T) {
	s, el := newTestSession(t)

	s.PointerMove(Point{X: 10, Y: 10})

	doc := s.Document()
	got, _ := doc.ElementByID(el.ID)
	assert.Equal(t, design.Position{X: 50, Y: 50}, got.Position)
}

func TestPointerDown_OnEmptyClearsSelection(t *testing.T) {
	s, el := newTestSession(t)
	s.Select(el.ID)
	require.Equal(t, el.ID, s.Selected())

	s.PointerDown(Point{X: 10, Y: 10}, "")
	assert.Empty(t, s.Selected())
	assert.False(t, s.Dragging())
}

func TestCanvasClick_AddTextMode(t *testing.T) {
	s := NewSession(design.NewDocument())
	s.SetTool(ToolAddText)

	el, ok := s.CanvasClick(Point{X: 600, Y: 170})
	require.True(t, ok)

	assert.Equal(t, design.KindStaticText, el.Kind)
	assert.InDelta(t, 50, el.Position.X, 1e-9)
	assert.InDelta(t, 20, el.Position.Y, 1e-9)
	// 新元素自动选中，工具切回 Select。
	assert.Equal(t, el.ID, s.Selected())
	assert.Equal(t, ToolSelect, s.Tool())
}

func TestCanvasClick_SelectModeClearsSelection(t *testing.T) {
	s, el := newTestSession(t)
	s.Select(el.ID)

	_, ok := s.CanvasClick(Point{X: 10, Y: 10})
	assert.False(t, ok)
	assert.Empty(t, s.Selected())
	assert.Len(t, s.Document().Elements, 1)
}

func TestAddDynamicField(t *testing.T) {
	s := NewSession(design.NewDocument())

	el, ok := s.AddDynamicField(design.FieldRecipientName)
	require.True(t, ok)
	assert.Equal(t, design.KindDynamicField, el.Kind)
	assert.Equal(t, design.FieldRecipientName, el.FieldKey)
	assert.Equal(t, el.ID, s.Selected())

	// 预览用目录示例值，不是键名。
	preview := s.PreviewContent(el)
	assert.NotEmpty(t, preview)
	assert.NotEqual(t, string(el.FieldKey), preview)

	_, ok = s.AddDynamicField("bogus_key")
	assert.False(t, ok)
}

func TestDeleteSelected(t *testing.T) {
	s, el := newTestSession(t)

	// 无选中：no-op。
	assert.False(t, s.DeleteSelected())
	assert.Len(t, s.Document().Elements, 1)

	s.Select(el.ID)
	assert.True(t, s.DeleteSelected())
	assert.Empty(t, s.Selected())
	assert.Empty(t, s.Document().Elements)
}

func TestDeleteSelected_CancelsDragOfDeletedElement(t *testing.T) {
	s, el := newTestSession(t)

	s.PointerDown(Point{X: 600, Y: 425}, el.ID)
	require.True(t, s.Dragging())

	require.True(t, s.DeleteSelected())
	assert.False(t, s.Dragging())

	// 删除后残留的 move 事件不得复活元素。
	s.PointerMove(Point{X: 100, Y: 100})
	assert.Empty(t, s.Document().Elements)
}

func TestSetTool_CancelsDrag(t *testing.T) {
	s, el := newTestSession(t)

	s.PointerDown(Point{X: 600, Y: 425}, el.ID)
	require.True(t, s.Dragging())

	s.SetTool(ToolAddText)
	assert.False(t, s.Dragging())
	assert.Equal(t, ToolAddText, s.Tool())

	// 未知工具名被忽略。
	s.SetTool("lasso")
	assert.Equal(t, ToolAddText, s.Tool())
}

func TestSelect_SwitchesBackToSelectTool(t *testing.T) {
	s, el := newTestSession(t)
	s.SetTool(ToolAddText)

	s.Select(el.ID)
	assert.Equal(t, ToolSelect, s.Tool())
	assert.Equal(t, el.ID, s.Selected())

	// 不存在的 id 不改变选中。
	s.Select("el_missing")
	assert.Equal(t, el.ID, s.Selected())
}
