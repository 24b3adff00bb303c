package design

import (
	"errors"
	"fmt"
	"testing"
)

func newSeededStore() *Store {
	s := NewStore(NewDocument())
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("el_%04d", n)
	}
	return s
}

func TestAddElement_AssignsUniqueIDs(t *testing.T) {
	s := NewStore(NewDocument())

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		el, err := s.AddElement(ElementInput{Kind: KindStaticText, Content: "text"})
		if err != nil {
			t.Fatalf("add element %d: %v", i, err)
		}
		if el.ID == "" {
			t.Fatalf("element %d: empty id", i)
		}
		if _, dup := seen[el.ID]; dup {
			t.Fatalf("duplicate id %q", el.ID)
		}
		seen[el.ID] = struct{}{}
	}
}

func TestAddElement_AppliesStyleDefaults(t *testing.T) {
	s := newSeededStore()

	el, err := s.AddElement(ElementInput{Kind: KindStaticText, Content: "hello"})
	if err != nil {
		t.Fatalf("add element: %v", err)
	}

	if el.Style.FontFamily != DefaultFontFamily {
		t.Errorf("font family = %q, want %q", el.Style.FontFamily, DefaultFontFamily)
	}
	if el.Style.FontSizePt != DefaultFontSizePt {
		t.Errorf("font size = %v, want %v", el.Style.FontSizePt, DefaultFontSizePt)
	}
	if el.Style.Align != DefaultAlign {
		t.Errorf("align = %q, want %q", el.Style.Align, DefaultAlign)
	}
	if el.Style.LineHeight != DefaultLineHeight {
		t.Errorf("line height = %v, want %v", el.Style.LineHeight, DefaultLineHeight)
	}
	if el.Style.Opacity != DefaultOpacity {
		t.Errorf("opacity = %v, want %v", el.Style.Opacity, DefaultOpacity)
	}
}

func TestAddElement_RejectsInvalidInput(t *testing.T) {
	s := newSeededStore()

	if _, err := s.AddElement(ElementInput{Kind: "sticker"}); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("unknown kind: got %v, want ErrInvalidKind", err)
	}
	if _, err := s.AddElement(ElementInput{Kind: KindDynamicField, FieldKey: "nonexistent"}); !errors.Is(err, ErrInvalidFieldKey) {
		t.Fatalf("unknown field key: got %v, want ErrInvalidFieldKey", err)
	}
}

func TestAddElement_ClampsPosition(t *testing.T) {
	s := newSeededStore()

	el, err := s.AddElement(ElementInput{
		Kind:     KindStaticText,
		Position: Position{X: -10, Y: 250},
	})
	if err != nil {
		t.Fatalf("add element: %v", err)
	}
	if el.Position.X != 0 || el.Position.Y != 100 {
		t.Fatalf("position = (%v, %v), want (0, 100)", el.Position.X, el.Position.Y)
	}
}

func TestUpdatePosition_ClampsAndIgnoresMissing(t *testing.T) {
	s := newSeededStore()
	el, _ := s.AddElement(ElementInput{Kind: KindStaticText, Position: Position{X: 50, Y: 50}})

	s.UpdatePosition(el.ID, Position{X: 120, Y: -5})

	doc := s.Document()
	got, ok := doc.ElementByID(el.ID)
	if !ok {
		t.Fatal("element disappeared")
	}
	if got.Position.X != 100 || got.Position.Y != 0 {
		t.Fatalf("position = (%v, %v), want (100, 0)", got.Position.X, got.Position.Y)
	}

	// id 不存在：静默无操作。
	s.UpdatePosition("el_missing", Position{X: 1, Y: 1})
	if len(s.Document().Elements) != 1 {
		t.Fatal("missing-id update must not change the document")
	}
}

func TestUpdateStyle_MergesOnlyGivenFields(t *testing.T) {
	s := newSeededStore()
	el, _ := s.AddElement(ElementInput{Kind: KindStaticText, Content: "x"})

	size := 32.0
	color := "#aa0000"
	s.UpdateStyle(el.ID, StylePatch{FontSizePt: &size, Color: &color})

	doc := s.Document()
	got, _ := doc.ElementByID(el.ID)
	if got.Style.FontSizePt != 32 {
		t.Errorf("font size = %v, want 32", got.Style.FontSizePt)
	}
	if got.Style.Color != "#aa0000" {
		t.Errorf("color = %q, want #aa0000", got.Style.Color)
	}
	if got.Style.FontFamily != DefaultFontFamily {
		t.Errorf("font family changed unexpectedly: %q", got.Style.FontFamily)
	}
}

func TestUpdateContent_KindMismatch(t *testing.T) {
	s := newSeededStore()
	el, _ := s.AddElement(ElementInput{Kind: KindDynamicField, FieldKey: FieldRecipientName})

	if err := s.UpdateContent(el.ID, "new text"); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("got %v, want ErrKindMismatch", err)
	}

	// 不存在的 id 不算错误。
	if err := s.UpdateContent("el_missing", "whatever"); err != nil {
		t.Fatalf("missing id: got %v, want nil", err)
	}
}

func TestRemoveElement(t *testing.T) {
	s := newSeededStore()
	el, _ := s.AddElement(ElementInput{Kind: KindStaticText})

	if !s.RemoveElement(el.ID) {
		t.Fatal("remove existing element returned false")
	}
	if s.RemoveElement(el.ID) {
		t.Fatal("second remove returned true")
	}
	if len(s.Document().Elements) != 0 {
		t.Fatal("document still has elements")
	}
}

func TestSetCanvas_KeepsElementPositions(t *testing.T) {
	s := newSeededStore()
	el, _ := s.AddElement(ElementInput{Kind: KindStaticText, Position: Position{X: 50, Y: 20}})

	w, h := 2400, 1700
	if err := s.SetCanvas(CanvasPatch{Width: &w, Height: &h}); err != nil {
		t.Fatalf("set canvas: %v", err)
	}

	doc := s.Document()
	if doc.Canvas.Width != 2400 || doc.Canvas.Height != 1700 {
		t.Fatalf("canvas = %dx%d, want 2400x1700", doc.Canvas.Width, doc.Canvas.Height)
	}
	got, _ := doc.ElementByID(el.ID)
	if got.Position.X != 50 || got.Position.Y != 20 {
		t.Fatalf("resize moved element to (%v, %v)", got.Position.X, got.Position.Y)
	}
}

func TestSetCanvas_RejectsNonPositiveDimensions(t *testing.T) {
	s := newSeededStore()

	zero := 0
	if err := s.SetCanvas(CanvasPatch{Width: &zero}); err == nil {
		t.Fatal("zero width accepted")
	}
	neg := -10
	if err := s.SetCanvas(CanvasPatch{Height: &neg}); err == nil {
		t.Fatal("negative height accepted")
	}
}

func TestPaintOrder_ZIndexThenAppendOrder(t *testing.T) {
	s := newSeededStore()
	a, _ := s.AddElement(ElementInput{Kind: KindStaticText, ZIndex: 5})
	b, _ := s.AddElement(ElementInput{Kind: KindStaticText})
	c, _ := s.AddElement(ElementInput{Kind: KindStaticText})
	d, _ := s.AddElement(ElementInput{Kind: KindStaticText, ZIndex: -1})

	order := s.PaintOrder()
	want := []string{d.ID, b.ID, c.ID, a.ID}
	if len(order) != len(want) {
		t.Fatalf("paint order has %d elements, want %d", len(order), len(want))
	}
	for i, id := range want {
		if order[i].ID != id {
			t.Errorf("paint order[%d] = %s, want %s", i, order[i].ID, id)
		}
	}
}

func TestDocument_ReturnsIndependentCopy(t *testing.T) {
	s := newSeededStore()
	el, _ := s.AddElement(ElementInput{Kind: KindStaticText, Content: "original"})

	snapshot := s.Document()
	snapshot.Elements[0].Content = "mutated"

	fresh := s.Document()
	got, _ := fresh.ElementByID(el.ID)
	if got.Content != "original" {
		t.Fatal("snapshot mutation leaked into the store")
	}
}
