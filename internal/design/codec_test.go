package design

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	s := NewStore(NewDocument())

	title, err := s.AddElement(ElementInput{
		Kind:     KindStaticText,
		Position: Position{X: 50, Y: 20},
		Content:  "Certificate of Completion",
		Style:    Style{FontSizePt: 36, FontWeight: "bold"},
	})
	if err != nil {
		t.Fatalf("add title: %v", err)
	}
	name, err := s.AddElement(ElementInput{
		Kind:     KindDynamicField,
		Position: Position{X: 50, Y: 45},
		FieldKey: FieldRecipientName,
	})
	if err != nil {
		t.Fatalf("add name field: %v", err)
	}

	doc := s.Document()
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(doc, restored) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", restored, doc)
	}

	got, ok := restored.ElementByID(title.ID)
	if !ok || got.Content != "Certificate of Completion" {
		t.Fatalf("title element lost: %+v", got)
	}
	if got, ok := restored.ElementByID(name.ID); !ok || got.FieldKey != FieldRecipientName {
		t.Fatalf("name element lost: %+v", got)
	}
}

func TestMarshal_RejectsInvalidCanvas(t *testing.T) {
	doc := NewDocument()
	doc.Canvas.Width = 0
	if _, err := Marshal(doc); err == nil {
		t.Fatal("zero-width canvas accepted")
	}
}

func TestUnmarshal_DefaultsMissingCanvasAndStyles(t *testing.T) {
	raw := `{
		"canvas": {},
		"elements": [
			{"id": "el_a", "kind": "static-text", "position": {"x": 10, "y": 10}, "content": "hi"}
		]
	}`

	doc, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Canvas.Width != DefaultCanvasWidth || doc.Canvas.Height != DefaultCanvasHeight {
		t.Errorf("canvas = %dx%d, want defaults", doc.Canvas.Width, doc.Canvas.Height)
	}
	if doc.Canvas.BackgroundColor != DefaultBackground {
		t.Errorf("background = %q, want %q", doc.Canvas.BackgroundColor, DefaultBackground)
	}

	el := doc.Elements[0]
	if el.Style.FontFamily != DefaultFontFamily || el.Style.FontSizePt != DefaultFontSizePt {
		t.Errorf("style defaults not applied: %+v", el.Style)
	}
}

func TestUnmarshal_ClampsOutOfRangePositions(t *testing.T) {
	raw := `{
		"canvas": {"width": 1200, "height": 850, "background_color": "#ffffff"},
		"elements": [
			{"id": "el_a", "kind": "static-text", "position": {"x": -30, "y": 180}}
		]
	}`

	doc, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	pos := doc.Elements[0].Position
	if pos.X != 0 || pos.Y != 100 {
		t.Fatalf("position = (%v, %v), want (0, 100)", pos.X, pos.Y)
	}
}

func TestUnmarshal_RejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "missing id",
			raw:  `{"canvas": {"width": 10, "height": 10}, "elements": [{"kind": "static-text"}]}`,
			want: "missing id",
		},
		{
			name: "duplicate id",
			raw:  `{"canvas": {"width": 10, "height": 10}, "elements": [{"id": "a", "kind": "static-text"}, {"id": "a", "kind": "static-text"}]}`,
			want: "duplicate element id",
		},
		{
			name: "unknown kind",
			raw:  `{"canvas": {"width": 10, "height": 10}, "elements": [{"id": "a", "kind": "sticker"}]}`,
			want: "invalid element kind",
		},
		{
			name: "unknown field key",
			raw:  `{"canvas": {"width": 10, "height": 10}, "elements": [{"id": "a", "kind": "dynamic-field", "field_key": "shoe_size"}]}`,
			want: "field key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tc.raw))
			if err == nil {
				t.Fatal("bad document accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestUnmarshal_PreservesElementIDs(t *testing.T) {
	s := NewStore(NewDocument())
	el, _ := s.AddElement(ElementInput{Kind: KindStaticText, Content: "keep me"})

	data, err := Marshal(s.Document())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Elements[0].ID != el.ID {
		t.Fatalf("id changed across round trip: %q -> %q", el.ID, restored.Elements[0].ID)
	}
}

func TestWireFormat_UsesSnakeCaseKeys(t *testing.T) {
	s := NewStore(NewDocument())
	if _, err := s.AddElement(ElementInput{
		Kind:     KindDynamicField,
		FieldKey: FieldCredentialNumber,
		ZIndex:   3,
	}); err != nil {
		t.Fatalf("add element: %v", err)
	}

	data, err := Marshal(s.Document())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	canvas := generic["canvas"].(map[string]any)
	if _, ok := canvas["background_color"]; !ok {
		t.Error("canvas missing background_color key")
	}
	el := generic["elements"].([]any)[0].(map[string]any)
	for _, key := range []string{"field_key", "z_index"} {
		if _, ok := el[key]; !ok {
			t.Errorf("element missing %s key", key)
		}
	}
}

func TestResolvePreviewContent(t *testing.T) {
	catalog := DefaultCatalog()

	static := Element{Kind: KindStaticText, Content: "Welcome"}
	if got := ResolvePreviewContent(static, catalog); got != "Welcome" {
		t.Errorf("static text preview = %q", got)
	}

	dynamic := Element{Kind: KindDynamicField, FieldKey: FieldRecipientName}
	if got := ResolvePreviewContent(dynamic, catalog); got != catalog[FieldRecipientName].Sample {
		t.Errorf("dynamic field preview = %q, want sample value", got)
	}

	// 目录查不到时退回原始键名，预览永不失败。
	unknown := Element{Kind: KindDynamicField, FieldKey: "legacy_key"}
	if got := ResolvePreviewContent(unknown, catalog); got != "legacy_key" {
		t.Errorf("unknown field preview = %q, want raw key", got)
	}
}

func TestValidateWire(t *testing.T) {
	good := `{
		"canvas": {"width": 1200, "height": 850, "background_color": "#ffffff"},
		"elements": [
			{"id": "el_a", "kind": "static-text", "position": {"x": 50, "y": 20}, "content": "hi"}
		]
	}`
	if err := ValidateWire([]byte(good)); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	// 越界坐标在公共 API 层直接拒绝，不做静默夹取。
	bad := `{
		"canvas": {"width": 1200, "height": 850, "background_color": "#ffffff"},
		"elements": [
			{"id": "el_a", "kind": "static-text", "position": {"x": 150, "y": 20}}
		]
	}`
	if err := ValidateWire([]byte(bad)); err == nil {
		t.Fatal("out-of-range position accepted by schema")
	}
}
