package design

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Marshal 把文档序列化为持久化与渲染服务共用的 JSON 线格式。
// 可选字段缺省时直接省略（见各类型的 json tag）。
func Marshal(doc Document) ([]byte, error) {
	if doc.Canvas.Width <= 0 || doc.Canvas.Height <= 0 {
		return nil, fmt.Errorf("canvas dimensions must be positive, got %dx%d", doc.Canvas.Width, doc.Canvas.Height)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal design document: %w", err)
	}
	return data, nil
}

// Unmarshal 把线格式还原为文档。
// - 元素 id 原样保留，后端签发的 id 在多次编辑会话间保持稳定；
// - 缺失的样式字段按 AddElement 的默认值补齐；
// - 越界的位置坐标夹回 [0, 100]。
func Unmarshal(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal design document: %w", err)
	}

	if doc.Canvas.Width <= 0 {
		doc.Canvas.Width = DefaultCanvasWidth
	}
	if doc.Canvas.Height <= 0 {
		doc.Canvas.Height = DefaultCanvasHeight
	}
	if strings.TrimSpace(doc.Canvas.BackgroundColor) == "" {
		doc.Canvas.BackgroundColor = DefaultBackground
	}

	seen := make(map[string]struct{}, len(doc.Elements))
	for i := range doc.Elements {
		el := &doc.Elements[i]
		if el.ID == "" {
			return Document{}, fmt.Errorf("element %d: missing id", i)
		}
		if _, dup := seen[el.ID]; dup {
			return Document{}, fmt.Errorf("duplicate element id %q", el.ID)
		}
		seen[el.ID] = struct{}{}

		if !el.Kind.Valid() {
			return Document{}, fmt.Errorf("element %q: %w: %q", el.ID, ErrInvalidKind, el.Kind)
		}
		if el.Kind == KindDynamicField && !el.FieldKey.Valid() {
			return Document{}, fmt.Errorf("element %q: %w: %q", el.ID, ErrInvalidFieldKey, el.FieldKey)
		}

		el.Position.X = ClampPercent(el.Position.X)
		el.Position.Y = ClampPercent(el.Position.Y)
		el.Style = applyStyleDefaults(el.Style)
	}

	return doc, nil
}

// ResolvePreviewContent 返回元素在编辑器预览中应显示的文本。
// static-text 原样返回；dynamic-field 查目录取示例值，查不到就退回原始键名。
// 仅用于屏幕预览，最终渲染由后端用真实数据替换，因此这里绝不失败。
func ResolvePreviewContent(el Element, catalog Catalog) string {
	switch el.Kind {
	case KindStaticText:
		return el.Content
	case KindDynamicField:
		if field, ok := catalog[el.FieldKey]; ok {
			return field.Sample
		}
		return string(el.FieldKey)
	case KindImage, KindShape:
		return ""
	default:
		return ""
	}
}
