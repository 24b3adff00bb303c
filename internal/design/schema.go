package design

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// wireSchema 约束客户端提交的设计稿 JSON，在进 Unmarshal 前先挡掉
// 结构性垃圾（负尺寸、越界坐标、未知 kind），错误信息可直接回给前端。
const wireSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["canvas", "elements"],
  "properties": {
    "canvas": {
      "type": "object",
      "required": ["width", "height"],
      "properties": {
        "width": {"type": "integer", "minimum": 1},
        "height": {"type": "integer", "minimum": 1},
        "background_color": {"type": "string"},
        "background_image": {"type": "string"}
      }
    },
    "elements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "kind", "position"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "kind": {"enum": ["static-text", "dynamic-field", "image", "shape"]},
          "position": {
            "type": "object",
            "required": ["x", "y"],
            "properties": {
              "x": {"type": "number", "minimum": 0, "maximum": 100},
              "y": {"type": "number", "minimum": 0, "maximum": 100}
            }
          },
          "style": {"type": "object"},
          "content": {"type": "string"},
          "field_key": {"type": "string"},
          "z_index": {"type": "integer"}
        }
      }
    }
  }
}`

var compiledWireSchema = gojsonschema.NewStringLoader(wireSchema)

// ValidateWire 用 JSON Schema 校验线格式。返回的错误已经拼好，
// 形如 "elements.0.position.x: Must be less than or equal to 100"。
func ValidateWire(data []byte) error {
	result, err := gojsonschema.Validate(compiledWireSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate design document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("invalid design document: %s", strings.Join(msgs, "; "))
}
