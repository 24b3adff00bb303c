package worker

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildRenderDataBootstrapScript_EscapesPayload(t *testing.T) {
	payload := []byte(`{"canvas":{"width":1200},"note":"he said \"hi\" </script>"}`)

	script := buildRenderDataBootstrapScript(payload)

	if !strings.Contains(script, "window.__RENDER_DATA__") {
		t.Fatal("script does not assign window.__RENDER_DATA__")
	}
	if strings.Contains(script, "</script>") {
		t.Fatal("payload not escaped, raw </script> leaked into script")
	}
	if !strings.Contains(script, "JSON.parse") {
		t.Fatal("script must go through JSON.parse")
	}
}

func TestRenderDataEnvelope_DecodesCanvasAndWarnings(t *testing.T) {
	raw := `{
		"certificate_id": 7,
		"canvas": {"width": 1200, "height": 850, "background_color": "#ffffff"},
		"elements": [],
		"warnings": [{"code": 4004, "message": "background object missing"}]
	}`

	var envelope renderDataEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Canvas.Width != 1200 || envelope.Canvas.Height != 850 {
		t.Fatalf("canvas = %+v", envelope.Canvas)
	}
	if len(envelope.Warnings) != 1 || envelope.Warnings[0].Code != 4004 {
		t.Fatalf("warnings = %+v", envelope.Warnings)
	}
}
