package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"certCanvas/internal/database"
	"certCanvas/internal/design"
)

type fakeStorage struct {
	uploaded map[string][]byte
	deleted  []string
	prefixes []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.prefixes = append(s.prefixes, prefix)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTemplateTestHandler(t *testing.T) (*TemplateHandler, *gorm.DB, *fakeStorage) {
	t.Helper()
	db := newTestDB(t)
	storage := newFakeStorage()
	h := &TemplateHandler{
		db:       db,
		storage:  storage,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBytes: 15 * 1024 * 1024,
	}
	return h, db, storage
}

func newMultipartForm(t *testing.T, fields map[string]string, fileField, filename, fileType string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if fileField != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="` + fileField + `"; filename="` + filename + `"`}
		header["Content-Type"] = []string{fileType}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func newAuthedContext(t *testing.T, w *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set("userID", uint(1))
	return c
}

func validDesignJSON(t *testing.T) string {
	t.Helper()
	s := design.NewStore(design.NewDocument())
	if _, err := s.AddElement(design.ElementInput{
		Kind:     design.KindStaticText,
		Position: design.Position{X: 50, Y: 20},
		Content:  "Certificate of Completion",
	}); err != nil {
		t.Fatalf("add element: %v", err)
	}
	data, err := design.Marshal(s.Document())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestCreateTemplate_RequiresName(t *testing.T) {
	h, _, _ := newTemplateTestHandler(t)

	body, contentType := newMultipartForm(t, map[string]string{"description": "no name"}, "", "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	h.CreateTemplate(newAuthedContext(t, w, req))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateTemplate_BlankDesignByDefault(t *testing.T) {
	h, db, _ := newTemplateTestHandler(t)

	body, contentType := newMultipartForm(t, map[string]string{"name": "Annual CE"}, "", "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	h.CreateTemplate(newAuthedContext(t, w, req))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	var tpl database.CertificateTemplate
	if err := db.First(&tpl).Error; err != nil {
		t.Fatalf("load template: %v", err)
	}
	if tpl.Status != database.TemplateStatusDraft {
		t.Errorf("status = %q, want draft", tpl.Status)
	}

	doc, err := design.Unmarshal([]byte(tpl.Design))
	if err != nil {
		t.Fatalf("stored design unreadable: %v", err)
	}
	if doc.Canvas.Width != design.DefaultCanvasWidth || len(doc.Elements) != 0 {
		t.Errorf("blank design = %+v", doc)
	}
}

func TestCreateTemplate_RejectsInvalidDesign(t *testing.T) {
	h, db, _ := newTemplateTestHandler(t)

	bad := `{"canvas": {"width": 1200, "height": 850, "background_color": "#fff"}, "elements": [{"id": "a", "kind": "sticker"}]}`
	body, contentType := newMultipartForm(t, map[string]string{"name": "Bad", "design": bad}, "", "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	h.CreateTemplate(newAuthedContext(t, w, req))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}

	var count int64
	db.Model(&database.CertificateTemplate{}).Count(&count)
	if count != 0 {
		t.Fatal("invalid design was persisted")
	}
}

func TestCreateTemplate_WithBackgroundUpload(t *testing.T) {
	h, db, storage := newTemplateTestHandler(t)

	fields := map[string]string{"name": "With BG", "design": validDesignJSON(t)}
	body, contentType := newMultipartForm(t, fields, "background", "bg.png", "image/png", []byte("\x89PNG\r\n\x1a\n"))
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	h.CreateTemplate(newAuthedContext(t, w, req))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	if len(storage.uploaded) != 1 {
		t.Fatalf("uploaded %d objects, want 1", len(storage.uploaded))
	}

	var tpl database.CertificateTemplate
	if err := db.First(&tpl).Error; err != nil {
		t.Fatalf("load template: %v", err)
	}
	if tpl.BackgroundObjectKey == "" {
		t.Fatal("background object key not saved")
	}
	if !strings.HasPrefix(tpl.BackgroundObjectKey, "template-backgrounds/") {
		t.Errorf("object key %q outside background prefix", tpl.BackgroundObjectKey)
	}
}

func TestCreateTemplate_RejectsBadMIME(t *testing.T) {
	h, _, storage := newTemplateTestHandler(t)

	fields := map[string]string{"name": "Bad MIME"}
	body, contentType := newMultipartForm(t, fields, "background", "bg.pdf", "application/pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	h.CreateTemplate(newAuthedContext(t, w, req))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
	if len(storage.uploaded) != 0 {
		t.Fatal("rejected file reached storage")
	}
}

func TestChangeStatus(t *testing.T) {
	h, db, _ := newTemplateTestHandler(t)

	tpl := database.CertificateTemplate{Name: "T", Status: database.TemplateStatusDraft, Design: []byte(validDesignJSON(t)), CreatedBy: 1}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"status": database.TemplateStatusPublished})
	req := httptest.NewRequest(http.MethodPatch, "/v1/templates/1/status", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c := newAuthedContext(t, w, req)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.ChangeStatus(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var got database.CertificateTemplate
	db.First(&got, tpl.ID)
	if got.Status != database.TemplateStatusPublished {
		t.Fatalf("status = %q, want published", got.Status)
	}
}

func TestChangeStatus_RejectsUnknownStatus(t *testing.T) {
	h, _, _ := newTemplateTestHandler(t)

	payload, _ := json.Marshal(map[string]string{"status": "retired"})
	req := httptest.NewRequest(http.MethodPatch, "/v1/templates/1/status", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c := newAuthedContext(t, w, req)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.ChangeStatus(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteTemplate_CleansStoragePrefix(t *testing.T) {
	h, db, storage := newTemplateTestHandler(t)

	tpl := database.CertificateTemplate{Name: "T", Status: database.TemplateStatusDraft, Design: []byte(validDesignJSON(t)), CreatedBy: 1}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}

	// 204 没有响应体，直接调处理器不会把状态码刷进 recorder，
	// 所以这条要走完整的路由。
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.DELETE("/v1/templates/:id", func(c *gin.Context) {
		c.Set("userID", uint(1))
		h.DeleteTemplate(c)
	})

	req := httptest.NewRequest(http.MethodDelete, "/v1/templates/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d body=%s", w.Code, w.Body.String())
	}
	if len(storage.prefixes) != 1 || !strings.HasPrefix(storage.prefixes[0], "template-backgrounds/") {
		t.Fatalf("prefix cleanup = %v", storage.prefixes)
	}
}

func TestGetTemplate_NotFound(t *testing.T) {
	h, _, _ := newTemplateTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/templates/99", nil)
	w := httptest.NewRecorder()
	c := newAuthedContext(t, w, req)
	c.Params = gin.Params{{Key: "id", Value: "99"}}
	h.GetTemplate(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestValidateDesignPayload_NormalizesDocument(t *testing.T) {
	// 入库前重新序列化：缺省样式被补齐。
	raw := `{
		"canvas": {"width": 1200, "height": 850, "background_color": "#ffffff"},
		"elements": [{"id": "el_a", "kind": "static-text", "position": {"x": 10, "y": 10}, "content": "hi"}]
	}`

	normalized, err := validateDesignPayload([]byte(raw))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	doc, err := design.Unmarshal([]byte(normalized))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if doc.Elements[0].Style.FontFamily != design.DefaultFontFamily {
		t.Fatalf("style defaults not baked in: %+v", doc.Elements[0].Style)
	}
}
