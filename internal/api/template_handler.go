package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"certCanvas/internal/database"
	"certCanvas/internal/design"
	"certCanvas/internal/storage"
)

// TemplateHandler 负责证书模板的 CRUD、状态流转与背景图上传。
type TemplateHandler struct {
	db        *gorm.DB
	storage   TemplateStorage
	logger    *slog.Logger
	clamdAddr string
	maxBytes  int64
}

// TemplateStorage 抽象模板处理器用到的对象存储操作，方便测试替换。
type TemplateStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// storageAdapter 把 *storage.Client 适配到 TemplateStorage。
type storageAdapter struct {
	client *storage.Client
}

func (a storageAdapter) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := a.client.UploadFile(ctx, objectName, reader, size, contentType)
	return err
}

func (a storageAdapter) GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error) {
	return a.client.GeneratePresignedURL(ctx, objectKey, duration)
}

func (a storageAdapter) DeleteObject(ctx context.Context, objectKey string) error {
	return a.client.DeleteObject(ctx, objectKey)
}

func (a storageAdapter) DeletePrefix(ctx context.Context, prefix string) error {
	return a.client.DeletePrefix(ctx, prefix)
}

// NewTemplateHandler 构造 TemplateHandler。
func NewTemplateHandler(db *gorm.DB, storageClient *storage.Client, logger *slog.Logger, clamdAddr string, maxBytes int64) *TemplateHandler {
	return &TemplateHandler{
		db:        db,
		storage:   storageAdapter{client: storageClient},
		logger:    logger,
		clamdAddr: clamdAddr,
		maxBytes:  maxBytes,
	}
}

var errInvalidTemplateID = errors.New("invalid template id")

// 背景图只接受这几种 MIME，与前端上传校验保持一致。
var backgroundMIMEWhitelist = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type templateListItem struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CourseID    *uint     `json:"course_id,omitempty"`
	Status      string    `json:"status"`
	PreviewURL  string    `json:"preview_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type templateDetailResponse struct {
	ID            uint           `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	CourseID      *uint          `json:"course_id,omitempty"`
	Status        string         `json:"status"`
	Design        datatypes.JSON `json:"design"`
	BackgroundURL string         `json:"background_url,omitempty"`
	PreviewURL    string         `json:"preview_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ListTemplates 列出全部模板，按更新时间倒序。
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	query := h.db.WithContext(c.Request.Context()).Order("updated_at DESC")
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}

	var templates []database.CertificateTemplate
	if err := query.Find(&templates).Error; err != nil {
		Internal(c, "failed to list templates")
		return
	}

	items := make([]templateListItem, 0, len(templates))
	for _, t := range templates {
		items = append(items, templateListItem{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			CourseID:    t.CourseID,
			Status:      t.Status,
			PreviewURL:  t.PreviewImageURL,
			UpdatedAt:   t.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

// GetTemplate 返回指定模板，含设计稿与背景图预签名链接。
// 模板不存在时返回 404，前端据此跳回模板列表。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	tpl, err := h.templateByParam(c)
	if err != nil {
		h.respondTemplateError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.newDetailResponse(c.Request.Context(), tpl))
}

// CreateTemplate 创建模板。multipart 表单：
//   - name（必填）、description、course_id
//   - design：设计稿 JSON（缺省时生成空白画布）
//   - background：可选的背景图二进制（15MB 上限 + MIME 白名单，先校验后上传）
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		BadRequest(c, "template name is required")
		return
	}

	designJSON, err := h.designFromForm(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	courseID, err := h.courseIDFromForm(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	tpl := database.CertificateTemplate{
		Name:        name,
		Description: strings.TrimSpace(c.PostForm("description")),
		CourseID:    courseID,
		Status:      database.TemplateStatusDraft,
		Design:      designJSON,
		CreatedBy:   userID,
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Create(&tpl).Error; err != nil {
		Internal(c, "failed to create template")
		return
	}

	if err := h.attachBackground(c, &tpl); err != nil {
		// 模板已建好，背景上传失败只报错不回滚；前端可重传。
		h.respondUploadError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.newDetailResponse(ctx, &tpl))
}

// UpdateTemplate 覆盖模板元数据与设计稿，payload 形状与创建一致。
// 失败的保存不会部分生效：设计稿校验不通过时数据库不动。
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	tpl, err := h.templateByParam(c)
	if err != nil {
		h.respondTemplateError(c, err)
		return
	}

	updates := map[string]any{}
	if name := strings.TrimSpace(c.PostForm("name")); name != "" {
		updates["name"] = name
	}
	if _, ok := c.GetPostForm("description"); ok {
		updates["description"] = strings.TrimSpace(c.PostForm("description"))
	}
	if _, ok := c.GetPostForm("course_id"); ok {
		courseID, err := h.courseIDFromForm(c)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		updates["course_id"] = courseID
	}
	if raw := c.PostForm("design"); strings.TrimSpace(raw) != "" {
		designJSON, err := validateDesignPayload([]byte(raw))
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		updates["design"] = designJSON
	}

	ctx := c.Request.Context()
	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(tpl).Updates(updates).Error; err != nil {
			Internal(c, "failed to update template")
			return
		}
	}

	if err := h.attachBackground(c, tpl); err != nil {
		h.respondUploadError(c, err)
		return
	}

	if err := h.db.WithContext(ctx).First(tpl, tpl.ID).Error; err != nil {
		Internal(c, "failed to reload template")
		return
	}

	c.JSON(http.StatusOK, h.newDetailResponse(ctx, tpl))
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeStatus 处理发布/下线：draft、published、archived 之间的流转。
func (h *TemplateHandler) ChangeStatus(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	switch req.Status {
	case database.TemplateStatusDraft, database.TemplateStatusPublished, database.TemplateStatusArchived:
	default:
		BadRequest(c, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	tpl, err := h.templateByParam(c)
	if err != nil {
		h.respondTemplateError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(tpl).Update("status", req.Status).Error; err != nil {
		Internal(c, "failed to change template status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     tpl.ID,
		"status": req.Status,
	})
}

// DeleteTemplate 删除模板并清理其背景图与渲染产物。
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	tpl, err := h.templateByParam(c)
	if err != nil {
		h.respondTemplateError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Delete(&database.CertificateTemplate{}, tpl.ID).Error; err != nil {
		Internal(c, "failed to delete template")
		return
	}

	if err := h.storage.DeletePrefix(ctx, storage.BackgroundKeyPrefix(tpl.ID)); err != nil {
		h.logger.Warn("cleanup template backgrounds failed",
			slog.Uint64("template_id", uint64(tpl.ID)),
			slog.Any("error", err),
		)
	}

	c.Status(http.StatusNoContent)
}

// GetBackgroundURL 返回背景图的限时预签名链接。
func (h *TemplateHandler) GetBackgroundURL(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	tpl, err := h.templateByParam(c)
	if err != nil {
		h.respondTemplateError(c, err)
		return
	}

	if tpl.BackgroundObjectKey == "" {
		NotFound(c, "template has no background image")
		return
	}

	url, err := h.storage.GeneratePresignedURL(c.Request.Context(), tpl.BackgroundObjectKey, 15*time.Minute)
	if err != nil {
		Internal(c, "failed to generate background url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// uploadError 区分校验失败（400）与上传失败（500）。
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

// attachBackground 处理 multipart 中可选的 background 文件：
// 校验 MIME 与大小 → 可选 clamd 扫描 → 上传 → 替换旧对象 → 更新模板行。
// 没有携带文件时直接返回 nil。
func (h *TemplateHandler) attachBackground(c *gin.Context, tpl *database.CertificateTemplate) error {
	file, err := c.FormFile("background")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil
		}
		return &uploadError{status: http.StatusBadRequest, msg: "invalid background upload"}
	}

	if file.Size > h.maxBytes {
		return &uploadError{
			status: http.StatusBadRequest,
			msg:    fmt.Sprintf("background exceeds %d MB limit", h.maxBytes/(1024*1024)),
		}
	}

	contentType := file.Header.Get("Content-Type")
	ext, allowed := backgroundMIMEWhitelist[strings.ToLower(strings.TrimSpace(contentType))]
	if !allowed {
		return &uploadError{
			status: http.StatusBadRequest,
			msg:    fmt.Sprintf("unsupported background type %q (want jpeg/png/gif/webp)", contentType),
		}
	}

	if err := h.scanUpload(file); err != nil {
		return err
	}

	reader, err := file.Open()
	if err != nil {
		return &uploadError{status: http.StatusInternalServerError, msg: "failed to open background upload"}
	}
	defer reader.Close()

	ctx := c.Request.Context()
	objectKey := path.Join(strings.TrimSuffix(storage.BackgroundKeyPrefix(tpl.ID), "/"), uuid.NewString()+ext)
	if err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, contentType); err != nil {
		h.logger.Error("upload background failed",
			slog.Uint64("template_id", uint64(tpl.ID)),
			slog.Any("error", err),
		)
		return &uploadError{status: http.StatusInternalServerError, msg: "failed to upload background"}
	}

	previousKey := tpl.BackgroundObjectKey
	if err := h.db.WithContext(ctx).Model(tpl).Update("background_object_key", objectKey).Error; err != nil {
		return &uploadError{status: http.StatusInternalServerError, msg: "failed to save background reference"}
	}
	tpl.BackgroundObjectKey = objectKey

	if previousKey != "" && previousKey != objectKey {
		if err := h.storage.DeleteObject(ctx, previousKey); err != nil {
			h.logger.Warn("delete stale background failed",
				slog.String("object_key", previousKey),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

// scanUpload 在配置了 clamd 时对上传流做病毒扫描。
func (h *TemplateHandler) scanUpload(file *multipart.FileHeader) error {
	if strings.TrimSpace(h.clamdAddr) == "" {
		return nil
	}

	reader, err := file.Open()
	if err != nil {
		return &uploadError{status: http.StatusInternalServerError, msg: "failed to open background upload"}
	}
	defer reader.Close()

	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamd.NewClamd(h.clamdAddr).ScanStream(reader, abortChan)
	if err != nil {
		h.logger.Error("scan background failed", slog.Any("error", err))
		return &uploadError{status: http.StatusInternalServerError, msg: "failed to scan background"}
	}

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return &uploadError{status: http.StatusBadRequest, msg: "malicious file detected"}
		}
	}
	return nil
}

func (h *TemplateHandler) respondUploadError(c *gin.Context, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		Error(c, ue.status, ue.msg)
		return
	}
	Internal(c, err.Error())
}

func (h *TemplateHandler) respondTemplateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidTemplateID):
		BadRequest(c, "invalid template id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "template not found")
	default:
		Internal(c, "failed to query template")
	}
}

func (h *TemplateHandler) templateByParam(c *gin.Context) (*database.CertificateTemplate, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, errInvalidTemplateID
	}

	var tpl database.CertificateTemplate
	if err := h.db.WithContext(c.Request.Context()).First(&tpl, uint(id)).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// designFromForm 读取表单里的设计稿 JSON；缺省时生成空白画布。
func (h *TemplateHandler) designFromForm(c *gin.Context) (datatypes.JSON, error) {
	raw := strings.TrimSpace(c.PostForm("design"))
	if raw == "" {
		blank, err := design.Marshal(design.NewDocument())
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(blank), nil
	}
	return validateDesignPayload([]byte(raw))
}

// validateDesignPayload 先过 JSON Schema，再走编解码器的语义校验，
// 最后重新序列化成规范形式入库（补齐默认样式、夹回越界坐标）。
func validateDesignPayload(raw []byte) (datatypes.JSON, error) {
	if err := design.ValidateWire(raw); err != nil {
		return nil, err
	}
	doc, err := design.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	normalized, err := design.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(normalized), nil
}

func (h *TemplateHandler) courseIDFromForm(c *gin.Context) (*uint, error) {
	raw := strings.TrimSpace(c.PostForm("course_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, errors.New("invalid course id")
	}
	course := uint(id)

	var count int64
	if err := h.db.WithContext(c.Request.Context()).
		Model(&database.Course{}).
		Where("id = ?", course).
		Count(&count).Error; err != nil {
		return nil, errors.New("failed to verify course")
	}
	if count == 0 {
		return nil, fmt.Errorf("course %d does not exist", course)
	}
	return &course, nil
}

func (h *TemplateHandler) newDetailResponse(ctx context.Context, tpl *database.CertificateTemplate) templateDetailResponse {
	resp := templateDetailResponse{
		ID:          tpl.ID,
		Name:        tpl.Name,
		Description: tpl.Description,
		CourseID:    tpl.CourseID,
		Status:      tpl.Status,
		Design:      tpl.Design,
		PreviewURL:  tpl.PreviewImageURL,
		CreatedAt:   tpl.CreatedAt,
		UpdatedAt:   tpl.UpdatedAt,
	}
	if tpl.BackgroundObjectKey != "" {
		if url, err := h.storage.GeneratePresignedURL(ctx, tpl.BackgroundObjectKey, 15*time.Minute); err == nil {
			resp.BackgroundURL = url
		}
	}
	return resp
}
