package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"certCanvas/internal/database"
	"certCanvas/internal/design"
	"certCanvas/internal/errcode"
	"certCanvas/internal/storage"
)

// RenderDataHandler 为渲染 Worker 提供内部数据接口。
// 接口受 X-Internal-Secret 保护，不走用户鉴权。
type RenderDataHandler struct {
	db      *gorm.DB
	storage *storage.Client
	logger  *slog.Logger
}

// NewRenderDataHandler 构造内部渲染数据处理器。
func NewRenderDataHandler(db *gorm.DB, storageClient *storage.Client, logger *slog.Logger) *RenderDataHandler {
	return &RenderDataHandler{db: db, storage: storageClient, logger: logger}
}

// renderWarning 描述降级渲染的原因，Worker 会把它写进任务日志。
type renderWarning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// renderElement 是已完成字段替换的元素：Worker 与打印页面
// 只需按 content 原样绘制，无需再理解 dynamic-field 语义。
type renderElement struct {
	ID       string          `json:"id"`
	Kind     design.Kind     `json:"kind"`
	Position design.Position `json:"position"`
	Style    design.Style    `json:"style"`
	Content  string          `json:"content"`
	ZIndex   int             `json:"z_index"`
}

type renderDataResponse struct {
	CertificateID uint            `json:"certificate_id"`
	Canvas        design.Canvas   `json:"canvas"`
	Elements      []renderElement `json:"elements"`
	Warnings      []renderWarning `json:"warnings,omitempty"`
}

// GetRenderData 加载证书与模板，把动态字段替换为真实签发数据，
// 背景图内联为 base64 data URI，返回给 Worker 注入打印页面。
// 背景缺失只降级并记 warning，桶缺失才算硬错误。
func (h *RenderDataHandler) GetRenderData(c *gin.Context) {
	certID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || certID == 0 {
		BadRequest(c, "invalid certificate id")
		return
	}

	ctx := c.Request.Context()

	var cert database.IssuedCertificate
	if err := h.db.WithContext(ctx).Preload("Template").First(&cert, uint(certID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "certificate not found")
			return
		}
		Internal(c, "failed to query certificate")
		return
	}

	doc, err := design.Unmarshal([]byte(cert.Template.Design))
	if err != nil {
		h.logger.Error("render data: template design unreadable",
			slog.Uint64("certificate_id", uint64(cert.ID)),
			slog.Any("error", err),
		)
		Internal(c, "template design is not renderable")
		return
	}

	resp := renderDataResponse{
		CertificateID: cert.ID,
		Canvas:        doc.Canvas,
	}

	// 背景图内联，打印页面不需要再访问对象存储。
	if key := cert.Template.BackgroundObjectKey; key != "" {
		dataURI, err := h.inlineBackground(c, key)
		switch {
		case err == nil:
			resp.Canvas.BackgroundImage = dataURI
		case storage.IsNoSuchKey(err):
			h.logger.Warn("render data: background object missing",
				slog.Uint64("certificate_id", uint64(cert.ID)),
				slog.String("object_key", key),
			)
			resp.Canvas.BackgroundImage = ""
			resp.Warnings = append(resp.Warnings, renderWarning{
				Code:    errcode.ResourceMissing,
				Message: fmt.Sprintf("background object %s missing, rendering without it", key),
			})
		case storage.IsNoSuchBucket(err):
			Internal(c, "storage bucket missing")
			return
		default:
			Internal(c, "failed to load background")
			return
		}
	}

	for _, el := range doc.PaintOrder() {
		out := renderElement{
			ID:       el.ID,
			Kind:     el.Kind,
			Position: el.Position,
			Style:    el.Style,
			ZIndex:   el.ZIndex,
		}

		switch el.Kind {
		case design.KindStaticText:
			out.Content = el.Content
		case design.KindDynamicField:
			value, ok := certificateFieldValue(&cert, el.FieldKey)
			if !ok || value == "" {
				resp.Warnings = append(resp.Warnings, renderWarning{
					Code:    errcode.ResourceMissing,
					Message: fmt.Sprintf("certificate has no value for field %s", el.FieldKey),
				})
			}
			out.Content = value
		}

		resp.Elements = append(resp.Elements, out)
	}

	c.JSON(http.StatusOK, resp)
}

// inlineBackground 把对象存储中的背景图读出来编码成 data URI。
func (h *RenderDataHandler) inlineBackground(c *gin.Context, objectKey string) (string, error) {
	ctx := c.Request.Context()

	object, err := h.storage.GetObject(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer object.Close()

	stat, err := object.Stat()
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(object)
	if err != nil {
		return "", err
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// certificateFieldValue 把动态字段键映射到签发记录的真实值。
// 第二个返回值区分“键不在枚举内”与“值为空”。
func certificateFieldValue(cert *database.IssuedCertificate, key design.FieldKey) (string, bool) {
	switch key {
	case design.FieldRecipientName:
		return cert.RecipientName, true
	case design.FieldCourseTitle:
		return cert.CourseTitle, true
	case design.FieldCompletionDate:
		return cert.CompletionDate, true
	case design.FieldCredentialNumber:
		return cert.CredentialNumber, true
	case design.FieldIssuerName:
		return cert.IssuerName, true
	case design.FieldCreditHours:
		if cert.CreditHours == 0 {
			return "", true
		}
		return strconv.FormatFloat(cert.CreditHours, 'f', -1, 64), true
	case design.FieldCreditType:
		return cert.CreditType, true
	case design.FieldAccreditingBody:
		return cert.AccreditingBody, true
	case design.FieldIssueDate:
		return cert.IssueDate, true
	}
	return "", false
}
