package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"certCanvas/internal/api/middleware"
	"certCanvas/internal/database"
	"certCanvas/internal/design"
	"certCanvas/internal/storage"
	"certCanvas/internal/tasks"
)

// CertificateHandler 处理证书签发与下载链接。
type CertificateHandler struct {
	db      *gorm.DB
	storage *storage.Client
	asynq   *asynq.Client
	logger  *slog.Logger
}

// NewCertificateHandler 构造证书处理器。
func NewCertificateHandler(db *gorm.DB, storageClient *storage.Client, asynqClient *asynq.Client, logger *slog.Logger) *CertificateHandler {
	return &CertificateHandler{
		db:      db,
		storage: storageClient,
		asynq:   asynqClient,
		logger:  logger,
	}
}

type issueRequest struct {
	RecipientName   string  `json:"recipient_name" binding:"required"`
	CompletionDate  string  `json:"completion_date" binding:"required"`
	CredentialNo    string  `json:"credential_number" binding:"required"`
	IssuerName      string  `json:"issuer_name" binding:"required"`
	AccreditingBody string  `json:"accrediting_body"`
	CourseTitle     string  `json:"course_title"`
	CreditHours     float64 `json:"credit_hours"`
	CreditType      string  `json:"credit_type"`
	IssueDate       string  `json:"issue_date"`
}

// IssueCertificate 基于已发布模板创建证书记录并入队渲染任务。
// 返回 202，渲染结果通过 WebSocket 通知或轮询下载接口获取。
func (h *CertificateHandler) IssueCertificate(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	templateID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || templateID == 0 {
		BadRequest(c, "invalid template id")
		return
	}

	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)
	if logger == nil {
		logger = h.logger
	}

	var tpl database.CertificateTemplate
	if err := h.db.WithContext(ctx).First(&tpl, uint(templateID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		Internal(c, "failed to query template")
		return
	}

	if tpl.Status != database.TemplateStatusPublished {
		Conflict(c, fmt.Sprintf("template is %s, only published templates can issue certificates", tpl.Status))
		return
	}

	// 设计稿必须仍然可解析，坏稿子在签发前就拦下来。
	if _, err := design.Unmarshal([]byte(tpl.Design)); err != nil {
		logger.Error("issue rejected: template design unreadable",
			slog.Uint64("template_id", uint64(tpl.ID)),
			slog.Any("error", err),
		)
		Conflict(c, "template design is not renderable")
		return
	}

	courseTitle := strings.TrimSpace(req.CourseTitle)
	creditHours := req.CreditHours
	creditType := strings.TrimSpace(req.CreditType)
	if tpl.CourseID != nil {
		var course database.Course
		if err := h.db.WithContext(ctx).First(&course, *tpl.CourseID).Error; err == nil {
			if courseTitle == "" {
				courseTitle = course.Title
			}
			if creditHours == 0 {
				creditHours = course.CreditHours
			}
			if creditType == "" {
				creditType = course.CreditType
			}
		}
	}

	issueDate := strings.TrimSpace(req.IssueDate)
	if issueDate == "" {
		issueDate = time.Now().UTC().Format("2006-01-02")
	}

	cert := database.IssuedCertificate{
		TemplateID:       tpl.ID,
		RecipientName:    strings.TrimSpace(req.RecipientName),
		CourseTitle:      courseTitle,
		CompletionDate:   strings.TrimSpace(req.CompletionDate),
		CredentialNumber: strings.TrimSpace(req.CredentialNo),
		IssuerName:       strings.TrimSpace(req.IssuerName),
		CreditHours:      creditHours,
		CreditType:       creditType,
		AccreditingBody:  strings.TrimSpace(req.AccreditingBody),
		IssueDate:        issueDate,
		Status:           database.CertificateStatusPending,
	}

	if err := h.db.WithContext(ctx).Create(&cert).Error; err != nil {
		// 证书编号唯一索引冲突是最常见的失败原因。
		Conflict(c, "credential number already issued")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewCertificateRenderTask(cert.ID, correlationID)
	if err != nil {
		Internal(c, "failed to build render task")
		return
	}

	info, err := h.asynq.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Timeout(5*time.Minute))
	if err != nil {
		logger.Error("enqueue render task failed",
			slog.Uint64("certificate_id", uint64(cert.ID)),
			slog.Any("error", err),
		)
		Internal(c, "failed to enqueue render task")
		return
	}

	logger.Info("certificate issued",
		slog.Uint64("certificate_id", uint64(cert.ID)),
		slog.String("task_id", info.ID),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"certificate_id": cert.ID,
		"status":         cert.Status,
		"task_id":        info.ID,
		"correlation_id": correlationID,
	})
}

// GetDownloadLink 返回渲染完成的证书 PDF/PNG 的限时下载链接。
// 还没渲染完时返回 409，前端据此继续轮询。
func (h *CertificateHandler) GetDownloadLink(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	certID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || certID == 0 {
		BadRequest(c, "invalid certificate id")
		return
	}

	ctx := c.Request.Context()

	var cert database.IssuedCertificate
	if err := h.db.WithContext(ctx).First(&cert, uint(certID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "certificate not found")
			return
		}
		Internal(c, "failed to query certificate")
		return
	}

	switch cert.Status {
	case database.CertificateStatusCompleted:
	case database.CertificateStatusFailed:
		Conflict(c, "certificate rendering failed")
		return
	default:
		Conflict(c, "certificate is not ready yet")
		return
	}

	format := c.DefaultQuery("format", "pdf")
	var objectKey, filename string
	switch format {
	case "pdf":
		objectKey = cert.PdfObjectKey
		filename = fmt.Sprintf("certificate-%s.pdf", cert.CredentialNumber)
	case "png":
		objectKey = cert.ImageObjectKey
		filename = fmt.Sprintf("certificate-%s.png", cert.CredentialNumber)
	default:
		BadRequest(c, fmt.Sprintf("unknown format %q (want pdf or png)", format))
		return
	}

	if objectKey == "" {
		Conflict(c, "certificate artifact missing")
		return
	}

	url, err := h.storage.GenerateDownloadURL(ctx, objectKey, filename, 15*time.Minute)
	if err != nil {
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"format":     format,
		"expires_in": int((15 * time.Minute).Seconds()),
	})
}
