package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/go-rod/rod"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"certCanvas/internal/database"
	"certCanvas/internal/design"
	"certCanvas/internal/errcode"
	"certCanvas/internal/storage"
	"certCanvas/internal/tasks"
)

// RenderTaskHandler 负责消费证书渲染任务。
type RenderTaskHandler struct {
	db                 *gorm.DB
	storage            *storage.Client
	redisClient        *redis.Client
	logger             *slog.Logger
	internalSecret     string
	internalAPIBaseURL string
	frontendBaseURL    string
}

// NewRenderTaskHandler 创建任务处理器。
func NewRenderTaskHandler(
	db *gorm.DB,
	storageClient *storage.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
	internalSecret string,
	internalAPIBaseURL string,
	frontendBaseURL string,
) *RenderTaskHandler {
	return &RenderTaskHandler{
		db:                 db,
		storage:            storageClient,
		redisClient:        redisClient,
		logger:             logger,
		internalSecret:     internalSecret,
		internalAPIBaseURL: strings.TrimRight(strings.TrimSpace(internalAPIBaseURL), "/"),
		frontendBaseURL:    strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/"),
	}
}

// renderDataEnvelope 是内部接口返回的渲染数据中 Worker 关心的部分。
// 画布尺寸决定 PDF 纸张，warnings 进任务日志与完成通知。
type renderDataEnvelope struct {
	Canvas   design.Canvas `json:"canvas"`
	Warnings []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"warnings"`
}

// ProcessTask 实现 asynq.Handler。
func (h *RenderTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.CertificateRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("certificate_id", int(payload.CertificateID)),
	)
	log.Info("starting certificate render task")

	var cert database.IssuedCertificate
	if err := h.db.WithContext(ctx).Preload("Template").First(&cert, payload.CertificateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("certificate not found, skipping task")
			return nil
		}
		log.Error("query certificate failed", slog.Any("error", err))
		return err
	}

	notifyUserID := cert.Template.CreatedBy

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		// 重试耗尽：落终态并通知前端。
		if err := h.db.WithContext(ctx).Model(&cert).Update("status", database.CertificateStatusFailed).Error; err != nil {
			log.Error("mark certificate failed errored", slog.Any("error", err))
		}
		notify := CertificateRenderNotifyMessage{
			Status:        "error",
			CertificateID: cert.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.RenderFailed,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishRenderNotify(ctx, notifyUserID, notify); err != nil {
			log.Error("publish render error notification failed", slog.Any("error", err))
		}
	}()

	if err := h.db.WithContext(ctx).Model(&cert).Update("status", database.CertificateStatusRendering).Error; err != nil {
		log.Error("mark certificate rendering failed", slog.Any("error", err))
		return err
	}

	renderData, err := fetchInternalRenderData(ctx, h.internalAPIBaseURL, cert.ID, h.internalSecret, payload.CorrelationID)
	if err != nil {
		log.Error("fetch render data failed", slog.Any("error", err))
		return err
	}

	var envelope renderDataEnvelope
	if err := json.Unmarshal(renderData, &envelope); err != nil {
		log.Error("decode render data failed", slog.Any("error", err))
		return err
	}
	for _, w := range envelope.Warnings {
		log.Warn("render data warning", slog.Int("code", w.Code), slog.String("message", w.Message))
	}

	page, cleanup, err := h.openRenderPage(cert.ID, renderData)
	if err != nil {
		log.Error("render frontend page failed", slog.Any("error", err))
		return err
	}
	defer cleanup()

	pdfBytes, err := exportPDF(page, envelope.Canvas.Width, envelope.Canvas.Height)
	if err != nil {
		log.Error("export certificate pdf failed", slog.Any("error", err))
		return err
	}

	imageBytes, err := captureCertificateImage(page)
	if err != nil {
		log.Error("capture certificate image failed", slog.Any("error", err))
		return err
	}

	prefix := strings.TrimSuffix(storage.RenderedKeyPrefix(cert.ID), "/")
	pdfKey := path.Join(prefix, "certificate.pdf")
	imageKey := path.Join(prefix, "certificate.png")

	if _, err := h.storage.UploadFile(ctx, pdfKey, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf failed", slog.Any("error", err))
		return err
	}
	if _, err := h.storage.UploadFile(ctx, imageKey, bytes.NewReader(imageBytes), int64(len(imageBytes)), "image/png"); err != nil {
		log.Error("upload image failed", slog.Any("error", err))
		return err
	}

	update := map[string]any{
		"status":           database.CertificateStatusCompleted,
		"pdf_object_key":   pdfKey,
		"image_object_key": imageKey,
	}
	if err := h.db.WithContext(ctx).Model(&cert).Updates(update).Error; err != nil {
		log.Error("update certificate failed", slog.Any("error", err))
		return err
	}

	notify := CertificateRenderNotifyMessage{
		Status:        "completed",
		CertificateID: cert.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if len(envelope.Warnings) > 0 {
		notify.ErrorCode = errcode.ResourceMissing
		notify.ErrorMessage = "部分资源缺失，已降级渲染"
	}
	if err := h.publishRenderNotify(ctx, notifyUserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("certificate render task completed")
	return nil
}

func (h *RenderTaskHandler) openRenderPage(certificateID uint, renderData []byte) (*rod.Page, func(), error) {
	targetURL := fmt.Sprintf("%s/print/certificates/%d", h.frontendBaseURL, certificateID)
	injectionScript := buildRenderDataBootstrapScript(renderData)
	return renderCertificatePage(h.logger, targetURL, injectionScript)
}

func (h *RenderTaskHandler) publishRenderNotify(ctx context.Context, userID uint, notify CertificateRenderNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
