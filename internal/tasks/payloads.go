package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCertificateRender = "certificate:render"
)

// CertificateRenderPayload 描述渲染一份证书所需的最小信息。
type CertificateRenderPayload struct {
	CertificateID uint   `json:"certificate_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCertificateRenderTask 构造一个证书渲染任务。
func NewCertificateRenderTask(certificateID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CertificateRenderPayload{
		CertificateID: certificateID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCertificateRender, payload), nil
}
