package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const renderDataPath = "internal/certificates"

// fetchInternalRenderData 从后端内部接口拉取已完成字段替换的渲染数据。
// 只允许 Worker 通过 Header 携带 INTERNAL_API_SECRET 访问。
func fetchInternalRenderData(ctx context.Context, internalAPIBaseURL string, certificateID uint, secret, correlationID string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("internal api secret missing")
	}

	internalAPIBaseURL = strings.TrimRight(strings.TrimSpace(internalAPIBaseURL), "/")
	if internalAPIBaseURL == "" {
		return nil, fmt.Errorf("internal api base url missing")
	}

	targetURL := fmt.Sprintf("%s/v1/%s/%d/render-data", internalAPIBaseURL, renderDataPath, certificateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build internal request: %w", err)
	}
	req.Header.Set("X-Internal-Secret", secret)
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request internal render data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, fmt.Errorf("internal render data status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read internal render data: %w", err)
	}

	return data, nil
}

// buildRenderDataBootstrapScript 构造在浏览器里注入 window.__RENDER_DATA__ 的脚本。
// 通过 JSON.parse + Go 的 Quote 来保证脚本安全；`<` 额外转义成 \u003c，
// 防止数据里出现 </script> 这类序列。
func buildRenderDataBootstrapScript(data []byte) string {
	quoted := strconv.Quote(string(data))
	quoted = strings.ReplaceAll(quoted, "<", `\u003c`)
	return fmt.Sprintf(`() => { window.__RENDER_DATA__ = JSON.parse(%s); }`, quoted)
}
