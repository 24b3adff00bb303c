package worker

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// renderCertificatePage 用无头浏览器打开前端打印页，在页面脚本执行前
// 注入渲染数据，等待 #certificate-render-ready 信号与字体就绪。
func renderCertificatePage(logger *slog.Logger, targetURL string, preReadyScript string) (_ *rod.Page, cleanup func(), err error) {
	cleanup = func() {}

	logger.Info("navigating to frontend print page", slog.String("url", targetURL))

	launch := launcher.New().
		Headless(true).
		NoSandbox(true)
	defer func() {
		if err != nil {
			launch.Cleanup()
		}
	}()

	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, cleanup, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL).Timeout(90 * time.Second)
	if err := browser.Connect(); err != nil {
		return nil, cleanup, fmt.Errorf("connect browser: %w", err)
	}

	page := browser.MustPage(targetURL)
	cleanup = func() {
		if page != nil {
			_ = page.Close()
		}
		_ = browser.Close()
		launch.Cleanup()
	}

	page.MustWaitLoad()

	if strings.TrimSpace(preReadyScript) != "" {
		if _, evalErr := page.Timeout(10 * time.Second).Eval(preReadyScript); evalErr != nil {
			return nil, cleanup, fmt.Errorf("inject render data: %w", evalErr)
		}
	}

	logger.Info("waiting for frontend render signal (#certificate-render-ready)")
	page.Timeout(30 * time.Second).MustElement("#certificate-render-ready")

	// 额外等待 WebFont/系统字体就绪，避免回退字体度量导致排版差异
	if _, evalErr := page.Timeout(5 * time.Second).Eval(`() => {
	  if (document && document.fonts && document.fonts.ready) {
	    return Promise.race([
	      document.fonts.ready.then(() => true),
	      new Promise((resolve) => setTimeout(() => resolve(true), 3000))
	    ]);
	  }
	  return true;
	}`); evalErr != nil {
		logger.Warn("document.fonts.ready wait failed, continue", slog.Any("error", evalErr))
	}

	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, cleanup, fmt.Errorf("set emulated media to print: %w", err)
	}

	page.MustWaitIdle()
	return page, cleanup, nil
}

// exportPDF 按画布逻辑尺寸导出单页 PDF。
// 画布逻辑像素按 96 DPI 换算成英寸，纸张恰好等于证书尺寸。
func exportPDF(page *rod.Page, canvasWidth, canvasHeight int) ([]byte, error) {
	const cssPixelsPerInch = 96.0

	params := &proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        float64Ptr(float64(canvasWidth) / cssPixelsPerInch),
		PaperHeight:       float64Ptr(float64(canvasHeight) / cssPixelsPerInch),
		MarginTop:         float64Ptr(0),
		MarginBottom:      float64Ptr(0),
		MarginLeft:        float64Ptr(0),
		MarginRight:       float64Ptr(0),
		PreferCSSPageSize: true,
	}
	reader, err := page.PDF(params)
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

// captureCertificateImage 截取证书画布的 PNG 图。
// 优先截 #certificate-root 元素，找不到时退回整页截图。
func captureCertificateImage(page *rod.Page) ([]byte, error) {
	element, err := page.Timeout(5 * time.Second).Element("#certificate-root")
	if err == nil {
		if data, shotErr := element.Screenshot(proto.PageCaptureScreenshotFormatPng, 0); shotErr == nil {
			return data, nil
		}
	}

	req := &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	}
	data, err := page.Screenshot(true, req)
	if err != nil {
		return nil, fmt.Errorf("page screenshot: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
