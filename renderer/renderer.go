package renderer

import (
	"context"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

const USER_AGENT = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultChromePath = "/usr/bin/chromium-browser" // Docker/Linux 기본

// ChromeRenderer 는 headless chromium 으로 페이지를 렌더링한 뒤 HTML 을 돌려준다.
// 호출마다 브라우저를 새로 띄운다.
type ChromeRenderer struct {
	chromePath string
	userAgent  string
	timeout    time.Duration
}

// New 는 chromePath 가 비어 있으면 CHROME_PATH 환경변수, 그다음 기본 경로를 쓴다.
func New(chromePath, userAgent string) *ChromeRenderer {
	if chromePath == "" {
		chromePath = os.Getenv("CHROME_PATH")
	}
	if chromePath == "" {
		chromePath = defaultChromePath
	}
	if userAgent == "" {
		userAgent = USER_AGENT
	}
	return &ChromeRenderer{chromePath: chromePath, userAgent: userAgent, timeout: 30 * time.Second}
}

// Available 은 브라우저 실행 파일이 있는지 확인한다.
func (r *ChromeRenderer) Available() bool {
	info, err := os.Stat(r.chromePath)
	return err == nil && !info.IsDir()
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(r.chromePath),
		chromedp.UserAgent(r.userAgent),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crashpad", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("headless", true),
	)
}

func (r *ChromeRenderer) RenderHTML(ctx context.Context, url string) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, r.timeout)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1*time.Second), // JS 렌더링 대기
		chromedp.OuterHTML("html", &htmlContent),
	)
	if err != nil {
		return "", err
	}
	return htmlContent, nil
}
