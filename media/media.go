package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"post-digest/internal/logger"
	"post-digest/models"
)

const maxImageBytes = 20 << 20

var mimeExtension = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var formatExtension = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
}

var allowedURLSuffixes = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".webp": {}, ".tif": {}, ".tiff": {},
}

// GuessExtension 은 Content-Type → 이미지 디코딩 → 바이트 시그니처 → URL 확장자 순으로 확장자를 정한다.
// 아무것도 맞지 않으면 .bin 이다.
func GuessExtension(rawURL, contentType string, content []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := mimeExtension[strings.ToLower(mt)]; ok {
			return ext
		}
	}
	if len(content) > 0 {
		if _, format, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
			if ext, ok := formatExtension[format]; ok {
				return ext
			}
		}
		if mt := mimetype.Detect(content); strings.HasPrefix(mt.String(), "image/") {
			return mt.Extension()
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if _, ok := allowedURLSuffixes[ext]; ok {
			return ext
		}
	}
	return ".bin"
}

// Downloader 는 아이템 이미지를 asset root 아래에 저장한다.
type Downloader struct {
	root      string
	userAgent string
	client    *http.Client
}

func NewDownloader(root, userAgent string, client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{root: root, userAgent: userAgent, client: client}
}

// Dir 은 아이템 이미지 디렉터리다: <root>/<family>/<externalID>
func (d *Downloader) Dir(family, externalID string) string {
	return filepath.Join(d.root, family, sanitize(externalID))
}

// Download 는 urls 를 image_<n><ext> 로 저장하고 자산 목록을 돌려준다. n 은 1부터 시작하는 입력 순번이다.
// 개별 이미지 실패는 건너뛴다. ctx 가 끝나면 그때까지 받은 목록과 함께 ctx 오류를 반환한다.
// 성공하면 이번 목록에 없는 이전 image_* 파일을 지운다.
func (d *Downloader) Download(ctx context.Context, family, externalID, referer string, urls []string) ([]models.AssetDraft, error) {
	dir := d.Dir(family, externalID)
	if len(urls) == 0 {
		d.prune(dir, nil)
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset dir %s: %w", dir, err)
	}

	var assets []models.AssetDraft
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return assets, err
		}
		n := i + 1
		asset, err := d.downloadOne(ctx, dir, n, u, referer)
		if err != nil {
			logger.Log.Warnf("failed to download image %s: %v", u, err)
			continue
		}
		assets = append(assets, asset)
	}
	d.prune(dir, assets)
	return assets, nil
}

// prune 은 keep 에 없는 image_* 파일을 지운다. 실패는 경고만 남긴다.
func (d *Downloader) prune(dir string, keep []models.AssetDraft) {
	matches, err := filepath.Glob(filepath.Join(dir, "image_*"))
	if err != nil {
		return
	}
	kept := make(map[string]struct{}, len(keep))
	for _, a := range keep {
		kept[a.LocalPath] = struct{}{}
	}
	for _, m := range matches {
		if _, ok := kept[m]; ok {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			logger.Log.Warnf("failed to remove stale image %s: %v", m, err)
		}
	}
}

func (d *Downloader) downloadOne(ctx context.Context, dir string, n int, rawURL, referer string) (models.AssetDraft, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.AssetDraft{}, err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return models.AssetDraft{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.AssetDraft{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return models.AssetDraft{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	local := filepath.Join(dir, fmt.Sprintf("image_%d%s", n, GuessExtension(rawURL, contentType, content)))
	if err := os.WriteFile(local, content, 0o644); err != nil {
		return models.AssetDraft{}, err
	}

	return models.AssetDraft{
		AssetType:  models.AssetTypeImage,
		URL:        rawURL,
		LocalPath:  local,
		OrderIndex: n,
		Metadata: models.AssetMetadata{
			ContentType: contentType,
			SizeBytes:   int64(len(content)),
		},
	}, nil
}

// 경로 구분자나 상위 경로가 섞인 외부 id 로 root 밖에 쓰지 않도록 한다.
func sanitize(id string) string {
	id = strings.NewReplacer("/", "_", "\\", "_").Replace(id)
	if id == "" || id == "." || id == ".." {
		return "_"
	}
	return id
}
