package feeder

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"post-digest/config"
	"post-digest/models"
)

const dcinsideListURL = "https://gall.dcinside.com/mgallery/board/lists/"

// DCInside 게시판 시각은 모두 한국 시간이다.
var KST = time.FixedZone("KST", 9*60*60)

// DCInsidePost 는 갤러리 목록 한 줄이다.
type DCInsidePost struct {
	ExternalID  string
	Number      string
	SubjectText string
	Title       string
	URL         string
	Comments    string
	Writer      string
	DateDisplay string
	DateISO     string
	Views       string
	Recommends  string
}

func (p DCInsidePost) sealed() {}

func (p DCInsidePost) Subject() string { return p.SubjectText }

func (p DCInsidePost) PublishedAt() (time.Time, bool) {
	if p.DateISO == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", p.DateISO, KST)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (p DCInsidePost) Draft() models.ItemDraft {
	d := models.ItemDraft{
		ExternalID: p.ExternalID,
		URL:        p.URL,
		Title:      p.Title,
		Author:     p.Writer,
		Metadata: models.ItemMetadata{
			Subject:      p.SubjectText,
			CommentCount: parseCount(p.Comments),
			Views:        parseCount(p.Views),
			Recommends:   parseCount(p.Recommends),
			DateDisplay:  p.DateDisplay,
		},
	}
	if t, ok := p.PublishedAt(); ok {
		t = t.UTC()
		d.PublishedAt = &t
	}
	return d
}

// parseCount 는 "[12]", "1,024" 같은 표기를 숫자로 바꾼다. 숫자가 아니면 nil.
func parseCount(raw string) *int {
	s := strings.Trim(strings.TrimSpace(raw), "[]")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

type DCInsideFeeder struct {
	cfg       config.DCInsideConfig
	listURL   string
	userAgent string
	client    *http.Client
}

func NewDCInsideFeeder(cfg config.DCInsideConfig, userAgent string) *DCInsideFeeder {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &DCInsideFeeder{
		cfg:       cfg,
		listURL:   dcinsideListURL,
		userAgent: userAgent,
		client:    newHTTPClient(),
	}
}

// WithListURL 은 목록 페이지 주소를 바꾼다. 테스트 서버를 붙일 때 쓴다.
func (f *DCInsideFeeder) WithListURL(u string) *DCInsideFeeder {
	f.listURL = u
	return f
}

func (f *DCInsideFeeder) Family() string { return models.FamilyDCInside }

// TargetURL 은 추천글 목록 주소다.
func (f *DCInsideFeeder) TargetURL() string {
	q := url.Values{}
	q.Set("id", f.cfg.BoardID)
	if f.cfg.ExceptionMode != "" {
		q.Set("exception_mode", f.cfg.ExceptionMode)
	}
	return f.listURL + "?" + q.Encode()
}

func (f *DCInsideFeeder) Source() models.SourceConfig {
	mode := f.cfg.ExceptionMode
	code := "dcinside_" + f.cfg.BoardID
	if mode != "" {
		code += "_" + mode
	}
	return models.SourceConfig{
		Code:                 code,
		Name:                 fmt.Sprintf("DCInside %s %s", f.cfg.BoardID, mode),
		URLPattern:           "https://gall.dcinside.com/mgallery/board/view/?id=" + f.cfg.BoardID + "&no={external_id}",
		Parser:               "dcinside_" + defaultString(mode, "list") + "_v1",
		FetchIntervalMinutes: 60,
		Metadata: models.SourceMetadata{
			Platform:      models.FamilyDCInside,
			BoardID:       f.cfg.BoardID,
			ExceptionMode: mode,
			TargetURL:     f.TargetURL(),
		},
	}
}

func (f *DCInsideFeeder) Filter() Filter {
	return Filter{
		AllowedSubjects: f.cfg.AllowedSubjects,
		MinAge:          time.Duration(f.cfg.MinPostAgeHours) * time.Hour,
		MaxAge:          time.Duration(f.cfg.MaxPostAgeHours) * time.Hour,
		MaxPosts:        f.cfg.MaxPosts,
	}
}

func (f *DCInsideFeeder) Fetch(ctx context.Context) ([]Post, error) {
	target := f.TargetURL()
	body, err := fetch(ctx, f.client, target, map[string]string{"User-Agent": f.userAgent})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dcinside list: %w", err)
	}
	rows, err := ParseDCInsideList(body, target)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r)
	}
	return posts, nil
}

// ParseDCInsideList 는 갤러리 목록 HTML 에서 게시물 행을 읽는다.
// 링크는 pageURL 기준 절대 주소로 바꾼다.
func ParseDCInsideList(body []byte, pageURL string) ([]DCInsidePost, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dcinside list: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var posts []DCInsidePost
	doc.Find("tr.ub-content.us-post").Each(func(_ int, row *goquery.Selection) {
		title := row.Find("td.gall_tit").First()
		link := title.Find("a").First()
		date := row.Find("td.gall_date").First()

		p := DCInsidePost{
			ExternalID:  strings.TrimSpace(row.AttrOr("data-no", "")),
			Number:      textOf(row.Find("td.gall_num").First()),
			SubjectText: subjectOf(row.Find("td.gall_subject").First()),
			Title:       collapse(link.Text()),
			Comments:    textOf(title.Find("span.reply_num").First()),
			Writer:      collapse(row.Find("td.gall_writer").First().Text()),
			DateDisplay: textOf(date),
			DateISO:     strings.TrimSpace(date.AttrOr("title", "")),
			Views:       textOf(row.Find("td.gall_count").First()),
			Recommends:  textOf(row.Find("td.gall_recommend").First()),
		}
		if href, ok := link.Attr("href"); ok && href != "" {
			p.URL = resolve(base, href)
		}
		if p.ExternalID == "" {
			return
		}
		posts = append(posts, p)
	})
	return posts, nil
}

func subjectOf(cell *goquery.Selection) string {
	if inner := cell.Find(".subject_inner").First(); inner.Length() > 0 {
		return textOf(inner)
	}
	return textOf(cell)
}

func textOf(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
