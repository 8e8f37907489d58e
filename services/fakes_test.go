package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"post-digest/eventbus"
	"post-digest/feeder"
	"post-digest/models"
	"post-digest/parser"
	"post-digest/repositories"
	"post-digest/summarizer"
)

type fakeSources struct {
	mu      sync.Mutex
	byCode  map[string]*models.Source
	byID    map[int64]*models.Source
	active  bool
	nextID  int64
	created []string
}

func newFakeSources(active bool) *fakeSources {
	return &fakeSources{byCode: map[string]*models.Source{}, byID: map[int64]*models.Source{}, active: active}
}

func (f *fakeSources) add(src models.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := src
	f.byCode[s.Code] = &s
	f.byID[s.ID] = &s
}

func (f *fakeSources) GetOrCreate(_ context.Context, cfg models.SourceConfig) (*models.Source, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byCode[cfg.Code]; ok {
		return s, false, nil
	}
	f.nextID++
	s := &models.Source{ID: f.nextID, Code: cfg.Code, Name: cfg.Name, IsActive: f.active, Metadata: cfg.Metadata}
	f.byCode[s.Code] = s
	f.byID[s.ID] = s
	f.created = append(f.created, s.Code)
	return s, true, nil
}

func (f *fakeSources) FindByID(_ context.Context, id int64) (*models.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrSourceNotFound
}

// fakeItems 는 (source_id, external_id) 로 중복을 막는 메모리 저장소다.
type fakeItems struct {
	mu       sync.Mutex
	items    map[int64]*models.Item
	keys     map[string]int64
	nextID   int64
	failures map[int64]string
	lastMdl  map[int64]string
	markErr  error
	findErr  error
}

func newFakeItems() *fakeItems {
	return &fakeItems{
		items:    map[int64]*models.Item{},
		keys:     map[string]int64{},
		failures: map[int64]string{},
		lastMdl:  map[int64]string{},
	}
}

func (f *fakeItems) UpsertMany(_ context.Context, sourceID int64, drafts []models.ItemDraft) ([]models.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.UpsertResult, 0, len(drafts))
	for _, d := range drafts {
		key := fmt.Sprintf("%d/%s", sourceID, d.ExternalID)
		if id, ok := f.keys[key]; ok {
			f.items[id].Title = d.Title
			out = append(out, models.UpsertResult{ItemID: id, ExternalID: d.ExternalID})
			continue
		}
		f.nextID++
		f.keys[key] = f.nextID
		f.items[f.nextID] = &models.Item{ID: f.nextID, SourceID: sourceID, ExternalID: d.ExternalID, URL: d.URL, Title: d.Title}
		out = append(out, models.UpsertResult{ItemID: f.nextID, ExternalID: d.ExternalID, Inserted: true})
	}
	return out, nil
}

func (f *fakeItems) put(item models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := item
	f.items[it.ID] = &it
}

func (f *fakeItems) FindByID(ctx context.Context, id int64) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if it, ok := f.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, repositories.ErrItemNotFound
}

func (f *fakeItems) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeItems) exists(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[id]
	return ok
}

func (f *fakeItems) MarkFailed(_ context.Context, id int64, reason, lastModel string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if _, ok := f.items[id]; !ok {
		return repositories.ErrItemNotFound
	}
	f.failures[id] = reason
	f.lastMdl[id] = lastModel
	return nil
}

type fakeWrites struct {
	mu        sync.Mutex
	assets    map[int64][]models.AssetDraft
	comments  map[int64][]models.CommentDraft
	summaries []models.SummaryUpdate
	applyErr  error
}

func newFakeWrites() *fakeWrites {
	return &fakeWrites{assets: map[int64][]models.AssetDraft{}, comments: map[int64][]models.CommentDraft{}}
}

func (f *fakeWrites) ReplaceAssets(_ context.Context, itemID int64, assets []models.AssetDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[itemID] = append([]models.AssetDraft(nil), assets...)
	return nil
}

func (f *fakeWrites) ReplaceComments(_ context.Context, itemID int64, comments []models.CommentDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[itemID] = append([]models.CommentDraft(nil), comments...)
	return nil
}

func (f *fakeWrites) ApplySummary(_ context.Context, u models.SummaryUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.summaries = append(f.summaries, u)
	return nil
}

type fakeFetcher struct {
	detail *parser.Detail
	err    error
	calls  int
}

func (f *fakeFetcher) FetchDetail(ctx context.Context, _ models.Item) (*parser.Detail, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.detail
	return &cp, nil
}

type fakeImages struct {
	got []string
}

func (f *fakeImages) Download(_ context.Context, family, externalID, _ string, urls []string) ([]models.AssetDraft, error) {
	f.got = append([]string(nil), urls...)
	var out []models.AssetDraft
	for i, u := range urls {
		out = append(out, models.AssetDraft{
			AssetType:  models.AssetTypeImage,
			URL:        u,
			LocalPath:  fmt.Sprintf("data/%s/%s/image_%d.jpg", family, externalID, i+1),
			OrderIndex: i + 1,
		})
	}
	return out, nil
}

type summarizeFunc func(ctx context.Context, text string, paths []string) (summarizer.Result, error)

func (f summarizeFunc) Summarize(ctx context.Context, text string, paths []string) (summarizer.Result, error) {
	return f(ctx, text, paths)
}

func okSummary(model string) summarizeFunc {
	return func(context.Context, string, []string) (summarizer.Result, error) {
		return summarizer.Result{Text: "요약입니다.", Model: model, Latency: 20 * time.Millisecond}, nil
	}
}

// blockingSummary 는 ctx 가 끝날 때까지 돌아오지 않는다.
func blockingSummary() summarizeFunc {
	return func(ctx context.Context, _ string, _ []string) (summarizer.Result, error) {
		<-ctx.Done()
		return summarizer.Result{}, ctx.Err()
	}
}

type fakeCrawler struct {
	family string
	source models.SourceConfig
	filter feeder.Filter
	posts  []feeder.Post
	err    error
	calls  int
}

func (f *fakeCrawler) Family() string              { return f.family }
func (f *fakeCrawler) Source() models.SourceConfig { return f.source }
func (f *fakeCrawler) Filter() feeder.Filter       { return f.filter }
func (f *fakeCrawler) Fetch(context.Context) ([]feeder.Post, error) {
	f.calls++
	return f.posts, f.err
}

var errBrokerDown = errors.New("broker down")

// failingBroker 는 Publish 만 실패한다.
type failingBroker struct{}

func (failingBroker) EnsureQueue(context.Context, string) error { return nil }
func (failingBroker) Publish(context.Context, string, []byte) error {
	return errBrokerDown
}
func (failingBroker) Lease(context.Context, string) (*eventbus.Delivery, error) { return nil, nil }
func (failingBroker) Close() error                                            { return nil }
