package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/config"
	"post-digest/eventbus"
	"post-digest/models"
	"post-digest/parser"
	"post-digest/services"
	"post-digest/summarizer"
)

const testQueue = "dcinside_items"

type harness struct {
	broker   *eventbus.MemoryBroker
	items    *fakeItems
	sources  *fakeSources
	writes   *fakeWrites
	fetcher  *fakeFetcher
	images   *fakeImages
	enrich   *services.EnrichService
	consumer *services.Consumer
}

func newHarness(t *testing.T, summary services.Summarizer) *harness {
	t.Helper()
	h := &harness{
		broker:  eventbus.NewMemoryBroker(),
		items:   newFakeItems(),
		sources: newFakeSources(true),
		writes:  newFakeWrites(),
		images:  &fakeImages{},
		fetcher: &fakeFetcher{detail: &parser.Detail{
			Body:      "본문 첫 줄",
			ImageURLs: []string{"https://img.example/a.jpg", "https://img.example/b.png"},
			MediaURLs: []string{"https://img.example/a.jpg", "https://img.example/b.png"},
			Comments: []models.CommentDraft{
				{ExternalID: "1", Author: "ㅇㅇ", Content: "첫 댓글"},
				{ExternalID: "2", Author: "익명", Content: "답글", Depth: 1, ParentExternalID: "1"},
			},
		}},
	}
	h.sources.add(models.Source{ID: 1, Code: "dcinside_thesingularity_recommend", IsActive: true, Metadata: models.SourceMetadata{Platform: models.FamilyDCInside}})
	h.items.put(models.Item{ID: 42, SourceID: 1, ExternalID: "1001", URL: "https://gall.dcinside.com/mgallery/board/view/?id=thesingularity&no=1001"})

	cfg := config.WorkerConfig{LeaseTimeoutSeconds: 1, FetchTimeoutSeconds: 5, StoreTimeoutSeconds: 5}
	h.enrich = services.NewEnrichService(services.EnrichDeps{
		Items:      h.items,
		Sources:    h.sources,
		Assets:     h.writes,
		Comments:   h.writes,
		Summaries:  h.writes,
		Fetchers:   map[string]parser.Fetcher{models.FamilyDCInside: h.fetcher},
		Images:     h.images,
		Summarizer: summary,
	}, cfg)
	h.consumer = services.NewConsumer(h.broker, testQueue, h.enrich, h.items, cfg)
	return h
}

func (h *harness) dispatch(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, h.broker.Publish(context.Background(), testQueue, []byte(body)))
}

func TestRunOnceEmptyQueue(t *testing.T) {
	h := newHarness(t, okSummary("gemini-2.5-flash"))
	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultEmpty, report.Result)
	assert.Equal(t, 0, h.fetcher.calls)
}

func TestRunOnceSummarizesAndAcks(t *testing.T) {
	var gotText string
	var gotPaths []string
	h := newHarness(t, summarizeFunc(func(_ context.Context, text string, paths []string) (summarizer.Result, error) {
		gotText, gotPaths = text, paths
		return summarizer.Result{Text: "세 문장 요약.", Model: "gemini-2.5-flash", Latency: 15 * time.Millisecond}, nil
	}))
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultAcked, report.Result)
	assert.Equal(t, int64(42), report.ItemID)
	assert.Contains(t, report.Message, "gemini-2.5-flash")

	assert.Empty(t, h.broker.Pending(testQueue))
	assert.Equal(t, 0, h.broker.InFlight(testQueue))

	assert.Equal(t, "본문 첫 줄\n\n댓글 전체 목록 (원댓글/대댓글 구조):\n[원댓글] ㅇㅇ: 첫 댓글\n  [대댓글 → ㅇㅇ] 익명: 답글", gotText)
	assert.Equal(t, []string{"data/dcinside/1001/image_1.jpg", "data/dcinside/1001/image_2.jpg"}, gotPaths)

	require.Len(t, h.writes.summaries, 1)
	u := h.writes.summaries[0]
	assert.Equal(t, gotText, u.RawText)
	assert.Equal(t, 2, u.ImageCount)
	assert.Equal(t, "gemini-2.5-flash", u.ModelName)
	assert.Equal(t, int64(15), u.Meta.LatencyMs)
	assert.Len(t, h.writes.assets[42], 2)
	assert.Len(t, h.writes.comments[42], 2)
}

func TestRunOnceDeletesUnprocessableItem(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.fetcher.detail.MediaURLs = append(h.fetcher.detail.MediaURLs, "https://img.example/clip.mp4")
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultAcked, report.Result)
	assert.Contains(t, report.Message, "video_url")
	assert.False(t, h.items.exists(42))
	assert.Empty(t, h.writes.summaries)
	assert.Empty(t, h.broker.Pending(testQueue))
	assert.Empty(t, h.broker.Dead(testQueue))
}

func TestRunOnceAcksMissingItem(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.dispatch(t, `{"item_id": 999}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultAcked, report.Result)
	assert.Equal(t, 0, h.fetcher.calls)
	assert.Empty(t, h.broker.Pending(testQueue))
}

func TestRunOnceDropsInvalidPayload(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.dispatch(t, `{"id": 1}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultDead, report.Result)
	assert.Len(t, h.broker.Dead(testQueue), 1)
}

func TestRunOnceRequeuesOnInvocationTimeout(t *testing.T) {
	h := newHarness(t, blockingSummary())
	h.dispatch(t, `{"item_id": 42}`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report, err := h.consumer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.ResultRequeued, report.Result)

	pending := h.broker.Pending(testQueue)
	require.Len(t, pending, 1)
	assert.JSONEq(t, `{"item_id": 42}`, string(pending[0]))
	assert.Empty(t, h.items.failures)
	assert.True(t, h.items.exists(42))
}

func TestRunOnceRequeuesOnFetchFailure(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.fetcher.err = &parser.HTTPError{StatusCode: 503, URL: "x"}
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultRequeued, report.Result)
	assert.Len(t, h.broker.Pending(testQueue), 1)
}

func TestRunOnceDeadOnExhaustion(t *testing.T) {
	h := newHarness(t, summarizeFunc(func(context.Context, string, []string) (summarizer.Result, error) {
		return summarizer.Result{}, &summarizer.ExhaustedError{LastModel: "gemini-2.5-flash-lite", Err: errors.New("bad response")}
	}))
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultDead, report.Result)
	assert.Len(t, h.broker.Dead(testQueue), 1)
	assert.Empty(t, h.broker.Pending(testQueue))
	assert.Contains(t, h.items.failures[42], "gemini-2.5-flash-lite")
	assert.Equal(t, "gemini-2.5-flash-lite", h.items.lastMdl[42])
}

func TestRunOnceRequeuesWhenEveryModelTimesOut(t *testing.T) {
	hanging := summarizer.BackendFunc(func(ctx context.Context, model string, req summarizer.Request) (summarizer.Response, error) {
		<-ctx.Done()
		return summarizer.Response{}, ctx.Err()
	})
	engine := summarizer.NewEngine(config.SummaryConfig{
		Models:          []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"},
		CooldownSeconds: 600,
		TimeoutSeconds:  1,
		MaxTextLength:   4000,
		ImageLimit:      8,
	}, summarizer.Backends{Gemini: hanging}, summarizer.NewMemoryCooldowns())
	h := newHarness(t, engine)
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultRequeued, report.Result)
	assert.Contains(t, report.Message, "timed out")
	assert.Len(t, h.broker.Pending(testQueue), 1)
	assert.Empty(t, h.broker.Dead(testQueue))
	assert.Empty(t, h.items.failures)
}

func TestRunOnceDeadOnMissingSourcePost(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.fetcher.err = fmt.Errorf("failed to fetch: %w", parser.ErrNotFound)
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultDead, report.Result)
	assert.Contains(t, h.items.failures[42], "post not found")
}

func TestRunOnceRequeuesWhenFailureCannotBeRecorded(t *testing.T) {
	h := newHarness(t, summarizeFunc(func(context.Context, string, []string) (summarizer.Result, error) {
		return summarizer.Result{}, summarizer.ErrNoContent
	}))
	h.items.markErr = errors.New("connection reset")
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultRequeued, report.Result)
	assert.Len(t, h.broker.Pending(testQueue), 1)
	assert.Empty(t, h.broker.Dead(testQueue))
}

func TestRunOnceStoreIntegrityFailureIsPermanent(t *testing.T) {
	h := newHarness(t, okSummary("gemini-2.5-flash"))
	h.writes.applyErr = &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultDead, report.Result)
}

func TestRunOnceStoreOutageIsTransient(t *testing.T) {
	h := newHarness(t, okSummary("gemini-2.5-flash"))
	h.items.findErr = errors.New("dial tcp: connection refused")
	h.dispatch(t, `{"item_id": 42}`)

	report, err := h.consumer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.ResultRequeued, report.Result)
}

func TestRunOnceLeaseError(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	require.NoError(t, h.broker.Close())

	_, err := h.consumer.RunOnce(context.Background())
	assert.ErrorIs(t, err, eventbus.ErrBrokerClosed)
}

func TestProcessWithoutFetcherIsPermanent(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.sources.add(models.Source{ID: 2, Code: "reddit_openai_new", Metadata: models.SourceMetadata{Platform: models.FamilyReddit}})
	h.items.put(models.Item{ID: 43, SourceID: 2, ExternalID: "abc"})

	_, err := h.enrich.Process(context.Background(), 43)
	var pe *services.ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, services.Permanent, pe.Kind)
}

func TestProcessVideoPostRule(t *testing.T) {
	h := newHarness(t, okSummary("unused"))
	h.fetcher.detail.IsVideo = true

	out, err := h.enrich.Process(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, services.StatusDeleted, out.Status)
	assert.Equal(t, "video_post", out.Reason)
}
