package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/config"
	"post-digest/eventbus"
	"post-digest/events"
	"post-digest/feeder"
	"post-digest/models"
	"post-digest/services"
)

var queues = config.QueueConfig{DCInside: "dcinside_items", Reddit: "reddit_items"}

func redditCrawler(posts ...feeder.Post) *fakeCrawler {
	return &fakeCrawler{
		family: models.FamilyReddit,
		source: models.SourceConfig{Code: "reddit_openai_new", Name: "r/OpenAI", Metadata: models.SourceMetadata{Platform: models.FamilyReddit}},
		posts:  posts,
	}
}

func redditPost(id string) feeder.RedditPost {
	return feeder.RedditPost{
		Subreddit:  "OpenAI",
		ExternalID: id,
		Title:      "post " + id,
		URL:        "https://www.reddit.com/r/OpenAI/comments/" + id + "/x/",
		Published:  time.Now().Add(-3 * time.Hour),
	}
}

func dispatchedIDs(t *testing.T, broker *eventbus.MemoryBroker, queue string) []int64 {
	t.Helper()
	var ids []int64
	for _, body := range broker.Pending(queue) {
		d, err := events.ParseItemDispatch(body)
		require.NoError(t, err)
		ids = append(ids, d.ItemID)
	}
	return ids
}

func TestRunCycleDispatchesOnlyNewItems(t *testing.T) {
	ctx := context.Background()
	broker := eventbus.NewMemoryBroker()
	items := newFakeItems()
	svc := services.NewCrawlService(newFakeSources(true), items, services.NewPublisher(broker), queues)

	crawler := redditCrawler(redditPost("a1"), redditPost("a2"))
	report, err := svc.RunCycle(ctx, crawler)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 2, report.Published)
	assert.Equal(t, []int64{1, 2}, dispatchedIDs(t, broker, "reddit_items"))

	// 같은 게시물이 다시 수집되면 메시지를 더 만들지 않는다.
	crawler.posts = append(crawler.posts, redditPost("a3"))
	report, err = svc.RunCycle(ctx, crawler)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, []int64{1, 2, 3}, dispatchedIDs(t, broker, "reddit_items"))
	assert.Empty(t, broker.Pending("dcinside_items"))
}

func TestRunCycleSkipsInactiveSource(t *testing.T) {
	broker := eventbus.NewMemoryBroker()
	sources := newFakeSources(false)
	svc := services.NewCrawlService(sources, newFakeItems(), services.NewPublisher(broker), queues)

	crawler := redditCrawler(redditPost("a1"))
	report, err := svc.RunCycle(context.Background(), crawler)
	require.NoError(t, err)
	assert.True(t, report.Inactive)
	assert.Equal(t, 0, crawler.calls)
	assert.Equal(t, []string{"reddit_openai_new"}, sources.created)
	assert.Empty(t, broker.Pending("reddit_items"))
}

func TestRunCycleAppliesFilter(t *testing.T) {
	broker := eventbus.NewMemoryBroker()
	svc := services.NewCrawlService(newFakeSources(true), newFakeItems(), services.NewPublisher(broker), queues)

	fresh := redditPost("fresh")
	fresh.Published = time.Now().Add(-10 * time.Minute)
	crawler := redditCrawler(fresh, redditPost("old-enough"))
	crawler.filter = feeder.Filter{MinAge: time.Hour}

	report, err := svc.RunCycle(context.Background(), crawler)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Kept)
	assert.Len(t, broker.Pending("reddit_items"), 1)
}

func TestRunCyclePublishFailureKeepsInserts(t *testing.T) {
	items := newFakeItems()
	svc := services.NewCrawlService(newFakeSources(true), items, services.NewPublisher(failingBroker{}), queues)

	report, err := svc.RunCycle(context.Background(), redditCrawler(redditPost("a1"), redditPost("a2")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBrokerDown))
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 0, report.Published)
	assert.True(t, items.exists(1))
	assert.True(t, items.exists(2))
}

func TestRunCycleFetchError(t *testing.T) {
	svc := services.NewCrawlService(newFakeSources(true), newFakeItems(), services.NewPublisher(eventbus.NewMemoryBroker()), queues)
	crawler := redditCrawler()
	crawler.err = errors.New("403")

	_, err := svc.RunCycle(context.Background(), crawler)
	assert.ErrorContains(t, err, "failed to fetch reddit_openai_new")
}

func TestRunCycleUnknownFamily(t *testing.T) {
	svc := services.NewCrawlService(newFakeSources(true), newFakeItems(), services.NewPublisher(eventbus.NewMemoryBroker()), queues)
	crawler := redditCrawler()
	crawler.family = "twitter"

	_, err := svc.RunCycle(context.Background(), crawler)
	assert.ErrorContains(t, err, "unknown source family")
}

func TestPublishInserted(t *testing.T) {
	broker := eventbus.NewMemoryBroker()
	p := services.NewPublisher(broker)

	n, err := p.PublishInserted(context.Background(), "q", []models.UpsertResult{
		{ItemID: 7, Inserted: true},
		{ItemID: 8, Inserted: false},
		{ItemID: 9, Inserted: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{7, 9}, dispatchedIDs(t, broker, "q"))
	assert.JSONEq(t, `{"item_id":7}`, string(broker.Pending("q")[0]))
}
