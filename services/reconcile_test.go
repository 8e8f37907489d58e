package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/eventbus"
	"post-digest/models"
	"post-digest/services"
)

type fakeUnenriched struct {
	items     []models.Item
	olderThan time.Time
	limit     int
	err       error
}

func (f *fakeUnenriched) FindUnenriched(_ context.Context, olderThan time.Time, limit int) ([]models.Item, error) {
	f.olderThan = olderThan
	f.limit = limit
	return f.items, f.err
}

func reconcileSources() *fakeSources {
	sources := newFakeSources(true)
	sources.add(models.Source{ID: 1, Code: "dcinside_thesingularity", IsActive: true})
	sources.add(models.Source{ID: 2, Code: "reddit_openai_new", IsActive: true, Metadata: models.SourceMetadata{Platform: models.FamilyReddit}})
	sources.add(models.Source{ID: 3, Code: "unknown_source", IsActive: true})
	return sources
}

func TestReconcileRepublishesToFamilyQueues(t *testing.T) {
	broker := eventbus.NewMemoryBroker()
	finder := &fakeUnenriched{items: []models.Item{
		{ID: 10, SourceID: 1},
		{ID: 11, SourceID: 2},
		{ID: 12, SourceID: 1},
		{ID: 13, SourceID: 3},
		{ID: 14, SourceID: 99},
	}}
	svc := services.NewReconcileService(finder, reconcileSources(), services.NewPublisher(broker), queues)

	before := time.Now()
	report, err := svc.Run(context.Background(), time.Hour, 50)
	require.NoError(t, err)

	assert.Equal(t, services.ReconcileReport{Found: 5, Published: 3, Skipped: 2}, report)
	assert.Equal(t, []int64{10, 12}, dispatchedIDs(t, broker, "dcinside_items"))
	assert.Equal(t, []int64{11}, dispatchedIDs(t, broker, "reddit_items"))
	assert.Equal(t, 50, finder.limit)
	assert.WithinDuration(t, before.Add(-time.Hour), finder.olderThan, time.Second)
}

func TestReconcileReportsPublishFailures(t *testing.T) {
	finder := &fakeUnenriched{items: []models.Item{{ID: 10, SourceID: 1}, {ID: 11, SourceID: 2}}}
	svc := services.NewReconcileService(finder, reconcileSources(), services.NewPublisher(failingBroker{}), queues)

	report, err := svc.Run(context.Background(), time.Hour, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBrokerDown))
	assert.Equal(t, 0, report.Published)
	assert.Equal(t, 2, report.Found)
}

func TestReconcileQueryError(t *testing.T) {
	finder := &fakeUnenriched{err: errors.New("db down")}
	svc := services.NewReconcileService(finder, reconcileSources(), services.NewPublisher(eventbus.NewMemoryBroker()), queues)

	_, err := svc.Run(context.Background(), time.Hour, 10)
	assert.EqualError(t, err, "db down")
}
