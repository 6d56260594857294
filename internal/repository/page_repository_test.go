package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"content-pool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePages(domain string, n int, prefix string) []*models.SynthesizedPage {
	created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	pages := make([]*models.SynthesizedPage, n)
	for i := range pages {
		pages[i] = &models.SynthesizedPage{
			Domain:      domain,
			Slug:        fmt.Sprintf("%s-%d", prefix, i),
			Seq:         i,
			Title:       fmt.Sprintf("%s title %d", prefix, i),
			Description: "desc",
			Keywords:    []string{"k1", "k2"},
			Body:        "<html>" + prefix + "</html>",
			Theme:       "general",
			Palette:     "ivory",
			Published:   true,
			Status:      models.PageStatusActive,
			Sources:     []string{"news"},
			CreatedAt:   created,
		}
	}
	return pages
}

func TestPageRepository_StageSwapGet(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	_, err := repo.Get(ctx, "a.com", "old-0")
	assert.ErrorIs(t, err, models.ErrNotFound)

	written, err := repo.Stage(ctx, "a.com", "g1", makePages("a.com", 7, "old"), 3)
	require.NoError(t, err)
	assert.Equal(t, 7, written)

	// 未切换前不可见
	_, err = repo.Get(ctx, "a.com", "old-0")
	assert.ErrorIs(t, err, models.ErrNotFound)

	prev, err := repo.Swap(ctx, "a.com", "g1")
	require.NoError(t, err)
	assert.Equal(t, "", prev)

	page, err := repo.Get(ctx, "a.com", "old-3")
	require.NoError(t, err)
	assert.Equal(t, "g1", page.Generation)
	assert.Equal(t, "a.com", page.Domain)
	assert.Equal(t, 3, page.Seq)
	assert.Equal(t, "old title 3", page.Title)
	assert.Equal(t, []string{"k1", "k2"}, page.Keywords)
	assert.Equal(t, []string{"news"}, page.Sources)
	assert.True(t, page.Servable())
	assert.Nil(t, page.LastCrawledAt)
	assert.Equal(t, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC), page.CreatedAt)

	count, err := repo.Count(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	gen, err := repo.CurrentGeneration(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, "g1", gen)
}

func TestPageRepository_ReplaceGenerationLeavesNoResidue(t *testing.T) {
	client, mr := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	_, err := repo.Stage(ctx, "a.com", "g1", makePages("a.com", 10, "old"), 4)
	require.NoError(t, err)
	_, err = repo.Swap(ctx, "a.com", "g1")
	require.NoError(t, err)

	_, err = repo.Stage(ctx, "a.com", "g2", makePages("a.com", 4, "new"), 4)
	require.NoError(t, err)
	prev, err := repo.Swap(ctx, "a.com", "g2")
	require.NoError(t, err)
	assert.Equal(t, "g1", prev)
	require.NoError(t, repo.DiscardGeneration(ctx, "a.com", prev, nil, 0))

	for _, k := range mr.Keys() {
		assert.NotContains(t, k, ":g:g1:", "old generation key %s survived", k)
	}
	_, err = repo.Get(ctx, "a.com", "old-0")
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err := repo.ListPublished(ctx, "a.com", 0)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestPageRepository_DiscardWithGrace(t *testing.T) {
	client, mr := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	_, err := repo.Stage(ctx, "a.com", "g1", makePages("a.com", 3, "old"), 10)
	require.NoError(t, err)
	require.NoError(t, repo.DiscardGeneration(ctx, "a.com", "g1", []string{"never-indexed"}, time.Minute))

	assert.Equal(t, time.Minute, mr.TTL("pool:a.com:g:g1:page:old-0"))
	mr.FastForward(2 * time.Minute)
	assert.Empty(t, mr.Keys())

	assert.NoError(t, repo.DiscardGeneration(ctx, "a.com", "", nil, 0))
}

func TestPageRepository_StageFailureReportsWritten(t *testing.T) {
	client, mr := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	mr.SetError("OOM command not allowed")
	written, err := repo.Stage(ctx, "a.com", "g1", makePages("a.com", 5, "x"), 2)
	assert.Error(t, err)
	assert.Equal(t, 0, written)
}

func TestPageRepository_ListPublishedFiltersAndLimits(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	pages := makePages("a.com", 6, "p")
	pages[1].Published = false
	pages[2].Status = models.PageStatusInactive
	_, err := repo.Stage(ctx, "a.com", "g1", pages, 10)
	require.NoError(t, err)

	empty, err := repo.ListPublished(ctx, "a.com", 0)
	require.NoError(t, err)
	assert.Empty(t, empty, "nothing visible before swap")

	_, err = repo.Swap(ctx, "a.com", "g1")
	require.NoError(t, err)

	list, err := repo.ListPublished(ctx, "a.com", 0)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "p-0", list[0].Slug)
	assert.Equal(t, "p-3", list[1].Slug)
	assert.Equal(t, "p title 3", list[1].Title)
	assert.Equal(t, 3, list[1].Seq)

	limited, err := repo.ListPublished(ctx, "a.com", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPageRepository_RecordHit(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	_, err := repo.Stage(ctx, "a.com", "g1", makePages("a.com", 2, "p"), 10)
	require.NoError(t, err)
	_, err = repo.Swap(ctx, "a.com", "g1")
	require.NoError(t, err)

	page, err := repo.Get(ctx, "a.com", "p-0")
	require.NoError(t, err)

	t1 := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordHit(ctx, page, false, t1))
	require.NoError(t, repo.RecordHit(ctx, page, true, t1.Add(time.Minute)))
	// 较早的时间戳不会让 last_crawled 回退
	require.NoError(t, repo.RecordHit(ctx, page, true, t1))

	page, err = repo.Get(ctx, "a.com", "p-0")
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Views)
	assert.Equal(t, int64(2), page.CrawlerVisits)
	require.NotNil(t, page.LastCrawledAt)
	assert.True(t, page.LastCrawledAt.Equal(t1.Add(time.Minute)))

	stats, err := repo.DomainStats(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Visits)
	require.NotNil(t, stats.LastVisitAt)
	assert.True(t, stats.LastVisitAt.Equal(t1.Add(time.Minute)))

	pageStats, err := repo.PageStats(ctx, "a.com")
	require.NoError(t, err)
	require.Len(t, pageStats, 2)
	assert.Equal(t, "p-0", pageStats[0].Slug)
	assert.Equal(t, int64(3), pageStats[0].Views)
	assert.Equal(t, int64(0), pageStats[1].Views)
}

func TestPageRepository_RecordHitOnCollectedPage(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	page := &models.SynthesizedPage{Domain: "a.com", Slug: "gone", Generation: "g0"}
	err := repo.RecordHit(ctx, page, true, time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound)

	stats, err := repo.DomainStats(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Visits)
	assert.Nil(t, stats.LastVisitAt)
}

func TestPageRepository_RegenLock(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPageRepository(client)
	ctx := context.Background()

	release, err := repo.AcquireRegenLock(ctx, "a.com", time.Minute)
	require.NoError(t, err)

	_, err = repo.AcquireRegenLock(ctx, "a.com", time.Minute)
	assert.ErrorIs(t, err, models.ErrRegenerationInProgress)

	other, err := repo.AcquireRegenLock(ctx, "b.com", time.Minute)
	require.NoError(t, err)
	other()

	release()
	again, err := repo.AcquireRegenLock(ctx, "a.com", time.Minute)
	require.NoError(t, err)
	again()
}

func TestPageRepository_KeyPrefix(t *testing.T) {
	client, mr := newTestRedis(t)
	client.SetKeyPrefix("staging")
	repo := NewPageRepository(client)
	ctx := context.Background()

	_, err := repo.Stage(ctx, "a.com", "g1", makePages("a.com", 1, "p"), 10)
	require.NoError(t, err)
	_, err = repo.Swap(ctx, "a.com", "g1")
	require.NoError(t, err)

	assert.True(t, mr.Exists("staging:pool:a.com:gen"))
	_, err = repo.Get(ctx, "a.com", "p-0")
	assert.NoError(t, err)
}
