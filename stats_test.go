package gorollup

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/bmizerany/assert"
)

type testBucket uint64

func (b testBucket) DocCount() uint64 {
	return uint64(b)
}

type testPage struct {
	elapsed uint64
	buckets []Bucket
}

func (p testPage) ElapsedMillis() uint64 {
	return p.elapsed
}

func (p testPage) Buckets() []Bucket {
	return p.buckets
}

func TestIncrementAfterPage(t *testing.T) {
	m := NewMetadata("job-1", testNow, nil).WithStats(Stats{PagesProcessed: 2, DocumentsProcessed: 10, SearchTimeMillis: 7, RollupsIndexed: 4})
	page := testPage{elapsed: 50, buckets: []Bucket{testBucket(3), testBucket(4)}}

	next := IncrementAfterPage(m, page)
	assert.Equal(t, Stats{PagesProcessed: 3, DocumentsProcessed: 17, SearchTimeMillis: 57, RollupsIndexed: 4}, next.Stats)
	assert.Equal(t, uint64(2), m.Stats.PagesProcessed)
}

func TestIncrementAfterEmptyPage(t *testing.T) {
	m := NewMetadata("job-1", testNow, nil)
	next := IncrementAfterPage(m, testPage{})
	assert.Equal(t, Stats{PagesProcessed: 1}, next.Stats)
}

func TestIncrementIndexed(t *testing.T) {
	m := NewMetadata("job-1", testNow, nil).WithStats(Stats{RollupsIndexed: 1, IndexTimeMillis: 5})
	next := IncrementIndexed(m, 9, 20)
	assert.Equal(t, Stats{RollupsIndexed: 10, IndexTimeMillis: 25}, next.Stats)
}

func randomStats(r *rand.Rand) Stats {
	return Stats{
		PagesProcessed:     uint64(r.Int63n(1 << 40)),
		DocumentsProcessed: uint64(r.Int63n(1 << 40)),
		RollupsIndexed:     uint64(r.Int63n(1 << 40)),
		IndexTimeMillis:    uint64(r.Int63n(1 << 40)),
		SearchTimeMillis:   uint64(r.Int63n(1 << 40)),
	}
}

func TestMergeStatsAlgebra(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		a, b, c := randomStats(r), randomStats(r), randomStats(r)
		assert.Equal(t, MergeStats(a, b), MergeStats(b, a))
		assert.Equal(t, MergeStats(MergeStats(a, b), c), MergeStats(a, MergeStats(b, c)))
		assert.Equal(t, a, MergeStats(a, Stats{}))
	}
}

func TestMergeAll(t *testing.T) {
	assert.Equal(t, Stats{}, MergeAll())
	total := MergeAll(Stats{PagesProcessed: 1}, Stats{PagesProcessed: 2, SearchTimeMillis: 3}, Stats{RollupsIndexed: 4})
	assert.Equal(t, Stats{PagesProcessed: 3, SearchTimeMillis: 3, RollupsIndexed: 4}, total)
}

func TestCollectStats(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	parts := make([]Stats, 50)
	tasks := make([]StatsTask, len(parts))
	for i := range parts {
		s := randomStats(r)
		parts[i] = s
		tasks[i] = func(ctx context.Context) (Stats, error) {
			return s, nil
		}
	}
	total, err := CollectStats(context.Background(), tasks...)
	assert.Equal(t, nil, err)
	assert.Equal(t, MergeAll(parts...), total)
}

func TestCollectStatsError(t *testing.T) {
	boom := errors.New("shard unavailable")
	_, err := CollectStats(context.Background(),
		func(ctx context.Context) (Stats, error) { return Stats{PagesProcessed: 1}, nil },
		func(ctx context.Context) (Stats, error) { return Stats{}, boom },
	)
	assert.Equal(t, boom, err)
}

func TestCollectStatsPanic(t *testing.T) {
	_, err := CollectStats(context.Background(),
		func(ctx context.Context) (Stats, error) { panic("bad shard") },
	)
	assert.T(t, HasCode(err, ErrCodeGeneral), err)
}
