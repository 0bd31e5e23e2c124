package gorollup

import (
	"context"
)

// Bucket is one composite aggregation bucket of a page of results
type Bucket interface {
	DocCount() uint64
}

// PageResult is a page of composite aggregation results as returned by the executor
type PageResult interface {
	// ElapsedMillis is the time the search for this page took
	ElapsedMillis() uint64
	Buckets() []Bucket
}

// Add returns the field-wise sum of s and other
func (s Stats) Add(other Stats) Stats {
	return Stats{
		PagesProcessed:     s.PagesProcessed + other.PagesProcessed,
		DocumentsProcessed: s.DocumentsProcessed + other.DocumentsProcessed,
		RollupsIndexed:     s.RollupsIndexed + other.RollupsIndexed,
		IndexTimeMillis:    s.IndexTimeMillis + other.IndexTimeMillis,
		SearchTimeMillis:   s.SearchTimeMillis + other.SearchTimeMillis,
	}
}

// MergeStats returns the field-wise sum of a and b. It is commutative and associative.
func MergeStats(a, b Stats) Stats {
	return a.Add(b)
}

// MergeAll folds stats with MergeStats, starting from zero
func MergeAll(stats ...Stats) Stats {
	var total Stats
	for _, s := range stats {
		total = total.Add(s)
	}
	return total
}

// IncrementAfterPage returns a copy of m accounting for one more processed page
func IncrementAfterPage(m Metadata, page PageResult) Metadata {
	var docs uint64
	for _, b := range page.Buckets() {
		docs += b.DocCount()
	}
	stats := m.Stats
	stats.PagesProcessed++
	stats.DocumentsProcessed += docs
	stats.SearchTimeMillis += page.ElapsedMillis()
	return m.WithStats(stats)
}

// IncrementIndexed returns a copy of m accounting for rollups documents written in indexMillis
func IncrementIndexed(m Metadata, rollups, indexMillis uint64) Metadata {
	stats := m.Stats
	stats.RollupsIndexed += rollups
	stats.IndexTimeMillis += indexMillis
	return m.WithStats(stats)
}

// StatsTask computes a partial Stats, typically for one shard or one worker
type StatsTask func(ctx context.Context) (Stats, error)

// CollectStats runs tasks in the collector pool and merges their results.
// The first task error is returned; the merge result does not depend on completion order.
func CollectStats(ctx context.Context, tasks ...StatsTask) (Stats, error) {
	futures := make([]Future, 0, len(tasks))
	for _, task := range tasks {
		t := task
		futures = append(futures, collectorPool.Submit(ctx, func() (interface{}, error) {
			return t(ctx)
		}))
	}
	var total Stats
	var firstErr error
	for _, f := range futures {
		val, err := f.Get()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total = total.Add(val.(Stats))
	}
	if firstErr != nil {
		DefaultLogger.Error(ctx, "collect stats failed, tasks:%v, err:%v", len(tasks), firstErr)
		return Stats{}, firstErr
	}
	return total, nil
}
