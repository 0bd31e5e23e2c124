package gorollup

import (
	"context"
	"time"
)

// Tracker drives the bookkeeping of rollup job runs: it loads the current Metadata, derives the next value
// and saves it through a Repository. A stale version is returned to the caller, never retried.
type Tracker interface {
	Init(ctx context.Context, jobID string, window *ContinuousWindow) (Metadata, error)
	Start(ctx context.Context, id string) (Metadata, error)
	RecordPage(ctx context.Context, id string, page PageResult, afterKey AfterKey) (Metadata, error)
	RecordIndexed(ctx context.Context, id string, rollups, indexMillis uint64) (Metadata, error)
	AdvanceWindow(ctx context.Context, id string, interval time.Duration) (Metadata, error)
	Stop(ctx context.Context, id string) (Metadata, error)
	Finish(ctx context.Context, id string) (Metadata, error)
	Fail(ctx context.Context, id string, reason string) (Metadata, error)
	Retry(ctx context.Context, id string, reason string) (Metadata, error)
}

// TrackerOption customizes a Tracker
type TrackerOption func(t *tracker)

// WithClock replaces the function used to stamp LastUpdatedTime
func WithClock(now func() time.Time) TrackerOption {
	return func(t *tracker) {
		t.now = now
	}
}

// NewTracker create a Tracker saving metadata to repository
func NewTracker(repository Repository, opts ...TrackerOption) Tracker {
	t := &tracker{
		repository: repository,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type tracker struct {
	repository Repository
	now        func() time.Time
}

// Init create the INIT metadata of a new run of jobID
func (t *tracker) Init(ctx context.Context, jobID string, window *ContinuousWindow) (Metadata, error) {
	if window != nil {
		if err := window.Validate(); err != nil {
			DefaultLogger.Error(ctx, "invalid continuous window, jobId:%v, err:%v", jobID, err)
			return Metadata{}, err
		}
	}
	existing, err := t.repository.FindByJobID(ctx, jobID)
	if err != nil {
		DefaultLogger.Error(ctx, "find metadata by job error, jobId:%v, err:%v", jobID, err)
		return Metadata{}, err
	}
	if existing != nil && !existing.Status.IsTerminal() {
		DefaultLogger.Error(ctx, "the job has a run in progress, can not init, jobId:%v, status:%v", jobID, existing.Status)
		return Metadata{}, NewRollupError(ErrCodeGeneral, "the job has a run in progress, can not init, jobId:%v, status:%v", jobID, existing.Status)
	}
	m := NewMetadata(jobID, t.now(), window)
	if existing != nil {
		// reuse the document of the previous run, stats restart from zero
		m = m.WithVersion(existing.ID, existing.SeqNo, existing.PrimaryTerm)
	}
	saved, err := t.repository.Save(ctx, m)
	if err != nil {
		DefaultLogger.Error(ctx, "save metadata failed, jobId:%v, err:%v", jobID, err)
		return Metadata{}, err
	}
	DefaultLogger.Info(ctx, "metadata initialized, jobId:%v, id:%v, continuous:%v", jobID, saved.ID, window != nil)
	return saved, nil
}

// Start move the run to STARTED
func (t *tracker) Start(ctx context.Context, id string) (Metadata, error) {
	return t.update(ctx, id, "start", func(m Metadata) (Metadata, error) {
		if m.Status == Started {
			return m, NewRollupError(ErrCodeGeneral, "the job is already started, id:%v, jobId:%v", id, m.JobID)
		}
		if m.Status.IsTerminal() {
			return m, NewRollupError(ErrCodeGeneral, "the job run has ended, can not start, id:%v, status:%v", id, m.Status)
		}
		return m.WithStatus(Started).WithoutFailure(), nil
	})
}

// RecordPage fold a processed page into the stats and move the cursor to afterKey
func (t *tracker) RecordPage(ctx context.Context, id string, page PageResult, afterKey AfterKey) (Metadata, error) {
	return t.update(ctx, id, "record page", func(m Metadata) (Metadata, error) {
		return IncrementAfterPage(m, page).WithAfterKey(afterKey), nil
	})
}

// RecordIndexed fold written rollup documents into the stats
func (t *tracker) RecordIndexed(ctx context.Context, id string, rollups, indexMillis uint64) (Metadata, error) {
	return t.update(ctx, id, "record indexed", func(m Metadata) (Metadata, error) {
		return IncrementIndexed(m, rollups, indexMillis), nil
	})
}

// AdvanceWindow move a continuous run to its next window and reset the cursor
func (t *tracker) AdvanceWindow(ctx context.Context, id string, interval time.Duration) (Metadata, error) {
	return t.update(ctx, id, "advance window", func(m Metadata) (Metadata, error) {
		if m.Continuous == nil {
			return m, NewRollupError(ErrCodeInvalidWindow, "the job run is not continuous, id:%v, jobId:%v", id, m.JobID)
		}
		next, err := m.Continuous.Next(interval)
		if err != nil {
			return m, err
		}
		return m.WithContinuous(&next).WithAfterKey(nil), nil
	})
}

// Stop move the run to STOPPED
func (t *tracker) Stop(ctx context.Context, id string) (Metadata, error) {
	return t.update(ctx, id, "stop", func(m Metadata) (Metadata, error) {
		return m.WithStatus(Stopped).WithoutFailure(), nil
	})
}

// Finish move the run to FINISHED
func (t *tracker) Finish(ctx context.Context, id string) (Metadata, error) {
	return t.update(ctx, id, "finish", func(m Metadata) (Metadata, error) {
		return m.WithStatus(Finished).WithoutFailure(), nil
	})
}

// Fail move the run to FAILED with reason
func (t *tracker) Fail(ctx context.Context, id string, reason string) (Metadata, error) {
	return t.update(ctx, id, "fail", func(m Metadata) (Metadata, error) {
		return m.WithFailure(Failed, reason), nil
	})
}

// Retry move the run to RETRY with reason
func (t *tracker) Retry(ctx context.Context, id string, reason string) (Metadata, error) {
	return t.update(ctx, id, "retry", func(m Metadata) (Metadata, error) {
		return m.WithFailure(Retry, reason), nil
	})
}

func (t *tracker) update(ctx context.Context, id string, action string, change func(m Metadata) (Metadata, error)) (Metadata, error) {
	current, err := t.repository.Get(ctx, id)
	if err != nil {
		DefaultLogger.Error(ctx, "load metadata error, id:%v, action:%v, err:%v", id, action, err)
		return Metadata{}, err
	}
	next, er := change(current)
	if er != nil {
		DefaultLogger.Error(ctx, "%v metadata rejected, id:%v, jobId:%v, err:%v", action, id, current.JobID, er)
		return Metadata{}, er
	}
	saved, err := t.repository.Save(ctx, next.WithLastUpdated(t.now()))
	if err != nil {
		if IsStaleVersion(err) {
			DefaultLogger.Warn(ctx, "%v metadata lost a concurrent update, id:%v, seqNo:%v, primaryTerm:%v", action, id, current.SeqNo, current.PrimaryTerm)
		} else {
			DefaultLogger.Error(ctx, "%v metadata save error, id:%v, err:%v", action, id, err)
		}
		return Metadata{}, err
	}
	if saved.Status != current.Status {
		DefaultLogger.Info(ctx, "metadata status changed, id:%v, jobId:%v, from:%v, to:%v", id, saved.JobID, current.Status, saved.Status)
	}
	return saved, nil
}
