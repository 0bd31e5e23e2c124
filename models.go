package gorollup

import (
	"time"
)

// identity sentinels of metadata that has never been persisted
const (
	NoID                  = ""
	UnassignedSeqNo       = int64(-2)
	UnassignedPrimaryTerm = int64(0)
)

// entity names, used in error messages and as document type keys
const (
	MetadataEntity   = "rollup_metadata"
	ContinuousEntity = "continuous"
	StatsEntity      = "stats"
)

// Stats holds the work counters of a rollup job run
type Stats struct {
	PagesProcessed     uint64
	DocumentsProcessed uint64
	RollupsIndexed     uint64
	IndexTimeMillis    uint64
	SearchTimeMillis   uint64
}

// ContinuousWindow is the next interval a continuous rollup job will process.
// WindowStart is inclusive, WindowEnd exclusive.
type ContinuousWindow struct {
	WindowStart time.Time
	WindowEnd   time.Time
}

// NewContinuousWindow returns the window of length interval containing start, aligned on interval boundaries
func NewContinuousWindow(start time.Time, interval time.Duration) (ContinuousWindow, error) {
	if interval <= 0 {
		return ContinuousWindow{}, NewRollupError(ErrCodeInvalidWindow, "window interval must be positive, got:%v", interval)
	}
	windowStart := start.UTC().Truncate(interval)
	return ContinuousWindow{WindowStart: windowStart, WindowEnd: windowStart.Add(interval)}, nil
}

// Next returns the window following w
func (w ContinuousWindow) Next(interval time.Duration) (ContinuousWindow, error) {
	if interval <= 0 {
		return ContinuousWindow{}, NewRollupError(ErrCodeInvalidWindow, "window interval must be positive, got:%v", interval)
	}
	return ContinuousWindow{WindowStart: w.WindowEnd, WindowEnd: w.WindowEnd.Add(interval)}, nil
}

// Validate checks that the window is not empty
func (w ContinuousWindow) Validate() error {
	if !w.WindowStart.Before(w.WindowEnd) {
		return NewRollupError(ErrCodeInvalidWindow, "window start:%v must be before window end:%v", w.WindowStart, w.WindowEnd)
	}
	return nil
}

// Metadata is the persisted bookkeeping record of a rollup job run.
//
// Metadata is a value: fields are read-only by convention and every change goes through a With* method
// or a MetadataBuilder, which return a new value.
type Metadata struct {
	ID          string
	SeqNo       int64
	PrimaryTerm int64

	JobID           string
	AfterKey        AfterKey
	LastUpdatedTime time.Time
	Continuous      *ContinuousWindow
	Status          Status
	FailureReason   *string
	Stats           Stats
}

// NewMetadata returns the INIT metadata of a new run of job jobID
func NewMetadata(jobID string, now time.Time, window *ContinuousWindow) Metadata {
	return Metadata{
		ID:              NoID,
		SeqNo:           UnassignedSeqNo,
		PrimaryTerm:     UnassignedPrimaryTerm,
		JobID:           jobID,
		LastUpdatedTime: now.UTC(),
		Continuous:      cloneWindow(window),
		Status:          Init,
	}
}

// Persisted reports whether the persistence layer has assigned an id and a version to m
func (m Metadata) Persisted() bool {
	return m.ID != NoID && m.SeqNo != UnassignedSeqNo && m.PrimaryTerm != UnassignedPrimaryTerm
}

// Clone returns a copy of m sharing no storage with it
func (m Metadata) Clone() Metadata {
	cp := m
	cp.AfterKey = m.AfterKey.Clone()
	cp.Continuous = cloneWindow(m.Continuous)
	if m.FailureReason != nil {
		reason := *m.FailureReason
		cp.FailureReason = &reason
	}
	return cp
}

// Equal compares m and other field by field, including nil/absent distinctions
func (m Metadata) Equal(other Metadata) bool {
	if m.ID != other.ID || m.SeqNo != other.SeqNo || m.PrimaryTerm != other.PrimaryTerm {
		return false
	}
	if m.JobID != other.JobID || m.Status != other.Status || m.Stats != other.Stats {
		return false
	}
	if !m.LastUpdatedTime.Equal(other.LastUpdatedTime) || !m.AfterKey.Equal(other.AfterKey) {
		return false
	}
	if (m.Continuous == nil) != (other.Continuous == nil) {
		return false
	}
	if m.Continuous != nil && (!m.Continuous.WindowStart.Equal(other.Continuous.WindowStart) ||
		!m.Continuous.WindowEnd.Equal(other.Continuous.WindowEnd)) {
		return false
	}
	if (m.FailureReason == nil) != (other.FailureReason == nil) {
		return false
	}
	return m.FailureReason == nil || *m.FailureReason == *other.FailureReason
}

// WithStatus returns a copy of m in status s
func (m Metadata) WithStatus(s Status) Metadata {
	cp := m.Clone()
	cp.Status = s
	return cp
}

// WithFailure returns a copy of m in status s with the given failure reason
func (m Metadata) WithFailure(s Status, reason string) Metadata {
	cp := m.Clone()
	cp.Status = s
	cp.FailureReason = &reason
	return cp
}

// WithoutFailure returns a copy of m without a failure reason
func (m Metadata) WithoutFailure() Metadata {
	cp := m.Clone()
	cp.FailureReason = nil
	return cp
}

// WithAfterKey returns a copy of m positioned after the given bucket key
func (m Metadata) WithAfterKey(ak AfterKey) Metadata {
	cp := m.Clone()
	cp.AfterKey = ak.Clone()
	return cp
}

// WithStats returns a copy of m carrying stats
func (m Metadata) WithStats(stats Stats) Metadata {
	cp := m.Clone()
	cp.Stats = stats
	return cp
}

// WithContinuous returns a copy of m with the given window; nil makes it a one-shot run
func (m Metadata) WithContinuous(window *ContinuousWindow) Metadata {
	cp := m.Clone()
	cp.Continuous = cloneWindow(window)
	return cp
}

// WithLastUpdated returns a copy of m stamped at t
func (m Metadata) WithLastUpdated(t time.Time) Metadata {
	cp := m.Clone()
	cp.LastUpdatedTime = t.UTC()
	return cp
}

// WithVersion returns a copy of m carrying the identity assigned by the persistence layer
func (m Metadata) WithVersion(id string, seqNo, primaryTerm int64) Metadata {
	cp := m.Clone()
	cp.ID = id
	cp.SeqNo = seqNo
	cp.PrimaryTerm = primaryTerm
	return cp
}

func cloneWindow(w *ContinuousWindow) *ContinuousWindow {
	if w == nil {
		return nil
	}
	cp := *w
	return &cp
}
