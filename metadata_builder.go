package gorollup

import (
	"time"
)

// MetadataBuilder assembles a Metadata value field by field.
// Build returns a value that shares no storage with the builder, so a builder may be reused.
type MetadataBuilder interface {
	ID(id string) MetadataBuilder
	Version(seqNo, primaryTerm int64) MetadataBuilder
	AfterKey(ak AfterKey) MetadataBuilder
	LastUpdated(t time.Time) MetadataBuilder
	Continuous(window *ContinuousWindow) MetadataBuilder
	Status(status Status) MetadataBuilder
	FailureReason(reason string) MetadataBuilder
	ClearFailureReason() MetadataBuilder
	Stats(stats Stats) MetadataBuilder
	Build() Metadata
}

// NewMetadataBuilder start a builder for an unpersisted INIT metadata of job jobID
func NewMetadataBuilder(jobID string) MetadataBuilder {
	return &metadataBuilder{
		m: Metadata{
			ID:          NoID,
			SeqNo:       UnassignedSeqNo,
			PrimaryTerm: UnassignedPrimaryTerm,
			JobID:       jobID,
			Status:      Init,
		},
	}
}

// ToBuilder start a builder initialized with a copy of m
func (m Metadata) ToBuilder() MetadataBuilder {
	return &metadataBuilder{m: m.Clone()}
}

type metadataBuilder struct {
	m Metadata
}

func (b *metadataBuilder) ID(id string) MetadataBuilder {
	b.m.ID = id
	return b
}

func (b *metadataBuilder) Version(seqNo, primaryTerm int64) MetadataBuilder {
	b.m.SeqNo = seqNo
	b.m.PrimaryTerm = primaryTerm
	return b
}

func (b *metadataBuilder) AfterKey(ak AfterKey) MetadataBuilder {
	b.m.AfterKey = ak.Clone()
	return b
}

func (b *metadataBuilder) LastUpdated(t time.Time) MetadataBuilder {
	b.m.LastUpdatedTime = t.UTC()
	return b
}

func (b *metadataBuilder) Continuous(window *ContinuousWindow) MetadataBuilder {
	b.m.Continuous = cloneWindow(window)
	return b
}

func (b *metadataBuilder) Status(status Status) MetadataBuilder {
	b.m.Status = status
	return b
}

func (b *metadataBuilder) FailureReason(reason string) MetadataBuilder {
	b.m.FailureReason = &reason
	return b
}

func (b *metadataBuilder) ClearFailureReason() MetadataBuilder {
	b.m.FailureReason = nil
	return b
}

func (b *metadataBuilder) Stats(stats Stats) MetadataBuilder {
	b.m.Stats = stats
	return b
}

func (b *metadataBuilder) Build() Metadata {
	return b.m.Clone()
}
