package document

import (
	"io"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/chararch/gorollup"
)

// ParseMetadata reads a metadata object from iter. id, seqNo and primaryTerm come from the store
// the document was read from.
func ParseMetadata(iter *jsoniter.Iterator, id string, seqNo, primaryTerm int64) (gorollup.Metadata, error) {
	const entity = gorollup.MetadataEntity
	if err := expectObject(iter, entity); err != nil {
		return gorollup.Metadata{}, err
	}

	var (
		jobID         *string
		afterKey      gorollup.AfterKey
		lastUpdated   timeSlot
		continuous    *gorollup.ContinuousWindow
		status        *gorollup.Status
		failureReason *string
		stats         *gorollup.Stats
		perr          error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		switch field {
		case FieldRollupID:
			jobID, perr = readOptionalString(it, entity, field)
		case FieldAfterKey:
			afterKey, perr = readAfterKey(it)
		case FieldLastUpdatedTime:
			perr = lastUpdated.readTime(it, entity, field)
		case FieldLastUpdatedTime + millisSuffix:
			perr = lastUpdated.readMillis(it, entity, field)
		case FieldContinuous:
			if it.ReadNil() {
				continuous = nil
				break
			}
			var w gorollup.ContinuousWindow
			if w, perr = ParseContinuous(it); perr == nil {
				continuous = &w
			}
		case FieldStatus:
			var token *string
			if token, perr = readOptionalString(it, entity, field); perr == nil && token != nil {
				var s gorollup.Status
				if s, perr = gorollup.ParseStatus(*token); perr == nil {
					status = &s
				}
			}
		case FieldFailureReason:
			failureReason, perr = readOptionalString(it, entity, field)
		case FieldStats:
			if it.ReadNil() {
				stats = nil
				break
			}
			var s gorollup.Stats
			if s, perr = ParseStats(it); perr == nil {
				stats = &s
			}
		default:
			it.Skip()
		}
		return perr == nil && it.Error == nil
	})
	if perr != nil {
		return gorollup.Metadata{}, perr
	}
	if iter.Error != nil {
		return gorollup.Metadata{}, malformed(entity, iter.Error)
	}

	if jobID == nil {
		return gorollup.Metadata{}, gorollup.NewMissingFieldError(entity, FieldRollupID)
	}
	if !lastUpdated.set() {
		return gorollup.Metadata{}, gorollup.NewMissingFieldError(entity, FieldLastUpdatedTime)
	}
	if status == nil {
		return gorollup.Metadata{}, gorollup.NewMissingFieldError(entity, FieldStatus)
	}
	if stats == nil {
		return gorollup.Metadata{}, gorollup.NewMissingFieldError(entity, FieldStats)
	}
	return gorollup.Metadata{
		ID:              id,
		SeqNo:           seqNo,
		PrimaryTerm:     primaryTerm,
		JobID:           *jobID,
		AfterKey:        afterKey,
		LastUpdatedTime: lastUpdated.value(),
		Continuous:      continuous,
		Status:          *status,
		FailureReason:   failureReason,
		Stats:           *stats,
	}, nil
}

// ParseWrappedMetadata reads a metadata object nested under WrapperField
func ParseWrappedMetadata(iter *jsoniter.Iterator, id string, seqNo, primaryTerm int64) (gorollup.Metadata, error) {
	if err := expectObject(iter, WrapperField); err != nil {
		return gorollup.Metadata{}, err
	}
	var (
		m     gorollup.Metadata
		found bool
		perr  error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field != WrapperField {
			it.Skip()
			return it.Error == nil
		}
		found = true
		m, perr = ParseMetadata(it, id, seqNo, primaryTerm)
		return perr == nil && it.Error == nil
	})
	if perr != nil {
		return gorollup.Metadata{}, perr
	}
	if iter.Error != nil {
		return gorollup.Metadata{}, malformed(WrapperField, iter.Error)
	}
	if !found {
		return gorollup.Metadata{}, gorollup.NewMissingFieldError("document", WrapperField)
	}
	return m, nil
}

// ParseContinuous reads a continuous window object. The window order is not checked.
func ParseContinuous(iter *jsoniter.Iterator) (gorollup.ContinuousWindow, error) {
	const entity = gorollup.ContinuousEntity
	if err := expectObject(iter, entity); err != nil {
		return gorollup.ContinuousWindow{}, err
	}
	var (
		start, end timeSlot
		perr       error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		switch field {
		case FieldNextWindowStartTime:
			perr = start.readTime(it, entity, field)
		case FieldNextWindowStartTime + millisSuffix:
			perr = start.readMillis(it, entity, field)
		case FieldNextWindowEndTime:
			perr = end.readTime(it, entity, field)
		case FieldNextWindowEndTime + millisSuffix:
			perr = end.readMillis(it, entity, field)
		default:
			it.Skip()
		}
		return perr == nil && it.Error == nil
	})
	if perr != nil {
		return gorollup.ContinuousWindow{}, perr
	}
	if iter.Error != nil {
		return gorollup.ContinuousWindow{}, malformed(entity, iter.Error)
	}
	if !start.set() {
		return gorollup.ContinuousWindow{}, gorollup.NewMissingFieldError(entity, FieldNextWindowStartTime)
	}
	if !end.set() {
		return gorollup.ContinuousWindow{}, gorollup.NewMissingFieldError(entity, FieldNextWindowEndTime)
	}
	return gorollup.ContinuousWindow{WindowStart: start.value(), WindowEnd: end.value()}, nil
}

// ParseStats reads a stats object; every counter is required
func ParseStats(iter *jsoniter.Iterator) (gorollup.Stats, error) {
	const entity = gorollup.StatsEntity
	if err := expectObject(iter, entity); err != nil {
		return gorollup.Stats{}, err
	}
	var (
		pages, docs, rollups, indexTime, searchTime *uint64
		perr                                        error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		switch field {
		case FieldPagesProcessed:
			pages, perr = readOptionalUint64(it, entity, field)
		case FieldDocumentsProcessed:
			docs, perr = readOptionalUint64(it, entity, field)
		case FieldRollupsIndexed:
			rollups, perr = readOptionalUint64(it, entity, field)
		case FieldIndexTimeInMillis:
			indexTime, perr = readOptionalUint64(it, entity, field)
		case FieldSearchTimeInMillis:
			searchTime, perr = readOptionalUint64(it, entity, field)
		default:
			it.Skip()
		}
		return perr == nil && it.Error == nil
	})
	if perr != nil {
		return gorollup.Stats{}, perr
	}
	if iter.Error != nil {
		return gorollup.Stats{}, malformed(entity, iter.Error)
	}
	required := []struct {
		field string
		value *uint64
	}{
		{FieldPagesProcessed, pages},
		{FieldDocumentsProcessed, docs},
		{FieldRollupsIndexed, rollups},
		{FieldIndexTimeInMillis, indexTime},
		{FieldSearchTimeInMillis, searchTime},
	}
	for _, r := range required {
		if r.value == nil {
			return gorollup.Stats{}, gorollup.NewMissingFieldError(entity, r.field)
		}
	}
	return gorollup.Stats{
		PagesProcessed:     *pages,
		DocumentsProcessed: *docs,
		RollupsIndexed:     *rollups,
		IndexTimeMillis:    *indexTime,
		SearchTimeMillis:   *searchTime,
	}, nil
}

// timeSlot collects the two encodings of one timestamp; the human-readable one wins when both are present
type timeSlot struct {
	human  *time.Time
	millis *int64
}

func (s *timeSlot) set() bool {
	return s.human != nil || s.millis != nil
}

func (s *timeSlot) value() time.Time {
	if s.human != nil {
		return *s.human
	}
	return time.UnixMilli(*s.millis).UTC()
}

func (s *timeSlot) readTime(it *jsoniter.Iterator, entity, field string) error {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		s.human = nil
		return nil
	case jsoniter.NumberValue:
		// epoch millis written without the human-readable form
		return s.readMillis(it, entity, field)
	case jsoniter.StringValue:
		raw := it.ReadString()
		t, err := time.Parse(TimeLayout, raw)
		if err != nil {
			return gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "%s.%s is not a timestamp:%q", entity, field, raw, err)
		}
		t = t.UTC()
		s.human = &t
		return nil
	default:
		return wrongType(it, entity, field, "a timestamp")
	}
}

func (s *timeSlot) readMillis(it *jsoniter.Iterator, entity, field string) error {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return nil
	case jsoniter.NumberValue:
		v := it.ReadInt64()
		if it.Error != nil {
			return malformed(entity+"."+field, it.Error)
		}
		s.millis = &v
		return nil
	default:
		return wrongType(it, entity, field, "epoch millis")
	}
}

func readOptionalString(it *jsoniter.Iterator, entity, field string) (*string, error) {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return nil, nil
	case jsoniter.StringValue:
		v := it.ReadString()
		return &v, nil
	default:
		return nil, wrongType(it, entity, field, "a string")
	}
}

func readOptionalUint64(it *jsoniter.Iterator, entity, field string) (*uint64, error) {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return nil, nil
	case jsoniter.NumberValue:
		v := it.ReadUint64()
		if it.Error != nil {
			return nil, malformed(entity+"."+field, it.Error)
		}
		return &v, nil
	default:
		return nil, wrongType(it, entity, field, "a counter")
	}
}

func readAfterKey(it *jsoniter.Iterator) (gorollup.AfterKey, error) {
	const entity, field = gorollup.MetadataEntity, FieldAfterKey
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return nil, nil
	case jsoniter.ObjectValue:
	default:
		return nil, wrongType(it, entity, field, "an object")
	}
	ak := gorollup.AfterKey{}
	var perr error
	it.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		if _, dup := ak.Get(key); dup {
			it.Skip()
			perr = gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "%s.%s has duplicate key:%q", entity, field, key)
			return false
		}
		var v interface{}
		switch it.WhatIsNext() {
		case jsoniter.NilValue:
			it.ReadNil()
		case jsoniter.StringValue:
			v = it.ReadString()
		case jsoniter.BoolValue:
			v = it.ReadBool()
		case jsoniter.NumberValue:
			v, perr = parseNumber(string(it.ReadNumber()))
		default:
			perr = wrongType(it, entity, field+"."+key, "a scalar")
		}
		if perr == nil {
			ak = append(ak, gorollup.AfterKeyEntry{Key: key, Value: v})
		}
		return perr == nil && it.Error == nil
	})
	if perr != nil {
		return nil, perr
	}
	if it.Error != nil {
		return nil, malformed(entity+"."+field, it.Error)
	}
	return ak, nil
}

// parseNumber keeps integers as int64 and anything with a fraction or exponent as float64
func parseNumber(raw string) (interface{}, error) {
	if !strings.ContainsAny(raw, ".eE") {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v, nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "after key value:%q is not a number", raw, err)
	}
	return v, nil
}

func expectObject(iter *jsoniter.Iterator, entity string) error {
	next := iter.WhatIsNext()
	if iter.Error != nil {
		return malformed(entity, iter.Error)
	}
	if next != jsoniter.ObjectValue {
		return gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "expected start of %s object", entity)
	}
	return nil
}

// expectEnd fails when anything but whitespace follows the parsed value
func expectEnd(iter *jsoniter.Iterator) error {
	if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error != io.EOF {
		return gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "unexpected data after %s document", gorollup.MetadataEntity)
	}
	iter.Error = nil
	return nil
}

func wrongType(it *jsoniter.Iterator, entity, field, expected string) error {
	it.Skip()
	return gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "%s.%s must be %s", entity, field, expected)
}

func malformed(entity string, err error) error {
	return gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "parse %s failed", entity, err)
}
