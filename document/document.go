// Package document implements the field-tagged JSON encoding of rollup metadata used for indexed storage.
//
// Encoding writes through a jsoniter Stream, parsing reads a jsoniter Iterator token by token. Unknown
// fields are skipped on parse, so documents written by a newer schema that only adds fields stay readable.
// Required fields that are absent or null fail the parse with a *gorollup.MissingFieldError.
package document

import (
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/chararch/gorollup"
)

// field names of the rollup metadata document
const (
	FieldRollupID            = "rollup_id"
	FieldAfterKey            = "after_key"
	FieldLastUpdatedTime     = "last_updated_time"
	FieldContinuous          = "continuous"
	FieldStatus              = "status"
	FieldFailureReason       = "failure_reason"
	FieldStats               = "stats"
	FieldNextWindowStartTime = "next_window_start_time"
	FieldNextWindowEndTime   = "next_window_end_time"
	FieldPagesProcessed      = "pages_processed"
	FieldDocumentsProcessed  = "documents_processed"
	FieldRollupsIndexed      = "rollups_indexed"
	FieldIndexTimeInMillis   = "index_time_in_millis"
	FieldSearchTimeInMillis  = "search_time_in_millis"

	// WrapperField is the key a wrapped metadata document is nested under
	WrapperField = gorollup.MetadataEntity

	millisSuffix = "_in_millis"
)

// TimeLayout is the layout of the human-readable timestamp fields
const TimeLayout = time.RFC3339Nano

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes m as a document, nested under WrapperField when wrapped is set
func Marshal(m gorollup.Metadata, wrapped bool) ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)
	EncodeMetadata(stream, m, wrapped)
	if stream.Error != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeGeneral, "encode %s document failed", gorollup.MetadataEntity, stream.Error)
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// Unmarshal parses a document written by Marshal. Identity fields are not part of the document and are
// left unassigned; use ParseMetadata to supply them.
func Unmarshal(data []byte, wrapped bool) (gorollup.Metadata, error) {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)
	var m gorollup.Metadata
	var err error
	if wrapped {
		m, err = ParseWrappedMetadata(iter, gorollup.NoID, gorollup.UnassignedSeqNo, gorollup.UnassignedPrimaryTerm)
	} else {
		m, err = ParseMetadata(iter, gorollup.NoID, gorollup.UnassignedSeqNo, gorollup.UnassignedPrimaryTerm)
	}
	if err != nil {
		return gorollup.Metadata{}, err
	}
	if err = expectEnd(iter); err != nil {
		return gorollup.Metadata{}, err
	}
	return m, nil
}

// EncodeMetadata writes m to stream. Errors are reported through stream.Error.
func EncodeMetadata(stream *jsoniter.Stream, m gorollup.Metadata, wrapped bool) {
	if wrapped {
		stream.WriteObjectStart()
		stream.WriteObjectField(WrapperField)
	}
	stream.WriteObjectStart()
	stream.WriteObjectField(FieldRollupID)
	stream.WriteString(m.JobID)
	if m.AfterKey != nil {
		stream.WriteMore()
		stream.WriteObjectField(FieldAfterKey)
		writeAfterKey(stream, m.AfterKey)
	}
	stream.WriteMore()
	writeTime(stream, FieldLastUpdatedTime, m.LastUpdatedTime)
	if m.Continuous != nil {
		stream.WriteMore()
		stream.WriteObjectField(FieldContinuous)
		EncodeContinuous(stream, *m.Continuous)
	}
	stream.WriteMore()
	stream.WriteObjectField(FieldStatus)
	stream.WriteString(m.Status.String())
	stream.WriteMore()
	stream.WriteObjectField(FieldFailureReason)
	if m.FailureReason != nil {
		stream.WriteString(*m.FailureReason)
	} else {
		stream.WriteNil()
	}
	stream.WriteMore()
	stream.WriteObjectField(FieldStats)
	EncodeStats(stream, m.Stats)
	stream.WriteObjectEnd()
	if wrapped {
		stream.WriteObjectEnd()
	}
}

// EncodeContinuous writes w to stream
func EncodeContinuous(stream *jsoniter.Stream, w gorollup.ContinuousWindow) {
	stream.WriteObjectStart()
	writeTime(stream, FieldNextWindowStartTime, w.WindowStart)
	stream.WriteMore()
	writeTime(stream, FieldNextWindowEndTime, w.WindowEnd)
	stream.WriteObjectEnd()
}

// EncodeStats writes s to stream
func EncodeStats(stream *jsoniter.Stream, s gorollup.Stats) {
	stream.WriteObjectStart()
	stream.WriteObjectField(FieldPagesProcessed)
	stream.WriteUint64(s.PagesProcessed)
	stream.WriteMore()
	stream.WriteObjectField(FieldDocumentsProcessed)
	stream.WriteUint64(s.DocumentsProcessed)
	stream.WriteMore()
	stream.WriteObjectField(FieldRollupsIndexed)
	stream.WriteUint64(s.RollupsIndexed)
	stream.WriteMore()
	stream.WriteObjectField(FieldIndexTimeInMillis)
	stream.WriteUint64(s.IndexTimeMillis)
	stream.WriteMore()
	stream.WriteObjectField(FieldSearchTimeInMillis)
	stream.WriteUint64(s.SearchTimeMillis)
	stream.WriteObjectEnd()
}

// writeTime writes the human-readable field and its epoch millis companion.
// Years outside 0000-9999 have no RFC 3339 form and are written as millis only.
func writeTime(stream *jsoniter.Stream, field string, t time.Time) {
	t = t.UTC()
	if y := t.Year(); y >= 0 && y <= 9999 {
		stream.WriteObjectField(field)
		stream.WriteString(t.Format(TimeLayout))
		stream.WriteMore()
	}
	stream.WriteObjectField(field + millisSuffix)
	stream.WriteInt64(t.UnixMilli())
}

func writeAfterKey(stream *jsoniter.Stream, ak gorollup.AfterKey) {
	stream.WriteObjectStart()
	for i, e := range ak {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(e.Key)
		writeAfterKeyValue(stream, e.Value)
	}
	stream.WriteObjectEnd()
}

func writeAfterKeyValue(stream *jsoniter.Stream, v interface{}) {
	v, err := gorollup.NormalizeAfterKeyValue(v)
	if err != nil {
		stream.Error = err
		return
	}
	switch val := v.(type) {
	case nil:
		stream.WriteNil()
	case string:
		stream.WriteString(val)
	case int64:
		stream.WriteInt64(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			stream.Error = gorollup.NewRollupError(gorollup.ErrCodeGeneral, "after key value:%v is not a finite number", val)
			return
		}
		// keep a decimal point so the value reads back as a float
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		stream.WriteRaw(s)
	case bool:
		stream.WriteBool(val)
	}
}
