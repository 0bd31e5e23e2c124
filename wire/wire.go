// Package wire implements the positional binary encoding of rollup metadata.
//
// Fields are written in declaration order with msgpack primitives: strings are length prefixed,
// integers fixed width, every nullable field is preceded by a presence flag and statuses are written
// as ordinals. The format has no field names and no tolerance for schema changes: both ends must run
// the same version. Snapshots stored at rest use EncodeVersioned, which prefixes a format version byte.
package wire

import (
	"bytes"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chararch/gorollup"
)

// FormatV1 is the only format version understood by DecodeVersioned
const FormatV1 = uint8(1)

// upper bound on the after key capacity reserved before its entries are read
const maxAfterKeyPrealloc = 64

// after key value tags
const (
	tagNil uint8 = iota
	tagString
	tagInt64
	tagFloat64
	tagBool
)

// Encoder writes entities to an underlying writer
type Encoder struct {
	enc *msgpack.Encoder
}

// NewEncoder create an Encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: msgpack.NewEncoder(w)}
}

// Decoder reads entities written by an Encoder. A Decoder may buffer input, so successive entities of
// one stream must be read through the same Decoder.
type Decoder struct {
	dec *msgpack.Decoder
}

// NewDecoder create a Decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(r)}
}

// Marshal encodes m into a new byte slice
func Marshal(m gorollup.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeMetadata(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a Metadata written by Marshal
func Unmarshal(data []byte) (gorollup.Metadata, error) {
	return NewDecoder(bytes.NewReader(data)).DecodeMetadata()
}

// EncodeVersioned writes the format version byte followed by m
func EncodeVersioned(w io.Writer, m gorollup.Metadata) error {
	e := NewEncoder(w)
	if err := e.enc.EncodeUint8(FormatV1); err != nil {
		return writeError(gorollup.MetadataEntity, "format_version", err)
	}
	return e.EncodeMetadata(m)
}

// DecodeVersioned reads a Metadata written by EncodeVersioned
func DecodeVersioned(r io.Reader) (gorollup.Metadata, error) {
	d := NewDecoder(r)
	version, err := d.dec.DecodeUint8()
	if err != nil {
		return gorollup.Metadata{}, readError(gorollup.MetadataEntity, "format_version", err)
	}
	if version != FormatV1 {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeMalformedStream, "unsupported snapshot format version:%d", version)
	}
	return d.DecodeMetadata()
}

// EncodeMetadata writes m
func (e *Encoder) EncodeMetadata(m gorollup.Metadata) error {
	const entity = gorollup.MetadataEntity
	if err := e.enc.EncodeString(m.ID); err != nil {
		return writeError(entity, "id", err)
	}
	if err := e.enc.EncodeInt64(m.SeqNo); err != nil {
		return writeError(entity, "seq_no", err)
	}
	if err := e.enc.EncodeInt64(m.PrimaryTerm); err != nil {
		return writeError(entity, "primary_term", err)
	}
	if err := e.enc.EncodeString(m.JobID); err != nil {
		return writeError(entity, "rollup_id", err)
	}
	if err := e.encodeAfterKey(m.AfterKey); err != nil {
		return err
	}
	if err := e.encodeTime(entity, "last_updated_time", m.LastUpdatedTime); err != nil {
		return err
	}
	if err := e.enc.EncodeBool(m.Continuous != nil); err != nil {
		return writeError(entity, "continuous", err)
	}
	if m.Continuous != nil {
		if err := e.EncodeContinuous(*m.Continuous); err != nil {
			return err
		}
	}
	if err := e.EncodeStatus(m.Status); err != nil {
		return err
	}
	if err := e.enc.EncodeBool(m.FailureReason != nil); err != nil {
		return writeError(entity, "failure_reason", err)
	}
	if m.FailureReason != nil {
		if err := e.enc.EncodeString(*m.FailureReason); err != nil {
			return writeError(entity, "failure_reason", err)
		}
	}
	return e.EncodeStats(m.Stats)
}

// EncodeContinuous writes w
func (e *Encoder) EncodeContinuous(w gorollup.ContinuousWindow) error {
	if err := e.encodeTime(gorollup.ContinuousEntity, "next_window_start_time", w.WindowStart); err != nil {
		return err
	}
	return e.encodeTime(gorollup.ContinuousEntity, "next_window_end_time", w.WindowEnd)
}

// EncodeStatus writes the ordinal of s
func (e *Encoder) EncodeStatus(s gorollup.Status) error {
	if _, err := gorollup.StatusFromOrdinal(s.Ordinal()); err != nil {
		return err
	}
	if err := e.enc.EncodeUint8(uint8(s.Ordinal())); err != nil {
		return writeError(gorollup.MetadataEntity, "status", err)
	}
	return nil
}

// EncodeStats writes s
func (e *Encoder) EncodeStats(s gorollup.Stats) error {
	counters := []struct {
		name  string
		value uint64
	}{
		{"pages_processed", s.PagesProcessed},
		{"documents_processed", s.DocumentsProcessed},
		{"rollups_indexed", s.RollupsIndexed},
		{"index_time_in_millis", s.IndexTimeMillis},
		{"search_time_in_millis", s.SearchTimeMillis},
	}
	for _, c := range counters {
		if err := e.enc.EncodeUint64(c.value); err != nil {
			return writeError(gorollup.StatsEntity, c.name, err)
		}
	}
	return nil
}

func (e *Encoder) encodeTime(entity, field string, t time.Time) error {
	if err := e.enc.EncodeInt64(t.Unix()); err != nil {
		return writeError(entity, field, err)
	}
	if err := e.enc.EncodeInt32(int32(t.Nanosecond())); err != nil {
		return writeError(entity, field, err)
	}
	return nil
}

func (e *Encoder) encodeAfterKey(ak gorollup.AfterKey) error {
	const entity, field = gorollup.MetadataEntity, "after_key"
	if err := e.enc.EncodeBool(ak != nil); err != nil {
		return writeError(entity, field, err)
	}
	if ak == nil {
		return nil
	}
	if err := e.enc.EncodeMapLen(ak.Len()); err != nil {
		return writeError(entity, field, err)
	}
	for _, entry := range ak {
		if err := e.enc.EncodeString(entry.Key); err != nil {
			return writeError(entity, field, err)
		}
		if err := e.encodeAfterKeyValue(entry.Value); err != nil {
			return writeError(entity, field, err)
		}
	}
	return nil
}

func (e *Encoder) encodeAfterKeyValue(v interface{}) error {
	v, err := gorollup.NormalizeAfterKeyValue(v)
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		return e.enc.EncodeUint8(tagNil)
	case string:
		if err := e.enc.EncodeUint8(tagString); err != nil {
			return err
		}
		return e.enc.EncodeString(val)
	case int64:
		if err := e.enc.EncodeUint8(tagInt64); err != nil {
			return err
		}
		return e.enc.EncodeInt64(val)
	case float64:
		if err := e.enc.EncodeUint8(tagFloat64); err != nil {
			return err
		}
		return e.enc.EncodeFloat64(val)
	default:
		if err := e.enc.EncodeUint8(tagBool); err != nil {
			return err
		}
		return e.enc.EncodeBool(val.(bool))
	}
}

// DecodeMetadata reads a Metadata
func (d *Decoder) DecodeMetadata() (gorollup.Metadata, error) {
	const entity = gorollup.MetadataEntity
	var m gorollup.Metadata
	var err error
	if m.ID, err = d.dec.DecodeString(); err != nil {
		return gorollup.Metadata{}, readError(entity, "id", err)
	}
	if m.SeqNo, err = d.dec.DecodeInt64(); err != nil {
		return gorollup.Metadata{}, readError(entity, "seq_no", err)
	}
	if m.PrimaryTerm, err = d.dec.DecodeInt64(); err != nil {
		return gorollup.Metadata{}, readError(entity, "primary_term", err)
	}
	if m.JobID, err = d.dec.DecodeString(); err != nil {
		return gorollup.Metadata{}, readError(entity, "rollup_id", err)
	}
	if m.AfterKey, err = d.decodeAfterKey(); err != nil {
		return gorollup.Metadata{}, err
	}
	if m.LastUpdatedTime, err = d.decodeTime(entity, "last_updated_time"); err != nil {
		return gorollup.Metadata{}, err
	}
	present, err := d.dec.DecodeBool()
	if err != nil {
		return gorollup.Metadata{}, readError(entity, "continuous", err)
	}
	if present {
		w, err := d.DecodeContinuous()
		if err != nil {
			return gorollup.Metadata{}, err
		}
		m.Continuous = &w
	}
	if m.Status, err = d.DecodeStatus(); err != nil {
		return gorollup.Metadata{}, err
	}
	if present, err = d.dec.DecodeBool(); err != nil {
		return gorollup.Metadata{}, readError(entity, "failure_reason", err)
	}
	if present {
		reason, err := d.dec.DecodeString()
		if err != nil {
			return gorollup.Metadata{}, readError(entity, "failure_reason", err)
		}
		m.FailureReason = &reason
	}
	if m.Stats, err = d.DecodeStats(); err != nil {
		return gorollup.Metadata{}, err
	}
	return m, nil
}

// DecodeContinuous reads a ContinuousWindow. The window order is not checked.
func (d *Decoder) DecodeContinuous() (gorollup.ContinuousWindow, error) {
	start, err := d.decodeTime(gorollup.ContinuousEntity, "next_window_start_time")
	if err != nil {
		return gorollup.ContinuousWindow{}, err
	}
	end, err := d.decodeTime(gorollup.ContinuousEntity, "next_window_end_time")
	if err != nil {
		return gorollup.ContinuousWindow{}, err
	}
	return gorollup.ContinuousWindow{WindowStart: start, WindowEnd: end}, nil
}

// DecodeStatus reads a status ordinal
func (d *Decoder) DecodeStatus() (gorollup.Status, error) {
	ordinal, err := d.dec.DecodeUint8()
	if err != nil {
		return gorollup.Init, readError(gorollup.MetadataEntity, "status", err)
	}
	return gorollup.StatusFromOrdinal(int(ordinal))
}

// DecodeStats reads a Stats
func (d *Decoder) DecodeStats() (gorollup.Stats, error) {
	var s gorollup.Stats
	fields := []struct {
		name string
		dst  *uint64
	}{
		{"pages_processed", &s.PagesProcessed},
		{"documents_processed", &s.DocumentsProcessed},
		{"rollups_indexed", &s.RollupsIndexed},
		{"index_time_in_millis", &s.IndexTimeMillis},
		{"search_time_in_millis", &s.SearchTimeMillis},
	}
	for _, f := range fields {
		v, err := d.dec.DecodeUint64()
		if err != nil {
			return gorollup.Stats{}, readError(gorollup.StatsEntity, f.name, err)
		}
		*f.dst = v
	}
	return s, nil
}

func (d *Decoder) decodeTime(entity, field string) (time.Time, error) {
	sec, err := d.dec.DecodeInt64()
	if err != nil {
		return time.Time{}, readError(entity, field, err)
	}
	nsec, err := d.dec.DecodeInt32()
	if err != nil {
		return time.Time{}, readError(entity, field, err)
	}
	return time.Unix(sec, int64(nsec)).UTC(), nil
}

func (d *Decoder) decodeAfterKey() (gorollup.AfterKey, error) {
	const entity, field = gorollup.MetadataEntity, "after_key"
	present, err := d.dec.DecodeBool()
	if err != nil {
		return nil, readError(entity, field, err)
	}
	if !present {
		return nil, nil
	}
	n, err := d.dec.DecodeMapLen()
	if err != nil {
		return nil, readError(entity, field, err)
	}
	if n < 0 {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeMalformedStream, "negative after key length:%d", n)
	}
	// n comes from the stream; a corrupt header must fail on a short read, not on allocation
	ak := make(gorollup.AfterKey, 0, min(n, maxAfterKeyPrealloc))
	for i := 0; i < n; i++ {
		key, err := d.dec.DecodeString()
		if err != nil {
			return nil, readError(entity, field, err)
		}
		value, err := d.decodeAfterKeyValue()
		if err != nil {
			return nil, readError(entity, field, err)
		}
		ak = append(ak, gorollup.AfterKeyEntry{Key: key, Value: value})
	}
	return ak, nil
}

func (d *Decoder) decodeAfterKeyValue() (interface{}, error) {
	tag, err := d.dec.DecodeUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagString:
		return d.dec.DecodeString()
	case tagInt64:
		return d.dec.DecodeInt64()
	case tagFloat64:
		return d.dec.DecodeFloat64()
	case tagBool:
		return d.dec.DecodeBool()
	default:
		return nil, gorollup.NewRollupError(gorollup.ErrCodeMalformedStream, "unknown after key value tag:%d", tag)
	}
}

func writeError(entity, field string, err error) error {
	return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "write %s.%s failed", entity, field, err)
}

func readError(entity, field string, err error) error {
	return gorollup.NewRollupError(gorollup.ErrCodeMalformedStream, "read %s.%s failed", entity, field, err)
}
