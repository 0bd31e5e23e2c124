package wire

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/bmizerany/assert"

	"github.com/chararch/gorollup"
)

var testNow = time.Date(2024, 3, 1, 10, 30, 15, 123456789, time.UTC)

func fullMetadata(t *testing.T) gorollup.Metadata {
	ak, err := gorollup.AfterKeyFromPairs("host", "web-1", "ts", int64(math.MinInt64), "ratio", math.MaxFloat64, "whole", float64(2), "missing", nil, "ok", false)
	assert.Equal(t, nil, err)
	window, err := gorollup.NewContinuousWindow(testNow, time.Hour)
	assert.Equal(t, nil, err)
	return gorollup.NewMetadataBuilder("job-1").
		ID("meta-1").
		Version(5, 2).
		AfterKey(ak).
		LastUpdated(testNow).
		Continuous(&window).
		Status(gorollup.Failed).
		FailureReason("index missing").
		Stats(gorollup.Stats{PagesProcessed: math.MaxUint64, DocumentsProcessed: 17, RollupsIndexed: 4, IndexTimeMillis: 9, SearchTimeMillis: 57}).
		Build()
}

func TestRoundTrip(t *testing.T) {
	cases := []gorollup.Metadata{
		fullMetadata(t),
		gorollup.NewMetadata("job-2", testNow, nil),
		gorollup.NewMetadata("", time.Unix(0, 0), nil).WithAfterKey(gorollup.AfterKey{}),
		fullMetadata(t).WithoutFailure().WithContinuous(nil).WithStatus(gorollup.Retry),
	}
	for _, m := range cases {
		data, err := Marshal(m)
		assert.Equal(t, nil, err)
		decoded, err := Unmarshal(data)
		assert.Equal(t, nil, err)
		assert.T(t, decoded.Equal(m), m, decoded)
	}
}

func TestNilAndEmptyAfterKeyStayDistinct(t *testing.T) {
	m := gorollup.NewMetadata("job-1", testNow, nil)

	data, err := Marshal(m)
	assert.Equal(t, nil, err)
	decoded, err := Unmarshal(data)
	assert.Equal(t, nil, err)
	assert.T(t, decoded.AfterKey == nil)

	data, err = Marshal(m.WithAfterKey(gorollup.AfterKey{}))
	assert.Equal(t, nil, err)
	decoded, err = Unmarshal(data)
	assert.Equal(t, nil, err)
	assert.T(t, decoded.AfterKey != nil)
	assert.Equal(t, 0, decoded.AfterKey.Len())
}

func TestAfterKeyValueKinds(t *testing.T) {
	m := fullMetadata(t)
	data, _ := Marshal(m)
	decoded, err := Unmarshal(data)
	assert.Equal(t, nil, err)

	v, _ := decoded.AfterKey.Get("whole")
	assert.Equal(t, float64(2), v)
	v, _ = decoded.AfterKey.Get("ts")
	assert.Equal(t, int64(math.MinInt64), v)
	v, _ = decoded.AfterKey.Get("ok")
	assert.Equal(t, false, v)
	assert.Equal(t, m.AfterKey.Keys(), decoded.AfterKey.Keys())
}

func TestEntityStreamsConcatenate(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	stats := gorollup.Stats{PagesProcessed: 1, DocumentsProcessed: 2, RollupsIndexed: 3, IndexTimeMillis: 4, SearchTimeMillis: 5}
	window, _ := gorollup.NewContinuousWindow(testNow, time.Minute)
	assert.Equal(t, nil, enc.EncodeStats(stats))
	assert.Equal(t, nil, enc.EncodeContinuous(window))
	assert.Equal(t, nil, enc.EncodeStatus(gorollup.Stopped))
	assert.Equal(t, nil, enc.EncodeMetadata(fullMetadata(t)))

	dec := NewDecoder(&buf)
	gotStats, err := dec.DecodeStats()
	assert.Equal(t, nil, err)
	assert.Equal(t, stats, gotStats)
	gotWindow, err := dec.DecodeContinuous()
	assert.Equal(t, nil, err)
	assert.T(t, gotWindow.WindowStart.Equal(window.WindowStart))
	assert.T(t, gotWindow.WindowEnd.Equal(window.WindowEnd))
	gotStatus, err := dec.DecodeStatus()
	assert.Equal(t, nil, err)
	assert.Equal(t, gorollup.Stopped, gotStatus)
	gotMeta, err := dec.DecodeMetadata()
	assert.Equal(t, nil, err)
	assert.T(t, gotMeta.Equal(fullMetadata(t)))
}

func TestTruncatedStream(t *testing.T) {
	data, err := Marshal(fullMetadata(t))
	assert.Equal(t, nil, err)
	for _, n := range []int{0, 1, len(data) / 2, len(data) - 1} {
		_, err := Unmarshal(data[:n])
		assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedStream), n, err)
	}
}

// corrupt headers of length prefixed fields and tags after a valid prefix
func TestCorruptStream(t *testing.T) {
	hugeMap := []byte{0xdf, 0xff, 0xff, 0xff, 0xff}
	hugeStr := []byte{0xdb, 0xff, 0xff, 0xff, 0xff}
	prefix := func(e *Encoder) {
		assert.Equal(t, nil, e.enc.EncodeString("meta-1"))
		assert.Equal(t, nil, e.enc.EncodeInt64(5))
		assert.Equal(t, nil, e.enc.EncodeInt64(2))
		assert.Equal(t, nil, e.enc.EncodeString("job-1"))
	}
	cases := []struct {
		name  string
		write func(e *Encoder, buf *bytes.Buffer)
	}{
		{"id length", func(e *Encoder, buf *bytes.Buffer) {
			buf.Write(hugeStr)
		}},
		{"rollup id length", func(e *Encoder, buf *bytes.Buffer) {
			assert.Equal(t, nil, e.enc.EncodeString("meta-1"))
			assert.Equal(t, nil, e.enc.EncodeInt64(5))
			assert.Equal(t, nil, e.enc.EncodeInt64(2))
			buf.Write(hugeStr)
		}},
		{"after key map length", func(e *Encoder, buf *bytes.Buffer) {
			prefix(e)
			assert.Equal(t, nil, e.enc.EncodeBool(true))
			buf.Write(hugeMap)
		}},
		{"after key key length", func(e *Encoder, buf *bytes.Buffer) {
			prefix(e)
			assert.Equal(t, nil, e.enc.EncodeBool(true))
			assert.Equal(t, nil, e.enc.EncodeMapLen(1))
			buf.Write(hugeStr)
		}},
		{"after key value tag", func(e *Encoder, buf *bytes.Buffer) {
			prefix(e)
			assert.Equal(t, nil, e.enc.EncodeBool(true))
			assert.Equal(t, nil, e.enc.EncodeMapLen(1))
			assert.Equal(t, nil, e.enc.EncodeString("host"))
			assert.Equal(t, nil, e.enc.EncodeUint8(99))
		}},
		{"after key string value length", func(e *Encoder, buf *bytes.Buffer) {
			prefix(e)
			assert.Equal(t, nil, e.enc.EncodeBool(true))
			assert.Equal(t, nil, e.enc.EncodeMapLen(1))
			assert.Equal(t, nil, e.enc.EncodeString("host"))
			assert.Equal(t, nil, e.enc.EncodeUint8(tagString))
			buf.Write(hugeStr)
		}},
		{"failure reason length", func(e *Encoder, buf *bytes.Buffer) {
			prefix(e)
			assert.Equal(t, nil, e.encodeAfterKey(nil))
			assert.Equal(t, nil, e.encodeTime(gorollup.MetadataEntity, "last_updated_time", testNow))
			assert.Equal(t, nil, e.enc.EncodeBool(false))
			assert.Equal(t, nil, e.EncodeStatus(gorollup.Failed))
			assert.Equal(t, nil, e.enc.EncodeBool(true))
			buf.Write(hugeStr)
		}},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		c.write(NewEncoder(&buf), &buf)
		_, err := Unmarshal(buf.Bytes())
		assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedStream), c.name, err)
	}
}

func TestUnknownStatusOrdinal(t *testing.T) {
	err := NewEncoder(&bytes.Buffer{}).EncodeStatus(gorollup.Status(17))
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeUnknownStatus), err)

	var buf bytes.Buffer
	assert.Equal(t, nil, NewEncoder(&buf).enc.EncodeUint8(42))
	_, err = NewDecoder(&buf).DecodeStatus()
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeUnknownStatus), err)
}

func TestVersioned(t *testing.T) {
	m := fullMetadata(t)
	var buf bytes.Buffer
	assert.Equal(t, nil, EncodeVersioned(&buf, m))

	version, err := NewDecoder(bytes.NewReader(buf.Bytes())).dec.DecodeUint8()
	assert.Equal(t, nil, err)
	assert.Equal(t, FormatV1, version)

	decoded, err := DecodeVersioned(bytes.NewReader(buf.Bytes()))
	assert.Equal(t, nil, err)
	assert.T(t, decoded.Equal(m))

	var future bytes.Buffer
	enc := NewEncoder(&future)
	assert.Equal(t, nil, enc.enc.EncodeUint8(FormatV1+1))
	assert.Equal(t, nil, enc.EncodeMetadata(m))
	_, err = DecodeVersioned(&future)
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedStream), err)

	_, err = Unmarshal(buf.Bytes())
	assert.NotEqual(t, nil, err)
}
