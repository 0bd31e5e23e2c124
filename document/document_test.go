package document

import (
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	jsoniter "github.com/json-iterator/go"

	"github.com/chararch/gorollup"
)

var testNow = time.Date(2024, 3, 1, 10, 30, 15, 123456789, time.UTC)

const minimalDoc = `{"rollup_id":"job-1","last_updated_time":"2024-03-01T10:30:15.123456789Z",` +
	`"last_updated_time_in_millis":1709289015123,"status":"init","failure_reason":null,` +
	`"stats":{"pages_processed":0,"documents_processed":0,"rollups_indexed":0,"index_time_in_millis":0,"search_time_in_millis":0}}`

func fullMetadata(t *testing.T) gorollup.Metadata {
	ak, err := gorollup.AfterKeyFromPairs("host", "web-1", "ts", int64(1709288400000), "ratio", 0.5, "whole", float64(2), "missing", nil, "ok", true)
	assert.Equal(t, nil, err)
	window, err := gorollup.NewContinuousWindow(testNow, time.Hour)
	assert.Equal(t, nil, err)
	return gorollup.NewMetadataBuilder("job-1").
		ID("meta-1").
		Version(5, 2).
		AfterKey(ak).
		LastUpdated(testNow).
		Continuous(&window).
		Status(gorollup.Retry).
		FailureReason("search timeout").
		Stats(gorollup.Stats{PagesProcessed: 3, DocumentsProcessed: 17, RollupsIndexed: 4, IndexTimeMillis: 9, SearchTimeMillis: 57}).
		Build()
}

func parse(t *testing.T, doc string, wrapped bool) (gorollup.Metadata, error) {
	iter := json.BorrowIterator([]byte(doc))
	defer json.ReturnIterator(iter)
	if wrapped {
		return ParseWrappedMetadata(iter, "meta-1", 5, 2)
	}
	return ParseMetadata(iter, "meta-1", 5, 2)
}

func TestMarshalMinimal(t *testing.T) {
	m := gorollup.NewMetadata("job-1", testNow, nil)
	data, err := Marshal(m, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, minimalDoc, string(data))
}

func TestRoundTrip(t *testing.T) {
	m := fullMetadata(t)
	for _, wrapped := range []bool{false, true} {
		data, err := Marshal(m, wrapped)
		assert.Equal(t, nil, err)
		parsed, err := parse(t, string(data), wrapped)
		assert.Equal(t, nil, err, string(data))
		assert.T(t, parsed.Equal(m), string(data))
	}
}

func TestRoundTripYearBeyondRFC3339(t *testing.T) {
	far := time.Date(10000, 1, 2, 3, 4, 5, 6000000, time.UTC)
	m := fullMetadata(t).WithLastUpdated(far)
	data, err := Marshal(m, false)
	assert.Equal(t, nil, err)
	assert.T(t, !strings.Contains(string(data), `"last_updated_time":`), string(data))
	assert.T(t, strings.Contains(string(data), `"last_updated_time_in_millis":`), string(data))

	parsed, err := parse(t, string(data), false)
	assert.Equal(t, nil, err, string(data))
	assert.T(t, parsed.LastUpdatedTime.Equal(far), parsed.LastUpdatedTime)
	assert.T(t, parsed.Equal(m), string(data))
}

func TestParseDuplicateAfterKey(t *testing.T) {
	_, err := parse(t, `{"rollup_id":"job-1","after_key":{"a":1,"a":2}}`, false)
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedDoc), err)
}

func TestUnmarshalTrailingData(t *testing.T) {
	m, err := Unmarshal([]byte(minimalDoc+" \n"), false)
	assert.Equal(t, nil, err)
	assert.Equal(t, "job-1", m.JobID)

	for _, doc := range []string{minimalDoc + " garbage", minimalDoc + "{}", minimalDoc + ",1"} {
		_, err := Unmarshal([]byte(doc), false)
		assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedDoc), doc, err)
	}
	wrapped := `{"rollup_metadata":` + minimalDoc + `}`
	_, err = Unmarshal([]byte(wrapped+"]"), true)
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedDoc), err)
}

func TestRoundTripKeepsNumberKinds(t *testing.T) {
	data, err := Marshal(fullMetadata(t), false)
	assert.Equal(t, nil, err)
	assert.T(t, strings.Contains(string(data), `"whole":2.0`), string(data))
	assert.T(t, strings.Contains(string(data), `"ts":1709288400000`), string(data))

	parsed, err := parse(t, string(data), false)
	assert.Equal(t, nil, err)
	v, _ := parsed.AfterKey.Get("whole")
	assert.Equal(t, float64(2), v)
	v, _ = parsed.AfterKey.Get("ts")
	assert.Equal(t, int64(1709288400000), v)
	assert.Equal(t, []string{"host", "ts", "ratio", "whole", "missing", "ok"}, parsed.AfterKey.Keys())
}

func TestWrappedIsNestedUnwrapped(t *testing.T) {
	m := fullMetadata(t)
	plain, err := Marshal(m, false)
	assert.Equal(t, nil, err)
	wrapped, err := Marshal(m, true)
	assert.Equal(t, nil, err)
	assert.Equal(t, `{"rollup_metadata":`+string(plain)+`}`, string(wrapped))
}

func TestMillisCompanionFields(t *testing.T) {
	m := fullMetadata(t)
	data, err := Marshal(m, false)
	assert.Equal(t, nil, err)

	var doc map[string]interface{}
	assert.Equal(t, nil, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &doc))
	assert.Equal(t, float64(m.LastUpdatedTime.UnixMilli()), doc["last_updated_time_in_millis"])
	continuous := doc["continuous"].(map[string]interface{})
	assert.Equal(t, float64(m.Continuous.WindowStart.UnixMilli()), continuous["next_window_start_time_in_millis"])
	assert.Equal(t, float64(m.Continuous.WindowEnd.UnixMilli()), continuous["next_window_end_time_in_millis"])
}

func TestNilAndEmptyAfterKey(t *testing.T) {
	m := gorollup.NewMetadata("job-1", testNow, nil)
	data, _ := Marshal(m, false)
	assert.T(t, !strings.Contains(string(data), FieldAfterKey))
	parsed, err := parse(t, string(data), false)
	assert.Equal(t, nil, err)
	assert.T(t, parsed.AfterKey == nil)

	data, _ = Marshal(m.WithAfterKey(gorollup.AfterKey{}), false)
	assert.T(t, strings.Contains(string(data), `"after_key":{}`), string(data))
	parsed, err = parse(t, string(data), false)
	assert.Equal(t, nil, err)
	assert.T(t, parsed.AfterKey != nil)
	assert.Equal(t, 0, parsed.AfterKey.Len())
}

func TestParseIdentityFromCaller(t *testing.T) {
	m, err := parse(t, minimalDoc, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, "meta-1", m.ID)
	assert.Equal(t, int64(5), m.SeqNo)
	assert.Equal(t, int64(2), m.PrimaryTerm)

	m, err = Unmarshal([]byte(minimalDoc), false)
	assert.Equal(t, nil, err)
	assert.Equal(t, gorollup.NoID, m.ID)
	assert.Equal(t, gorollup.UnassignedSeqNo, m.SeqNo)
	assert.Equal(t, gorollup.UnassignedPrimaryTerm, m.PrimaryTerm)
}

func TestParseMissingFields(t *testing.T) {
	cases := []struct {
		doc    string
		entity string
		field  string
	}{
		{strings.Replace(minimalDoc, `"rollup_id":"job-1",`, "", 1), gorollup.MetadataEntity, FieldRollupID},
		{strings.Replace(minimalDoc, `"rollup_id":"job-1"`, `"rollup_id":null`, 1), gorollup.MetadataEntity, FieldRollupID},
		{strings.Replace(minimalDoc, `"status":"init"`, `"status":null`, 1), gorollup.MetadataEntity, FieldStatus},
		{`{"rollup_id":"job-1","last_updated_time":null,"status":"init"}`, gorollup.MetadataEntity, FieldLastUpdatedTime},
		{`{"rollup_id":"job-1","last_updated_time_in_millis":1,"status":"init"}`, gorollup.MetadataEntity, FieldStats},
		{strings.Replace(minimalDoc, `"pages_processed":0,`, "", 1), gorollup.StatsEntity, FieldPagesProcessed},
		{strings.Replace(minimalDoc, `"search_time_in_millis":0`, `"search_time_in_millis":null`, 1), gorollup.StatsEntity, FieldSearchTimeInMillis},
		{strings.Replace(minimalDoc, `"status":"init"`, `"continuous":{"next_window_start_time_in_millis":1},"status":"init"`, 1), gorollup.ContinuousEntity, FieldNextWindowEndTime},
	}
	for _, c := range cases {
		_, err := parse(t, c.doc, false)
		mfe, ok := err.(*gorollup.MissingFieldError)
		assert.T(t, ok, c.doc, err)
		if ok {
			assert.Equal(t, c.entity, mfe.Entity, c.doc)
			assert.Equal(t, c.field, mfe.Field, c.doc)
		}
	}
}

func TestParseSkipsUnknownFields(t *testing.T) {
	doc := strings.Replace(minimalDoc, `"status":"init"`,
		`"schema_version":3,"extra":{"nested":[1,{"a":null}],"s":"x"},"status":"init"`, 1)
	doc = strings.Replace(doc, `"pages_processed":0`, `"pages_processed":0,"future_counter":12`, 1)
	m, err := parse(t, doc, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, "job-1", m.JobID)
	assert.Equal(t, gorollup.Init, m.Status)
}

func TestParseStatusTokens(t *testing.T) {
	m, err := parse(t, strings.Replace(minimalDoc, `"init"`, `"FAILED"`, 1), false)
	assert.Equal(t, nil, err)
	assert.Equal(t, gorollup.Failed, m.Status)

	_, err = parse(t, strings.Replace(minimalDoc, `"init"`, `"BOGUS"`, 1), false)
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeUnknownStatus), err)
}

func TestParseMillisOnly(t *testing.T) {
	doc := `{"rollup_id":"job-1","last_updated_time_in_millis":1709289015123,"status":"started",` +
		`"continuous":{"next_window_start_time_in_millis":1709287200000,"next_window_end_time":1709290800000},` +
		`"stats":{"pages_processed":1,"documents_processed":2,"rollups_indexed":3,"index_time_in_millis":4,"search_time_in_millis":5}}`
	m, err := parse(t, doc, false)
	assert.Equal(t, nil, err)
	assert.T(t, m.LastUpdatedTime.Equal(time.UnixMilli(1709289015123)))
	assert.T(t, m.Continuous.WindowStart.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.T(t, m.Continuous.WindowEnd.Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
	assert.T(t, m.FailureReason == nil)
	assert.Equal(t, gorollup.Stats{PagesProcessed: 1, DocumentsProcessed: 2, RollupsIndexed: 3, IndexTimeMillis: 4, SearchTimeMillis: 5}, m.Stats)
}

func TestParseHumanTimeWins(t *testing.T) {
	doc := strings.Replace(minimalDoc, `1709289015123`, `1`, 1)
	m, err := parse(t, doc, false)
	assert.Equal(t, nil, err)
	assert.T(t, m.LastUpdatedTime.Equal(testNow))
}

func TestParseMalformed(t *testing.T) {
	docs := []string{
		``,
		`[]`,
		`{"rollup_id":1}`,
		`{"rollup_id":"job-1","last_updated_time":"yesterday"}`,
		`{"rollup_id":"job-1","after_key":{"a":[1]}}`,
		`{"rollup_id":"job-1","stats":{"pages_processed":-1}}`,
		`{"rollup_id":"job-1"`,
	}
	for _, doc := range docs {
		_, err := parse(t, doc, false)
		assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedDoc), doc, err)
	}
}

func TestParseWrappedMissingWrapper(t *testing.T) {
	_, err := parse(t, `{"other":{}}`, true)
	mfe, ok := err.(*gorollup.MissingFieldError)
	assert.T(t, ok, err)
	assert.Equal(t, WrapperField, mfe.Field)

	m, err := parse(t, `{"type":"rollup","rollup_metadata":`+minimalDoc+`}`, true)
	assert.Equal(t, nil, err)
	assert.Equal(t, "job-1", m.JobID)
}

func TestMarshalRejectsNonFiniteFloat(t *testing.T) {
	ak, _ := gorollup.AfterKeyFromPairs("v", 0.0)
	ak[0].Value = posInf()
	_, err := Marshal(gorollup.NewMetadata("job-1", testNow, nil).WithAfterKey(ak), false)
	assert.NotEqual(t, nil, err)
}

func posInf() float64 {
	zero := 0.0
	return 1 / zero
}
