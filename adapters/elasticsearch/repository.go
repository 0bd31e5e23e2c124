// Package elasticsearch stores rollup metadata documents in an Elasticsearch index.
//
// Conditional writes use if_seq_no/if_primary_term, so a stale Metadata is rejected by Elasticsearch
// itself with a version conflict.
package elasticsearch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/adapters/metrics"
	"github.com/chararch/gorollup/document"
)

// DefaultIndex is the index metadata documents are written to
const DefaultIndex = ".rollup-metadata"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Option customizes a Repository
type Option func(r *Repository)

// WithIndex sets the index metadata documents are stored in
func WithIndex(index string) Option {
	return func(r *Repository) {
		r.index = index
	}
}

// WithWrapped stores documents nested under the rollup_metadata key, for indices shared with other document types
func WithWrapped(wrapped bool) Option {
	return func(r *Repository) {
		r.wrapped = wrapped
	}
}

// WithRefresh sets the refresh policy of writes ("true", "false" or "wait_for")
func WithRefresh(refresh string) Option {
	return func(r *Repository) {
		r.refresh = refresh
	}
}

// WithMetrics records operations in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// Repository is a gorollup.Repository backed by Elasticsearch
type Repository struct {
	client  *es.Client
	index   string
	wrapped bool
	refresh string
	metrics *metrics.Metrics
}

var _ gorollup.Repository = (*Repository)(nil)

// New create a Repository using client
func New(client *es.Client, opts ...Option) *Repository {
	r := &Repository{
		client:  client,
		index:   DefaultIndex,
		wrapped: true,
		refresh: "wait_for",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type getResponse struct {
	ID          string              `json:"_id"`
	SeqNo       int64               `json:"_seq_no"`
	PrimaryTerm int64               `json:"_primary_term"`
	Found       bool                `json:"found"`
	Source      jsoniter.RawMessage `json:"_source"`
}

type writeResponse struct {
	ID          string `json:"_id"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
	Result      string `json:"result"`
}

type searchResponse struct {
	Hits struct {
		Hits []getResponse `json:"hits"`
	} `json:"hits"`
}

// Get loads the metadata stored under id
func (r *Repository) Get(ctx context.Context, id string) (m gorollup.Metadata, rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("get", start, rerr) }(time.Now())

	res, err := r.client.Get(r.index, id, r.client.Get.WithContext(ctx))
	if err != nil {
		gorollup.DefaultLogger.Error(ctx, "get metadata error, index:%v, id:%v, err:%v", r.index, id, err)
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "get metadata:%v failed", id, err)
	}
	defer closeResponse(ctx, res)

	if res.StatusCode == http.StatusNotFound {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeNotFound, "metadata:%v not found in index:%v", id, r.index)
	}
	if res.IsError() {
		gorollup.DefaultLogger.Error(ctx, "get metadata error response, index:%v, id:%v, response:%v", r.index, id, res.String())
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "get metadata:%v failed, status:%v", id, res.Status())
	}
	var hit getResponse
	if err := decodeBody(res.Body, &hit); err != nil {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "decode get response of metadata:%v failed", id, err)
	}
	if !hit.Found {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeNotFound, "metadata:%v not found in index:%v", id, r.index)
	}
	return r.parseHit(hit)
}

// Save creates m when it has never been persisted, otherwise overwrites it if its version is current
func (r *Repository) Save(ctx context.Context, m gorollup.Metadata) (saved gorollup.Metadata, rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("save", start, rerr) }(time.Now())

	body, err := document.Marshal(m, r.wrapped)
	if err != nil {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeGeneral, "encode metadata of job:%v failed", m.JobID, err)
	}
	opts := []func(*esapi.IndexRequest){
		r.client.Index.WithContext(ctx),
		r.client.Index.WithRefresh(r.refresh),
	}
	switch {
	case m.Persisted():
		opts = append(opts,
			r.client.Index.WithDocumentID(m.ID),
			r.client.Index.WithIfSeqNo(int(m.SeqNo)),
			r.client.Index.WithIfPrimaryTerm(int(m.PrimaryTerm)),
		)
	case m.ID != gorollup.NoID:
		opts = append(opts, r.client.Index.WithDocumentID(m.ID), r.client.Index.WithOpType("create"))
	}

	res, err := r.client.Index(r.index, bytes.NewReader(body), opts...)
	if err != nil {
		gorollup.DefaultLogger.Error(ctx, "index metadata error, index:%v, id:%v, jobId:%v, err:%v", r.index, m.ID, m.JobID, err)
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "index metadata of job:%v failed", m.JobID, err)
	}
	defer closeResponse(ctx, res)

	if res.StatusCode == http.StatusConflict {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeStaleVersion,
			"metadata:%v of job:%v was modified concurrently, seqNo:%v, primaryTerm:%v", m.ID, m.JobID, m.SeqNo, m.PrimaryTerm)
	}
	if res.IsError() {
		gorollup.DefaultLogger.Error(ctx, "index metadata error response, index:%v, id:%v, response:%v", r.index, m.ID, res.String())
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "index metadata of job:%v failed, status:%v", m.JobID, res.Status())
	}
	var wr writeResponse
	if err := decodeBody(res.Body, &wr); err != nil {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "decode index response of job:%v failed", m.JobID, err)
	}
	gorollup.DefaultLogger.Debug(ctx, "metadata %v, index:%v, id:%v, seqNo:%v, primaryTerm:%v", wr.Result, r.index, wr.ID, wr.SeqNo, wr.PrimaryTerm)
	return m.WithVersion(wr.ID, wr.SeqNo, wr.PrimaryTerm), nil
}

// Delete removes the metadata stored under id
func (r *Repository) Delete(ctx context.Context, id string) (rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("delete", start, rerr) }(time.Now())

	res, err := r.client.Delete(r.index, id, r.client.Delete.WithContext(ctx), r.client.Delete.WithRefresh(r.refresh))
	if err != nil {
		gorollup.DefaultLogger.Error(ctx, "delete metadata error, index:%v, id:%v, err:%v", r.index, id, err)
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "delete metadata:%v failed", id, err)
	}
	defer closeResponse(ctx, res)

	if res.StatusCode == http.StatusNotFound {
		return gorollup.NewRollupError(gorollup.ErrCodeNotFound, "metadata:%v not found in index:%v", id, r.index)
	}
	if res.IsError() {
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "delete metadata:%v failed, status:%v", id, res.Status())
	}
	gorollup.DefaultLogger.Info(ctx, "metadata deleted, index:%v, id:%v", r.index, id)
	return nil
}

// FindByJobID returns the most recently updated metadata of job jobID, or nil.
// The rollup_id field must be mapped as a keyword.
func (r *Repository) FindByJobID(ctx context.Context, jobID string) (found *gorollup.Metadata, rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("find_by_job", start, rerr) }(time.Now())

	prefix := ""
	if r.wrapped {
		prefix = document.WrapperField + "."
	}
	query := map[string]interface{}{
		"size": 1,
		"query": map[string]interface{}{
			"term": map[string]interface{}{prefix + document.FieldRollupID: jobID},
		},
		"sort": []interface{}{
			map[string]interface{}{prefix + document.FieldLastUpdatedTime + "_in_millis": map[string]string{"order": "desc"}},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeGeneral, "encode query of job:%v failed", jobID, err)
	}
	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(body)),
		r.client.Search.WithSeqNoPrimaryTerm(true),
	)
	if err != nil {
		gorollup.DefaultLogger.Error(ctx, "search metadata error, index:%v, jobId:%v, err:%v", r.index, jobID, err)
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "search metadata of job:%v failed", jobID, err)
	}
	defer closeResponse(ctx, res)

	if res.StatusCode == http.StatusNotFound {
		// index not created yet
		return nil, nil
	}
	if res.IsError() {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "search metadata of job:%v failed, status:%v", jobID, res.Status())
	}
	var sr searchResponse
	if err := decodeBody(res.Body, &sr); err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "decode search response of job:%v failed", jobID, err)
	}
	if len(sr.Hits.Hits) == 0 {
		return nil, nil
	}
	m, perr := r.parseHit(sr.Hits.Hits[0])
	if perr != nil {
		return nil, perr
	}
	return &m, nil
}

func (r *Repository) parseHit(hit getResponse) (gorollup.Metadata, gorollup.RollupError) {
	iter := json.BorrowIterator(hit.Source)
	defer json.ReturnIterator(iter)
	var (
		m   gorollup.Metadata
		err error
	)
	if r.wrapped {
		m, err = document.ParseWrappedMetadata(iter, hit.ID, hit.SeqNo, hit.PrimaryTerm)
	} else {
		m, err = document.ParseMetadata(iter, hit.ID, hit.SeqNo, hit.PrimaryTerm)
	}
	if err != nil {
		if re, ok := err.(gorollup.RollupError); ok {
			return gorollup.Metadata{}, re
		}
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "parse metadata:%v failed", hit.ID, err)
	}
	return m, nil
}

func decodeBody(body io.Reader, v interface{}) error {
	return json.NewDecoder(body).Decode(v)
}

func closeResponse(ctx context.Context, res *esapi.Response) {
	if err := res.Body.Close(); err != nil {
		gorollup.DefaultLogger.Warn(ctx, "close elasticsearch response body error, err:%v", err)
	}
}
