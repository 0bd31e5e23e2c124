// Package repository stores rollup metadata in MySQL.
//
// The metadata document is kept as JSON next to its seq_no/primary_term pair. Updates check and bump
// seq_no inside a transaction holding the row lock, so a writer holding a stale pair is rejected.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/adapters/metrics"
	"github.com/chararch/gorollup/adapters/txn"
	"github.com/chararch/gorollup/document"
)

// DefaultTable is the table metadata rows are stored in
const DefaultTable = "rollup_metadata"

// primary term of rows written by this repository; MySQL has no election epochs
const primaryTerm = int64(1)

const mysqlDuplicateEntry = 1062

// Option customizes a Repository
type Option func(r *Repository)

// WithTable sets the metadata table name
func WithTable(table string) Option {
	return func(r *Repository) {
		r.table = table
	}
}

// WithMetrics records operations in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// Repository is a gorollup.Repository backed by MySQL
type Repository struct {
	db      *sql.DB
	txnMgr  gorollup.TransactionManager
	logger  gorollup.Logger
	table   string
	metrics *metrics.Metrics
}

var _ gorollup.Repository = (*Repository)(nil)

// New create a Repository on db. A nil logger uses gorollup.DefaultLogger.
func New(db *sql.DB, logger gorollup.Logger, opts ...Option) *Repository {
	if logger == nil {
		logger = gorollup.DefaultLogger
	}
	r := &Repository{
		db:     db,
		txnMgr: txn.NewTransactionManager(db),
		logger: logger,
		table:  DefaultTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateTable creates the metadata table if it does not exist
func (r *Repository) CreateTable(ctx context.Context) gorollup.RollupError {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(Schema, r.table)); err != nil {
		r.logger.Error(ctx, "create metadata table error, table:%v, err:%v", r.table, err)
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "create table:%v failed", r.table, err)
	}
	return nil
}

// Get loads the metadata stored under id
func (r *Repository) Get(ctx context.Context, id string) (m gorollup.Metadata, rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("get", start, rerr) }(time.Now())

	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT id, rollup_id, seq_no, primary_term, status, document, last_updated FROM %s WHERE id = ?", r.table), id)
	model, err := scanModel(row)
	if err == sql.ErrNoRows {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeNotFound, "metadata:%v not found in table:%v", id, r.table)
	}
	if err != nil {
		r.logger.Error(ctx, "query metadata error, id:%v, err:%v", id, err)
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "query metadata:%v failed", id, err)
	}
	return toMetadata(model)
}

// Save creates m when it has never been persisted, otherwise overwrites it if its version is current
func (r *Repository) Save(ctx context.Context, m gorollup.Metadata) (saved gorollup.Metadata, rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("save", start, rerr) }(time.Now())

	if m.Persisted() {
		return r.update(ctx, m)
	}
	return r.insert(ctx, m)
}

func (r *Repository) insert(ctx context.Context, m gorollup.Metadata) (gorollup.Metadata, gorollup.RollupError) {
	id := m.ID
	if id == gorollup.NoID {
		id = uuid.NewString()
	}
	created := m.WithVersion(id, 0, primaryTerm)
	model, er := toDBModel(created)
	if er != nil {
		return gorollup.Metadata{}, er
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s(id, rollup_id, seq_no, primary_term, status, document, last_updated) VALUES (?,?,?,?,?,?,?)", r.table),
		model.ID, model.RollupID, model.SeqNo, model.PrimaryTerm, model.Status, model.Document, model.LastUpdated)
	if err != nil {
		if isDuplicateEntry(err) {
			return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeStaleVersion, "metadata:%v of job:%v already exists", id, m.JobID)
		}
		r.logger.Error(ctx, "insert metadata error, id:%v, jobId:%v, err:%v", id, m.JobID, err)
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "insert metadata of job:%v failed", m.JobID, err)
	}
	r.logger.Debug(ctx, "metadata created, table:%v, id:%v, jobId:%v", r.table, id, m.JobID)
	return created, nil
}

func (r *Repository) update(ctx context.Context, m gorollup.Metadata) (saved gorollup.Metadata, rerr gorollup.RollupError) {
	t, rerr := r.txnMgr.BeginTx(ctx)
	if rerr != nil {
		return gorollup.Metadata{}, rerr
	}
	tx := t.(*sql.Tx)
	defer func() {
		if rerr != nil {
			if er := r.txnMgr.Rollback(tx); er != nil {
				r.logger.Error(ctx, "rollback metadata update error, id:%v, err:%v", m.ID, er)
			}
		}
	}()

	var seqNo, term int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT seq_no, primary_term FROM %s WHERE id = ? FOR UPDATE", r.table), m.ID).Scan(&seqNo, &term)
	if err == sql.ErrNoRows {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeNotFound, "metadata:%v not found in table:%v", m.ID, r.table)
	}
	if err != nil {
		r.logger.Error(ctx, "lock metadata error, id:%v, err:%v", m.ID, err)
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "lock metadata:%v failed", m.ID, err)
	}
	if seqNo != m.SeqNo || term != m.PrimaryTerm {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeStaleVersion,
			"metadata:%v of job:%v was modified concurrently, seqNo:%v/%v, primaryTerm:%v/%v", m.ID, m.JobID, m.SeqNo, seqNo, m.PrimaryTerm, term)
	}

	next := m.WithVersion(m.ID, seqNo+1, term)
	model, rerr := toDBModel(next)
	if rerr != nil {
		return gorollup.Metadata{}, rerr
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET rollup_id = ?, seq_no = ?, status = ?, document = ?, last_updated = ? WHERE id = ?", r.table),
		model.RollupID, model.SeqNo, model.Status, model.Document, model.LastUpdated, model.ID)
	if err != nil {
		r.logger.Error(ctx, "update metadata error, id:%v, err:%v", m.ID, err)
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "update metadata:%v failed", m.ID, err)
	}
	if rerr = r.txnMgr.Commit(tx); rerr != nil {
		return gorollup.Metadata{}, rerr
	}
	return next, nil
}

// Delete removes the metadata stored under id
func (r *Repository) Delete(ctx context.Context, id string) (rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("delete", start, rerr) }(time.Now())

	res, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), id)
	if err != nil {
		r.logger.Error(ctx, "delete metadata error, id:%v, err:%v", id, err)
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "delete metadata:%v failed", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "delete metadata:%v failed", id, err)
	}
	if n == 0 {
		return gorollup.NewRollupError(gorollup.ErrCodeNotFound, "metadata:%v not found in table:%v", id, r.table)
	}
	r.logger.Info(ctx, "metadata deleted, table:%v, id:%v", r.table, id)
	return nil
}

// FindByJobID returns the most recently updated metadata of job jobID, or nil
func (r *Repository) FindByJobID(ctx context.Context, jobID string) (found *gorollup.Metadata, rerr gorollup.RollupError) {
	defer func(start time.Time) { r.metrics.Observe("find_by_job", start, rerr) }(time.Now())

	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT id, rollup_id, seq_no, primary_term, status, document, last_updated FROM %s WHERE rollup_id = ? ORDER BY last_updated DESC LIMIT 1", r.table), jobID)
	model, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error(ctx, "query metadata by job error, jobId:%v, err:%v", jobID, err)
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "query metadata of job:%v failed", jobID, err)
	}
	m, rerr := toMetadata(model)
	if rerr != nil {
		return nil, rerr
	}
	return &m, nil
}

func scanModel(row *sql.Row) (*metadataDBModel, error) {
	model := &metadataDBModel{}
	if err := row.Scan(&model.ID, &model.RollupID, &model.SeqNo, &model.PrimaryTerm, &model.Status, &model.Document, &model.LastUpdated); err != nil {
		return nil, err
	}
	return model, nil
}

func toDBModel(m gorollup.Metadata) (*metadataDBModel, gorollup.RollupError) {
	doc, err := document.Marshal(m, false)
	if err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeGeneral, "encode metadata of job:%v failed", m.JobID, err)
	}
	return &metadataDBModel{
		ID:          m.ID,
		RollupID:    m.JobID,
		SeqNo:       m.SeqNo,
		PrimaryTerm: m.PrimaryTerm,
		Status:      m.Status.String(),
		Document:    string(doc),
		LastUpdated: m.LastUpdatedTime.UnixMilli(),
	}, nil
}

func toMetadata(model *metadataDBModel) (gorollup.Metadata, gorollup.RollupError) {
	iter := jsoniter.ConfigDefault.BorrowIterator([]byte(model.Document))
	defer jsoniter.ConfigDefault.ReturnIterator(iter)
	m, err := document.ParseMetadata(iter, model.ID, model.SeqNo, model.PrimaryTerm)
	if err != nil {
		if re, ok := err.(gorollup.RollupError); ok {
			return gorollup.Metadata{}, re
		}
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeMalformedDoc, "parse metadata:%v failed", model.ID, err)
	}
	return m, nil
}

func isDuplicateEntry(err error) bool {
	me, ok := err.(*mysql.MySQLError)
	return ok && me.Number == mysqlDuplicateEntry
}
