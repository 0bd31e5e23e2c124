package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmizerany/assert"

	"github.com/chararch/gorollup"
)

func testMetadata(t *testing.T) gorollup.Metadata {
	now := time.Date(2024, 3, 1, 10, 30, 15, 987654321, time.UTC)
	ak, err := gorollup.AfterKeyFromPairs("host", "web-1", "bytes", 1.25)
	assert.Equal(t, nil, err)
	window, err := gorollup.NewContinuousWindow(now, 15*time.Minute)
	assert.Equal(t, nil, err)
	return gorollup.NewMetadata("job-1", now, &window).
		WithVersion("meta-1", 12, 3).
		WithAfterKey(ak).
		WithStatus(gorollup.Started).
		WithStats(gorollup.Stats{PagesProcessed: 4, DocumentsProcessed: 400, SearchTimeMillis: 80})
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := &LocalStore{Dir: t.TempDir()}
	m := testMetadata(t)

	assert.Equal(t, nil, Save(ctx, store, "jobs/job-1.snap", m))
	loaded, err := Load(ctx, store, "jobs/job-1.snap")
	assert.Equal(t, nil, err)
	assert.T(t, loaded.Equal(m), loaded)
}

func TestLoadMissing(t *testing.T) {
	store := &LocalStore{Dir: t.TempDir()}
	_, err := Load(context.Background(), store, "missing.snap")
	assert.NotEqual(t, nil, err)
	assert.T(t, errors.Is(err, os.ErrNotExist), err)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, nil, os.WriteFile(filepath.Join(dir, "bad.snap"), []byte{0x01}, 0o644))
	_, err := Load(context.Background(), &LocalStore{Dir: dir}, "bad.snap")
	assert.T(t, gorollup.HasCode(err, gorollup.ErrCodeMalformedStream), err)
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	from := &LocalStore{Dir: t.TempDir()}
	to := &LocalStore{Dir: t.TempDir()}
	m := testMetadata(t)

	assert.Equal(t, nil, Save(ctx, from, "a.snap", m))
	assert.Equal(t, nil, Copy(ctx, from, "a.snap", to, "backup/a.snap"))

	original, err := os.ReadFile(filepath.Join(from.Dir, "a.snap"))
	assert.Equal(t, nil, err)
	copied, err := os.ReadFile(filepath.Join(to.Dir, "backup", "a.snap"))
	assert.Equal(t, nil, err)
	assert.Equal(t, original, copied)

	loaded, err := Load(ctx, to, "backup/a.snap")
	assert.Equal(t, nil, err)
	assert.T(t, loaded.Equal(m))

	err = Copy(ctx, from, "missing.snap", to, "b.snap")
	assert.NotEqual(t, nil, err)
}
