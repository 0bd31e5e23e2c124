package snapshot

import (
	"context"
	"io"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/wire"
)

// Save writes m to name in store as a versioned binary snapshot
func Save(ctx context.Context, store Store, name string, m gorollup.Metadata) error {
	w, err := store.Create(name)
	if err != nil {
		return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "create snapshot:%v failed", name, err)
	}
	err = wire.EncodeVersioned(w, m)
	if er := w.Close(); er != nil {
		gorollup.DefaultLogger.Error(ctx, "close snapshot writer:%v error, err:%v", name, er)
		if err == nil {
			err = gorollup.NewRollupError(gorollup.ErrCodeGeneral, "close snapshot:%v failed", name, er)
		}
	}
	if err != nil {
		return err
	}
	gorollup.DefaultLogger.Info(ctx, "snapshot saved, name:%v, id:%v, jobId:%v", name, m.ID, m.JobID)
	return nil
}

// Load reads the snapshot name from store
func Load(ctx context.Context, store Store, name string) (gorollup.Metadata, error) {
	r, err := store.Open(name)
	if err != nil {
		return gorollup.Metadata{}, gorollup.NewRollupError(gorollup.ErrCodeGeneral, "open snapshot:%v failed", name, err)
	}
	defer func() {
		if er := r.Close(); er != nil {
			gorollup.DefaultLogger.Error(ctx, "close snapshot reader:%v error, err:%v", name, er)
		}
	}()
	return wire.DecodeVersioned(r)
}

// Copy copies the snapshot fromName of from to toName of to without decoding it
func Copy(ctx context.Context, from Store, fromName string, to Store, toName string) error {
	reader, err := from.Open(fromName)
	if err != nil {
		return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "open from snapshot:%v err", fromName, err)
	}
	writer, err := to.Create(toName)
	if err != nil {
		if er := reader.Close(); er != nil {
			gorollup.DefaultLogger.Error(ctx, "close snapshot reader:%v error, err:%v", fromName, er)
		}
		return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "open to snapshot:%v err", toName, err)
	}

	_, err = io.Copy(writer, reader)

	if er := reader.Close(); er != nil {
		gorollup.DefaultLogger.Error(ctx, "close snapshot reader:%v error, err:%v", fromName, er)
	}
	if er := writer.Close(); er != nil {
		gorollup.DefaultLogger.Error(ctx, "close snapshot writer:%v error, err:%v", toName, er)
		if err == nil {
			err = er
		}
	}
	if err != nil {
		return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "copy snapshot: %v -> %v error", fromName, toName, err)
	}
	return nil
}
