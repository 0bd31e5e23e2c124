package gorollup

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// Future is the pending result of a task submitted to a taskPool
type Future interface {
	Get() (interface{}, error)
}

type future struct {
	ch chan result
}

type result struct {
	val interface{}
	err error
}

func (f *future) Get() (interface{}, error) {
	r := <-f.ch
	return r.val, r.err
}

type taskPool struct {
	pool *ants.Pool
}

func newTaskPool(size int) *taskPool {
	pool, err := ants.NewPool(size)
	if err != nil {
		panic(fmt.Sprintf("create task pool of size:%v failed, err:%v", size, err))
	}
	return &taskPool{pool: pool}
}

// Submit run task in the pool. A task that panics or cannot be scheduled completes with an error.
func (p *taskPool) Submit(ctx context.Context, task func() (interface{}, error)) Future {
	f := &future{ch: make(chan result, 1)}
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				DefaultLogger.Error(ctx, "task panic, err:%v", r)
				f.ch <- result{err: NewRollupError(ErrCodeGeneral, "task panic:%v", r)}
			}
		}()
		val, err := task()
		f.ch <- result{val: val, err: err}
	})
	if err != nil {
		f.ch <- result{err: NewRollupError(ErrCodeGeneral, "submit task failed", err)}
	}
	return f
}

func (p *taskPool) SetMaxSize(size int) {
	p.pool.Tune(size)
}
