package ingest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/run"
)

// ErrRunsBusy is returned when every registry slot holds an active run.
var ErrRunsBusy = fmt.Errorf("%w: too many active indexing runs", domain.ErrRateLimited)

type entry struct {
	run    run.Run
	cancel context.CancelFunc
}

// registry keeps the most recent runs. Once it is full the oldest finished
// run makes room; active runs are never evicted.
type registry struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
	size  int
}

func newRegistry(size int) *registry {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, *entry](size)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &registry{cache: cache, size: size}
}

func (r *registry) add(rn run.Run, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.Len() >= r.size {
		evicted := false
		for _, id := range r.cache.Keys() { // oldest first
			if e, ok := r.cache.Peek(id); ok && e.run.State.Terminal() {
				r.cache.Remove(id)
				evicted = true
				break
			}
		}
		if !evicted {
			return ErrRunsBusy
		}
	}
	r.cache.Add(rn.ID, &entry{run: rn, cancel: cancel})
	return nil
}

// store replaces the snapshot of a run that is still registered.
func (r *registry) store(rn run.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache.Peek(rn.ID); ok {
		e.run = rn
	}
}

func (r *registry) get(id string) (run.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache.Get(id)
	if !ok {
		return run.Run{}, false
	}
	return e.run, true
}

// list returns all runs, newest first.
func (r *registry) list() []run.Run {
	r.mu.Lock()
	runs := make([]run.Run, 0, r.cache.Len())
	for _, e := range r.cache.Values() {
		runs = append(runs, e.run)
	}
	r.mu.Unlock()

	slices.SortStableFunc(runs, func(a, b run.Run) int { return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano()) })
	return runs
}

func (r *registry) cancel(id string) (run.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache.Peek(id)
	if !ok {
		return run.Run{}, false
	}
	if !e.run.State.Terminal() && e.cancel != nil {
		e.cancel()
	}
	return e.run, true
}

// release drops the cancel func of a finished run.
func (r *registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache.Peek(id); ok && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// tracker serializes progress updates of one run and mirrors them into the
// registry. It stays valid after the registry evicts the run.
type tracker struct {
	mu  sync.Mutex
	run run.Run
	reg *registry
}

func (t *tracker) apply(fn func(*run.Run)) run.Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn(&t.run)
	t.reg.store(t.run)
	return t.run
}
