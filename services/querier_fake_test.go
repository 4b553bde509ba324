package services

import (
	"context"
	"reflect"
	"sync"
)

// fakeQuerier answers queries by name. Unknown names leave dest untouched.
type fakeQuerier struct {
	mu        sync.Mutex
	results   map[string]interface{}
	errs      map[string]error
	calls     []Query
	snapshots int
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{results: map[string]interface{}{}, errs: map[string]error{}}
}

func (f *fakeQuerier) Scan(ctx context.Context, q Query, dest interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.errs[q.Name]; err != nil {
		return err
	}
	if v, ok := f.results[q.Name]; ok {
		reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func (f *fakeQuerier) Exec(ctx context.Context, q Query) error {
	return f.Scan(ctx, q, new(int))
}

func (f *fakeQuerier) Snapshot(ctx context.Context, fn func(Querier) error) error {
	f.mu.Lock()
	f.snapshots++
	f.mu.Unlock()
	return fn(f)
}

func (f *fakeQuerier) call(name string) (Query, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.calls {
		if q.Name == name {
			return q, true
		}
	}
	return Query{}, false
}
