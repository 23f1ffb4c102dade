package movement

import (
	"context"
	"sort"
	"sync"

	"github.com/go-petr/ledger-engine/internal/domain"
)

// lockTable keeps one exclusive lock per account id, created on demand
// and never evicted: the table grows with the number of distinct
// accounts touched over the process lifetime, a few dozen bytes each.
// Locks are channel backed so acquisition can respect a context
// deadline.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{
		locks: make(map[int64]chan struct{}),
	}
}

func (t *lockTable) get(id int64) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[id] = ch
	}

	return ch
}

// acquire takes the locks for all ids in ascending id order regardless
// of the order given, which rules out deadlock between concurrent
// reciprocal transfers. The returned release function must be called
// exactly once.
func (t *lockTable) acquire(ctx context.Context, ids ...int64) (func(), error) {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	held := make([]chan struct{}, 0, len(sorted))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range sorted {
		ch := t.get(id)

		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, domain.ErrLockTimeout
		}
	}

	return release, nil
}
