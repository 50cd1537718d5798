package reconcile

import (
	"context"
	"sync"

	"hrexport/internal/submission"
)

// Merge returns done extended with every complete record of fresh, fresh
// records win over done ones. Neither input is modified.
func Merge(done, fresh submission.Set) submission.Set {
	out := done.Clone()
	for key, record := range fresh {
		if !record.IsComplete() {
			continue
		}
		out[key] = record
	}
	return out
}

// Guard saves the merge of the baseline done-set and a working set exactly
// once, no matter how many exit paths call it.
type Guard struct {
	store Store
	done  submission.Set

	once  sync.Once
	saved bool
	err   error
}

// Guard creates a Guard whose baseline is the done-set returned by Load.
func (s Store) Guard(done submission.Set) *Guard {
	return &Guard{store: s, done: done}
}

// Save persists Merge(baseline, working) on its first call, later calls return
// the first call's result.
func (g *Guard) Save(ctx context.Context, working submission.Set) error {
	g.once.Do(func() {
		g.err = g.store.Save(ctx, Merge(g.done, working))
		g.saved = g.err == nil
	})
	return g.err
}

func (g *Guard) Saved() bool {
	return g.saved
}
