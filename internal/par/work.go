// Package par implements parallel execution helpers: a bounded work set that
// runs each item at most once, and a cache of memoized futures.
package par

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// Work manages a set of work items to be executed in parallel, at most once each.
// The items in the set must all be valid map keys.
type Work[T comparable] struct {
	f       func(T) error
	running int

	mu      sync.Mutex
	added   map[T]bool
	todo    []T
	errs    []error
	wait    sync.Cond
	waiting int
}

// Add adds item to the work set, if it hasn't already been added.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	if w.added == nil {
		w.added = make(map[T]bool)
	}
	if !w.added[item] {
		w.added[item] = true
		w.todo = append(w.todo, item)
		if w.waiting > 0 {
			w.wait.Signal()
		}
	}
	w.mu.Unlock()
}

// Do runs f on the items of the work set with at most n invocations running
// at a time, and returns once every added item has been processed. f may add
// new items. A failing item does not stop the others; the returned error joins
// every item error, each prefixed with its item.
//
// Do should only be used once on a given Work.
func (w *Work[T]) Do(n int, f func(item T) error) error {
	if n < 1 {
		panic("par.Work.Do: n < 1")
	}
	if w.running >= 1 {
		panic("par.Work.Do: already called Do")
	}

	w.running = n
	w.f = f
	w.wait.L = &w.mu

	var wg sync.WaitGroup
	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runner()
		}()
	}
	w.runner()
	wg.Wait()

	return errors.Join(w.errs...)
}

// runner executes work in w until both nothing is left to do
// and all the runners are waiting for work.
func (w *Work[T]) runner() {
	for {
		w.mu.Lock()
		for len(w.todo) == 0 {
			w.waiting++
			if w.waiting == w.running {
				w.wait.Broadcast()
				w.mu.Unlock()
				return
			}
			w.wait.Wait()
			w.waiting--
		}

		// Pick at random so items added together do not contend in order.
		i := rand.Intn(len(w.todo))
		item := w.todo[i]
		w.todo[i] = w.todo[len(w.todo)-1]
		w.todo = w.todo[:len(w.todo)-1]
		w.mu.Unlock()

		if err := w.f(item); err != nil {
			w.mu.Lock()
			w.errs = append(w.errs, fmt.Errorf("%v: %w", item, err))
			w.mu.Unlock()
		}
	}
}
